package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"github.com/shouni/gemini-mask-kit/pkg/generator"
	"github.com/shouni/gemini-mask-kit/pkg/imgutil"
	"github.com/shouni/gemini-mask-kit/pkg/seed"
	"github.com/shouni/gemini-mask-kit/pkg/sse"
	"github.com/shouni/gemini-mask-kit/pkg/store"
)

// --- Mocks ---

// squareRenderer は各ストロークの1点目を中心に一辺 2r の正方形を塗るのだ。
type squareRenderer struct{}

func (squareRenderer) RenderStrokes(ctx context.Context, width, height int, strokes []domain.Stroke) (*imgutil.PixelBuffer, error) {
	buf := imgutil.NewPixelBuffer(width, height)
	for _, s := range strokes {
		c, r := s.Points[0], int(s.BrushRadius)
		for y := int(c.Y) - r; y <= int(c.Y)+r; y++ {
			for x := int(c.X) - r; x <= int(c.X)+r; x++ {
				if !buf.InBounds(x, y) {
					continue
				}
				if s.Erase {
					_ = buf.Set(x, y, 0, 0, 0, 0)
				} else {
					_ = buf.Set(x, y, 255, 0, 0, 255)
				}
			}
		}
	}
	return buf, nil
}

type stubRunner struct {
	mu   sync.Mutex
	last domain.GenerationRequest
	run  func(req domain.GenerationRequest) ([]domain.VariationResult, error)
}

func (s *stubRunner) Run(ctx context.Context, req domain.GenerationRequest) ([]domain.VariationResult, error) {
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()
	return s.run(req)
}

func okRunner() *stubRunner {
	return &stubRunner{run: func(req domain.GenerationRequest) ([]domain.VariationResult, error) {
		return []domain.VariationResult{
			{ImageBytes: []byte("a"), MimeType: "image/png", TierLabel: "fidelity", Seed: 10},
			{ImageBytes: []byte("a"), MimeType: "image/png", TierLabel: "fidelity", Seed: 10, Duplicate: true},
		}, nil
	}}
}

func newTestServer(t *testing.T, runner *stubRunner) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := New(Dependencies{
		Runner:   runner,
		Seeds:    seed.New(seed.WithInitial(1234)),
		Regions:  store.NewMemoryRegionStore(),
		Renderer: squareRenderer{},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, s.Router()
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, r http.Handler, images int) string {
	t.Helper()
	sizes := make([]gin.H, images)
	for i := range sizes {
		sizes[i] = gin.H{"width": 100, "height": 80}
	}
	w := do(t, r, http.MethodPost, "/sessions", gin.H{"images": sizes})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func paint(t *testing.T, r http.Handler, id string, index int, x, y float32) {
	t.Helper()
	w := do(t, r, http.MethodPost, "/sessions/"+id+"/strokes", gin.H{
		"index":        index,
		"points":       []gin.H{{"x": x, "y": y}},
		"brush_radius": 6,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func commit(t *testing.T, r http.Handler, id string, index int) commitResponse {
	t.Helper()
	w := do(t, r, http.MethodPost, fmt.Sprintf("/sessions/%s/commit?index=%d", id, index), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp commitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// --- Tests ---

func TestNew(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestServer_MaskEditing(t *testing.T) {
	runner := okRunner()
	_, r := newTestServer(t, runner)
	id := createSession(t, r, 2)

	t.Run("描いてコミットすると領域付きのマスクが返るのだ", func(t *testing.T) {
		paint(t, r, id, 0, 50, 40)
		resp := commit(t, r, id, 0)

		assert.True(t, resp.Available)
		assert.False(t, resp.Empty)
		require.Len(t, resp.Mask.Regions, 1)
		assert.Equal(t, 50, resp.Mask.Regions[0].CenterX)
		assert.Equal(t, 40, resp.Mask.Regions[0].CenterY)
		assert.NotEmpty(t, resp.Mask.Image)
		assert.NotEmpty(t, resp.Mask.SourceRegionID)
	})

	t.Run("解析した領域はセッションに追記されるのだ", func(t *testing.T) {
		w := do(t, r, http.MethodGet, "/sessions/"+id+"/regions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Regions []domain.RegionInfo `json:"regions"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Regions, 1)
	})

	t.Run("バリエーション生成にセッションのマスクが渡るのだ", func(t *testing.T) {
		paint(t, r, id, 1, 20, 20)
		commit(t, r, id, 1)

		w := do(t, r, http.MethodPost, "/variations", gin.H{
			"session_id": id,
			"prompt":     "make it blue",
			"images":     []gin.H{{"data": []byte("p")}, {"url": "https://example.com/r.png", "purpose": "style"}},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.ElementsMatch(t, []int{0, 1}, keys(runner.last.Masks))
		assert.Equal(t, "style", runner.last.Images[1].Purpose)
	})

	t.Run("画像を削除すると後ろのマスクが詰められるのだ", func(t *testing.T) {
		w := do(t, r, http.MethodDelete, "/sessions/"+id+"/images/0", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		do(t, r, http.MethodPost, "/variations", gin.H{
			"session_id": id, "prompt": "x", "images": []gin.H{{"data": []byte("p")}},
		})
		require.Len(t, runner.last.Masks, 1)
		assert.Equal(t, 20, runner.last.Masks[0].Regions[0].CenterX)

		// 元の画像1は画像0として操作できるのだ
		resp := commit(t, r, id, 0)
		assert.False(t, resp.Empty)
		w = do(t, r, http.MethodPost, "/sessions/"+id+"/commit?index=1", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("クリアするとマスクが空になり集合からも消えるのだ", func(t *testing.T) {
		w := do(t, r, http.MethodPost, "/sessions/"+id+"/clear?index=0", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		resp := commit(t, r, id, 0)
		assert.True(t, resp.Empty)
		assert.Empty(t, resp.Mask.Regions)

		do(t, r, http.MethodPost, "/variations", gin.H{
			"session_id": id, "prompt": "x", "images": []gin.H{{"data": []byte("p")}},
		})
		assert.Empty(t, runner.last.Masks)
	})

	t.Run("取り消しはストロークがあるときだけ成功するのだ", func(t *testing.T) {
		paint(t, r, id, 0, 30, 30)
		w := do(t, r, http.MethodPost, "/sessions/"+id+"/undo", nil)
		assert.JSONEq(t, `{"undone":true}`, w.Body.String())
		w = do(t, r, http.MethodPost, "/sessions/"+id+"/undo", nil)
		assert.JSONEq(t, `{"undone":false}`, w.Body.String())
	})

	t.Run("セッションを削除すると以降は 404 なのだ", func(t *testing.T) {
		w := do(t, r, http.MethodDelete, "/sessions/"+id, nil)
		require.Equal(t, http.StatusNoContent, w.Code)
		w = do(t, r, http.MethodGet, "/sessions/"+id+"/regions", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_Validation(t *testing.T) {
	_, r := newTestServer(t, okRunner())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"画像なしのセッションは作れないのだ", http.MethodPost, "/sessions", gin.H{"images": []gin.H{}}, http.StatusBadRequest},
		{"サイズ0の画像は作れないのだ", http.MethodPost, "/sessions", gin.H{"images": []gin.H{{"width": 0, "height": 10}}}, http.StatusBadRequest},
		{"存在しないセッションは 404 なのだ", http.MethodPost, "/sessions/nope/undo", nil, http.StatusNotFound},
		{"プロンプトなしの生成は 400 なのだ", http.MethodPost, "/variations", gin.H{"images": []gin.H{{"data": []byte("p")}}}, http.StatusBadRequest},
		{"データも URL もない画像は 400 なのだ", http.MethodPost, "/variations", gin.H{"prompt": "x", "images": []gin.H{{}}}, http.StatusBadRequest},
		{"ロック状態の指定がないと 400 なのだ", http.MethodPost, "/seed/lock", gin.H{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestServer_Variations(t *testing.T) {
	t.Run("結果は複製フラグ付きで返るのだ", func(t *testing.T) {
		_, r := newTestServer(t, okRunner())
		w := do(t, r, http.MethodPost, "/variations", gin.H{"prompt": "x", "images": []gin.H{{"data": []byte("p")}}})
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Variations []variationResponse `json:"variations"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Variations, 2)
		assert.Equal(t, []byte("a"), resp.Variations[0].Image)
		assert.False(t, resp.Variations[0].Duplicate)
		assert.True(t, resp.Variations[1].Duplicate)
	})

	t.Run("全滅は 502 でエラー種別を返すのだ", func(t *testing.T) {
		runner := &stubRunner{run: func(req domain.GenerationRequest) ([]domain.VariationResult, error) {
			return nil, fmt.Errorf("%w: %w", generator.ErrNoVariationsProduced, domain.ErrRateLimited)
		}}
		_, r := newTestServer(t, runner)
		w := do(t, r, http.MethodPost, "/variations", gin.H{"prompt": "x", "images": []gin.H{{"data": []byte("p")}}})

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "rate_limited", resp["kind"])
	})
}

func TestServer_Seed(t *testing.T) {
	_, r := newTestServer(t, okRunner())

	w := do(t, r, http.MethodGet, "/seed", nil)
	assert.JSONEq(t, `{"seed":1234,"locked":false}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/seed/lock", gin.H{"locked": true})
	assert.JSONEq(t, `{"seed":1234,"locked":true}`, w.Body.String())

	w = do(t, r, http.MethodPost, "/seed", nil)
	assert.JSONEq(t, `{"seed":1234,"locked":true}`, w.Body.String(), "ロック中はシードが変わらないのだ")
}

func keys(m map[int]domain.Mask) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestServer_MaskEventIndexAfterDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := sse.NewHub()
	go hub.Run(ctx)

	s, err := New(Dependencies{
		Runner:   okRunner(),
		Seeds:    seed.New(),
		Regions:  store.NewMemoryRegionStore(),
		Renderer: squareRenderer{},
		Hub:      hub,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	r := s.Router()

	events := make(chan []byte, 8)
	hub.Subscribe(events, TopicMask)

	id := createSession(t, r, 3)
	w := do(t, r, http.MethodDelete, "/sessions/"+id+"/images/0", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// 元の画像2は画像1として通知されるのだ
	paint(t, r, id, 1, 40, 40)
	commit(t, r, id, 1)

	select {
	case msg := <-events:
		var ev maskEvent
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, id, ev.SessionID)
		assert.Equal(t, 1, ev.Index)
		assert.False(t, ev.Empty)
	case <-time.After(time.Second):
		t.Fatal("マスク更新イベントが届かなかったのだ")
	}
}
