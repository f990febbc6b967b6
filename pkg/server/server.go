package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"github.com/shouni/gemini-mask-kit/pkg/mask"
	"github.com/shouni/gemini-mask-kit/pkg/sse"
	"github.com/shouni/gemini-mask-kit/pkg/store"
)

// TopicMask はマスク更新イベントの SSE トピックです。
const TopicMask = "mask"

// VariationRunner はバリエーション生成を行います（generator.Orchestrator が満たします）。
type VariationRunner interface {
	Run(ctx context.Context, req domain.GenerationRequest) ([]domain.VariationResult, error)
}

// SeedController はシードの参照と操作を行います（seed.Manager が満たします）。
type SeedController interface {
	Current() uint32
	CurrentOrNewSeed() uint32
	SetLocked(locked bool)
	IsLocked() bool
}

// Dependencies は Server の依存関係です。Hub と Detector は nil でも構いません。
type Dependencies struct {
	Runner   VariationRunner
	Seeds    SeedController
	Regions  store.RegionStore
	Renderer mask.Renderer
	Detector *mask.Detector
	Hub      *sse.Hub
}

// Server はマスク編集とバリエーション生成の HTTP 窓口です。
type Server struct {
	deps Dependencies

	mu         sync.RWMutex
	workspaces map[string]*workspace
}

// workspace は1つの編集セッションに属する画像ごとのエディターとマスク集合です。
// エディターの添字が画像インデックスに対応します。
type workspace struct {
	mu      sync.Mutex
	id      string
	editors []*mask.Session
	masks   *domain.MaskSet
}

// New は Server を生成します。
func New(deps Dependencies) (*Server, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if deps.Seeds == nil {
		return nil, fmt.Errorf("seed controller is required")
	}
	if deps.Regions == nil {
		return nil, fmt.Errorf("region store is required")
	}
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Detector == nil {
		deps.Detector = mask.NewDetector()
	}
	return &Server{deps: deps, workspaces: make(map[string]*workspace)}, nil
}

// Router はすべてのルートを登録した gin.Engine を返します。
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	sessions := r.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.DELETE("/:id", s.deleteSession)
	sessions.POST("/:id/images", s.addImage)
	sessions.DELETE("/:id/images/:index", s.deleteImage)
	sessions.POST("/:id/strokes", s.applyStroke)
	sessions.POST("/:id/undo", s.undo)
	sessions.POST("/:id/clear", s.clear)
	sessions.POST("/:id/commit", s.commit)
	sessions.GET("/:id/regions", s.listRegions)

	r.POST("/variations", s.runVariations)

	r.GET("/seed", s.getSeed)
	r.POST("/seed", s.nextSeed)
	r.POST("/seed/lock", s.lockSeed)

	if s.deps.Hub != nil {
		r.GET("/events", s.deps.Hub.ServeSSE)
	}
	return r
}

// Close はすべての編集セッションを終了します。
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ws := range s.workspaces {
		ws.close()
		delete(s.workspaces, id)
	}
}

func (s *Server) newWorkspace(ctx context.Context, sizes []imageSize) (*workspace, error) {
	ws := &workspace{id: uuid.NewString(), masks: domain.NewMaskSet()}
	for _, size := range sizes {
		if _, err := s.addEditor(ws, size); err != nil {
			ws.close()
			return nil, err
		}
	}

	s.mu.Lock()
	s.workspaces[ws.id] = ws
	s.mu.Unlock()
	slog.InfoContext(ctx, "編集セッションを作成しました", "session", ws.id, "images", len(sizes))
	return ws, nil
}

// addEditor は画像を1枚追加し、そのインデックスを返します。
func (s *Server) addEditor(ws *workspace, size imageSize) (int, error) {
	comp, err := mask.NewCompositor(s.deps.Renderer, s.deps.Detector, size.Width, size.Height)
	if err != nil {
		return 0, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	index := len(ws.editors)
	editor, err := mask.NewSession(ws.id, index, comp, s.deps.Regions, s.publishMask)
	if err != nil {
		return 0, err
	}
	ws.editors = append(ws.editors, editor)
	return index, nil
}

func (s *Server) workspace(id string) (*workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	return ws, ok
}

func (s *Server) removeWorkspace(id string) (*workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[id]
	if ok {
		delete(s.workspaces, id)
	}
	return ws, ok
}

// publishMask はマスク更新を SSE で通知します。セッションの所有ゴルーチン上で呼ばれます。
func (s *Server) publishMask(u mask.MaskUpdate) {
	if s.deps.Hub == nil {
		return
	}
	event := maskEvent{
		SessionID: u.SessionID,
		Index:     u.Index,
		Empty:     u.Empty,
		Regions:   u.Mask.Regions,
	}
	if err := s.deps.Hub.PublishJSON(TopicMask, event); err != nil {
		slog.Warn("マスク更新イベントの送信に失敗しました", "session", u.SessionID, "error", err)
	}
}

// editor は index のエディターを返します。
func (ws *workspace) editor(index int) (*mask.Session, bool) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if index < 0 || index >= len(ws.editors) {
		return nil, false
	}
	return ws.editors[index], true
}

// indexOf はエディターの現在のインデックスを返します。画像削除で詰められている場合があります。
func (ws *workspace) indexOf(editor *mask.Session) (int, bool) {
	for i, e := range ws.editors {
		if e == editor {
			return i, true
		}
	}
	return 0, false
}

// deleteImage は画像を削除し、後ろのインデックスを1つ詰めます。
func (ws *workspace) deleteImage(index int) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if index < 0 || index >= len(ws.editors) {
		return false
	}
	ws.editors[index].Close()
	ws.editors = append(ws.editors[:index], ws.editors[index+1:]...)
	for i := index; i < len(ws.editors); i++ {
		ws.editors[i].SetIndex(i)
	}
	ws.masks.DeleteImage(index)
	return true
}

func (ws *workspace) storeMask(editor *mask.Session, m domain.Mask) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	index, ok := ws.indexOf(editor)
	if !ok {
		return
	}
	if m.IsEmpty() {
		ws.masks.Remove(index)
		return
	}
	ws.masks.Put(index, m)
}

func (ws *workspace) snapshot() map[int]domain.Mask {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.masks.Snapshot()
}

func (ws *workspace) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, e := range ws.editors {
		e.Close()
	}
	ws.editors = nil
}
