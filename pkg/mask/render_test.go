package mask

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
)

func dot(x, y, r float32, erase bool) domain.Stroke {
	return domain.Stroke{Points: []domain.StrokePoint{{X: x, Y: y}}, BrushRadius: r, Erase: erase}
}

func withinTolerance(t *testing.T, want, got, tol int, name string) {
	t.Helper()
	if got < want-tol || got > want+tol {
		t.Errorf("%s: want %d±%d, got %d", name, want, tol, got)
	}
}

func TestGGRenderer_CircleEndToEnd(t *testing.T) {
	ctx := context.Background()
	comp, err := NewCompositor(NewGGRenderer(), NewDetector(), 400, 300)
	require.NoError(t, err)

	comp.ApplyStroke([]domain.StrokePoint{{X: 200, Y: 150}}, 40, false)
	a, err := comp.Analyze(ctx)
	require.NoError(t, err)

	require.Len(t, a.Regions, 1)
	r := a.Regions[0]
	withinTolerance(t, 200, r.CenterX, 2, "CenterX")
	withinTolerance(t, 150, r.CenterY, 2, "CenterY")
	withinTolerance(t, 80, r.Width, 3, "Width")
	withinTolerance(t, 80, r.Height, 3, "Height")
}

func TestGGRenderer_EraseRemovesPaint(t *testing.T) {
	ctx := context.Background()
	renderer := NewGGRenderer()

	t.Run("全体を消すと何も残らないのだ", func(t *testing.T) {
		buf, err := renderer.RenderStrokes(ctx, 200, 200, []domain.Stroke{
			dot(100, 100, 30, false),
			dot(100, 100, 45, true),
		})
		require.NoError(t, err)
		assertAllTransparent(t, buf)
	})

	t.Run("中央を消すと2つの領域に分かれるのだ", func(t *testing.T) {
		comp, err := NewCompositor(renderer, NewDetector(), 400, 200)
		require.NoError(t, err)
		comp.ApplyStroke([]domain.StrokePoint{{X: 50, Y: 100}, {X: 350, Y: 100}}, 20, false)
		comp.SetErasing(true)
		comp.Paint([]domain.StrokePoint{{X: 200, Y: 100}}, 40)

		a, err := comp.Analyze(ctx)
		require.NoError(t, err)
		require.Len(t, a.Regions, 2)
		assert.Less(t, a.Regions[0].MaxX, 200)
		assert.Greater(t, a.Regions[1].MinX, 200)
	})
}

func TestGGRenderer_SurfaceUnavailable(t *testing.T) {
	r := NewGGRenderer()
	r.MaxSurfacePixels = 100

	_, err := r.RenderStrokes(context.Background(), 50, 50, []domain.Stroke{dot(10, 10, 5, false)})
	assert.True(t, errors.Is(err, ErrSurfaceUnavailable))

	_, err = NewGGRenderer().RenderStrokes(context.Background(), 0, 10, nil)
	assert.True(t, errors.Is(err, ErrSurfaceUnavailable))
}

func TestCompositor_StrokeList(t *testing.T) {
	comp, err := NewCompositor(NewGGRenderer(), nil, 100, 100)
	require.NoError(t, err)

	assert.False(t, comp.ExtendStroke([]domain.StrokePoint{{X: 1, Y: 1}}))
	comp.ApplyStroke([]domain.StrokePoint{{X: 1, Y: 1}}, 5, false)
	assert.True(t, comp.ExtendStroke([]domain.StrokePoint{{X: 2, Y: 2}, {X: 3, Y: 3}}))
	require.Len(t, comp.Strokes(), 1)
	assert.Len(t, comp.Strokes()[0].Points, 3)

	assert.True(t, comp.Undo())
	assert.False(t, comp.Undo())

	comp.ApplyStroke([]domain.StrokePoint{{X: 1, Y: 1}}, 5, false)
	require.NoError(t, comp.Reset(50, 60))
	assert.Empty(t, comp.Strokes())
	w, h := comp.Size()
	assert.Equal(t, []int{50, 60}, []int{w, h})

	buf, err := comp.Render(context.Background())
	require.NoError(t, err)
	assertAllTransparent(t, buf)
}

func TestGGRenderer_StrokeBounds(t *testing.T) {
	ctx := context.Background()

	t.Run("はみ出したストロークは描画面の内側だけ描かれるのだ", func(t *testing.T) {
		comp, err := NewCompositor(NewGGRenderer(), NewDetector(), 200, 100)
		require.NoError(t, err)
		comp.ApplyStroke([]domain.StrokePoint{{X: -30, Y: 50}, {X: 60, Y: 50}}, 15, false)

		a, err := comp.Analyze(ctx)
		require.NoError(t, err)
		require.Len(t, a.Regions, 1)
		assert.Equal(t, 0, a.Regions[0].MinX)
		withinTolerance(t, 75, a.Regions[0].MaxX, 2, "MaxX")
		withinTolerance(t, 50, a.Regions[0].CenterY, 1, "CenterY")
	})

	t.Run("描画面の外だけのストロークは何も描かないのだ", func(t *testing.T) {
		buf, err := NewGGRenderer().RenderStrokes(ctx, 100, 100, []domain.Stroke{dot(500, 500, 20, false)})
		require.NoError(t, err)
		assertAllTransparent(t, buf)
	})

	t.Run("外接矩形は半径ぶん広げて描画面で切り詰めるのだ", func(t *testing.T) {
		s := domain.Stroke{Points: []domain.StrokePoint{{X: 10, Y: 10}, {X: 40, Y: 20}}, BrushRadius: 5}
		rect := strokeBounds(s, 2, image.Rect(0, 0, 400, 400))
		assert.Equal(t, image.Rect(8, 8, 92, 52), rect)

		clipped := strokeBounds(s, 2, image.Rect(0, 0, 50, 50))
		assert.Equal(t, image.Rect(8, 8, 50, 50), clipped)
	})
}
