package mask

import (
	"context"
	"fmt"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"github.com/shouni/gemini-mask-kit/pkg/imgutil"
)

// Compositor はユーザーのストロークを保持し、オーバーレイの描画と解析を行います。
// スレッドセーフではありません。並行に使う場合は Session 経由で操作してください。
type Compositor struct {
	renderer Renderer
	detector *Detector
	width    int
	height   int
	strokes  []domain.Stroke
	erasing  bool
}

// NewCompositor は width x height（表示解像度）の Compositor を作成します。
func NewCompositor(renderer Renderer, detector *Detector, width, height int) (*Compositor, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if detector == nil {
		detector = NewDetector()
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("描画サイズが不正です: %dx%d", width, height)
	}
	return &Compositor{renderer: renderer, detector: detector, width: width, height: height}, nil
}

// Size は表示解像度を返します。
func (c *Compositor) Size() (int, int) { return c.width, c.height }

// SetErasing は消しゴムモードを切り替えます。
func (c *Compositor) SetErasing(erasing bool) { c.erasing = erasing }

// Erasing は現在のモードが消しゴムかどうかを返します。
func (c *Compositor) Erasing() bool { return c.erasing }

// ApplyStroke は新しいストロークを追加します。
func (c *Compositor) ApplyStroke(points []domain.StrokePoint, brushRadius float32, erasing bool) {
	pts := make([]domain.StrokePoint, len(points))
	copy(pts, points)
	c.strokes = append(c.strokes, domain.Stroke{Points: pts, BrushRadius: brushRadius, Erase: erasing})
}

// Paint は現在のモードでストロークを追加します。
func (c *Compositor) Paint(points []domain.StrokePoint, brushRadius float32) {
	c.ApplyStroke(points, brushRadius, c.erasing)
}

// ExtendStroke は最後のストロークに点を追加します（ドラッグの継続）。
// ストロークがない場合は false を返します。
func (c *Compositor) ExtendStroke(points []domain.StrokePoint) bool {
	if len(c.strokes) == 0 {
		return false
	}
	last := &c.strokes[len(c.strokes)-1]
	last.Points = append(last.Points, points...)
	return true
}

// Undo は最後のストロークを取り消します。
func (c *Compositor) Undo() bool {
	if len(c.strokes) == 0 {
		return false
	}
	c.strokes = c.strokes[:len(c.strokes)-1]
	return true
}

// Clear はすべてのストロークを消去します。
func (c *Compositor) Clear() {
	c.strokes = nil
}

// Reset はソース画像が変わったときに、サイズを変更してストロークを破棄します。
func (c *Compositor) Reset(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("描画サイズが不正です: %dx%d", width, height)
	}
	c.width, c.height = width, height
	c.strokes = nil
	return nil
}

// Strokes はストローク列のコピーを返します。
func (c *Compositor) Strokes() []domain.Stroke {
	out := make([]domain.Stroke, len(c.strokes))
	copy(out, c.strokes)
	return out
}

// Render はストロークを描画したオーバーレイを返します。ストロークがなければ完全透明です。
func (c *Compositor) Render(ctx context.Context) (*imgutil.PixelBuffer, error) {
	if len(c.strokes) == 0 {
		return imgutil.NewPixelBuffer(c.width, c.height), nil
	}
	return c.renderer.RenderStrokes(ctx, c.width, c.height, c.Strokes())
}

// Analyze は描画と解析を順に行います。描画が終わるまで解析は始まりません。
func (c *Compositor) Analyze(ctx context.Context) (*Analysis, error) {
	overlay, err := c.Render(ctx)
	if err != nil {
		return nil, err
	}
	return c.detector.Analyze(overlay), nil
}
