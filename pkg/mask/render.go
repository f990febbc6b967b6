package mask

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/gogpu/gg"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"github.com/shouni/gemini-mask-kit/pkg/imgutil"
)

// ErrSurfaceUnavailable は描画面を用意できなかったことを示します。
// 呼び出し側は「マスクなし」として処理を続行してください。
var ErrSurfaceUnavailable = errors.New("描画面を作成できません")

// Renderer はストローク列をオーバーレイ画像に描画する機能です。
// 返すバッファは描画されていない部分が完全透明で、描画部分は赤です。
type Renderer interface {
	RenderStrokes(ctx context.Context, width, height int, strokes []domain.Stroke) (*imgutil.PixelBuffer, error)
}

const (
	defaultRenderScale      = 2.0
	defaultPaintAlpha       = 0.5
	defaultAlphaCutoff      = 16
	defaultMaxSurfacePixels = 8192 * 8192
)

// GGRenderer は gogpu/gg のソフトウェアラスタライザでストロークを描画します。
// 表示解像度の Scale 倍で描画してから縮小し、縁のジャギーによる判定漏れを減らします。
type GGRenderer struct {
	Scale            float64
	PaintAlpha       float64 // 塗りの不透明度（半透明の赤）
	AlphaCutoff      uint8   // 縮小後にこれ未満のアルファは完全透明にする
	MaxSurfacePixels int
}

// NewGGRenderer は既定値の GGRenderer を返します。
func NewGGRenderer() *GGRenderer {
	return &GGRenderer{
		Scale:            defaultRenderScale,
		PaintAlpha:       defaultPaintAlpha,
		AlphaCutoff:      defaultAlphaCutoff,
		MaxSurfacePixels: defaultMaxSurfacePixels,
	}
}

// RenderStrokes は strokes を順に合成します。塗りは source-over、消しゴムは
// destination-out で合成されるため、消しゴムは既存の塗りを物理的に取り除きます。
func (r *GGRenderer) RenderStrokes(ctx context.Context, width, height int, strokes []domain.Stroke) (buf *imgutil.PixelBuffer, err error) {
	scale := r.Scale
	if scale <= 0 {
		scale = 1
	}
	sw := int(math.Ceil(float64(width) * scale))
	sh := int(math.Ceil(float64(height) * scale))
	if width <= 0 || height <= 0 || (r.MaxSurfacePixels > 0 && sw*sh > r.MaxSurfacePixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrSurfaceUnavailable, sw, sh)
	}

	defer func() {
		if rec := recover(); rec != nil {
			buf, err = nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, rec)
		}
	}()

	acc := image.NewNRGBA(image.Rect(0, 0, sw, sh))
	for _, s := range strokes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.composite(acc, scale, s); err != nil {
			return nil, err
		}
	}

	var out image.Image = acc
	if sw != width || sh != height {
		out = imaging.Resize(acc, width, height, imaging.Box)
	}

	buf = imgutil.FromImage(out)
	for i := 0; i < len(buf.Data); i += 4 {
		if buf.Data[i+3] < r.AlphaCutoff {
			buf.Data[i], buf.Data[i+1], buf.Data[i+2], buf.Data[i+3] = 0, 0, 0, 0
			continue
		}
		buf.Data[i], buf.Data[i+1], buf.Data[i+2] = 255, 0, 0
	}
	return buf, nil
}

// strokeBounds はストロークが触れうる範囲を描画面の座標で返します。
func strokeBounds(s domain.Stroke, scale float64, surface image.Rectangle) image.Rectangle {
	pad := float64(s.BrushRadius)*scale + 2
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range s.Points {
		x, y := float64(p.X)*scale, float64(p.Y)*scale
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	rect := image.Rect(
		int(math.Floor(minX-pad)), int(math.Floor(minY-pad)),
		int(math.Ceil(maxX+pad)), int(math.Ceil(maxY+pad)),
	)
	return rect.Intersect(surface)
}

// composite は1本のストロークをその外接矩形だけの gg.Context で描画し、acc に合成します。
// 塗りは source-over、消しゴムは destination-out です。
func (r *GGRenderer) composite(acc *image.NRGBA, scale float64, s domain.Stroke) error {
	if len(s.Points) == 0 || s.BrushRadius <= 0 {
		return nil
	}
	rect := strokeBounds(s, scale, acc.Bounds())
	if rect.Empty() {
		return nil
	}

	dc := gg.NewContext(rect.Dx(), rect.Dy())
	defer dc.Close()
	dc.SetRGBA(1, 1, 1, 1)

	ox, oy := float64(rect.Min.X), float64(rect.Min.Y)
	radius := float64(s.BrushRadius) * scale
	first := s.Points[0]
	if isDot(s.Points) {
		dc.DrawCircle(float64(first.X)*scale-ox, float64(first.Y)*scale-oy, radius)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("ストロークの塗りつぶしに失敗しました: %w", err)
		}
	} else {
		dc.SetLineWidth(radius * 2)
		dc.SetLineCap(gg.LineCapRound)
		dc.SetLineJoin(gg.LineJoinRound)
		dc.MoveTo(float64(first.X)*scale-ox, float64(first.Y)*scale-oy)
		for _, p := range s.Points[1:] {
			dc.LineTo(float64(p.X)*scale-ox, float64(p.Y)*scale-oy)
		}
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("ストロークの描画に失敗しました: %w", err)
		}
	}

	if err := dc.FlushGPU(); err != nil {
		return fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}
	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return fmt.Errorf("%w: 予期しない画像型 %T", ErrSurfaceUnavailable, dc.Image())
	}

	for y := 0; y < rect.Dy(); y++ {
		src := img.Pix[y*img.Stride:]
		dst := acc.Pix[(rect.Min.Y+y)*acc.Stride+rect.Min.X*4:]
		for x := 0; x < rect.Dx(); x++ {
			c := float64(src[x*4+3]) / 255
			if c == 0 {
				continue
			}
			a := float64(dst[x*4+3]) / 255
			if s.Erase {
				a *= 1 - c
			} else {
				paint := c * r.PaintAlpha
				a = paint + a*(1-paint)
			}
			dst[x*4] = 255
			dst[x*4+3] = uint8(math.Round(math.Min(a, 1) * 255))
		}
	}
	return nil
}

// isDot はストロークが実質1点かどうかを返します。
func isDot(points []domain.StrokePoint) bool {
	for _, p := range points[1:] {
		if p != points[0] {
			return false
		}
	}
	return true
}
