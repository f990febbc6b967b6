package imgutil

import (
	"math"

	"github.com/disintegration/imaging"
)

// viewportHeightRatio は表示領域の高さに対してマスク面が使える割合です。
const viewportHeightRatio = 0.6

// SizePolicy はマスク描画面の寸法を決めるための制約です。0 の項目は無視されます。
type SizePolicy struct {
	ViewportHeight int
	MaxWidth       int
	MaxHeight      int
}

// FitSize はソース画像のアスペクト比を保ったまま policy に収まる寸法を返します。
// 高さの上限は「表示領域の高さの60%」と MaxHeight の大きい方、幅の上限は MaxWidth です。
// 拡大は行いません。
func FitSize(srcW, srcH int, policy SizePolicy) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}

	limitH := math.Max(float64(policy.ViewportHeight)*viewportHeightRatio, float64(policy.MaxHeight))
	limitW := float64(policy.MaxWidth)

	scale := 1.0
	if limitH > 0 {
		scale = math.Min(scale, limitH/float64(srcH))
	}
	if limitW > 0 {
		scale = math.Min(scale, limitW/float64(srcW))
	}

	w := int(math.Round(float64(srcW) * scale))
	h := int(math.Round(float64(srcH) * scale))
	return max(w, 1), max(h, 1)
}

// Resize は buf を width x height に明示的にリサンプリングした新しいバッファを返します。
func Resize(buf *PixelBuffer, width, height int) *PixelBuffer {
	if width == buf.Width && height == buf.Height {
		return buf.Clone()
	}
	return FromImage(imaging.Resize(buf.ToImage(), width, height, imaging.Lanczos))
}
