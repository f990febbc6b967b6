package imgutil

import (
	"bytes"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"
)

// BoundsError は PixelBuffer の範囲外アクセスを表します。呼び出し側のバグです。
type BoundsError struct {
	X, Y          int
	Width, Height int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("座標 (%d,%d) が範囲外です (%dx%d)", e.X, e.Y, e.Width, e.Height)
}

// PixelBuffer は RGBA8（非プリマルチプライド、行優先）の生ピクセルバッファです。
// len(Data) == Width*Height*4 を常に満たします。
type PixelBuffer struct {
	Width  int
	Height int
	Data   []byte
}

// NewPixelBuffer は完全透明の PixelBuffer を作成します。
func NewPixelBuffer(width, height int) *PixelBuffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*4),
	}
}

// FromImage は任意の image.Image を PixelBuffer に変換します。
// 元画像とはメモリを共有しません。
func FromImage(img image.Image) *PixelBuffer {
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return &PixelBuffer{
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   nrgba.Pix,
	}
}

// Decode は PNG/JPEG/GIF のバイト列をデコードして PixelBuffer を作成します。
func Decode(data []byte) (*PixelBuffer, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗しました: %w", err)
	}
	return FromImage(img), nil
}

// Valid はバッファ長の不変条件を満たしているかを返します。
func (p *PixelBuffer) Valid() bool {
	return p != nil && p.Width >= 0 && p.Height >= 0 && len(p.Data) == p.Width*p.Height*4
}

// InBounds は (x, y) がバッファ内かどうかを返します。
func (p *PixelBuffer) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < p.Width && y < p.Height
}

func (p *PixelBuffer) offset(x, y int) (int, error) {
	if !p.InBounds(x, y) {
		return 0, &BoundsError{X: x, Y: y, Width: p.Width, Height: p.Height}
	}
	return (y*p.Width + x) * 4, nil
}

// Get は (x, y) の RGBA 値を返します。
func (p *PixelBuffer) Get(x, y int) (r, g, b, a uint8, err error) {
	i, err := p.offset(x, y)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return p.Data[i], p.Data[i+1], p.Data[i+2], p.Data[i+3], nil
}

// Set は (x, y) に RGBA 値を書き込みます。
func (p *PixelBuffer) Set(x, y int, r, g, b, a uint8) error {
	i, err := p.offset(x, y)
	if err != nil {
		return err
	}
	p.Data[i], p.Data[i+1], p.Data[i+2], p.Data[i+3] = r, g, b, a
	return nil
}

// Clone はコンポーネント間で受け渡す際の防御的コピーを返します。
func (p *PixelBuffer) Clone() *PixelBuffer {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	return &PixelBuffer{Width: p.Width, Height: p.Height, Data: data}
}

// ToImage は PixelBuffer のコピーを *image.NRGBA として返します。
func (p *PixelBuffer) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	copy(img.Pix, p.Data)
	return img
}

// Encode は可逆形式 (PNG) でエンコードします。
func (p *PixelBuffer) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imgio.Encode(buf, p.ToImage(), imgio.PNGEncoder()); err != nil {
		return nil, fmt.Errorf("PNGエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeLossy は非可逆形式 (JPEG) でエンコードします。アルファは破棄されます。
func (p *PixelBuffer) EncodeLossy(quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("JPEG品質は1〜100で指定してください: %d", quality)
	}
	buf := new(bytes.Buffer)
	if err := imgio.Encode(buf, p.ToImage(), imgio.JPEGEncoder(quality)); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗しました: %w", err)
	}
	return buf.Bytes(), nil
}
