package imgutil

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"testing"
)

// gradientPNG は半透明のグラデーション画像を PNG で返します。
func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if err := buf.Set(x, y, uint8(x*255/w), uint8(y*255/h), uint8((x+y)%256), 128); err != nil {
				t.Fatalf("Set(%d, %d): %v", x, y, err)
			}
		}
	}
	data, err := buf.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func TestCompressToJPEG(t *testing.T) {
	t.Run("参照画像をJPEGに変換し寸法を保つのだ", func(t *testing.T) {
		got, err := CompressToJPEG(gradientPNG(t, 40, 24), 75)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg, format, err := image.DecodeConfig(bytes.NewReader(got))
		if err != nil {
			t.Fatalf("failed to decode output: %v", err)
		}
		if format != "jpeg" {
			t.Errorf("format = %s, want jpeg", format)
		}
		if cfg.Width != 40 || cfg.Height != 24 {
			t.Errorf("size = %dx%d, want 40x24", cfg.Width, cfg.Height)
		}
	})

	t.Run("透過情報は失われるのだ", func(t *testing.T) {
		got, err := CompressToJPEG(gradientPNG(t, 8, 8), 75)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		decoded, err := Decode(got)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if _, _, _, a, _ := decoded.Get(3, 3); a != 255 {
			t.Errorf("alpha = %d, want 255", a)
		}
	})

	t.Run("画像でないデータはエラーなのだ", func(t *testing.T) {
		if _, err := CompressToJPEG([]byte("not an image"), 75); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("品質を下げるとサイズが小さくなるのだ", func(t *testing.T) {
		input := gradientPNG(t, 64, 64)
		high, err := CompressToJPEG(input, 95)
		if err != nil {
			t.Fatal(err)
		}
		low, err := CompressToJPEG(input, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(low) >= len(high) {
			t.Errorf("low quality size %d should be smaller than high quality size %d", len(low), len(high))
		}
	})
}
