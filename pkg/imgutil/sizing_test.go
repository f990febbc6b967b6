package imgutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFitSize(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		policy       SizePolicy
		wantW, wantH int
	}{
		{"制約なしならそのまま", 400, 300, SizePolicy{}, 400, 300},
		{"拡大はしない", 400, 300, SizePolicy{MaxWidth: 1000, MaxHeight: 1000}, 400, 300},
		{"幅で縮小", 800, 400, SizePolicy{MaxWidth: 400}, 400, 200},
		{"表示領域の60%で縮小", 1000, 1000, SizePolicy{ViewportHeight: 500}, 300, 300},
		{"高さの上限は大きい方を採用", 1000, 1000, SizePolicy{ViewportHeight: 500, MaxHeight: 400}, 400, 400},
		{"不正な入力", 0, 10, SizePolicy{}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitSize(tt.srcW, tt.srcH, tt.policy)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestResize(t *testing.T) {
	buf := NewPixelBuffer(10, 10)
	out := Resize(buf, 5, 4)
	assert.Equal(t, 5, out.Width)
	assert.Equal(t, 4, out.Height)
	assert.True(t, out.Valid())
}
