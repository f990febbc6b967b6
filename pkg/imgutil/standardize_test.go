package imgutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidBuffer(r, g, b uint8) *PixelBuffer {
	buf := NewPixelBuffer(2, 2)
	for i := 0; i < len(buf.Data); i += 4 {
		buf.Data[i], buf.Data[i+1], buf.Data[i+2], buf.Data[i+3] = r, g, b, 255
	}
	return buf
}

func TestStandardizer_Apply(t *testing.T) {
	s := NewStandardizer()

	t.Run("ほぼ白は純白にスナップされるのだ", func(t *testing.T) {
		buf := solidBuffer(240, 235, 250)
		rep := s.Apply(buf)
		assert.Equal(t, 4, rep.Whitened)
		assert.Equal(t, []byte{255, 255, 255, 255}, buf.Data[:4])
	})

	t.Run("暗い茶色はさらに暗くなるのだ", func(t *testing.T) {
		buf := solidBuffer(101, 67, 33)
		rep := s.Apply(buf)
		assert.Equal(t, 4, rep.Darkened)
		assert.Equal(t, []byte{81, 47, 13, 255}, buf.Data[:4])
	})

	t.Run("黄色〜金色は少し明るくなるのだ", func(t *testing.T) {
		buf := solidBuffer(230, 200, 40)
		rep := s.Apply(buf)
		assert.Equal(t, 4, rep.Brightened)
		assert.Equal(t, []byte{242, 212, 52, 255}, buf.Data[:4])
	})

	t.Run("対象外の色はそのままなのだ", func(t *testing.T) {
		buf := solidBuffer(20, 60, 200)
		rep := s.Apply(buf)
		assert.False(t, rep.Changed())
		assert.Equal(t, []byte{20, 60, 200, 255}, buf.Data[:4])
	})
}

func TestStandardizer_Deterministic(t *testing.T) {
	s := NewStandardizer()
	src := NewPixelBuffer(3, 1)
	require.NoError(t, src.Set(0, 0, 240, 240, 240, 255))
	require.NoError(t, src.Set(1, 0, 101, 67, 33, 255))
	require.NoError(t, src.Set(2, 0, 230, 200, 40, 255))
	data, err := src.Encode()
	require.NoError(t, err)

	out1, rep1, err := s.Standardize(data)
	require.NoError(t, err)
	out2, rep2, err := s.Standardize(data)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, rep1, rep2)
	assert.True(t, rep1.Changed())
}

func TestStandardizer_InvalidData(t *testing.T) {
	_, _, err := NewStandardizer().Standardize([]byte("not an image"))
	assert.Error(t, err)
}
