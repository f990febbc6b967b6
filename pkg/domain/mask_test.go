package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSet_DeleteImage(t *testing.T) {
	t.Run("削除したインデックスより後ろのマスクが1つずつ詰められるのだ", func(t *testing.T) {
		s := NewMaskSet()
		s.Put(0, Mask{SourceRegionID: "a"})
		s.Put(2, Mask{SourceRegionID: "c"})
		s.Put(3, Mask{SourceRegionID: "d"})

		s.DeleteImage(1)

		assert.Equal(t, []int{0, 1, 2}, s.Indices())
		m, ok := s.Get(1)
		assert.True(t, ok)
		assert.Equal(t, "c", m.SourceRegionID)
		m, _ = s.Get(2)
		assert.Equal(t, "d", m.SourceRegionID)
	})

	t.Run("マスクを持つ画像を削除するとそのマスクも消えるのだ", func(t *testing.T) {
		s := NewMaskSet()
		s.Put(0, Mask{SourceRegionID: "a"})
		s.Put(1, Mask{SourceRegionID: "b"})

		s.DeleteImage(0)

		assert.Equal(t, 1, s.Len())
		m, ok := s.Get(0)
		assert.True(t, ok)
		assert.Equal(t, "b", m.SourceRegionID)
	})

	t.Run("Remove は再キーを行わないのだ", func(t *testing.T) {
		s := NewMaskSet()
		s.Put(0, Mask{})
		s.Put(2, Mask{})
		s.Remove(0)
		assert.Equal(t, []int{2}, s.Indices())
	})
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"タイムアウト", fmt.Errorf("wrap: %w", ErrTimeout), "timeout"},
		{"レート制限", ErrRateLimited, "rate_limited"},
		{"安全フィルター", ErrContentFiltered, "content_filtered"},
		{"画像なし", ErrNoImageInResponse, "no_image"},
		{"その他のプロバイダーエラー", &ProviderError{Code: 500, Message: "internal"}, "provider_error"},
		{"未分類", fmt.Errorf("boom"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}
