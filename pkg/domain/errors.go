package domain

import (
	"errors"
	"fmt"
)

// プロバイダー呼び出し1回ごとのエラー種別です。
// いずれもティア内で回復され、バッチ全体の失敗にはなりません。
var (
	ErrTimeout           = errors.New("プロバイダー呼び出しがタイムアウトしました")
	ErrRateLimited       = errors.New("プロバイダーのレート制限に達しました")
	ErrContentFiltered   = errors.New("安全フィルターにより生成がブロックされました")
	ErrNoImageInResponse = errors.New("レスポンスに画像データが含まれていません")
)

// ProviderError は上記以外のプロバイダー側エラーです。
type ProviderError struct {
	Code    int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("プロバイダーエラー (code=%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("プロバイダーエラー: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrorKind はエラーを UI 側で出し分けるための短いラベルに変換します。
func ErrorKind(err error) string {
	var pe *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrContentFiltered):
		return "content_filtered"
	case errors.Is(err, ErrNoImageInResponse):
		return "no_image"
	case errors.As(err, &pe):
		return "provider_error"
	default:
		return "unknown"
	}
}
