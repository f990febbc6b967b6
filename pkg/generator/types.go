package generator

import (
	"errors"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultVariations      = 3
	DefaultProviderTimeout = 90 * time.Second
	DefaultMaxOutputTokens = 8192
)

// ErrNoVariationsProduced はすべてのスロットで生成に失敗したことを示します。
// バッチ全体として呼び出し元に返る唯一のエラーです。
var ErrNoVariationsProduced = errors.New("バリエーションを1件も生成できませんでした")

// ErrPrimaryImageUnavailable は編集対象の主画像を読み込めなかったことを示します。
var ErrPrimaryImageUnavailable = errors.New("編集対象の画像を読み込めませんでした")

// ProviderRequest はプロバイダーへの1回分のリクエストです。
type ProviderRequest struct {
	Parts           []*genai.Part
	Tier            Tier
	Params          TierParams
	Seed            int64
	MaxOutputTokens int32
}

// ProviderImage はプロバイダーが返した生の画像です。
type ProviderImage struct {
	Data     []byte
	MimeType string
}

// Options はオーケストレーターの動作設定です。
type Options struct {
	Variations      int
	ProviderTimeout time.Duration
	// BatchTimeout はバッチ全体の上限時間です。0 の場合は上限なし。
	BatchTimeout    time.Duration
	MaxOutputTokens int32
}

func (o Options) withDefaults() Options {
	if o.Variations <= 0 {
		o.Variations = DefaultVariations
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = DefaultProviderTimeout
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = DefaultMaxOutputTokens
	}
	return o
}
