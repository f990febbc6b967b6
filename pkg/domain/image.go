package domain

// SourceImage は編集対象または参照用の1枚の画像です。
// Data が空の場合は URL から取得します（http(s):// または gs://）。
type SourceImage struct {
	Data    []byte `json:"-"`
	URL     string `json:"url,omitempty"`
	Purpose string `json:"purpose,omitempty"` // 参照画像ごとの用途説明（例: "ロゴの参照"）
}

// GenerationRequest は1回のバリエーション生成要求です。
// Images[0] が編集対象の主画像、Images[1:] が参照画像です。
// Masks のキーは Images のインデックスに対応します。
type GenerationRequest struct {
	Images     []SourceImage
	Prompt     string
	Masks      map[int]Mask
	Variations int // 0 の場合はオーケストレーターの既定値
}

// ImageResponse は生成された画像データとそのメタデータです。
type ImageResponse struct {
	Data     []byte
	MimeType string
	UsedSeed int64 // 戻り値は情報欠落を防ぐため int64
}

// VariationResult はバッチ内の1スロット分の生成結果です。
type VariationResult struct {
	ImageBytes []byte `json:"-"`
	MimeType   string `json:"mime_type"`
	TierLabel  string `json:"tier"`
	Seed       int64  `json:"seed"`
	// Duplicate は失敗スロットを埋めるために複製された結果であることを示します。
	Duplicate  bool `json:"duplicate"`
	SourceSlot int  `json:"source_slot"` // 複製元（または自身）のスロット番号
}
