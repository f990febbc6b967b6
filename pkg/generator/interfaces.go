package generator

import (
	"context"

	"github.com/shouni/gemini-mask-kit/pkg/imgutil"
	"google.golang.org/genai"
)

// ImageProvider は外部の画像生成プロバイダーへの1回の呼び出しを抽象化します。
type ImageProvider interface {
	Generate(ctx context.Context, req ProviderRequest) (*ProviderImage, error)
}

// ImagePreparer は入力画像を genai.Part に変換します（adapters.GeminiImageCore が満たします）。
type ImagePreparer interface {
	// PrepareImagePart は URL から画像を取得して Part を作成します。失敗時は nil です。
	PrepareImagePart(ctx context.Context, url string) *genai.Part
	// ToPart はバイト列をそのまま InlineData の Part に変換します。
	ToPart(data []byte) *genai.Part
	// ToCompressedPart は JPEG に圧縮してから Part に変換します（参照画像用）。
	ToCompressedPart(data []byte) *genai.Part
}

// SeedSource は生成シードの供給元です（seed.Manager が満たします）。
type SeedSource interface {
	CurrentOrNewSeed() uint32
}

// ResultStandardizer は生成画像の色補正を行います（imgutil.Standardizer が満たします）。
type ResultStandardizer interface {
	Standardize(data []byte) ([]byte, imgutil.StandardizeReport, error)
}
