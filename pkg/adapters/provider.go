package adapters

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/shouni/gemini-mask-kit/pkg/generator"
	"github.com/shouni/gemini-mask-kit/pkg/utils"
)

// ContentGenerator は genai の Models が満たす生成 API です。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// DefaultSafetyThreshold は安全カテゴリに適用する既定のブロック閾値です。
const DefaultSafetyThreshold = genai.HarmBlockThresholdBlockOnlyHigh

var safetyCategories = []genai.HarmCategory{
	genai.HarmCategoryHarassment,
	genai.HarmCategoryHateSpeech,
	genai.HarmCategorySexuallyExplicit,
	genai.HarmCategoryDangerousContent,
}

// GeminiProvider はティアごとのサンプリング設定で Gemini に画像生成を依頼します。
type GeminiProvider struct {
	gen    ContentGenerator
	core   *GeminiImageCore
	model  string
	safety []*genai.SafetySetting
}

// NewGeminiProvider は GeminiProvider を生成します。threshold が空なら DefaultSafetyThreshold です。
func NewGeminiProvider(gen ContentGenerator, core *GeminiImageCore, model string, threshold genai.HarmBlockThreshold) (*GeminiProvider, error) {
	if gen == nil {
		return nil, fmt.Errorf("content generator is required")
	}
	if core == nil {
		return nil, fmt.Errorf("image core is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if threshold == "" {
		threshold = DefaultSafetyThreshold
	}
	return &GeminiProvider{gen: gen, core: core, model: model, safety: SafetySettings(threshold)}, nil
}

// SafetySettings は許可リストの全カテゴリに同じ閾値を設定します。
func SafetySettings(threshold genai.HarmBlockThreshold) []*genai.SafetySetting {
	out := make([]*genai.SafetySetting, 0, len(safetyCategories))
	for _, c := range safetyCategories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: threshold})
	}
	return out
}

// Generate は1回分の生成リクエストを送信します。
func (p *GeminiProvider) Generate(ctx context.Context, req generator.ProviderRequest) (*generator.ProviderImage, error) {
	config := &genai.GenerateContentConfig{
		Temperature:        genai.Ptr(req.Params.Temperature),
		TopP:               genai.Ptr(req.Params.TopP),
		TopK:               genai.Ptr(req.Params.TopK),
		MaxOutputTokens:    req.MaxOutputTokens,
		Seed:               utils.SeedToPtrInt32(req.Seed),
		SafetySettings:     p.safety,
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	contents := []*genai.Content{genai.NewContentFromParts(req.Parts, genai.RoleUser)}

	resp, err := p.gen.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, classifyError(err)
	}

	out, err := p.core.ParseContentResponse(resp, req.Seed)
	if err != nil {
		return nil, err
	}
	return &generator.ProviderImage{Data: out.Data, MimeType: out.MimeType}, nil
}
