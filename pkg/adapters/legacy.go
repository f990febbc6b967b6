package adapters

import (
	"context"
	"fmt"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"

	"github.com/shouni/gemini-mask-kit/pkg/generator"
	"github.com/shouni/gemini-mask-kit/pkg/utils"
)

// PartsGenerator は gemini.GenerativeModel のうち生成に使う部分です。
type PartsGenerator interface {
	GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
}

// LegacyProvider はサンプリング設定を持たない旧来の生成経路です。
// フォールバックの最終段として、シードだけを引き継いで呼び出します。
type LegacyProvider struct {
	client PartsGenerator
	core   *GeminiImageCore
	model  string
}

// NewLegacyProvider は LegacyProvider を生成します。
func NewLegacyProvider(client PartsGenerator, core *GeminiImageCore, model string) (*LegacyProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if core == nil {
		return nil, fmt.Errorf("image core is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	return &LegacyProvider{client: client, core: core, model: model}, nil
}

// Generate は req.Parts と req.Seed だけを使って生成します。
func (p *LegacyProvider) Generate(ctx context.Context, req generator.ProviderRequest) (*generator.ProviderImage, error) {
	opts := gemini.GenerateOptions{Seed: utils.SeedToPtrInt64(req.Seed)}

	resp, err := p.client.GenerateWithParts(ctx, p.model, req.Parts, opts)
	if err != nil {
		return nil, classifyError(err)
	}

	out, err := p.core.ParseToResponse(resp, utils.DereferenceSeed(opts.Seed))
	if err != nil {
		return nil, err
	}
	return &generator.ProviderImage{Data: out.Data, MimeType: out.MimeType}, nil
}

// GenAIPartsGenerator は genai の生成 API を PartsGenerator として使うためのアダプターです。
type GenAIPartsGenerator struct {
	gen ContentGenerator
}

// NewGenAIPartsGenerator は GenAIPartsGenerator を生成します。
func NewGenAIPartsGenerator(gen ContentGenerator) *GenAIPartsGenerator {
	return &GenAIPartsGenerator{gen: gen}
}

// GenerateWithParts は opts のシードとシステムプロンプトだけを反映して生成します。
func (g *GenAIPartsGenerator) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if opts.Seed != nil {
		config.Seed = utils.SeedToPtrInt32(*opts.Seed)
	}
	if opts.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}

	resp, err := g.gen.GenerateContent(ctx, model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return nil, err
	}
	return &gemini.Response{RawResponse: resp}, nil
}
