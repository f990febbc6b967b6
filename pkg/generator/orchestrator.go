package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
)

// Orchestrator は K 個のスロットをティア順に生成し、失敗スロットを補填して返します。
type Orchestrator struct {
	provider ImageProvider
	legacy   ImageProvider
	images   ImagePreparer
	seeds    SeedSource
	std      ResultStandardizer
	opts     Options

	rngMu sync.Mutex
	rng   *rand.Rand
}

// OrchestratorOption は Orchestrator の任意設定です。
type OrchestratorOption func(*Orchestrator)

// WithLegacyProvider はフォールバックの最終段で使う旧方式のプロバイダーを設定します。
func WithLegacyProvider(p ImageProvider) OrchestratorOption {
	return func(o *Orchestrator) { o.legacy = p }
}

// WithRand は補填に使う乱数源を差し替えます（テスト用）。
func WithRand(r *rand.Rand) OrchestratorOption {
	return func(o *Orchestrator) { o.rng = r }
}

// NewOrchestrator は Orchestrator を作成します。std は nil でも構いません（色補正なし）。
func NewOrchestrator(
	provider ImageProvider,
	images ImagePreparer,
	seeds SeedSource,
	std ResultStandardizer,
	opts Options,
	options ...OrchestratorOption,
) (*Orchestrator, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if images == nil {
		return nil, fmt.Errorf("image preparer is required")
	}
	if seeds == nil {
		return nil, fmt.Errorf("seed source is required")
	}

	o := &Orchestrator{
		provider: provider,
		images:   images,
		seeds:    seeds,
		std:      std,
		opts:     opts.withDefaults(),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.rng == nil {
		now := uint64(time.Now().UnixNano())
		o.rng = rand.New(rand.NewPCG(now, now>>1|1))
	}
	return o, nil
}

// attempt はフォールバックチェーンの1段です。
type attempt struct {
	name     string
	provider ImageProvider
	parts    partsSet
	simple   bool
}

// Run はリクエストから K 件のバリエーションを生成します。
// 1件も成功しなかった場合のみ ErrNoVariationsProduced を返します。
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest) ([]domain.VariationResult, error) {
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("画像が指定されていません")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	k := req.Variations
	if k <= 0 {
		k = o.opts.Variations
	}
	if o.opts.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.BatchTimeout)
		defer cancel()
	}

	parts, err := o.buildParts(ctx, req)
	if err != nil {
		return nil, err
	}

	transfer := IsTransferPrompt(req.Prompt)
	base := int64(o.seeds.CurrentOrNewSeed())
	slog.InfoContext(ctx, "バリエーション生成を開始します",
		"variations", k, "base_seed", base, "transfer", transfer, "images", len(req.Images), "masks", len(req.Masks))

	slots := make([]*domain.VariationResult, k)
	var lastErr error
	for i := 0; i < k; i++ {
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "バッチがキャンセルされたため残りのスロットを中止します", "slot", i, "error", ctx.Err())
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			break
		}
		tier := TierFor(i)
		res, err := o.runSlot(ctx, i, tier, transfer, base+int64(tier.SeedOffset()), parts)
		if err != nil {
			lastErr = err
			continue
		}
		slots[i] = res
	}

	results, err := o.backfill(slots, k)
	if err != nil {
		if lastErr == nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", err, lastErr)
	}
	return results, nil
}

// runSlot はスロット1つ分のフォールバックチェーンを実行し、最初の成功を返します。
func (o *Orchestrator) runSlot(ctx context.Context, slot int, tier Tier, transfer bool, seed int64, parts partsSet) (*domain.VariationResult, error) {
	chain := []attempt{{name: "full", provider: o.provider, parts: parts}}
	if parts.simplified != nil {
		chain = append(chain, attempt{name: "simplified", provider: o.provider, parts: parts, simple: true})
	}
	if o.legacy != nil {
		chain = append(chain, attempt{name: "legacy", provider: o.legacy, parts: parts})
	}

	params := tier.Params(transfer)
	var lastErr error
	for _, a := range chain {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p := a.parts.full
		if a.simple {
			p = a.parts.simplified
		}
		img, err := o.call(ctx, a.provider, ProviderRequest{
			Parts:           p,
			Tier:            tier,
			Params:          params,
			Seed:            seed,
			MaxOutputTokens: o.opts.MaxOutputTokens,
		})
		if err != nil {
			slog.WarnContext(ctx, "生成に失敗したため次の手段を試します",
				"slot", slot, "tier", tier.Label(), "attempt", a.name, "kind", domain.ErrorKind(err), "error", err)
			lastErr = err
			continue
		}

		slog.InfoContext(ctx, "バリエーションを生成しました", "slot", slot, "tier", tier.Label(), "attempt", a.name, "seed", seed)
		data, mime := o.standardize(ctx, img)
		return &domain.VariationResult{
			ImageBytes: data,
			MimeType:   mime,
			TierLabel:  tier.Label(),
			Seed:       seed,
			SourceSlot: slot,
		}, nil
	}
	return nil, lastErr
}

// call は ProviderTimeout で区切ってプロバイダーを1回呼び出します。
func (o *Orchestrator) call(ctx context.Context, p ImageProvider, req ProviderRequest) (*ProviderImage, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
	defer cancel()

	img, err := p.Generate(callCtx, req)
	if err != nil {
		// 呼び出し単位の期限切れはティアの失敗として扱う
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return nil, err
	}
	if img == nil || len(img.Data) == 0 {
		return nil, domain.ErrNoImageInResponse
	}
	return img, nil
}

func (o *Orchestrator) standardize(ctx context.Context, img *ProviderImage) ([]byte, string) {
	if o.std == nil {
		return img.Data, img.MimeType
	}
	out, report, err := o.std.Standardize(img.Data)
	if err != nil {
		slog.WarnContext(ctx, "色補正に失敗したため生成結果をそのまま使います", "error", err)
		return img.Data, img.MimeType
	}
	slog.DebugContext(ctx, "色補正を適用しました",
		"whitened", report.Whitened, "darkened", report.Darkened, "brightened", report.Brightened)
	return out, "image/png"
}

// backfill は空スロットを詰め、K 件に満たない分を成功結果のランダムな複製で埋めます。
func (o *Orchestrator) backfill(slots []*domain.VariationResult, k int) ([]domain.VariationResult, error) {
	results := make([]domain.VariationResult, 0, k)
	for _, s := range slots {
		if s != nil {
			results = append(results, *s)
		}
	}
	if len(results) == 0 {
		return nil, ErrNoVariationsProduced
	}

	o.rngMu.Lock()
	defer o.rngMu.Unlock()
	for len(results) < k {
		dup := results[o.rng.IntN(len(results))]
		dup.Duplicate = true
		results = append(results, dup)
	}
	return results, nil
}
