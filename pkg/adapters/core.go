package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"google.golang.org/genai"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"github.com/shouni/gemini-mask-kit/pkg/imgutil"
)

const (
	// ReferenceCompressionQuality は参照画像を JPEG に圧縮するときの品質です。
	ReferenceCompressionQuality = 75
	cacheKeyImage               = "image:"
)

// HTTPClient は URL から画像を取得する機能です（httpkit.ClientInterface が満たします）。
type HTTPClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ImageCacher は画像データのキャッシュ操作を抽象化するインターフェースです。
type ImageCacher interface {
	Get(key string) (any, bool)
	Set(key string, value any, d time.Duration)
}

// GeminiImageCore は入力画像の準備とレスポンスの解析を担う共通コンポーネントです。
type GeminiImageCore struct {
	reader     remoteio.InputReader
	httpClient HTTPClient
	cache      ImageCacher
	cacheTTL   time.Duration
}

// NewGeminiImageCore は依存関係を注入して GeminiImageCore を生成します。
// reader と cache は nil を許容します（gs:// 非対応・キャッシュなし）。
func NewGeminiImageCore(reader remoteio.InputReader, httpClient HTTPClient, cache ImageCacher, cacheTTL time.Duration) (*GeminiImageCore, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	return &GeminiImageCore{
		reader:     reader,
		httpClient: httpClient,
		cache:      cache,
		cacheTTL:   cacheTTL,
	}, nil
}

// PrepareImagePart は URL から画像を準備して genai.Part に変換します。失敗時は nil を返します。
func (c *GeminiImageCore) PrepareImagePart(ctx context.Context, rawURL string) *genai.Part {
	key := cacheKeyImage + rawURL
	if c.cache != nil {
		if cached, found := c.cache.Get(key); found {
			if data, ok := cached.([]byte); ok {
				return c.ToPart(data)
			}
			slog.WarnContext(ctx, "キャッシュデータが不正な型です", "url", rawURL, "type", fmt.Sprintf("%T", cached))
		}
	}

	data, err := c.fetchImageData(ctx, rawURL)
	if err != nil {
		slog.WarnContext(ctx, "画像の取得に失敗しました", "url", rawURL, "error", err)
		return nil
	}

	part := c.ToPart(data)
	if part != nil && c.cache != nil {
		c.cache.Set(key, data, c.cacheTTL)
	}
	return part
}

func (c *GeminiImageCore) fetchImageData(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "gs://") {
		if c.reader == nil {
			return nil, fmt.Errorf("gs:// の読み込みは設定されていません: %s", rawURL)
		}
		rc, err := c.reader.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	if safe, err := isSafeURL(rawURL); !safe || err != nil {
		return nil, fmt.Errorf("SSRFの可能性がある、または不正なURLをブロックしました: %w", err)
	}
	return c.httpClient.FetchBytes(ctx, rawURL)
}

// ToPart はバイト列を genai.Part (InlineData) に変換します。
func (c *GeminiImageCore) ToPart(data []byte) *genai.Part {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		slog.Warn("MIMEタイプが画像ではないためPartに変換できませんでした", "detected_mime_type", mimeType)
		return nil
	}
	return &genai.Part{
		InlineData: &genai.Blob{
			MIMEType: mimeType,
			Data:     data,
		},
	}
}

// ToCompressedPart は参照画像を JPEG に圧縮してから Part に変換します。
// 圧縮できない場合は元のバイト列を使います。
func (c *GeminiImageCore) ToCompressedPart(data []byte) *genai.Part {
	compressed, err := imgutil.CompressToJPEG(data, ReferenceCompressionQuality)
	if err != nil {
		slog.Warn("参照画像の圧縮に失敗したため元データを使います", "error", err)
		return c.ToPart(data)
	}
	return c.ToPart(compressed)
}

// ParseToResponse は go-gemini-client のレスポンスを解析します。
func (c *GeminiImageCore) ParseToResponse(resp *gemini.Response, seed int64) (*domain.ImageResponse, error) {
	if resp == nil {
		return nil, &domain.ProviderError{Message: "Geminiからの有効な応答がありませんでした"}
	}
	return c.ParseContentResponse(resp.RawResponse, seed)
}

// ParseContentResponse は Gemini のレスポンスから最初の画像パーツを取り出します。
// 画像がない場合はブロック理由に応じて ErrContentFiltered か ErrNoImageInResponse を返します。
func (c *GeminiImageCore) ParseContentResponse(raw *genai.GenerateContentResponse, seed int64) (*domain.ImageResponse, error) {
	if raw == nil {
		return nil, &domain.ProviderError{Message: "Geminiからの有効な応答がありませんでした"}
	}
	if raw.PromptFeedback != nil && raw.PromptFeedback.BlockReason != "" && raw.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return nil, fmt.Errorf("%w (BlockReason: %s)", domain.ErrContentFiltered, raw.PromptFeedback.BlockReason)
	}
	if len(raw.Candidates) == 0 {
		return nil, domain.ErrNoImageInResponse
	}

	// 最初の候補 (Candidate) のみを利用する
	candidate := raw.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				continue
			}
			return &domain.ImageResponse{
				Data:     part.InlineData.Data,
				MimeType: part.InlineData.MIMEType,
				UsedSeed: seed,
			}, nil
		}
	}

	if isFilteredFinish(candidate.FinishReason) {
		return nil, fmt.Errorf("%w (FinishReason: %s)", domain.ErrContentFiltered, candidate.FinishReason)
	}
	return nil, domain.ErrNoImageInResponse
}

func isFilteredFinish(reason genai.FinishReason) bool {
	switch string(reason) {
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII",
		"IMAGE_SAFETY", "IMAGE_PROHIBITED_CONTENT", "RECITATION":
		return true
	default:
		return false
	}
}

// classifyError は SDK のエラーをドメインのエラー種別に変換します。
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{domain.ErrTimeout, domain.ErrRateLimited, domain.ErrContentFiltered, domain.ErrNoImageInResponse} {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}

	var apiErr *genai.APIError
	if !errors.As(err, &apiErr) {
		var v genai.APIError
		if errors.As(err, &v) {
			apiErr = &v
		}
	}
	if apiErr != nil {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
		case apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusGatewayTimeout || apiErr.Status == "DEADLINE_EXCEEDED":
			return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return &domain.ProviderError{Code: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &domain.ProviderError{Message: err.Error(), Err: err}
}

// isSafeURL は SSRF 対策として URL を検証します。
// 名前解決されたすべての IP アドレスに対してプライベート IP チェックを行います。
func isSafeURL(rawURL string) (bool, error) {
	parsedURL, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return false, fmt.Errorf("URLパース失敗: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, fmt.Errorf("不許可スキーム: %s", parsedURL.Scheme)
	}

	host := parsedURL.Hostname()
	var ips []net.IP

	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolvedIPs, err := net.LookupIP(host)
		if err != nil {
			return false, fmt.Errorf("名前解決失敗: %w", err)
		}
		ips = resolvedIPs
	}

	if len(ips) == 0 {
		return false, fmt.Errorf("IPが見つかりません")
	}

	for _, ip := range ips {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return false, fmt.Errorf("制限されたネットワークへのアクセスを検知: %s", ip.String())
		}
	}

	return true, nil
}
