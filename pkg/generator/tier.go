package generator

import (
	"fmt"
	"math"
	"regexp"
)

// TierKind はティアの種類です。
type TierKind int

const (
	Fidelity TierKind = iota
	Balanced
	Creative
	Extra
)

// baseTierCount は Extra 以外のティア数で、Extra はこの周期で基本プロファイルを巡回します。
const baseTierCount = 3

// extraTemperatureGrowth は Extra の周回ごとに温度に掛ける倍率です。
const extraTemperatureGrowth = 1.2

// maxTemperature は Gemini が受け付ける温度の上限です。
const maxTemperature = 2.0

// Tier は1スロット分のサンプリング設定の名前付きプロファイルです。
// Kind が Extra のとき N は 1 始まりの通し番号です。
type Tier struct {
	Kind TierKind
	N    int
}

// TierParams はプロバイダーに渡すサンプリングパラメータです。
type TierParams struct {
	Temperature float32
	TopP        float32
	TopK        float32
}

type profile struct {
	temperature         float64
	transferTemperature float64
	topP                float32
	topK                float32
}

var profiles = [baseTierCount]profile{
	Fidelity: {temperature: 0.4, transferTemperature: 0.01, topP: 0.85, topK: 20},
	Balanced: {temperature: 0.8, transferTemperature: 0.05, topP: 0.9, topK: 32},
	Creative: {temperature: 1.2, transferTemperature: 0.2, topP: 0.95, topK: 40},
}

// TierFor はスロット番号 (0 始まり) に対応するティアを返します。
func TierFor(slot int) Tier {
	if slot < baseTierCount {
		return Tier{Kind: TierKind(slot)}
	}
	return Tier{Kind: Extra, N: slot - baseTierCount + 1}
}

// slot はこのティアに対応するスロット番号です。
func (t Tier) slot() int {
	if t.Kind == Extra {
		return t.N + baseTierCount - 1
	}
	return int(t.Kind)
}

// Label はログやレスポンスに使うティア名です。
func (t Tier) Label() string {
	switch t.Kind {
	case Fidelity:
		return "fidelity"
	case Balanced:
		return "balanced"
	case Creative:
		return "creative"
	default:
		return fmt.Sprintf("extra-%d", t.N)
	}
}

func (t Tier) String() string { return t.Label() }

// SeedOffset はベースシードに加えるオフセットです。
// Fidelity=0, Balanced=1, Creative=2, Extra(n)=2+n となり、ティア間で同じ出力に潰れません。
func (t Tier) SeedOffset() int {
	return t.slot()
}

// Params はティアのサンプリングパラメータを返します。
// transfer が true の場合は指示への忠実さを優先して温度を大きく下げます。
func (t Tier) Params(transfer bool) TierParams {
	s := t.slot()
	p := profiles[s%baseTierCount]
	temp := p.temperature
	if transfer {
		temp = p.transferTemperature
	}
	if cycle := s / baseTierCount; cycle > 0 {
		temp *= math.Pow(extraTemperatureGrowth, float64(cycle))
	}
	return TierParams{
		Temperature: float32(math.Min(temp, maxTemperature)),
		TopP:        p.topP,
		TopK:        p.topK,
	}
}

var (
	transferVerbPattern = regexp.MustCompile(`(?i)\b(place|put|add|paste|insert)\b|配置|置いて|置く|追加|貼り付け|載せ`)
	logoPattern         = regexp.MustCompile(`(?i)\blogo\b|ロゴ`)
	imageIndexPattern   = regexp.MustCompile(`(?i)\b(image|img|picture|photo)\s*#?\s*\d+\b|画像\s*\d+|#\d+`)
)

// IsTransferPrompt は、プロンプトが画像間で要素を移す指示かどうかを判定します。
// 配置系の動詞を含むか、「ロゴ」と画像番号の両方に言及している場合に true を返します。
func IsTransferPrompt(prompt string) bool {
	if transferVerbPattern.MatchString(prompt) {
		return true
	}
	return logoPattern.MatchString(prompt) && imageIndexPattern.MatchString(prompt)
}
