package imgutil

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ColorBand は HSL 空間で定義される色帯です。Hue は度、S/L は 0〜1 です。
type ColorBand struct {
	HueMin, HueMax float64
	SatMin         float64
	LumMin, LumMax float64
}

// Contains は HSL 値がこの色帯に含まれるかを返します。
func (b ColorBand) Contains(h, s, l float64) bool {
	return h >= b.HueMin && h < b.HueMax && s >= b.SatMin && l >= b.LumMin && l <= b.LumMax
}

// Standardizer は生成画像の色味を実行ごとに揃えるためのヒューリスティック補正です。
// 厳密なカラーマネジメントではありませんが、同じ入力には必ず同じ出力を返します。
type Standardizer struct {
	WhiteThreshold uint8     // 全チャンネルがこの値を超えたら純白にする
	BrownBand      ColorBand // 暗い茶色
	BrownDarken    uint8
	GoldBand       ColorBand // 黄色〜金色
	GoldBrighten   uint8
}

// StandardizeReport は補正されたピクセル数の内訳です。
type StandardizeReport struct {
	Whitened   int `json:"whitened"`
	Darkened   int `json:"darkened"`
	Brightened int `json:"brightened"`
}

// Changed はいずれかのピクセルが補正されたかを返します。
func (r StandardizeReport) Changed() bool {
	return r.Whitened+r.Darkened+r.Brightened > 0
}

// NewStandardizer は既定の色帯で Standardizer を作成します。
func NewStandardizer() *Standardizer {
	return &Standardizer{
		WhiteThreshold: 230,
		BrownBand:      ColorBand{HueMin: 15, HueMax: 45, SatMin: 0.25, LumMin: 0.08, LumMax: 0.35},
		BrownDarken:    20,
		GoldBand:       ColorBand{HueMin: 45, HueMax: 65, SatMin: 0.45, LumMin: 0.35, LumMax: 0.75},
		GoldBrighten:   12,
	}
}

// Apply は buf をその場で補正します。
func (s *Standardizer) Apply(buf *PixelBuffer) StandardizeReport {
	var rep StandardizeReport
	d := buf.Data
	for i := 0; i+3 < len(d); i += 4 {
		r, g, b := d[i], d[i+1], d[i+2]
		if r > s.WhiteThreshold && g > s.WhiteThreshold && b > s.WhiteThreshold {
			if r != 255 || g != 255 || b != 255 {
				d[i], d[i+1], d[i+2] = 255, 255, 255
				rep.Whitened++
			}
			continue
		}

		h, sat, l := colorful.Color{
			R: float64(r) / 255,
			G: float64(g) / 255,
			B: float64(b) / 255,
		}.Hsl()

		switch {
		case s.BrownBand.Contains(h, sat, l):
			d[i], d[i+1], d[i+2] = subClamp(r, s.BrownDarken), subClamp(g, s.BrownDarken), subClamp(b, s.BrownDarken)
			rep.Darkened++
		case s.GoldBand.Contains(h, sat, l):
			d[i], d[i+1], d[i+2] = addClamp(r, s.GoldBrighten), addClamp(g, s.GoldBrighten), addClamp(b, s.GoldBrighten)
			rep.Brightened++
		}
	}
	return rep
}

// Standardize は画像バイト列をデコードして補正し、PNG で返します。
func (s *Standardizer) Standardize(data []byte) ([]byte, StandardizeReport, error) {
	buf, err := Decode(data)
	if err != nil {
		return nil, StandardizeReport{}, fmt.Errorf("色補正の前処理に失敗しました: %w", err)
	}
	rep := s.Apply(buf)
	out, err := buf.Encode()
	if err != nil {
		return nil, rep, err
	}
	return out, rep, nil
}

func addClamp(v, d uint8) uint8 {
	if int(v)+int(d) > 255 {
		return 255
	}
	return v + d
}

func subClamp(v, d uint8) uint8 {
	if v < d {
		return 0
	}
	return v - d
}
