package domain

import "sort"

// StrokePoint はストローク上の1点です（表示座標系）。
type StrokePoint struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Stroke はユーザーが描いた1本の線です。Points の順序が描画順になります。
type Stroke struct {
	Points      []StrokePoint `json:"points"`
	BrushRadius float32       `json:"brush_radius"`
	Erase       bool          `json:"erase"`
}

// RegionInfo はマスク内の1つの連結領域のバウンディングボックスと中心です。
type RegionInfo struct {
	MinX    int `json:"min_x"`
	MaxX    int `json:"max_x"`
	MinY    int `json:"min_y"`
	MaxY    int `json:"max_y"`
	CenterX int `json:"center_x"`
	CenterY int `json:"center_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// Mask はプロバイダーに渡す正規化済みマスク画像と、その解析結果です。
// Image は赤 (255,0,0,255) 以外が完全透明の PNG です。
type Mask struct {
	SourceRegionID string       `json:"source_region_id"`
	Image          []byte       `json:"-"`
	Regions        []RegionInfo `json:"regions"`
}

// IsEmpty はマスクに有効な領域がないかどうかを返します。
func (m Mask) IsEmpty() bool {
	return len(m.Image) == 0 || len(m.Regions) == 0
}

// MaskSet は画像インデックスをキーにしたマスクの集合です。
// 画像を削除した場合もインデックスは詰められ、欠番は生じません。
type MaskSet struct {
	masks map[int]Mask
}

// NewMaskSet は空の MaskSet を作成します。
func NewMaskSet() *MaskSet {
	return &MaskSet{masks: make(map[int]Mask)}
}

// Put は index の画像に対するマスクを設定します（既存のものは置き換えます）。
func (s *MaskSet) Put(index int, m Mask) {
	s.masks[index] = m
}

// Get は index のマスクを返します。
func (s *MaskSet) Get(index int) (Mask, bool) {
	m, ok := s.masks[index]
	return m, ok
}

// Remove は index のマスクだけを取り除きます。画像自体は残るため再キーは行いません。
func (s *MaskSet) Remove(index int) {
	delete(s.masks, index)
}

// DeleteImage は画像 index の削除に合わせてマスクを取り除き、
// index より大きいキーをすべて1つ詰めます。
func (s *MaskSet) DeleteImage(index int) {
	next := make(map[int]Mask, len(s.masks))
	for i, m := range s.masks {
		switch {
		case i < index:
			next[i] = m
		case i > index:
			next[i-1] = m
		}
	}
	s.masks = next
}

// Indices はマスクが存在するインデックスを昇順で返します。
func (s *MaskSet) Indices() []int {
	out := make([]int, 0, len(s.masks))
	for i := range s.masks {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Snapshot はリクエストに埋め込むためのコピーを返します。
func (s *MaskSet) Snapshot() map[int]Mask {
	out := make(map[int]Mask, len(s.masks))
	for i, m := range s.masks {
		out[i] = m
	}
	return out
}

// Len はマスクの数を返します。
func (s *MaskSet) Len() int { return len(s.masks) }
