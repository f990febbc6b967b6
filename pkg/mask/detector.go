package mask

import (
	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"github.com/shouni/gemini-mask-kit/pkg/imgutil"
)

const (
	// isolatedRadius は孤立ピクセル判定に使う近傍の半径です。
	isolatedRadius = 1
	// confirmRadius と confirmMinNeighbors は確定判定の窓と必要な近傍数です。
	confirmRadius       = 5
	confirmMinNeighbors = 10
	// lightenAmount は棄却されたピクセルを明るくする量です。
	lightenAmount = 50
)

// IsMarked はピクセルがユーザーの赤いマーキングかどうかを判定します。
// アルファ値は見ません。
func IsMarked(r, g, b uint8) bool {
	ri, gi, bi := int(r), int(g), int(b)
	return ri > 180 && gi < 80 && bi < 80 && ri > 2*gi && ri > 2*bi
}

// Analysis は赤領域解析の結果です。
type Analysis struct {
	Regions []domain.RegionInfo
	// Mask は確定ピクセルが (255,0,0,255)、それ以外が (0,0,0,0) のバッファです。
	Mask *imgutil.PixelBuffer
	// Preview は入力に対して確定ピクセルを純赤に、棄却ピクセルを明るくしたものです。
	Preview *imgutil.PixelBuffer
}

// Empty は有効な領域が1つもないかどうかを返します。
func (a *Analysis) Empty() bool {
	return a == nil || len(a.Regions) == 0
}

// Detector はオーバーレイから赤くマークされた領域を抽出します。
type Detector struct {
	// MinRegionArea 未満のピクセル数の領域は結果から除外します（0 で無効）。
	MinRegionArea int
}

// NewDetector は既定設定の Detector を返します。
func NewDetector() *Detector {
	return &Detector{}
}

// Analyze は buf を解析します。buf 自体は変更しません。
func (d *Detector) Analyze(buf *imgutil.PixelBuffer) *Analysis {
	w, h := buf.Width, buf.Height
	marked := classify(buf)
	original := make([]bool, len(marked))
	copy(original, marked)

	removeIsolated(marked, w, h)
	comps := confirmComponents(marked, w, h, d.MinRegionArea)

	cleaned := imgutil.NewPixelBuffer(w, h)
	preview := buf.Clone()
	for i, ok := range marked {
		o := i * 4
		switch {
		case ok:
			cleaned.Data[o], cleaned.Data[o+3] = 255, 255
			preview.Data[o], preview.Data[o+1], preview.Data[o+2], preview.Data[o+3] = 255, 0, 0, 255
		case original[i]:
			for c := 0; c < 3; c++ {
				preview.Data[o+c] = uint8(min(255, int(preview.Data[o+c])+lightenAmount))
			}
		}
	}

	regions := make([]domain.RegionInfo, 0, len(comps))
	for _, c := range comps {
		regions = append(regions, c.info())
	}
	return &Analysis{Regions: regions, Mask: cleaned, Preview: preview}
}

func classify(buf *imgutil.PixelBuffer) []bool {
	marked := make([]bool, buf.Width*buf.Height)
	for i := range marked {
		o := i * 4
		marked[i] = IsMarked(buf.Data[o], buf.Data[o+1], buf.Data[o+2])
	}
	return marked
}

// removeIsolated は8近傍にマークが1つもないピクセルを取り除きます。
// 孤立ピクセルは他のピクセルの窓に入らないため、1回の走査で確定します。
func removeIsolated(marked []bool, w, h int) {
	sat := newSummedArea(marked, w, h)
	for i, ok := range marked {
		if ok && sat.count(i%w, i/w, isolatedRadius) == 1 {
			marked[i] = false
		}
	}
}

// confirmComponents は確定ピクセルを1つも含まない連結成分と minArea 未満の成分を丸ごと取り除き、
// 残った成分を返します。確定ピクセルは半径 confirmRadius の窓に自身を除いて
// confirmMinNeighbors 個以上のマークを持つピクセルです。
// 成分単位で除去するので線の端は削れず、残った集合は分類器の不動点になります。
func confirmComponents(marked []bool, w, h, minArea int) []*component {
	for {
		sat := newSummedArea(marked, w, h)
		comps := labelComponents(marked, w, h)
		kept := comps[:0]
		dropped := false
		for _, c := range comps {
			if c.confirmed(sat) && (minArea <= 0 || len(c.pixels) >= minArea) {
				kept = append(kept, c)
				continue
			}
			for _, i := range c.pixels {
				marked[i] = false
			}
			dropped = true
		}
		if !dropped {
			return kept
		}
	}
}

// summedArea はマーク数の2次元累積和です。
type summedArea struct {
	w, h int
	sum  []int // (w+1)*(h+1)
}

func newSummedArea(marked []bool, w, h int) *summedArea {
	s := &summedArea{w: w, h: h, sum: make([]int, (w+1)*(h+1))}
	stride := w + 1
	for y := 0; y < h; y++ {
		row := 0
		for x := 0; x < w; x++ {
			if marked[y*w+x] {
				row++
			}
			s.sum[(y+1)*stride+x+1] = s.sum[y*stride+x+1] + row
		}
	}
	return s
}

// count は (x, y) を中心とするチェビシェフ半径 r の窓内のマーク数（自身を含む）を返します。
func (s *summedArea) count(x, y, r int) int {
	x0, y0 := max(x-r, 0), max(y-r, 0)
	x1, y1 := min(x+r, s.w-1)+1, min(y+r, s.h-1)+1
	stride := s.w + 1
	return s.sum[y1*stride+x1] - s.sum[y0*stride+x1] - s.sum[y1*stride+x0] + s.sum[y0*stride+x0]
}

// component は8近傍で連結したマークピクセルの集まりです。
type component struct {
	w      int
	pixels []int
	bounds domain.RegionInfo
}

func (c *component) confirmed(sat *summedArea) bool {
	for _, i := range c.pixels {
		if sat.count(i%c.w, i/c.w, confirmRadius)-1 >= confirmMinNeighbors {
			return true
		}
	}
	return false
}

func (c *component) info() domain.RegionInfo {
	r := c.bounds
	r.CenterX = (r.MinX + r.MaxX) / 2
	r.CenterY = (r.MinY + r.MaxY) / 2
	r.Width = r.MaxX - r.MinX
	r.Height = r.MaxY - r.MinY
	return r
}

// labelComponents は連結成分を求めます。順序は各成分の最初のピクセルの走査順です。
func labelComponents(marked []bool, w, h int) []*component {
	labels := make([]int, len(marked))
	uf := newUnionFind()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !marked[i] {
				continue
			}
			label := 0
			// 走査済みの近傍: 左, 左上, 上, 右上
			for _, n := range [][2]int{{-1, 0}, {-1, -1}, {0, -1}, {1, -1}} {
				nx, ny := x+n[0], y+n[1]
				if nx < 0 || ny < 0 || nx >= w {
					continue
				}
				nl := labels[ny*w+nx]
				if nl == 0 {
					continue
				}
				if label == 0 {
					label = nl
				} else {
					uf.union(label, nl)
				}
			}
			if label == 0 {
				label = uf.add()
			}
			labels[i] = label
		}
	}

	byRoot := make(map[int]*component)
	var comps []*component
	for i, l := range labels {
		if l == 0 {
			continue
		}
		root := uf.find(l)
		x, y := i%w, i/w
		c, ok := byRoot[root]
		if !ok {
			c = &component{w: w, bounds: domain.RegionInfo{MinX: x, MaxX: x, MinY: y, MaxY: y}}
			byRoot[root] = c
			comps = append(comps, c)
		}
		c.pixels = append(c.pixels, i)
		c.bounds.MinX = min(c.bounds.MinX, x)
		c.bounds.MaxX = max(c.bounds.MaxX, x)
		c.bounds.MinY = min(c.bounds.MinY, y)
		c.bounds.MaxY = max(c.bounds.MaxY, y)
	}
	return comps
}

type unionFind struct {
	parent []int
}

func newUnionFind() *unionFind {
	// ラベル 0 は「未ラベル」として予約
	return &unionFind{parent: []int{0}}
}

func (u *unionFind) add() int {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	return id
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
