package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/shouni/gemini-mask-kit/pkg/domain"
	"google.golang.org/genai"
)

// プロバイダーに渡す英語の指示文です。マスクの「赤い領域」という表現は
// マスク画像の色規約 (255,0,0,255) と一致している必要があります。
const (
	primaryDirective = "Image 1 is the PRIMARY image to modify. Keep its resolution, framing, " +
		"lighting, colors and fine detail exactly as they are everywhere outside the requested change. " +
		"Do not crop, upscale, restyle or add borders."
	defaultReferencePurpose = "use it as a visual reference for the requested change"
	finalDirective          = "Return exactly one edited version of image 1 as an image."
	noMaskDirective         = "Apply the change where the instructions say, and leave everything else untouched."
)

// partsSet はフォールバック段階ごとに使い分けるパーツ列です。
type partsSet struct {
	full       []*genai.Part
	simplified []*genai.Part // 参照画像を省いたもの。参照画像がなければ nil
}

// buildParts はリクエストを genai.Part 列に変換します。
// 順序: 主画像の指示と画像 → 参照画像ごとの用途と画像 → マスクの説明と画像 → 最終指示。
func (o *Orchestrator) buildParts(ctx context.Context, req domain.GenerationRequest) (partsSet, error) {
	primary := o.imagePart(ctx, req.Images[0], false)
	if primary == nil {
		return partsSet{}, ErrPrimaryImageUnavailable
	}

	head := []*genai.Part{{Text: primaryDirective}, primary}

	var refs []*genai.Part
	loaded := map[int]bool{0: true}
	for i, img := range req.Images[1:] {
		index := i + 1
		part := o.imagePart(ctx, img, true)
		if part == nil {
			// 読み込めない参照画像は飛ばして続行する
			slog.WarnContext(ctx, "参照画像の読み込みに失敗しました", "index", index, "url", img.URL)
			continue
		}
		purpose := strings.TrimSpace(img.Purpose)
		if purpose == "" {
			purpose = defaultReferencePurpose
		}
		refs = append(refs,
			&genai.Part{Text: fmt.Sprintf("Image %d is a REFERENCE image. Purpose: %s.", index+1, purpose)},
			part,
		)
		loaded[index] = true
	}

	masks, primaryMasks := o.maskParts(req.Masks, loaded)
	final := &genai.Part{Text: finalInstructions(req.Prompt, len(masks) > 0)}

	set := partsSet{full: concatParts(head, refs, masks, []*genai.Part{final})}
	if len(refs) > 0 {
		set.simplified = concatParts(head, primaryMasks, []*genai.Part{final})
	}
	return set, nil
}

func (o *Orchestrator) imagePart(ctx context.Context, img domain.SourceImage, reference bool) *genai.Part {
	switch {
	case len(img.Data) > 0 && reference:
		return o.images.ToCompressedPart(img.Data)
	case len(img.Data) > 0:
		return o.images.ToPart(img.Data)
	case img.URL != "":
		return o.images.PrepareImagePart(ctx, img.URL)
	default:
		return nil
	}
}

// maskParts は読み込めた画像に対応するマスクだけをパーツ化します。
// 2つ目の戻り値は主画像のマスクだけを含みます（簡略リクエスト用）。
func (o *Orchestrator) maskParts(masks map[int]domain.Mask, loaded map[int]bool) (all, primaryOnly []*genai.Part) {
	indices := make([]int, 0, len(masks))
	for i := range masks {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	for _, i := range indices {
		m := masks[i]
		if m.IsEmpty() || !loaded[i] {
			continue
		}
		part := o.images.ToPart(m.Image)
		if part == nil {
			continue
		}
		parts := []*genai.Part{{Text: maskDescription(i, m)}, part}
		all = append(all, parts...)
		if i == 0 {
			primaryOnly = append(primaryOnly, parts...)
		}
	}
	return all, primaryOnly
}

func maskDescription(index int, m domain.Mask) string {
	var b strings.Builder
	if index == 0 {
		fmt.Fprintf(&b, "The next image is a mask for image %d. Areas painted in red mark the region to EDIT; "+
			"transparent areas must stay exactly as they are.", index+1)
	} else {
		fmt.Fprintf(&b, "The next image is a mask for image %d. Areas painted in red mark the REFERENCE region: "+
			"take only the content inside the red area of image %d.", index+1, index+1)
	}
	for n, r := range m.Regions {
		fmt.Fprintf(&b, " Region %d: center (%d, %d), size %dx%d px.", n+1, r.CenterX, r.CenterY, r.Width, r.Height)
	}
	return b.String()
}

func finalInstructions(prompt string, hasMasks bool) string {
	var b strings.Builder
	b.WriteString("Instructions (follow literally): ")
	b.WriteString(strings.TrimSpace(prompt))
	b.WriteString("\n")
	if hasMasks {
		b.WriteString("Respect the masks: change image 1 only inside its red-marked area, " +
			"and use reference content only from the red-marked areas of the reference images. ")
	} else {
		b.WriteString(noMaskDirective + " ")
	}
	b.WriteString(finalDirective)
	return b.String()
}

func concatParts(groups ...[]*genai.Part) []*genai.Part {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]*genai.Part, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
