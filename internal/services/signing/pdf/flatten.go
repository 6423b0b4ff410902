package pdf

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const flattenedXObjectPrefix = "DSFlat"

// flattenContext paints the normal appearance of each visible annotation
// into its page content and drops the annotation. When widgetsOnly is set
// only Widget annotations are flattened and the AcroForm field tree is
// removed. It reports whether the document changed.
func flattenContext(ctx *model.Context, widgetsOnly bool) (bool, error) {
	changed := false
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		pageChanged, err := flattenPage(ctx, pageNr, widgetsOnly)
		if err != nil {
			return false, fmt.Errorf("page %d: %w", pageNr, err)
		}
		changed = changed || pageChanged
	}
	if widgetsOnly {
		root, err := ctx.Catalog()
		if err != nil {
			return false, err
		}
		if _, found := root.Find("AcroForm"); found {
			root.Delete("AcroForm")
			changed = true
		}
	}
	return changed, nil
}

func flattenPage(ctx *model.Context, pageNr int, widgetsOnly bool) (bool, error) {
	pageDict, _, _, err := ctx.PageDict(pageNr, false)
	if err != nil {
		return false, err
	}
	obj, found := pageDict.Find("Annots")
	if !found {
		return false, nil
	}
	annots, err := ctx.DereferenceArray(obj)
	if err != nil {
		return false, err
	}

	var kept types.Array
	var draws []appearanceDraw
	removed := 0
	for _, entry := range annots {
		annot, err := ctx.DereferenceDict(entry)
		if err != nil {
			return false, err
		}
		if annot == nil {
			removed++
			continue
		}
		subtype := ""
		if s := annot.NameEntry("Subtype"); s != nil {
			subtype = *s
		}
		if widgetsOnly && subtype != "Widget" {
			kept = append(kept, entry)
			continue
		}
		removed++
		draw, ok, err := appearanceFor(ctx, annot)
		if err != nil {
			return false, err
		}
		if ok {
			draws = append(draws, draw)
		}
	}
	if removed == 0 {
		return false, nil
	}

	if len(kept) == 0 {
		pageDict.Delete("Annots")
	} else {
		pageDict.Update("Annots", kept)
	}
	if len(draws) == 0 {
		return true, nil
	}
	if err := drawAppearances(ctx, pageDict, draws); err != nil {
		return false, err
	}
	return true, nil
}

// appearanceDraw places one appearance form XObject on the page.
type appearanceDraw struct {
	form   types.IndirectRef
	matrix [6]float64
}

// appearanceFor resolves the annotation's normal appearance stream and the
// matrix mapping its transformed bounding box onto the annotation rectangle.
func appearanceFor(ctx *model.Context, annot types.Dict) (appearanceDraw, bool, error) {
	if flags := annot.IntEntry("F"); flags != nil {
		hidden := model.AnnotationFlags(*flags)&(model.AnnHidden|model.AnnNoView) != 0
		if hidden {
			return appearanceDraw{}, false, nil
		}
	}
	apObj, found := annot.Find("AP")
	if !found {
		return appearanceDraw{}, false, nil
	}
	ap, err := ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return appearanceDraw{}, false, err
	}
	normal, found := ap.Find("N")
	if !found {
		return appearanceDraw{}, false, nil
	}
	ref, ok := normal.(types.IndirectRef)
	if !ok {
		// A dictionary of appearance states, selected by /AS.
		states, err := ctx.DereferenceDict(normal)
		if err != nil || states == nil {
			return appearanceDraw{}, false, err
		}
		state := annot.NameEntry("AS")
		if state == nil {
			return appearanceDraw{}, false, nil
		}
		selected, found := states.Find(*state)
		if !found {
			return appearanceDraw{}, false, nil
		}
		if ref, ok = selected.(types.IndirectRef); !ok {
			return appearanceDraw{}, false, nil
		}
	}

	form, _, err := ctx.DereferenceStreamDict(ref)
	if err != nil || form == nil {
		return appearanceDraw{}, false, err
	}
	bbox, err := numbers(ctx, form.Dict, "BBox", nil)
	if err != nil || len(bbox) != 4 {
		return appearanceDraw{}, false, err
	}
	formMatrix, err := numbers(ctx, form.Dict, "Matrix", []float64{1, 0, 0, 1, 0, 0})
	if err != nil || len(formMatrix) != 6 {
		return appearanceDraw{}, false, err
	}
	rect, err := numbers(ctx, annot, "Rect", nil)
	if err != nil || len(rect) != 4 {
		return appearanceDraw{}, false, err
	}
	matrix, ok := placeAppearance(bbox, formMatrix, rect)
	if !ok {
		return appearanceDraw{}, false, nil
	}
	if form.Dict.NameEntry("Subtype") == nil {
		form.Dict.InsertName("Subtype", "Form")
	}
	return appearanceDraw{form: ref, matrix: matrix}, true, nil
}

// placeAppearance computes the matrix that maps the form bounding box,
// transformed by the form matrix, onto rect.
func placeAppearance(bbox []float64, m []float64, rect []float64) ([6]float64, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, corner := range [][2]float64{{bbox[0], bbox[1]}, {bbox[2], bbox[1]}, {bbox[0], bbox[3]}, {bbox[2], bbox[3]}} {
		x := m[0]*corner[0] + m[2]*corner[1] + m[4]
		y := m[1]*corner[0] + m[3]*corner[1] + m[5]
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	rx1, rx2 := min(rect[0], rect[2]), max(rect[0], rect[2])
	ry1, ry2 := min(rect[1], rect[3]), max(rect[1], rect[3])
	w, h := maxX-minX, maxY-minY
	if w <= 0 || h <= 0 || rx2 <= rx1 || ry2 <= ry1 {
		return [6]float64{}, false
	}
	sx, sy := (rx2-rx1)/w, (ry2-ry1)/h
	return [6]float64{sx, 0, 0, sy, rx1 - minX*sx, ry1 - minY*sy}, true
}

// drawAppearances registers the forms as page XObjects and wraps the
// existing content in q/Q before painting them on top.
func drawAppearances(ctx *model.Context, pageDict types.Dict, draws []appearanceDraw) error {
	resources, err := pageResources(ctx, pageDict)
	if err != nil {
		return err
	}
	xobjects := types.NewDict()
	if obj, found := resources.Find("XObject"); found {
		existing, err := ctx.DereferenceDict(obj)
		if err != nil {
			return err
		}
		if existing != nil {
			xobjects = existing.Clone().(types.Dict)
		}
	}

	var content strings.Builder
	content.WriteString("Q\n")
	for i, draw := range draws {
		name := xobjects.NewIDForPrefix(flattenedXObjectPrefix, i)
		xobjects.Insert(name, draw.form)
		m := draw.matrix
		fmt.Fprintf(&content, "q %s %s %s %s %s %s cm /%s Do Q\n", exact(m[0]), exact(m[1]), exact(m[2]), exact(m[3]), exact(m[4]), exact(m[5]), name)
	}
	resources.Update("XObject", xobjects)
	pageDict.Update("Resources", resources)

	prefix, err := newContentStream(ctx, []byte("q\n"))
	if err != nil {
		return err
	}
	suffix, err := newContentStream(ctx, []byte(content.String()))
	if err != nil {
		return err
	}

	contents := types.Array{*prefix}
	if obj, found := pageDict.Find("Contents"); found {
		existing, err := contentRefs(ctx, obj)
		if err != nil {
			return err
		}
		contents = append(contents, existing...)
	}
	contents = append(contents, *suffix)
	pageDict.Update("Contents", contents)
	return nil
}

// pageResources returns a copy of the resources in effect for the page,
// inherited from the page tree when the page has none of its own.
func pageResources(ctx *model.Context, pageDict types.Dict) (types.Dict, error) {
	node := pageDict
	for depth := 0; node != nil && depth < 64; depth++ {
		if obj, found := node.Find("Resources"); found {
			resources, err := ctx.DereferenceDict(obj)
			if err != nil {
				return nil, err
			}
			if resources == nil {
				break
			}
			return resources.Clone().(types.Dict), nil
		}
		parent, found := node.Find("Parent")
		if !found {
			break
		}
		next, err := ctx.DereferenceDict(parent)
		if err != nil {
			return nil, err
		}
		node = next
	}
	return types.NewDict(), nil
}

func newContentStream(ctx *model.Context, data []byte) (*types.IndirectRef, error) {
	sd, err := ctx.NewStreamDictForBuf(data)
	if err != nil {
		return nil, err
	}
	if err := sd.Encode(); err != nil {
		return nil, err
	}
	return ctx.IndRefForNewObject(*sd)
}

// contentRefs flattens a page /Contents entry into a list of stream refs.
func contentRefs(ctx *model.Context, obj types.Object) (types.Array, error) {
	switch o := obj.(type) {
	case types.Array:
		return o, nil
	case types.IndirectRef:
		resolved, err := ctx.Dereference(o)
		if err != nil {
			return nil, err
		}
		if arr, ok := resolved.(types.Array); ok {
			return arr, nil
		}
		return types.Array{o}, nil
	default:
		return nil, fmt.Errorf("unsupported page contents %T", obj)
	}
}

func numbers(ctx *model.Context, d types.Dict, key string, fallback []float64) ([]float64, error) {
	obj, found := d.Find(key)
	if !found {
		return fallback, nil
	}
	arr, err := ctx.DereferenceArray(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := make([]float64, 0, len(arr))
	for _, v := range arr {
		f, err := ctx.DereferenceNumber(v)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func exact(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
