package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var disableConfigDir sync.Once

// PDFCPU implements Engine with pdfcpu.
type PDFCPU struct{}

// NewPDFCPU returns a pdfcpu backed Engine.
func NewPDFCPU() *PDFCPU {
	disableConfigDir.Do(func() {
		model.ConfigPath = "disable"
	})
	return &PDFCPU{}
}

func (e *PDFCPU) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Normalize validates the input relaxed and rewrites it optimized.
func (e *PDFCPU) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, e.config()); err != nil {
		return nil, fmt.Errorf("normalize pdf: %w", err)
	}
	return out.Bytes(), nil
}

// FlattenForm paints every form widget's appearance into its page and
// removes the interactive form.
func (e *PDFCPU) FlattenForm(ctx context.Context, data []byte) ([]byte, error) {
	return e.flatten(ctx, data, true)
}

// FlattenAnnotations paints every visible annotation's appearance into its
// page and removes the annotations.
func (e *PDFCPU) FlattenAnnotations(ctx context.Context, data []byte) ([]byte, error) {
	return e.flatten(ctx, data, false)
}

// flatten returns data unchanged when there was nothing to flatten.
func (e *PDFCPU) flatten(ctx context.Context, data []byte, widgetsOnly bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdfCtx, err := api.ReadAndValidate(bytes.NewReader(data), e.config())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	changed, err := flattenContext(pdfCtx, widgetsOnly)
	if err != nil {
		return nil, fmt.Errorf("flatten annotations: %w", err)
	}
	if !changed {
		return data, nil
	}
	var out bytes.Buffer
	if err := api.WriteContext(pdfCtx, &out); err != nil {
		return nil, fmt.Errorf("write flattened pdf: %w", err)
	}
	return out.Bytes(), nil
}

// StampRejection draws a diagonal rejection notice over every page.
func (e *PDFCPU) StampRejection(ctx context.Context, data []byte, reason string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := "REJECTED"
	if reason = strings.TrimSpace(reason); reason != "" {
		text += `\n` + reason
	}
	wm, err := api.TextWatermark(text, "font:Helvetica-Bold, points:36, rot:45, fillcol:#C62828, op:0.6, scale:0.8 rel", true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build rejection stamp: %w", err)
	}
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(data), &out, nil, wm, e.config()); err != nil {
		return nil, fmt.Errorf("stamp rejection: %w", err)
	}
	return out.Bytes(), nil
}

// AppendPages merges extra documents after base. Empty extras are skipped.
func (e *PDFCPU) AppendPages(ctx context.Context, base []byte, extra ...[]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	readers := []io.ReadSeeker{bytes.NewReader(base)}
	for _, page := range extra {
		if len(page) > 0 {
			readers = append(readers, bytes.NewReader(page))
		}
	}
	if len(readers) == 1 {
		return base, nil
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, e.config()); err != nil {
		return nil, fmt.Errorf("append pages: %w", err)
	}
	return out.Bytes(), nil
}

// InsertField stamps the field's text or signature image onto its page.
func (e *PDFCPU) InsertField(ctx context.Context, data []byte, mark FieldMark, legacy bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateMark(mark); err != nil {
		return nil, err
	}
	dims, err := api.PageDims(bytes.NewReader(data), e.config())
	if err != nil {
		return nil, fmt.Errorf("read page dimensions: %w", err)
	}
	if mark.Page > len(dims) {
		return nil, fmt.Errorf("field page %d is out of range (%d pages)", mark.Page, len(dims))
	}
	page := Dim{Width: dims[mark.Page-1].Width, Height: dims[mark.Page-1].Height}
	box := Dim{Width: page.Width * mark.Width / 100, Height: page.Height * mark.Height / 100}

	var wm *model.Watermark
	if len(mark.ImagePNG) > 0 {
		scale, content, serr := fitImage(mark.ImagePNG, box)
		if serr != nil {
			return nil, serr
		}
		x, y := Placement(mark, page, content, legacy)
		desc := fmt.Sprintf("pos:bl, off:%s %s, rot:0, scale:%s abs, op:1", num(x), num(y), strconv.FormatFloat(scale, 'f', 4, 64))
		wm, err = api.ImageWatermarkForReader(bytes.NewReader(mark.ImagePNG), desc, true, false, types.POINTS)
	} else {
		size := FontSize(mark, page)
		content := Dim{Width: float64(len(mark.Text)) * size * 0.5, Height: size}
		x, y := Placement(mark, page, content, legacy)
		desc := fmt.Sprintf("font:Helvetica, points:%d, pos:bl, off:%s %s, rot:0, scale:1 abs, fillcol:#000000, op:1", int(size), num(x), num(y))
		wm, err = api.TextWatermark(mark.Text, desc, true, false, types.POINTS)
	}
	if err != nil {
		return nil, fmt.Errorf("build field stamp: %w", err)
	}
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(data), &out, []string{strconv.Itoa(mark.Page)}, wm, e.config()); err != nil {
		return nil, fmt.Errorf("insert field on page %d: %w", mark.Page, err)
	}
	return out.Bytes(), nil
}

// PageCount returns the number of pages.
func (e *PDFCPU) PageCount(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(data), e.config())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// fitImage returns the scale that fits the image inside box and the scaled
// image size.
func fitImage(data []byte, box Dim) (float64, Dim, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, Dim{}, fmt.Errorf("decode signature image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return 0, Dim{}, fmt.Errorf("signature image is empty")
	}
	w, h := float64(cfg.Width), float64(cfg.Height)
	scale := min(box.Width/w, box.Height/h)
	return scale, Dim{Width: w * scale, Height: h * scale}, nil
}
