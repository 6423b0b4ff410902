// Package pdf applies the page transformations performed while sealing a
// document: normalization, flattening, stamping, and appending pages.
package pdf

import (
	"context"
	"fmt"
)

// FieldMark is an inserted field drawn onto a page. Position and size are
// percentages of the page dimensions measured from the top-left corner.
type FieldMark struct {
	Page     int
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Text     string
	ImagePNG []byte
}

// Engine transforms PDF bytes. Implementations must not retain the inputs.
type Engine interface {
	Normalize(ctx context.Context, data []byte) ([]byte, error)
	FlattenForm(ctx context.Context, data []byte) ([]byte, error)
	FlattenAnnotations(ctx context.Context, data []byte) ([]byte, error)
	StampRejection(ctx context.Context, data []byte, reason string) ([]byte, error)
	AppendPages(ctx context.Context, base []byte, extra ...[]byte) ([]byte, error)
	InsertField(ctx context.Context, data []byte, mark FieldMark, legacy bool) ([]byte, error)
	PageCount(ctx context.Context, data []byte) (int, error)
}

// Dim is a page size in points.
type Dim struct {
	Width  float64
	Height float64
}

// Placement returns the bottom-left offset, in points from the page's
// bottom-left corner, at which content of size content is drawn for mark.
//
// The current strategy centers content inside the field box. The legacy
// strategy anchors content at the field's top-left corner, which is how
// documents created before centered insertion were stamped.
func Placement(mark FieldMark, page Dim, content Dim, legacy bool) (x, y float64) {
	left := page.Width * mark.X / 100
	top := page.Height * mark.Y / 100
	if legacy {
		return left, page.Height - top - content.Height
	}
	boxWidth := page.Width * mark.Width / 100
	boxHeight := page.Height * mark.Height / 100
	x = left + (boxWidth-content.Width)/2
	y = page.Height - top - boxHeight + (boxHeight-content.Height)/2
	return x, y
}

// FontSize picks a text size that fits the field height.
func FontSize(mark FieldMark, page Dim) float64 {
	height := page.Height * mark.Height / 100
	size := height * 0.6
	return min(max(size, 6), 18)
}

func validateMark(mark FieldMark) error {
	if mark.Page < 1 {
		return fmt.Errorf("field page %d is out of range", mark.Page)
	}
	if mark.Text == "" && len(mark.ImagePNG) == 0 {
		return fmt.Errorf("field on page %d has no content", mark.Page)
	}
	return nil
}
