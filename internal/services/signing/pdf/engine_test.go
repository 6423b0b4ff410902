package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-pdf/fpdf"
)

func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	for i := range pages {
		doc.AddPage()
		doc.Text(50, 50, "page "+string(rune('1'+i)))
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("build sample pdf: %v", err)
	}
	return buf.Bytes()
}

func TestPlacement(t *testing.T) {
	page := Dim{Width: 600, Height: 800}
	mark := FieldMark{Page: 1, X: 10, Y: 25, Width: 20, Height: 5}
	content := Dim{Width: 100, Height: 20}

	x, y := Placement(mark, page, content, false)
	// box spans x 60..180, y (from top) 200..240; centered content
	if x != 70 || y != 570 {
		t.Fatalf("centered placement = %v,%v", x, y)
	}
	x, y = Placement(mark, page, content, true)
	if x != 60 || y != 580 {
		t.Fatalf("legacy placement = %v,%v", x, y)
	}
}

func TestFontSizeClamped(t *testing.T) {
	page := Dim{Width: 600, Height: 800}
	tests := []struct {
		height float64
		want   float64
	}{
		{height: 0.5, want: 6},
		{height: 2.5, want: 12},
		{height: 10, want: 18},
	}
	for _, tc := range tests {
		if got := FontSize(FieldMark{Height: tc.height}, page); got != tc.want {
			t.Fatalf("font size for %v%% = %v, want %v", tc.height, got, tc.want)
		}
	}
}

func TestValidateMark(t *testing.T) {
	if err := validateMark(FieldMark{Page: 0, Text: "x"}); err == nil {
		t.Fatal("expected page error")
	}
	if err := validateMark(FieldMark{Page: 1}); err == nil {
		t.Fatal("expected empty content error")
	}
	if err := validateMark(FieldMark{Page: 1, Text: "Ada"}); err != nil {
		t.Fatalf("valid mark: %v", err)
	}
}

func TestPDFCPUNormalizeAndAppend(t *testing.T) {
	ctx := context.Background()
	engine := NewPDFCPU()

	base, err := engine.Normalize(ctx, samplePDF(t, 2))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	n, err := engine.PageCount(ctx, base)
	if err != nil || n != 2 {
		t.Fatalf("page count = %d, %v", n, err)
	}

	merged, err := engine.AppendPages(ctx, base, samplePDF(t, 1), nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n, _ := engine.PageCount(ctx, merged); n != 3 {
		t.Fatalf("merged page count = %d", n)
	}

	same, err := engine.AppendPages(ctx, base)
	if err != nil || !bytes.Equal(same, base) {
		t.Fatal("append without extras must return base")
	}
}

func TestPDFCPUStampsKeepPageCount(t *testing.T) {
	ctx := context.Background()
	engine := NewPDFCPU()
	data := samplePDF(t, 2)

	flat, err := engine.FlattenAnnotations(ctx, data)
	if err != nil {
		t.Fatalf("flatten annotations: %v", err)
	}
	stamped, err := engine.StampRejection(ctx, flat, "Wrong amount")
	if err != nil {
		t.Fatalf("stamp rejection: %v", err)
	}
	withField, err := engine.InsertField(ctx, stamped, FieldMark{Page: 2, X: 10, Y: 80, Width: 30, Height: 4, Text: "Ada Lovelace"}, false)
	if err != nil {
		t.Fatalf("insert field: %v", err)
	}
	if n, _ := engine.PageCount(ctx, withField); n != 2 {
		t.Fatalf("page count = %d", n)
	}
	if _, err := engine.InsertField(ctx, withField, FieldMark{Page: 3, Text: "x"}, false); err == nil {
		t.Fatal("expected out of range page error")
	}
}

func TestPDFCPUHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewPDFCPU().Normalize(ctx, samplePDF(t, 1)); err == nil {
		t.Fatal("expected canceled context error")
	}
}
