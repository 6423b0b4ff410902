package certification

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fixedGenerator() *Generator {
	g := NewGenerator()
	g.clock = func() time.Time { return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC) }
	return g
}

func texts(lines []textLine) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Text)
	}
	return out
}

func TestLayoutSignerBlocks(t *testing.T) {
	signed := time.Date(2026, 1, 14, 9, 5, 0, 0, time.UTC)
	hash := strings.Repeat("ab", 64)
	lines := fixedGenerator().layout(Input{
		DocumentID:   42,
		Title:        "Lease.pdf",
		DocumentHash: hash,
		Signers: []Signer{
			{Name: "Ada", Email: "ada@example.com", NationalID: "X123", Phone: "+12025550123", SignedAt: &signed, Role: "SIGNER", SignatureHash: hash},
			{Name: "Grace", Email: "grace@example.com"},
		},
	})
	got := strings.Join(texts(lines), "\n")
	want := strings.Join([]string{
		"DIGITAL SIGNATURE CERTIFICATE",
		"Document information:",
		"Title: Lease.pdf",
		"Document ID: DOC-000042",
		"Certification date: January 15, 2026 10:30",
		"Document signers:",
		"1. Ada",
		" Email: ada@example.com",
		" National ID: X123",
		" Phone: +12025550123",
		" Signed on: January 14, 2026, 09:05",
		" Role: SIGNER",
		" Signature hash: " + hash[:32] + "...",
		"2. Grace",
		" Email: grace@example.com",
		"Integrity information:",
		"Document hash (SHA-512):",
		hash[:64],
		hash[64:],
		"This hash allows verifying the integrity of the document.",
		"Certificate generated by Documenso",
	}, "\n")
	if got != want {
		t.Fatalf("layout:\n%s\nwant:\n%s", got, want)
	}
	if first := lines[0]; first.Y != pageHeight-100 || !first.Bold || first.Size != 18 {
		t.Fatalf("title line = %+v", first)
	}
	if footer := lines[len(lines)-1]; footer.Y != 50 || footer.X != margin {
		t.Fatalf("footer line = %+v", footer)
	}
}

func TestLayoutWithoutSigners(t *testing.T) {
	lines := fixedGenerator().layout(Input{DocumentID: 7, Title: "NDA", CompanyName: "Acme"})
	got := texts(lines)
	if got[5] != "Digitally signed document" {
		t.Fatalf("lines = %q", got)
	}
	for _, text := range got {
		if strings.HasPrefix(text, "Document hash") {
			t.Fatal("hash heading must be omitted without a hash")
		}
	}
	if got[len(got)-1] != "Certificate generated by Acme" {
		t.Fatalf("footer = %q", got[len(got)-1])
	}
}

func TestRenderProducesPDF(t *testing.T) {
	page, err := fixedGenerator().Render(Input{DocumentID: 12345, Title: "Contract", CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(page, []byte("%PDF-")) {
		t.Fatal("expected PDF header")
	}
	for _, want := range []string{"DIGITAL SIGNATURE CERTIFICATE", "DOC-012345", "Certificate generated by Acme"} {
		if !bytes.Contains(page, []byte(want)) {
			t.Fatalf("rendered page missing %q", want)
		}
	}
}

func TestRenderOrNil(t *testing.T) {
	g := fixedGenerator()
	var logged []string
	g.logf = func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) }
	if page := g.RenderOrNil(Input{DocumentID: 1, Title: "ok"}); page == nil {
		t.Fatal("expected page")
	}
	if len(logged) != 0 {
		t.Fatalf("unexpected logs: %q", logged)
	}
}
