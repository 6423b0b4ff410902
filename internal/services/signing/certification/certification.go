// Package certification renders the one-page signature certificate appended
// to sealed documents.
package certification

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth  = 595.276
	pageHeight = 841.89
	margin     = 50.0
	lineHeight = 15.0
	hashLine   = 64

	defaultCompanyName = "Documenso"
	dateLayout         = "January 2, 2006 15:04"
	signedLayout       = "January 2, 2006, 15:04"
)

// Signer is one signer block on the page.
type Signer struct {
	Name          string
	Email         string
	NationalID    string
	Phone         string
	SignedAt      *time.Time
	Role          string
	SignatureHash string
}

// Input describes the document being certified.
type Input struct {
	DocumentID   int64
	Title        string
	CompanyName  string
	DocumentHash string
	Signers      []Signer
}

// Generator renders certification pages.
type Generator struct {
	clock func() time.Time
	logf  func(format string, args ...any)
}

// NewGenerator returns a Generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{clock: time.Now, logf: log.Printf}
}

type rgb struct{ r, g, b int }

var (
	colorTitle   = rgb{26, 26, 128}
	colorHeading = rgb{51, 51, 51}
	colorName    = rgb{26, 26, 26}
	colorBody    = rgb{77, 77, 77}
	colorHash    = rgb{51, 128, 51}
	colorNote    = rgb{102, 102, 102}
	colorFooter  = rgb{128, 128, 128}
)

// textLine is a run of text with its baseline measured from the page bottom.
type textLine struct {
	X     float64
	Y     float64
	Size  float64
	Bold  bool
	Color rgb
	Text  string
}

// layout positions every line of the page.
func (g *Generator) layout(in Input) []textLine {
	company := strings.TrimSpace(in.CompanyName)
	if company == "" {
		company = defaultCompanyName
	}
	var lines []textLine
	add := func(x, y, size float64, bold bool, color rgb, text string) {
		lines = append(lines, textLine{X: x, Y: y, Size: size, Bold: bold, Color: color, Text: text})
	}

	y := pageHeight - 100
	add(margin, y, 18, true, colorTitle, "DIGITAL SIGNATURE CERTIFICATE")
	y -= 40

	add(margin, y, 14, true, colorHeading, "Document information:")
	y -= 30
	add(margin+20, y, 11, false, colorBody, "Title: "+in.Title)
	y -= 20
	add(margin+20, y, 11, false, colorBody, fmt.Sprintf("Document ID: DOC-%06d", in.DocumentID))
	y -= 20
	add(margin+20, y, 11, false, colorBody, "Certification date: "+g.clock().UTC().Format(dateLayout))
	y -= 50

	if len(in.Signers) > 0 {
		add(margin, y, 14, true, colorHeading, "Document signers:")
		y -= 25
		for i, signer := range in.Signers {
			add(margin, y, 12, true, colorName, fmt.Sprintf("%d. %s", i+1, signer.Name))
			y -= lineHeight
			detail := func(label, value string) {
				if value == "" {
					return
				}
				add(margin+10, y, 10, false, colorBody, " "+label+": "+value)
				y -= lineHeight
			}
			detail("Email", signer.Email)
			detail("National ID", signer.NationalID)
			detail("Phone", signer.Phone)
			if signer.SignedAt != nil {
				detail("Signed on", signer.SignedAt.UTC().Format(signedLayout))
			}
			detail("Role", signer.Role)
			if signer.SignatureHash != "" {
				detail("Signature hash", shortHash(signer.SignatureHash))
			}
			y -= 10
		}
		y -= 20
	} else {
		add(margin, y, 12, false, colorBody, "Digitally signed document")
		y -= 40
	}

	add(margin, y, 14, true, colorHeading, "Integrity information:")
	y -= 25
	if in.DocumentHash != "" {
		add(margin+20, y, 11, true, colorBody, "Document hash (SHA-512):")
		y -= 18
		for _, chunk := range chunk(in.DocumentHash, hashLine) {
			add(margin+20, y, 8, false, colorHash, chunk)
			y -= 12
		}
		y -= 15
	}
	add(margin+20, y, 10, false, colorNote, "This hash allows verifying the integrity of the document.")

	add(margin, 50, 10, false, colorFooter, "Certificate generated by "+company)
	return lines
}

func shortHash(hash string) string {
	if len(hash) > 32 {
		hash = hash[:32]
	}
	return hash + "..."
}

func chunk(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// Render draws the certificate page as a standalone PDF.
func (g *Generator) Render(in Input) ([]byte, error) {
	now := g.clock().UTC()
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: pageWidth, Ht: pageHeight},
	})
	pdf.SetCompression(false)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetTitle(fmt.Sprintf("Signature certificate DOC-%06d", in.DocumentID), true)
	pdf.AddPage()

	translate := pdf.UnicodeTranslatorFromDescriptor("")
	for _, line := range g.layout(in) {
		style := ""
		if line.Bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, line.Size)
		pdf.SetTextColor(line.Color.r, line.Color.g, line.Color.b)
		pdf.Text(line.X, pageHeight-line.Y, translate(line.Text))
	}

	pdf.SetDrawColor(colorTitle.r, colorTitle.g, colorTitle.b)
	pdf.SetLineWidth(2)
	pdf.Line(margin, 130, pageWidth-margin, 130)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certification page for document %d: %w", in.DocumentID, err)
	}
	return buf.Bytes(), nil
}

// RenderOrNil renders the page, logging and returning nil on failure.
func (g *Generator) RenderOrNil(in Input) []byte {
	page, err := g.Render(in)
	if err != nil {
		g.logf("certification page: %v", err)
		return nil
	}
	return page
}
