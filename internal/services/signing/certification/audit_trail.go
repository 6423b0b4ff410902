package certification

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const auditLayout = "2006-01-02 15:04:05 MST"

// AuditEvent is one row of the audit trail page.
type AuditEvent struct {
	Type      string
	At        time.Time
	Actor     string
	IPAddress string
	UserAgent string
}

// AuditTrailInput describes the audit trail appended as the standard
// signing certificate.
type AuditTrailInput struct {
	DocumentID int64
	Title      string
	Events     []AuditEvent
}

// RenderAuditTrail draws the audit history of a document. Long histories
// continue on additional pages.
func (g *Generator) RenderAuditTrail(in AuditTrailInput) ([]byte, error) {
	now := g.clock().UTC()
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: pageWidth, Ht: pageHeight},
	})
	pdf.SetCompression(false)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle(fmt.Sprintf("Signing certificate DOC-%06d", in.DocumentID), true)
	pdf.AddPage()

	translate := pdf.UnicodeTranslatorFromDescriptor("")
	width := pageWidth - 2*margin

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(colorTitle.r, colorTitle.g, colorTitle.b)
	pdf.CellFormat(width, 24, "SIGNING CERTIFICATE", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(colorBody.r, colorBody.g, colorBody.b)
	pdf.CellFormat(width, lineHeight, translate("Title: "+in.Title), "", 1, "L", false, 0, "")
	pdf.CellFormat(width, lineHeight, fmt.Sprintf("Document ID: DOC-%06d", in.DocumentID), "", 1, "L", false, 0, "")
	pdf.Ln(lineHeight)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(colorHeading.r, colorHeading.g, colorHeading.b)
	pdf.CellFormat(width, 20, "Audit trail:", "", 1, "L", false, 0, "")

	if len(in.Events) == 0 {
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(colorNote.r, colorNote.g, colorNote.b)
		pdf.CellFormat(width, lineHeight, "No recorded events", "", 1, "L", false, 0, "")
	}
	for _, event := range in.Events {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(colorName.r, colorName.g, colorName.b)
		pdf.CellFormat(width, lineHeight, translate(auditHeadline(event)), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(colorBody.r, colorBody.g, colorBody.b)
		if detail := auditDetail(event); detail != "" {
			pdf.MultiCell(width, 12, translate(detail), "", "L", false)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render audit trail for document %d: %w", in.DocumentID, err)
	}
	return buf.Bytes(), nil
}

func auditHeadline(event AuditEvent) string {
	label := strings.ReplaceAll(strings.TrimSpace(event.Type), "_", " ")
	if event.At.IsZero() {
		return label
	}
	return event.At.UTC().Format(auditLayout) + "  " + label
}

func auditDetail(event AuditEvent) string {
	var parts []string
	if event.Actor != "" {
		parts = append(parts, "By: "+event.Actor)
	}
	if event.IPAddress != "" {
		parts = append(parts, "IP: "+event.IPAddress)
	}
	if event.UserAgent != "" {
		parts = append(parts, "User agent: "+event.UserAgent)
	}
	return strings.Join(parts, "  ")
}
