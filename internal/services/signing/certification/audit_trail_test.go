package certification

import (
	"bytes"
	"fmt"
	"testing"
	"time"
)

func TestAuditHeadlineAndDetail(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 5, 0, 0, time.UTC)
	event := AuditEvent{Type: "DOCUMENT_RECIPIENT_COMPLETED", At: at, Actor: "ada@example.com", IPAddress: "10.0.0.1"}
	if got, want := auditHeadline(event), "2026-01-14 09:05:00 UTC  DOCUMENT RECIPIENT COMPLETED"; got != want {
		t.Fatalf("headline = %q, want %q", got, want)
	}
	if got, want := auditDetail(event), "By: ada@example.com  IP: 10.0.0.1"; got != want {
		t.Fatalf("detail = %q, want %q", got, want)
	}
	if got := auditHeadline(AuditEvent{Type: "DOCUMENT_COMPLETED"}); got != "DOCUMENT COMPLETED" {
		t.Fatalf("headline without time = %q", got)
	}
	if got := auditDetail(AuditEvent{}); got != "" {
		t.Fatalf("empty detail = %q", got)
	}
}

func TestRenderAuditTrail(t *testing.T) {
	at := time.Date(2026, 1, 14, 9, 5, 0, 0, time.UTC)
	events := make([]AuditEvent, 0, 80)
	for i := range 80 {
		events = append(events, AuditEvent{
			Type:      "DOCUMENT_FIELD_INSERTED",
			At:        at.Add(time.Duration(i) * time.Minute),
			Actor:     fmt.Sprintf("signer-%d@example.com", i),
			IPAddress: "10.0.0.1",
		})
	}
	out, err := fixedGenerator().RenderAuditTrail(AuditTrailInput{DocumentID: 7, Title: "Lease.pdf", Events: events})
	if err != nil {
		t.Fatalf("render audit trail: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
	for _, want := range []string{"SIGNING CERTIFICATE", "Document ID: DOC-000007", "signer-79@example.com"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Fatalf("output missing %q", want)
		}
	}
}

func TestRenderAuditTrailWithoutEvents(t *testing.T) {
	out, err := fixedGenerator().RenderAuditTrail(AuditTrailInput{DocumentID: 1, Title: "Empty"})
	if err != nil {
		t.Fatalf("render audit trail: %v", err)
	}
	if !bytes.Contains(out, []byte("No recorded events")) {
		t.Fatalf("output missing empty marker")
	}
}
