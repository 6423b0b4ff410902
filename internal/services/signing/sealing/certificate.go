package sealing

import (
	"context"
	"fmt"

	"github.com/louisbranch/docseal/internal/services/signing/certification"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

const auditTrailPageSize = 500

// AuditTrailCertificate renders the document's audit log as the standard
// signing certificate.
type AuditTrailCertificate struct {
	audit     storage.AuditLogStore
	generator *certification.Generator
}

// NewAuditTrailCertificate returns a certificate source reading audit.
func NewAuditTrailCertificate(audit storage.AuditLogStore, generator *certification.Generator) *AuditTrailCertificate {
	if generator == nil {
		generator = certification.NewGenerator()
	}
	return &AuditTrailCertificate{audit: audit, generator: generator}
}

// StandardCertificate renders the audit trail of doc.
func (c *AuditTrailCertificate) StandardCertificate(ctx context.Context, doc document.Document) ([]byte, error) {
	if c == nil || c.audit == nil {
		return nil, fmt.Errorf("audit log store is not configured")
	}
	entries, err := c.audit.ListAuditLogs(ctx, storage.AuditLogQuery{DocumentID: doc.ID, PageSize: auditTrailPageSize})
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	events := make([]certification.AuditEvent, 0, len(entries))
	for _, entry := range entries {
		actor := ""
		if entry.UserID != nil {
			actor = *entry.UserID
		}
		events = append(events, certification.AuditEvent{
			Type:      entry.Type,
			At:        entry.CreatedAt,
			Actor:     actor,
			IPAddress: entry.IPAddress,
			UserAgent: entry.UserAgent,
		})
	}
	return c.generator.RenderAuditTrail(certification.AuditTrailInput{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Events:     events,
	})
}
