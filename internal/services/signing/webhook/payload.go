// Package webhook publishes document lifecycle events to subscriber
// endpoints through the outbox.
package webhook

import (
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/document"
)

// Event kinds.
const (
	KindDocumentCompleted = "DOCUMENT_COMPLETED"
	KindDocumentRejected  = "DOCUMENT_REJECTED"
)

// RecipientPayload is a recipient in the canonical document payload.
type RecipientPayload struct {
	ID              int64      `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	SigningStatus   string     `json:"signingStatus"`
	SignedAt        *time.Time `json:"signedAt"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
}

// DocumentPayload is the canonical document shape sent to subscribers.
type DocumentPayload struct {
	ID             int64              `json:"id"`
	UserID         string             `json:"userId"`
	TeamID         string             `json:"teamId,omitempty"`
	Title          string             `json:"title"`
	Status         string             `json:"status"`
	DocumentDataID string             `json:"documentDataId"`
	QRToken        string             `json:"qrToken,omitempty"`
	CompletedAt    *time.Time         `json:"completedAt"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	Recipients     []RecipientPayload `json:"recipients"`
}

// PayloadFromDocument maps a loaded document to its webhook payload.
func PayloadFromDocument(doc document.Document) DocumentPayload {
	payload := DocumentPayload{
		ID:             doc.ID,
		UserID:         doc.UserID,
		TeamID:         doc.TeamID,
		Title:          doc.Title,
		Status:         string(doc.Status),
		DocumentDataID: doc.DocumentDataID,
		QRToken:        doc.QRToken,
		CompletedAt:    doc.CompletedAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		Recipients:     make([]RecipientPayload, 0, len(doc.Recipients)),
	}
	for _, r := range doc.Recipients {
		payload.Recipients = append(payload.Recipients, RecipientPayload{
			ID:              r.ID,
			Email:           r.Email,
			Name:            r.Name,
			Role:            string(r.Role),
			SigningStatus:   string(r.SigningStatus),
			SignedAt:        r.SignedAt,
			RejectionReason: r.RejectionReason,
		})
	}
	return payload
}

// KindForStatus returns the event kind announcing a sealed status.
func KindForStatus(status document.Status) string {
	if status == document.StatusRejected {
		return KindDocumentRejected
	}
	return KindDocumentCompleted
}
