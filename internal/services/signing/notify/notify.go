// Package notify queues and sends the email announcing a sealed document.
package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/platform/id"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/render"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// EventTypeCompletedEmail is the outbox event type for completion emails.
const EventTypeCompletedEmail = "document.completed_email"

// ErrInvalidPayload marks an outbox payload that can never be processed.
var ErrInvalidPayload = stderrors.New("invalid completed email payload")

// Payload is the outbox payload of a completion email.
type Payload struct {
	DocumentID      int64                    `json:"documentId"`
	RequestMetadata document.RequestMetadata `json:"requestMetadata"`
}

// Queue enqueues completion emails.
type Queue struct {
	outbox storage.OutboxStore
	clock  func() time.Time
}

// NewQueue returns a Queue writing to outbox.
func NewQueue(outbox storage.OutboxStore) *Queue {
	return &Queue{outbox: outbox, clock: time.Now}
}

// EnqueueCompletedEmail schedules the email for documentID. A repeated
// dedupeKey is ignored.
func (q *Queue) EnqueueCompletedEmail(ctx context.Context, documentID int64, dedupeKey string, meta document.RequestMetadata) error {
	if q == nil || q.outbox == nil {
		return fmt.Errorf("email outbox is not configured")
	}
	body, err := json.Marshal(Payload{DocumentID: documentID, RequestMetadata: meta})
	if err != nil {
		return fmt.Errorf("encode completed email payload: %w", err)
	}
	eventID, err := id.Prefixed("evt")
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	now := q.clock().UTC()
	return q.outbox.EnqueueOutboxEvent(ctx, storage.OutboxEvent{
		ID:            eventID,
		EventType:     EventTypeCompletedEmail,
		PayloadJSON:   string(body),
		DedupeKey:     dedupeKey,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// Message is one outgoing email.
type Message struct {
	To            string
	Subject       string
	Body          string
	AttachmentRef string
}

// EmailSender hands messages to a mail transport.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Logf func(format string, args ...any)
}

// Send logs msg.
func (s LogSender) Send(_ context.Context, msg Message) error {
	logf := s.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("email to %s: %s\n%s\n[attachment %s]", msg.To, msg.Subject, msg.Body, msg.AttachmentRef)
	return nil
}

// Handler sends completion emails for outbox events.
type Handler struct {
	documents storage.DocumentStore
	sender    EmailSender
	localizer render.Localizer
}

// NewHandler returns a Handler. A nil localizer uses the English catalog.
func NewHandler(documents storage.DocumentStore, sender EmailSender, localizer render.Localizer) *Handler {
	if sender == nil {
		sender = LogSender{}
	}
	return &Handler{documents: documents, sender: sender, localizer: localizer}
}

// Handle emails every recipient of the sealed document.
func (h *Handler) Handle(ctx context.Context, event storage.OutboxEvent) error {
	var payload Payload
	if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.DocumentID <= 0 {
		return fmt.Errorf("%w: document id is required", ErrInvalidPayload)
	}
	doc, err := h.documents.GetDocument(ctx, payload.DocumentID)
	if err != nil {
		return fmt.Errorf("load document %d: %w", payload.DocumentID, err)
	}
	if !doc.Status.IsSealed() {
		return fmt.Errorf("%w: document %d is %s", ErrInvalidPayload, doc.ID, doc.Status)
	}
	data, err := h.documents.GetDocumentData(ctx, doc.DocumentDataID)
	if err != nil {
		return fmt.Errorf("load document data %s: %w", doc.DocumentDataID, err)
	}

	rejected := doc.Status == document.StatusRejected
	reason := ""
	if recipient, ok := document.RejectedRecipient(doc.Recipients); ok {
		reason = recipient.RejectionReason
	}
	for _, recipient := range doc.Recipients {
		to := strings.TrimSpace(recipient.Email)
		if to == "" {
			continue
		}
		email := render.CompletedEmail(h.localizer, render.EmailInput{
			DocumentTitle:   doc.Title,
			RecipientName:   recipient.Name,
			Rejected:        rejected,
			RejectionReason: reason,
		})
		if err := h.sender.Send(ctx, Message{
			To:            to,
			Subject:       email.Subject,
			Body:          email.Body,
			AttachmentRef: data.Data,
		}); err != nil {
			return fmt.Errorf("send completed email to recipient %d: %w", recipient.ID, err)
		}
	}
	return nil
}
