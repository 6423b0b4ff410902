package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/platform/id"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// Outbox event types carrying webhook deliveries.
const (
	EventTypeDocumentCompleted = "webhook.document_completed"
	EventTypeDocumentRejected  = "webhook.document_rejected"
)

// EventTypeForKind maps an event kind to its outbox event type.
func EventTypeForKind(kind string) (string, error) {
	switch kind {
	case KindDocumentCompleted:
		return EventTypeDocumentCompleted, nil
	case KindDocumentRejected:
		return EventTypeDocumentRejected, nil
	default:
		return "", fmt.Errorf("unsupported webhook event %q", kind)
	}
}

// Event is one webhook notification for the owners of a document.
type Event struct {
	Kind      string
	Payload   DocumentPayload
	UserID    string
	TeamID    string
	DedupeKey string
}

// Envelope is the outbox payload for a webhook event.
type Envelope struct {
	Event     string          `json:"event"`
	Payload   DocumentPayload `json:"payload"`
	UserID    string          `json:"userId"`
	TeamID    string          `json:"teamId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Dispatcher enqueues webhook events for the worker.
type Dispatcher struct {
	outbox storage.OutboxStore
	clock  func() time.Time
}

// NewDispatcher returns a Dispatcher writing to outbox.
func NewDispatcher(outbox storage.OutboxStore) *Dispatcher {
	return &Dispatcher{outbox: outbox, clock: time.Now}
}

// Trigger enqueues event. Delivery happens asynchronously.
func (d *Dispatcher) Trigger(ctx context.Context, event Event) error {
	if d == nil || d.outbox == nil {
		return fmt.Errorf("webhook outbox is not configured")
	}
	eventType, err := EventTypeForKind(event.Kind)
	if err != nil {
		return err
	}
	if strings.TrimSpace(event.UserID) == "" {
		return fmt.Errorf("webhook owner user id is required")
	}
	now := d.clock().UTC()
	body, err := json.Marshal(Envelope{
		Event:     event.Kind,
		Payload:   event.Payload,
		UserID:    event.UserID,
		TeamID:    event.TeamID,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("encode webhook envelope: %w", err)
	}
	eventID, err := id.Prefixed("evt")
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	if err := d.outbox.EnqueueOutboxEvent(ctx, storage.OutboxEvent{
		ID:            eventID,
		EventType:     eventType,
		PayloadJSON:   string(body),
		DedupeKey:     event.DedupeKey,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		return fmt.Errorf("enqueue webhook %s: %w", event.Kind, err)
	}
	return nil
}
