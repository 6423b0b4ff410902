package domain

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/services/signing/notify"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
	"github.com/louisbranch/docseal/internal/services/signing/webhook"
)

type outboxHandler interface {
	Handle(ctx context.Context, event storage.OutboxEvent) error
}

// CompletedEmailHandler sends completion emails.
type CompletedEmailHandler struct {
	emails outboxHandler
}

// NewCompletedEmailHandler wraps the email sender handler.
func NewCompletedEmailHandler(emails *notify.Handler) *CompletedEmailHandler {
	return &CompletedEmailHandler{emails: emails}
}

// Handle sends the email. Malformed payloads, unsealed documents, and
// missing documents are permanent.
func (h *CompletedEmailHandler) Handle(ctx context.Context, event storage.OutboxEvent) error {
	if h == nil || h.emails == nil {
		return Permanent(fmt.Errorf("email handler is not configured"))
	}
	err := h.emails.Handle(ctx, event)
	if err == nil {
		return nil
	}
	if errors.Is(err, notify.ErrInvalidPayload) {
		return Permanent(err)
	}
	return permanentForCodes(err, apperrors.CodeNotFound)
}

// WebhookHandler delivers webhook events.
type WebhookHandler struct {
	fanout outboxHandler
}

// NewWebhookHandler wraps the webhook fanout.
func NewWebhookHandler(fanout *webhook.Fanout) *WebhookHandler {
	return &WebhookHandler{fanout: fanout}
}

// Handle delivers the event to every subscriber. The failure is permanent
// only when no subscriber would accept a retry.
func (h *WebhookHandler) Handle(ctx context.Context, event storage.OutboxEvent) error {
	if h == nil || h.fanout == nil {
		return Permanent(fmt.Errorf("webhook fanout is not configured"))
	}
	err := h.fanout.Handle(ctx, event)
	if err == nil {
		return nil
	}
	if webhook.IsPermanent(err) {
		return Permanent(err)
	}
	return err
}
