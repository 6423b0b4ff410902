package webhook

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether a delivery failure will not succeed on retry.
// A joined error is permanent only when each of its parts is.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(permanentError); ok {
		return true
	}
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		parts := multi.Unwrap()
		for _, part := range parts {
			if !IsPermanent(part) {
				return false
			}
		}
		return len(parts) > 0
	}
	var status *StatusError
	if stderrors.As(err, &status) {
		return !status.Retryable()
	}
	var perm permanentError
	return stderrors.As(err, &perm)
}

type sender interface {
	Deliver(ctx context.Context, target Target, eventID string, envelope Envelope) error
}

// Fanout delivers one outbox event to every subscribed target.
type Fanout struct {
	webhooks storage.WebhookStore
	sender   sender
	static   []Target
	logf     func(format string, args ...any)
}

// NewFanout delivers to subscriptions in webhooks plus an optional static
// target from cfg.
func NewFanout(webhooks storage.WebhookStore, deliverer *Deliverer, cfg Config) *Fanout {
	f := &Fanout{webhooks: webhooks, sender: deliverer, logf: log.Printf}
	if url := strings.TrimSpace(cfg.URL); url != "" {
		f.static = append(f.static, Target{ID: "static", URL: url, Secret: cfg.Secret})
	}
	return f
}

// Handle decodes event and delivers it. It fails when any target fails; the
// error is permanent only when every failure is.
func (f *Fanout) Handle(ctx context.Context, event storage.OutboxEvent) error {
	var envelope Envelope
	if err := json.Unmarshal([]byte(event.PayloadJSON), &envelope); err != nil {
		return permanentError{err: fmt.Errorf("decode webhook envelope: %w", err)}
	}
	targets := append([]Target(nil), f.static...)
	if f.webhooks != nil {
		hooks, err := f.webhooks.ListWebhooksForEvent(ctx, envelope.UserID, envelope.TeamID, envelope.Event)
		if err != nil {
			return fmt.Errorf("list webhooks: %w", err)
		}
		for _, hook := range hooks {
			targets = append(targets, Target{ID: hook.ID, URL: hook.URL, Secret: hook.Secret})
		}
	}
	if len(targets) == 0 {
		f.logf("webhook %s: no subscribers for document %d", envelope.Event, envelope.Payload.ID)
		return nil
	}

	var failures []error
	allPermanent := true
	for _, target := range targets {
		if err := f.sender.Deliver(ctx, target, event.ID, envelope); err != nil {
			failures = append(failures, fmt.Errorf("target %s: %w", target.ID, err))
			allPermanent = allPermanent && IsPermanent(err)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	joined := stderrors.Join(failures...)
	if allPermanent {
		return permanentError{err: joined}
	}
	return joined
}
