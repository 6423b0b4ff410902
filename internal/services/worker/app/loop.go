package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/storage"
	workerdomain "github.com/louisbranch/docseal/internal/services/worker/domain"
)

const (
	defaultConsumer      = "worker-signing"
	defaultPollInterval  = 2 * time.Second
	defaultLeaseTTL      = 2 * time.Minute
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
	defaultBatchSize     = 10
)

// Outcome is how one processing attempt was acknowledged.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetry     Outcome = "retry"
	OutcomeDead      Outcome = "dead"
)

// EventHandler processes one leased outbox event.
type EventHandler interface {
	Handle(ctx context.Context, event storage.OutboxEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event storage.OutboxEvent) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event storage.OutboxEvent) error {
	return f(ctx, event)
}

// Attempt is one processed event and its acknowledgement.
type Attempt struct {
	EventID      string
	EventType    string
	Outcome      Outcome
	AttemptCount int32
	Error        string
	CreatedAt    time.Time
}

// AttemptRecorder journals processing attempts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt Attempt) error
}

// Outbox is the lease and acknowledgement surface of the signing outbox.
type Outbox interface {
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error)
	MarkOutboxSucceeded(ctx context.Context, id string, consumer string, processedAt time.Time) error
	MarkOutboxRetry(ctx context.Context, id string, consumer string, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id string, consumer string, lastError string, processedAt time.Time) error
}

// Config controls leasing and retry behavior.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	BatchSize     int
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

// Loop leases outbox events and dispatches them by event type.
type Loop struct {
	outbox   Outbox
	recorder AttemptRecorder
	handlers map[string]EventHandler
	cfg      Config
	clock    func() time.Time
	logf     func(format string, args ...any)
}

// New builds a Loop. A nil clock uses time.Now; a nil recorder skips the
// attempt journal.
func New(outbox Outbox, recorder AttemptRecorder, handlers map[string]EventHandler, cfg Config, clock func() time.Time) *Loop {
	if clock == nil {
		clock = time.Now
	}
	registered := make(map[string]EventHandler, len(handlers))
	for eventType, handler := range handlers {
		eventType = strings.TrimSpace(eventType)
		if eventType == "" || handler == nil {
			continue
		}
		registered[eventType] = handler
	}
	return &Loop{
		outbox:   outbox,
		recorder: recorder,
		handlers: registered,
		cfg:      cfg.normalized(),
		clock:    clock,
		logf:     log.Printf,
	}
}

// Run polls until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	if l == nil || l.outbox == nil {
		return fmt.Errorf("worker outbox is not configured")
	}
	if _, err := l.RunOnce(ctx); err != nil && ctx.Err() == nil {
		l.logf("worker poll: %v", err)
	}

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				processed, err := l.RunOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						l.logf("worker poll: %v", err)
					}
					break
				}
				if processed < l.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// RunOnce leases one batch, processes it, and returns the number of events
// handled.
func (l *Loop) RunOnce(ctx context.Context) (int, error) {
	events, err := l.outbox.LeaseOutboxEvents(ctx, l.cfg.Consumer, l.cfg.BatchSize, l.clock().UTC(), l.cfg.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease outbox events: %w", err)
	}
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		l.process(ctx, event)
	}
	return len(events), nil
}

func (l *Loop) process(ctx context.Context, event storage.OutboxEvent) {
	attemptCount := event.AttemptCount + 1
	handler, ok := l.handlers[event.EventType]
	var handleErr error
	if !ok {
		handleErr = workerdomain.Permanent(fmt.Errorf("no handler for event type %q", event.EventType))
	} else {
		handleErr = l.handle(ctx, handler, event)
	}

	now := l.clock().UTC()
	attempt := Attempt{
		EventID:      event.ID,
		EventType:    event.EventType,
		AttemptCount: attemptCount,
		CreatedAt:    now,
	}
	var ackErr error
	switch {
	case handleErr == nil:
		attempt.Outcome = OutcomeSucceeded
		ackErr = l.outbox.MarkOutboxSucceeded(ctx, event.ID, l.cfg.Consumer, now)
	case workerdomain.IsPermanent(handleErr) || int(attemptCount) >= l.cfg.MaxAttempts:
		attempt.Outcome = OutcomeDead
		attempt.Error = handleErr.Error()
		ackErr = l.outbox.MarkOutboxDead(ctx, event.ID, l.cfg.Consumer, attempt.Error, now)
		l.logf("worker event %s (%s) dead after %d attempts: %v", event.ID, event.EventType, attemptCount, handleErr)
	default:
		attempt.Outcome = OutcomeRetry
		attempt.Error = handleErr.Error()
		next := now.Add(l.retryDelay(int(attemptCount)))
		ackErr = l.outbox.MarkOutboxRetry(ctx, event.ID, l.cfg.Consumer, next, attempt.Error)
		l.logf("worker event %s (%s) attempt %d failed, retry at %s: %v", event.ID, event.EventType, attemptCount, next.Format(time.RFC3339), handleErr)
	}
	if ackErr != nil {
		l.logf("worker ack %s %s: %v", event.ID, attempt.Outcome, ackErr)
		return
	}
	if l.recorder != nil {
		if err := l.recorder.RecordAttempt(ctx, attempt); err != nil {
			l.logf("worker record attempt %s: %v", event.ID, err)
		}
	}
}

// handle runs handler within the lease and turns panics into retryable
// errors.
func (l *Loop) handle(ctx context.Context, handler EventHandler, event storage.OutboxEvent) (err error) {
	handleCtx, cancel := context.WithTimeout(ctx, l.cfg.LeaseTTL)
	defer cancel()
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()
	return handler.Handle(handleCtx, event)
}

// retryDelay doubles the base backoff per attempt up to the configured cap.
func (l *Loop) retryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := l.cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= l.cfg.RetryMaxDelay {
			return l.cfg.RetryMaxDelay
		}
	}
	if delay > l.cfg.RetryMaxDelay {
		return l.cfg.RetryMaxDelay
	}
	return delay
}
