package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/storage"
	signingsqlite "github.com/louisbranch/docseal/internal/services/signing/storage/sqlite"
	workerdomain "github.com/louisbranch/docseal/internal/services/worker/domain"
)

type memoryRecorder struct {
	attempts []Attempt
}

func (r *memoryRecorder) RecordAttempt(_ context.Context, attempt Attempt) error {
	r.attempts = append(r.attempts, attempt)
	return nil
}

func openTempSigningStore(t *testing.T) *signingsqlite.Store {
	t.Helper()
	store, err := signingsqlite.Open(filepath.Join(t.TempDir(), "signing.db"))
	if err != nil {
		t.Fatalf("open signing store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func enqueue(t *testing.T, store *signingsqlite.Store, id string, eventType string, now time.Time) {
	t.Helper()
	err := store.EnqueueOutboxEvent(context.Background(), storage.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		PayloadJSON:   `{}`,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", id, err)
	}
}

func newTestLoop(store Outbox, recorder AttemptRecorder, handlers map[string]EventHandler, now time.Time) *Loop {
	loop := New(store, recorder, handlers, Config{Consumer: "worker-test", MaxAttempts: 3}, func() time.Time { return now })
	loop.logf = func(string, ...any) {}
	return loop
}

func TestLoopRunOnceAcknowledgesOutcomes(t *testing.T) {
	store := openTempSigningStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	enqueue(t, store, "evt-ok", "test.ok", now.Add(-3*time.Second))
	enqueue(t, store, "evt-retry", "test.retry", now.Add(-2*time.Second))
	enqueue(t, store, "evt-dead", "test.dead", now.Add(-time.Second))
	enqueue(t, store, "evt-unknown", "test.unknown", now)

	recorder := &memoryRecorder{}
	loop := newTestLoop(store, recorder, map[string]EventHandler{
		"test.ok":    HandlerFunc(func(context.Context, storage.OutboxEvent) error { return nil }),
		"test.retry": HandlerFunc(func(context.Context, storage.OutboxEvent) error { return errors.New("smtp down") }),
		"test.dead": HandlerFunc(func(context.Context, storage.OutboxEvent) error {
			return workerdomain.Permanent(errors.New("bad payload"))
		}),
	}, now)

	processed, err := loop.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if processed != 4 {
		t.Fatalf("processed = %d, want 4", processed)
	}

	want := map[string]string{
		"evt-ok":      storage.OutboxStatusSucceeded,
		"evt-retry":   storage.OutboxStatusPending,
		"evt-dead":    storage.OutboxStatusDead,
		"evt-unknown": storage.OutboxStatusDead,
	}
	for id, status := range want {
		event, err := store.GetOutboxEvent(context.Background(), id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if event.Status != status {
			t.Fatalf("%s status = %q, want %q", id, event.Status, status)
		}
	}

	retried, err := store.GetOutboxEvent(context.Background(), "evt-retry")
	if err != nil {
		t.Fatalf("get retry: %v", err)
	}
	if !retried.NextAttemptAt.Equal(now.Add(defaultRetryBackoff)) {
		t.Fatalf("next attempt = %s, want %s", retried.NextAttemptAt, now.Add(defaultRetryBackoff))
	}
	if retried.LastError != "smtp down" {
		t.Fatalf("last error = %q", retried.LastError)
	}

	if len(recorder.attempts) != 4 {
		t.Fatalf("attempts = %d, want 4", len(recorder.attempts))
	}
	outcomes := map[string]Outcome{}
	for _, attempt := range recorder.attempts {
		outcomes[attempt.EventID] = attempt.Outcome
		if attempt.AttemptCount != 1 {
			t.Fatalf("%s attempt count = %d, want 1", attempt.EventID, attempt.AttemptCount)
		}
	}
	if outcomes["evt-ok"] != OutcomeSucceeded || outcomes["evt-retry"] != OutcomeRetry || outcomes["evt-dead"] != OutcomeDead || outcomes["evt-unknown"] != OutcomeDead {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestLoopDeadLettersAfterMaxAttempts(t *testing.T) {
	store := openTempSigningStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	enqueue(t, store, "evt-flaky", "test.flaky", now)

	recorder := &memoryRecorder{}
	handlers := map[string]EventHandler{
		"test.flaky": HandlerFunc(func(context.Context, storage.OutboxEvent) error { return errors.New("timeout") }),
	}
	for i := 0; i < 3; i++ {
		loop := newTestLoop(store, recorder, handlers, now.Add(time.Duration(i)*time.Hour))
		if _, err := loop.RunOnce(context.Background()); err != nil {
			t.Fatalf("run once %d: %v", i, err)
		}
	}

	event, err := store.GetOutboxEvent(context.Background(), "evt-flaky")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if event.Status != storage.OutboxStatusDead {
		t.Fatalf("status = %q, want dead", event.Status)
	}
	if len(recorder.attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(recorder.attempts))
	}
	last := recorder.attempts[2]
	if last.Outcome != OutcomeDead || last.AttemptCount != 3 {
		t.Fatalf("last attempt = %+v", last)
	}
}

func TestLoopRecoversHandlerPanic(t *testing.T) {
	store := openTempSigningStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	enqueue(t, store, "evt-panic", "test.panic", now)

	recorder := &memoryRecorder{}
	loop := newTestLoop(store, recorder, map[string]EventHandler{
		"test.panic": HandlerFunc(func(context.Context, storage.OutboxEvent) error { panic("boom") }),
	}, now)
	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(recorder.attempts) != 1 || recorder.attempts[0].Outcome != OutcomeRetry {
		t.Fatalf("attempts = %+v", recorder.attempts)
	}
	if recorder.attempts[0].Error != "handler panic: boom" {
		t.Fatalf("error = %q", recorder.attempts[0].Error)
	}
}

func TestLoopRetryDelayDoublesUpToCap(t *testing.T) {
	loop := New(nil, nil, nil, Config{RetryBackoff: time.Second, RetryMaxDelay: 5 * time.Second}, nil)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 5 * time.Second},
		{attempt: 10, want: 5 * time.Second},
	}
	for _, tt := range tests {
		if got := loop.retryDelay(tt.attempt); got != tt.want {
			t.Fatalf("retryDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestConfigNormalizedDefaults(t *testing.T) {
	cfg := Config{Consumer: "  ", RetryBackoff: time.Minute, RetryMaxDelay: time.Second}.normalized()
	if cfg.Consumer != defaultConsumer || cfg.PollInterval != defaultPollInterval || cfg.LeaseTTL != defaultLeaseTTL {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MaxAttempts != defaultMaxAttempts || cfg.BatchSize != defaultBatchSize {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RetryMaxDelay != time.Minute {
		t.Fatalf("retry max delay = %s, want backoff floor", cfg.RetryMaxDelay)
	}
}

func TestNewDropsBlankHandlers(t *testing.T) {
	loop := New(nil, nil, map[string]EventHandler{
		" ":       HandlerFunc(func(context.Context, storage.OutboxEvent) error { return nil }),
		"test.ok": nil,
	}, Config{}, nil)
	if len(loop.handlers) != 0 {
		t.Fatalf("handlers = %v", loop.handlers)
	}
}

func TestLoopRunStopsWithContext(t *testing.T) {
	store := openTempSigningStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	loop := New(store, nil, nil, Config{PollInterval: 10 * time.Millisecond}, nil)
	loop.logf = func(string, ...any) {}

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}
