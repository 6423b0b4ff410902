package storage

import (
	"context"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/document"
)

const (
	// OutboxStatusPending marks an event that awaits delivery.
	OutboxStatusPending = "pending"
	// OutboxStatusLeased marks an event a worker is processing.
	OutboxStatusLeased = "leased"
	// OutboxStatusSucceeded marks an event processed successfully.
	OutboxStatusSucceeded = "succeeded"
	// OutboxStatusDead marks an event that will not be retried.
	OutboxStatusDead = "dead"
)

// OutboxEvent is one durable job for the worker.
type OutboxEvent struct {
	ID             string
	EventType      string
	PayloadJSON    string
	DedupeKey      string
	Status         string
	AttemptCount   int32
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OutboxStore persists worker jobs with lease-based processing.
type OutboxStore interface {
	// EnqueueOutboxEvent inserts event; a duplicate non-empty dedupe key is
	// silently ignored.
	EnqueueOutboxEvent(ctx context.Context, event OutboxEvent) error
	// EnqueueOutboxEventWithAudit appends entry and enqueues event in one
	// transaction.
	EnqueueOutboxEventWithAudit(ctx context.Context, event OutboxEvent, entry document.AuditLogEntry) error
	GetOutboxEvent(ctx context.Context, id string) (OutboxEvent, error)
	LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]OutboxEvent, error)
	MarkOutboxSucceeded(ctx context.Context, id string, consumer string, processedAt time.Time) error
	MarkOutboxRetry(ctx context.Context, id string, consumer string, nextAttemptAt time.Time, lastError string) error
	MarkOutboxDead(ctx context.Context, id string, consumer string, lastError string, processedAt time.Time) error
}
