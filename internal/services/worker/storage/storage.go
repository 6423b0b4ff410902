// Package storage defines the worker attempt journal.
package storage

import (
	"context"
	"time"
)

// AttemptRecord is one processed outbox event and how it was acknowledged.
type AttemptRecord struct {
	ID           int64
	EventID      string
	EventType    string
	Consumer     string
	Outcome      string
	AttemptCount int32
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists worker processing attempt records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	// ListAttempts returns the newest records first.
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
	// ListEventAttempts returns the records of one event, oldest first.
	ListEventAttempts(ctx context.Context, eventID string) ([]AttemptRecord, error)
}
