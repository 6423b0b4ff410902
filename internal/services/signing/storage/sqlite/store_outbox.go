package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// EnqueueOutboxEvent inserts one worker job; duplicate dedupe keys are ignored.
func (s *Store) EnqueueOutboxEvent(ctx context.Context, event storage.OutboxEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return enqueueOutboxEvent(ctx, s.sqlDB, event)
}

// GetOutboxEvent returns one outbox event by ID.
func (s *Store) GetOutboxEvent(ctx context.Context, id string) (storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return storage.OutboxEvent{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT
	id,
	event_type,
	payload_json,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at
FROM signing_outbox
WHERE id = ?
`, id)
	event, err := scanOutboxEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.OutboxEvent{}, storage.ErrNotFound
		}
		return storage.OutboxEvent{}, fmt.Errorf("get outbox event: %w", err)
	}
	return event, nil
}

// LeaseOutboxEvents leases due events for one worker.
//
// Pending events whose next attempt is due and leased events whose lease
// expired are both eligible, so a crashed worker's jobs are picked up again.
func (s *Store) LeaseOutboxEvents(ctx context.Context, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]storage.OutboxEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return nil, fmt.Errorf("consumer is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if leaseTTL <= 0 {
		return nil, fmt.Errorf("lease ttl must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()
	leaseExpiresAt := now.Add(leaseTTL)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start lease transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT id
FROM signing_outbox
WHERE (
	(status = ? AND next_attempt_at <= ?)
	OR
	(status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)
ORDER BY next_attempt_at ASC, created_at ASC, id ASC
LIMIT ?
`,
		storage.OutboxStatusPending,
		toMillis(now),
		storage.OutboxStatusLeased,
		toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select lease candidates: %w", err)
	}
	candidateIDs := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan lease candidate: %w", scanErr)
		}
		candidateIDs = append(candidateIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate lease candidates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close lease candidates: %w", err)
	}
	if len(candidateIDs) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit empty lease transaction: %w", err)
		}
		return []storage.OutboxEvent{}, nil
	}

	leased := make([]storage.OutboxEvent, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		result, updateErr := tx.ExecContext(ctx, `
UPDATE signing_outbox
SET
	status = ?,
	lease_owner = ?,
	lease_expires_at = ?,
	updated_at = ?
WHERE id = ?
AND (
	(status = ? AND next_attempt_at <= ?)
	OR
	(status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)
`,
			storage.OutboxStatusLeased,
			consumer,
			toMillis(leaseExpiresAt),
			toMillis(now),
			id,
			storage.OutboxStatusPending,
			toMillis(now),
			storage.OutboxStatusLeased,
			toMillis(now),
		)
		if updateErr != nil {
			return nil, fmt.Errorf("lease outbox event %s: %w", id, updateErr)
		}
		rowsAffected, rowsErr := result.RowsAffected()
		if rowsErr != nil {
			return nil, fmt.Errorf("lease rows affected for %s: %w", id, rowsErr)
		}
		if rowsAffected == 0 {
			continue
		}

		row := tx.QueryRowContext(ctx, `
SELECT
	id,
	event_type,
	payload_json,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at
FROM signing_outbox
WHERE id = ?
`, id)
		event, scanErr := scanOutboxEvent(row.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan leased outbox event %s: %w", id, scanErr)
		}
		leased = append(leased, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lease transaction: %w", err)
	}
	return leased, nil
}

// MarkOutboxSucceeded marks one leased outbox event as succeeded.
func (s *Store) MarkOutboxSucceeded(ctx context.Context, id string, consumer string, processedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	consumer = strings.TrimSpace(consumer)
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	processedAt = processedAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE signing_outbox
SET
	status = ?,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = '',
	processed_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
AND lease_owner = ?
`,
		storage.OutboxStatusSucceeded,
		toMillis(processedAt),
		toMillis(processedAt),
		id,
		storage.OutboxStatusLeased,
		consumer,
	)
	if err != nil {
		return fmt.Errorf("mark outbox succeeded: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox succeeded rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkOutboxRetry marks one leased outbox event for retry.
func (s *Store) MarkOutboxRetry(ctx context.Context, id string, consumer string, nextAttemptAt time.Time, lastError string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	consumer = strings.TrimSpace(consumer)
	lastError = strings.TrimSpace(lastError)
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	if nextAttemptAt.IsZero() {
		return fmt.Errorf("next attempt at is required")
	}
	now := time.Now().UTC()
	nextAttemptAt = nextAttemptAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE signing_outbox
SET
	status = ?,
	attempt_count = attempt_count + 1,
	next_attempt_at = ?,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = ?,
	processed_at = NULL,
	updated_at = ?
WHERE id = ?
AND status = ?
AND lease_owner = ?
`,
		storage.OutboxStatusPending,
		toMillis(nextAttemptAt),
		lastError,
		toMillis(now),
		id,
		storage.OutboxStatusLeased,
		consumer,
	)
	if err != nil {
		return fmt.Errorf("mark outbox retry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox retry rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkOutboxDead marks one leased outbox event as dead.
func (s *Store) MarkOutboxDead(ctx context.Context, id string, consumer string, lastError string, processedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	consumer = strings.TrimSpace(consumer)
	lastError = strings.TrimSpace(lastError)
	if id == "" {
		return fmt.Errorf("event id is required")
	}
	if consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	processedAt = processedAt.UTC()

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE signing_outbox
SET
	status = ?,
	attempt_count = attempt_count + 1,
	lease_owner = '',
	lease_expires_at = NULL,
	last_error = ?,
	processed_at = ?,
	updated_at = ?
WHERE id = ?
AND status = ?
AND lease_owner = ?
`,
		storage.OutboxStatusDead,
		lastError,
		toMillis(processedAt),
		toMillis(processedAt),
		id,
		storage.OutboxStatusLeased,
		consumer,
	)
	if err != nil {
		return fmt.Errorf("mark outbox dead: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox dead rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type outboxScanner func(dest ...any) error

func scanOutboxEvent(scan outboxScanner) (storage.OutboxEvent, error) {
	var event storage.OutboxEvent
	var nextAttemptAt int64
	var createdAt int64
	var updatedAt int64
	var leaseExpiresAt sql.NullInt64
	var processedAt sql.NullInt64
	if err := scan(
		&event.ID,
		&event.EventType,
		&event.PayloadJSON,
		&event.DedupeKey,
		&event.Status,
		&event.AttemptCount,
		&nextAttemptAt,
		&event.LeaseOwner,
		&leaseExpiresAt,
		&event.LastError,
		&processedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.OutboxEvent{}, err
	}
	event.NextAttemptAt = fromMillis(nextAttemptAt)
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	event.LeaseExpiresAt = fromNullMillis(leaseExpiresAt)
	event.ProcessedAt = fromNullMillis(processedAt)
	return event, nil
}

func normalizeOutboxEvent(event storage.OutboxEvent) (storage.OutboxEvent, error) {
	event.ID = strings.TrimSpace(event.ID)
	event.EventType = strings.TrimSpace(event.EventType)
	event.PayloadJSON = strings.TrimSpace(event.PayloadJSON)
	event.DedupeKey = strings.TrimSpace(event.DedupeKey)
	event.Status = strings.TrimSpace(event.Status)
	event.LeaseOwner = strings.TrimSpace(event.LeaseOwner)
	event.LastError = strings.TrimSpace(event.LastError)
	if event.ID == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event id is required")
	}
	if event.EventType == "" {
		return storage.OutboxEvent{}, fmt.Errorf("event type is required")
	}
	if event.PayloadJSON == "" {
		event.PayloadJSON = "{}"
	}
	if event.Status == "" {
		event.Status = storage.OutboxStatusPending
	}
	if event.AttemptCount < 0 {
		return storage.OutboxEvent{}, fmt.Errorf("attempt count must be greater than or equal to zero")
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = event.CreatedAt
	}
	return event, nil
}

func enqueueOutboxEvent(ctx context.Context, target execContexter, event storage.OutboxEvent) error {
	normalized, err := normalizeOutboxEvent(event)
	if err != nil {
		return err
	}

	_, err = target.ExecContext(ctx, `
INSERT INTO signing_outbox (
	id,
	event_type,
	payload_json,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	lease_owner,
	lease_expires_at,
	last_error,
	processed_at,
	created_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(dedupe_key) WHERE dedupe_key <> '' DO NOTHING
`,
		normalized.ID,
		normalized.EventType,
		normalized.PayloadJSON,
		normalized.DedupeKey,
		normalized.Status,
		normalized.AttemptCount,
		toMillis(normalized.NextAttemptAt),
		normalized.LeaseOwner,
		nullMillis(normalized.LeaseExpiresAt),
		normalized.LastError,
		nullMillis(normalized.ProcessedAt),
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// EnqueueOutboxEventWithAudit appends an audit entry and enqueues event atomically.
func (s *Store) EnqueueOutboxEventWithAudit(ctx context.Context, event storage.OutboxEvent, entry document.AuditLogEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start outbox transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := appendAuditLog(ctx, tx, entry); err != nil {
		return err
	}
	if err := enqueueOutboxEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox transaction: %w", err)
	}
	return nil
}
