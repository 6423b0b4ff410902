package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// PutWebhook inserts or updates a webhook subscription.
func (s *Store) PutWebhook(ctx context.Context, hook storage.Webhook) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	hook.ID = strings.TrimSpace(hook.ID)
	hook.URL = strings.TrimSpace(hook.URL)
	if hook.ID == "" {
		return fmt.Errorf("webhook id is required")
	}
	if hook.URL == "" {
		return fmt.Errorf("webhook url is required")
	}
	if strings.TrimSpace(hook.UserID) == "" && strings.TrimSpace(hook.TeamID) == "" {
		return fmt.Errorf("webhook owner is required")
	}
	if hook.CreatedAt.IsZero() {
		hook.CreatedAt = time.Now().UTC()
	}
	events := hook.Events
	if events == nil {
		events = []string{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode webhook events: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO webhooks (id, user_id, team_id, url, secret, events, enabled, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url = excluded.url,
	secret = excluded.secret,
	events = excluded.events,
	enabled = excluded.enabled
`,
		hook.ID,
		strings.TrimSpace(hook.UserID),
		strings.TrimSpace(hook.TeamID),
		hook.URL,
		hook.Secret,
		string(eventsJSON),
		boolToInt(hook.Enabled),
		toMillis(hook.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put webhook: %w", err)
	}
	return nil
}

// GetWebhook fetches a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, id string) (storage.Webhook, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Webhook{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Webhook{}, fmt.Errorf("webhook id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, team_id, url, secret, events, enabled, created_at
FROM webhooks
WHERE id = ?
`, id)
	hook, err := scanWebhook(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Webhook{}, storage.ErrNotFound
		}
		return storage.Webhook{}, fmt.Errorf("get webhook: %w", err)
	}
	return hook, nil
}

// ListWebhooksForEvent lists enabled subscriptions of the owner for event.
func (s *Store) ListWebhooksForEvent(ctx context.Context, userID string, teamID string, event string) ([]storage.Webhook, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	teamID = strings.TrimSpace(teamID)
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, fmt.Errorf("event is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, team_id, url, secret, events, enabled, created_at
FROM webhooks
WHERE enabled = 1
AND ((? <> '' AND team_id = ?) OR (? <> '' AND user_id = ? AND team_id = ''))
ORDER BY created_at ASC, id ASC
`, teamID, teamID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []storage.Webhook
	for rows.Next() {
		hook, err := scanWebhook(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		if slices.Contains(hook.Events, event) {
			hooks = append(hooks, hook)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhooks: %w", err)
	}
	return hooks, nil
}

type webhookScanner func(dest ...any) error

func scanWebhook(scan webhookScanner) (storage.Webhook, error) {
	var hook storage.Webhook
	var events string
	var enabled int
	var createdAt int64
	if err := scan(&hook.ID, &hook.UserID, &hook.TeamID, &hook.URL, &hook.Secret, &events, &enabled, &createdAt); err != nil {
		return storage.Webhook{}, err
	}
	if err := json.Unmarshal([]byte(events), &hook.Events); err != nil {
		return storage.Webhook{}, fmt.Errorf("decode webhook events: %w", err)
	}
	hook.Enabled = enabled != 0
	hook.CreatedAt = fromMillis(createdAt)
	return hook, nil
}
