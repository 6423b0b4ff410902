package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// ReplaceSMSToken invalidates unused tokens for the phone and stores token.
func (s *Store) ReplaceSMSToken(ctx context.Context, token storage.SMSToken) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	token.ID = strings.TrimSpace(token.ID)
	token.Token = strings.TrimSpace(token.Token)
	token.PhoneNumber = strings.TrimSpace(token.PhoneNumber)
	if token.ID == "" {
		return fmt.Errorf("token id is required")
	}
	if token.Token == "" {
		return fmt.Errorf("token is required")
	}
	if token.PhoneNumber == "" {
		return fmt.Errorf("phone number is required")
	}
	if token.ExpiresAt.IsZero() {
		return fmt.Errorf("expires at is required")
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start token transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM sms_verification_tokens
WHERE phone_number = ? AND used = 0
`, token.PhoneNumber); err != nil {
		return fmt.Errorf("delete unused sms tokens: %w", err)
	}

	var recipientID sql.NullInt64
	if token.RecipientID != nil {
		recipientID = sql.NullInt64{Int64: *token.RecipientID, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sms_verification_tokens (id, token, phone_number, recipient_id, expires_at, used, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		token.ID,
		token.Token,
		token.PhoneNumber,
		recipientID,
		toMillis(token.ExpiresAt),
		boolToInt(token.Used),
		toMillis(token.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert sms token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit token transaction: %w", err)
	}
	return nil
}

// ConsumeSMSToken marks the newest matching unused token as used.
func (s *Store) ConsumeSMSToken(ctx context.Context, phone string, token string, now time.Time) (storage.SMSToken, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SMSToken{}, err
	}
	phone = strings.TrimSpace(phone)
	token = strings.TrimSpace(token)
	if phone == "" {
		return storage.SMSToken{}, fmt.Errorf("phone number is required")
	}
	if token == "" {
		return storage.SMSToken{}, fmt.Errorf("token is required")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.SMSToken{}, fmt.Errorf("start consume transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
SELECT id, token, phone_number, recipient_id, expires_at, used, created_at
FROM sms_verification_tokens
WHERE token = ? AND phone_number = ? AND used = 0
ORDER BY created_at DESC
LIMIT 1
`, token, phone)
	found, err := scanSMSToken(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SMSToken{}, storage.ErrNotFound
		}
		return storage.SMSToken{}, fmt.Errorf("find sms token: %w", err)
	}
	if now.After(found.ExpiresAt) {
		return storage.SMSToken{}, storage.ErrExpired
	}

	result, err := tx.ExecContext(ctx, `
UPDATE sms_verification_tokens SET used = 1 WHERE id = ? AND used = 0
`, found.ID)
	if err != nil {
		return storage.SMSToken{}, fmt.Errorf("mark sms token used: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storage.SMSToken{}, fmt.Errorf("mark sms token used rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.SMSToken{}, storage.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return storage.SMSToken{}, fmt.Errorf("commit consume transaction: %w", err)
	}
	found.Used = true
	return found, nil
}

// DeleteExpiredSMSTokens removes tokens past expiry.
func (s *Store) DeleteExpiredSMSTokens(ctx context.Context, now time.Time) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sms_verification_tokens WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sms tokens: %w", err)
	}
	return result.RowsAffected()
}

type smsTokenScanner func(dest ...any) error

func scanSMSToken(scan smsTokenScanner) (storage.SMSToken, error) {
	var token storage.SMSToken
	var recipientID sql.NullInt64
	var expiresAt, createdAt int64
	var used int
	if err := scan(
		&token.ID,
		&token.Token,
		&token.PhoneNumber,
		&recipientID,
		&expiresAt,
		&used,
		&createdAt,
	); err != nil {
		return storage.SMSToken{}, err
	}
	if recipientID.Valid {
		value := recipientID.Int64
		token.RecipientID = &value
	}
	token.ExpiresAt = fromMillis(expiresAt)
	token.CreatedAt = fromMillis(createdAt)
	token.Used = used != 0
	return token, nil
}
