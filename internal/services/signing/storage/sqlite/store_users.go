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

// PutUser inserts or updates a user record.
func (s *Store) PutUser(ctx context.Context, u storage.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	u.ID = strings.TrimSpace(u.ID)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, email, name, totp_secret, two_factor_enabled, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	email = excluded.email,
	name = excluded.name,
	totp_secret = excluded.totp_secret,
	two_factor_enabled = excluded.two_factor_enabled
`,
		u.ID,
		u.Email,
		u.Name,
		u.TOTPSecret,
		boolToInt(u.TwoFactorEnabled),
		toMillis(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (storage.User, error) {
	if err := s.ready(ctx); err != nil {
		return storage.User{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.User{}, fmt.Errorf("user id is required")
	}
	return s.getUser(ctx, "id = ?", userID)
}

// GetUserByEmail fetches a user by case-insensitive email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (storage.User, error) {
	if err := s.ready(ctx); err != nil {
		return storage.User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return storage.User{}, fmt.Errorf("email is required")
	}
	return s.getUser(ctx, "email = ?", email)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (storage.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, name, totp_secret, two_factor_enabled, created_at
FROM users
WHERE `+where, arg)

	var u storage.User
	var twoFactor int
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.TOTPSecret, &twoFactor, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.User{}, storage.ErrNotFound
		}
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	u.TwoFactorEnabled = twoFactor != 0
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

// PutPasskey stores a WebAuthn credential.
func (s *Store) PutPasskey(ctx context.Context, passkey storage.Passkey) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	passkey.ID = strings.TrimSpace(passkey.ID)
	passkey.UserID = strings.TrimSpace(passkey.UserID)
	passkey.CredentialID = strings.TrimSpace(passkey.CredentialID)
	if passkey.ID == "" {
		return fmt.Errorf("passkey id is required")
	}
	if passkey.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if passkey.CredentialID == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(passkey.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}
	if passkey.CreatedAt.IsZero() {
		passkey.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkeys (id, user_id, credential_id, credential_json, counter, created_at, last_used_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	credential_json = excluded.credential_json,
	counter = excluded.counter,
	last_used_at = excluded.last_used_at
`,
		passkey.ID,
		passkey.UserID,
		passkey.CredentialID,
		passkey.CredentialJSON,
		int64(passkey.Counter),
		toMillis(passkey.CreatedAt),
		nullMillis(passkey.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("put passkey: %w", err)
	}
	return nil
}

// GetPasskeyByCredentialID fetches the credential registered to userID.
func (s *Store) GetPasskeyByCredentialID(ctx context.Context, userID string, credentialID string) (storage.Passkey, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Passkey{}, err
	}
	userID = strings.TrimSpace(userID)
	credentialID = strings.TrimSpace(credentialID)
	if userID == "" {
		return storage.Passkey{}, fmt.Errorf("user id is required")
	}
	if credentialID == "" {
		return storage.Passkey{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_id, credential_id, credential_json, counter, created_at, last_used_at
FROM passkeys
WHERE user_id = ? AND credential_id = ?
`, userID, credentialID)
	passkey, err := scanPasskey(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Passkey{}, storage.ErrNotFound
		}
		return storage.Passkey{}, fmt.Errorf("get passkey: %w", err)
	}
	return passkey, nil
}

// ListPasskeys lists credentials registered to userID.
func (s *Store) ListPasskeys(ctx context.Context, userID string) ([]storage.Passkey, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_id, credential_id, credential_json, counter, created_at, last_used_at
FROM passkeys
WHERE user_id = ?
ORDER BY created_at ASC, id ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkeys: %w", err)
	}
	defer rows.Close()

	var passkeys []storage.Passkey
	for rows.Next() {
		passkey, err := scanPasskey(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan passkey: %w", err)
		}
		passkeys = append(passkeys, passkey)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passkeys: %w", err)
	}
	return passkeys, nil
}

// UpdatePasskeyUsage records a successful assertion.
func (s *Store) UpdatePasskeyUsage(ctx context.Context, id string, counter uint32, credentialJSON string, usedAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("passkey id is required")
	}
	if usedAt.IsZero() {
		usedAt = time.Now().UTC()
	}

	query := `UPDATE passkeys SET counter = ?, last_used_at = ? WHERE id = ?`
	args := []any{int64(counter), toMillis(usedAt), id}
	if strings.TrimSpace(credentialJSON) != "" {
		query = `UPDATE passkeys SET counter = ?, last_used_at = ?, credential_json = ? WHERE id = ?`
		args = []any{int64(counter), toMillis(usedAt), credentialJSON, id}
	}
	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update passkey usage: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update passkey usage rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PutPasskeyChallenge stores an outstanding challenge.
func (s *Store) PutPasskeyChallenge(ctx context.Context, challenge storage.PasskeyChallenge) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	challenge.UserID = strings.TrimSpace(challenge.UserID)
	challenge.TokenReference = strings.TrimSpace(challenge.TokenReference)
	challenge.Challenge = strings.TrimSpace(challenge.Challenge)
	if challenge.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if challenge.TokenReference == "" {
		return fmt.Errorf("token reference is required")
	}
	if challenge.Challenge == "" {
		return fmt.Errorf("challenge is required")
	}
	if challenge.ExpiresAt.IsZero() {
		return fmt.Errorf("expires at is required")
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkey_challenges (user_id, token_reference, challenge, expires_at, created_at)
VALUES (?, ?, ?, ?, ?)
`,
		challenge.UserID,
		challenge.TokenReference,
		challenge.Challenge,
		toMillis(challenge.ExpiresAt),
		toMillis(challenge.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put passkey challenge: %w", err)
	}
	return nil
}

// DeletePasskeyChallenge removes and returns a challenge so it cannot be replayed.
func (s *Store) DeletePasskeyChallenge(ctx context.Context, userID string, tokenReference string) (storage.PasskeyChallenge, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PasskeyChallenge{}, err
	}
	userID = strings.TrimSpace(userID)
	tokenReference = strings.TrimSpace(tokenReference)
	if userID == "" {
		return storage.PasskeyChallenge{}, fmt.Errorf("user id is required")
	}
	if tokenReference == "" {
		return storage.PasskeyChallenge{}, fmt.Errorf("token reference is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
DELETE FROM passkey_challenges
WHERE user_id = ? AND token_reference = ?
RETURNING user_id, token_reference, challenge, expires_at, created_at
`, userID, tokenReference)

	var challenge storage.PasskeyChallenge
	var expiresAt, createdAt int64
	if err := row.Scan(&challenge.UserID, &challenge.TokenReference, &challenge.Challenge, &expiresAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.PasskeyChallenge{}, storage.ErrNotFound
		}
		return storage.PasskeyChallenge{}, fmt.Errorf("delete passkey challenge: %w", err)
	}
	challenge.ExpiresAt = fromMillis(expiresAt)
	challenge.CreatedAt = fromMillis(createdAt)
	return challenge, nil
}

type passkeyScanner func(dest ...any) error

func scanPasskey(scan passkeyScanner) (storage.Passkey, error) {
	var passkey storage.Passkey
	var counter int64
	var createdAt int64
	var lastUsedAt sql.NullInt64
	if err := scan(
		&passkey.ID,
		&passkey.UserID,
		&passkey.CredentialID,
		&passkey.CredentialJSON,
		&counter,
		&createdAt,
		&lastUsedAt,
	); err != nil {
		return storage.Passkey{}, err
	}
	passkey.Counter = uint32(counter)
	passkey.CreatedAt = fromMillis(createdAt)
	passkey.LastUsedAt = fromNullMillis(lastUsedAt)
	return passkey, nil
}
