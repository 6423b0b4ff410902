package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// CommitSeal applies the terminal status transition in one transaction.
func (s *Store) CommitSeal(ctx context.Context, commit storage.SealCommit) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if commit.DocumentID <= 0 {
		return fmt.Errorf("document id is required")
	}
	if !commit.Status.IsSealed() {
		return fmt.Errorf("status %q is not terminal", commit.Status)
	}
	if strings.TrimSpace(commit.DocumentDataID) == "" || strings.TrimSpace(commit.DataRef) == "" {
		return fmt.Errorf("document data pointer is required")
	}
	if commit.CompletedAt.IsZero() {
		commit.CompletedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start seal transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
UPDATE documents
SET status = ?, completed_at = ?, updated_at = ?
WHERE id = ? AND status = ?
`,
		string(commit.Status),
		toMillis(commit.CompletedAt),
		toMillis(commit.CompletedAt),
		commit.DocumentID,
		string(commit.ExpectedStatus),
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrStatusConflict
	}

	result, err = tx.ExecContext(ctx, `
UPDATE document_data SET data = ? WHERE id = ?
`, commit.DataRef, commit.DocumentDataID)
	if err != nil {
		return fmt.Errorf("update document data: %w", err)
	}
	if rowsAffected, err = result.RowsAffected(); err != nil {
		return fmt.Errorf("update document data rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	commit.Audit.DocumentID = commit.DocumentID
	if err := appendAuditLog(ctx, tx, commit.Audit); err != nil {
		return err
	}

	if strings.TrimSpace(commit.JobID) != "" && strings.TrimSpace(commit.StepKey) != "" {
		if err := putSealStep(ctx, tx, commit.JobID, commit.StepKey, commit.StepResult); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seal transaction: %w", err)
	}
	return nil
}

// GetSealStep returns the journaled result of a pipeline step.
func (s *Store) GetSealStep(ctx context.Context, jobID string, stepKey string) (json.RawMessage, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	jobID = strings.TrimSpace(jobID)
	stepKey = strings.TrimSpace(stepKey)
	if jobID == "" || stepKey == "" {
		return nil, fmt.Errorf("job id and step key are required")
	}
	var result string
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT result FROM seal_job_steps WHERE job_id = ? AND step_key = ?
`, jobID, stepKey).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get seal step: %w", err)
	}
	return json.RawMessage(result), nil
}

// PutSealStep journals a step result; an existing entry is kept.
func (s *Store) PutSealStep(ctx context.Context, jobID string, stepKey string, result json.RawMessage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return putSealStep(ctx, s.sqlDB, jobID, stepKey, result)
}

func putSealStep(ctx context.Context, target execContexter, jobID string, stepKey string, result json.RawMessage) error {
	jobID = strings.TrimSpace(jobID)
	stepKey = strings.TrimSpace(stepKey)
	if jobID == "" || stepKey == "" {
		return fmt.Errorf("job id and step key are required")
	}
	value := strings.TrimSpace(string(result))
	if value == "" {
		value = "null"
	}
	if _, err := target.ExecContext(ctx, `
INSERT INTO seal_job_steps (job_id, step_key, result, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(job_id, step_key) DO NOTHING
`, jobID, stepKey, value, toMillis(time.Now())); err != nil {
		return fmt.Errorf("put seal step: %w", err)
	}
	return nil
}

// ApplyRecipientAction records a recipient's signatures or rejection.
func (s *Store) ApplyRecipientAction(ctx context.Context, action storage.RecipientAction) (document.Recipient, error) {
	if err := s.ready(ctx); err != nil {
		return document.Recipient{}, err
	}
	if action.DocumentID <= 0 || action.RecipientID <= 0 {
		return document.Recipient{}, fmt.Errorf("document and recipient ids are required")
	}
	if action.At.IsZero() {
		action.At = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return document.Recipient{}, fmt.Errorf("start recipient transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	status := document.SigningStatusSigned
	reason := ""
	if action.Reject {
		status = document.SigningStatusRejected
		reason = strings.TrimSpace(action.RejectionReason)
	}
	result, err := tx.ExecContext(ctx, `
UPDATE recipients
SET signing_status = ?, rejection_reason = ?, signed_at = ?
WHERE id = ? AND document_id = ? AND signing_status = ?
`,
		string(status),
		reason,
		toMillis(action.At),
		action.RecipientID,
		action.DocumentID,
		string(document.SigningStatusNotSigned),
	)
	if err != nil {
		return document.Recipient{}, fmt.Errorf("update recipient status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return document.Recipient{}, fmt.Errorf("update recipient status rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return document.Recipient{}, storage.ErrStatusConflict
	}

	for _, value := range action.InsertedFields {
		if err := markFieldInserted(ctx, tx, action.RecipientID, value.FieldID, value.CustomText); err != nil {
			return document.Recipient{}, err
		}
	}
	for _, sig := range action.Signatures {
		sig.RecipientID = action.RecipientID
		if err := markFieldInserted(ctx, tx, action.RecipientID, sig.FieldID, ""); err != nil {
			return document.Recipient{}, err
		}
		if _, err := insertSignature(ctx, tx, sig); err != nil {
			return document.Recipient{}, err
		}
	}
	for _, entry := range action.Audit {
		entry.DocumentID = action.DocumentID
		if err := appendAuditLog(ctx, tx, entry); err != nil {
			return document.Recipient{}, err
		}
	}

	row := tx.QueryRowContext(ctx, `
SELECT id, document_id, email, name, phone, national_id, role, signing_status,
	rejection_reason, signed_at, auth_options
FROM recipients
WHERE id = ?
`, action.RecipientID)
	recipient, err := scanRecipient(row.Scan)
	if err != nil {
		return document.Recipient{}, fmt.Errorf("reload recipient: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return document.Recipient{}, fmt.Errorf("commit recipient transaction: %w", err)
	}
	return recipient, nil
}

func markFieldInserted(ctx context.Context, target execContexter, recipientID int64, fieldID int64, customText string) error {
	result, err := target.ExecContext(ctx, `
UPDATE fields
SET inserted = 1, custom_text = CASE WHEN ? <> '' THEN ? ELSE custom_text END
WHERE id = ? AND recipient_id = ?
`, customText, customText, fieldID, recipientID)
	if err != nil {
		return fmt.Errorf("mark field inserted: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark field inserted rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
