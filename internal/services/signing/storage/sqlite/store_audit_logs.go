package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

const defaultAuditPageSize = 100

// AppendAuditLog inserts one audit entry.
func (s *Store) AppendAuditLog(ctx context.Context, entry document.AuditLogEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return appendAuditLog(ctx, s.sqlDB, entry)
}

// ListAuditLogs lists a document's audit entries oldest first.
func (s *Store) ListAuditLogs(ctx context.Context, query storage.AuditLogQuery) ([]document.AuditLogEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if query.DocumentID <= 0 {
		return nil, fmt.Errorf("document id is required")
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultAuditPageSize
	}

	sqlQuery := `
SELECT id, document_id, type, transaction_id, user_id, data, ip_address, user_agent, created_at
FROM document_audit_logs
WHERE document_id = ?`
	args := []any{query.DocumentID}
	if clause := strings.TrimSpace(query.Clause); clause != "" {
		sqlQuery += " AND (" + clause + ")"
		args = append(args, query.Params...)
	}
	sqlQuery += "\nORDER BY created_at ASC, id ASC\nLIMIT ?"
	args = append(args, pageSize)

	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []document.AuditLogEntry
	for rows.Next() {
		var entry document.AuditLogEntry
		var userID sql.NullString
		var data string
		var createdAt int64
		if err := rows.Scan(
			&entry.ID,
			&entry.DocumentID,
			&entry.Type,
			&entry.TransactionID,
			&userID,
			&data,
			&entry.IPAddress,
			&entry.UserAgent,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if userID.Valid {
			value := userID.String
			entry.UserID = &value
		}
		entry.Data = json.RawMessage(data)
		entry.CreatedAt = fromMillis(createdAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return entries, nil
}

func appendAuditLog(ctx context.Context, target execContexter, entry document.AuditLogEntry) error {
	entry.ID = strings.TrimSpace(entry.ID)
	entry.Type = strings.TrimSpace(entry.Type)
	entry.TransactionID = strings.TrimSpace(entry.TransactionID)
	if entry.ID == "" {
		return fmt.Errorf("audit log id is required")
	}
	if entry.DocumentID <= 0 {
		return fmt.Errorf("audit log document id is required")
	}
	if entry.Type == "" {
		return fmt.Errorf("audit log type is required")
	}
	if entry.TransactionID == "" {
		return fmt.Errorf("audit log transaction id is required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var userID sql.NullString
	if entry.UserID != nil {
		userID = sql.NullString{String: *entry.UserID, Valid: true}
	}

	if _, err := target.ExecContext(ctx, `
INSERT INTO document_audit_logs (
	id, document_id, type, transaction_id, user_id, data, ip_address, user_agent, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		entry.ID,
		entry.DocumentID,
		entry.Type,
		entry.TransactionID,
		userID,
		jsonOrEmptyObject(entry.Data),
		entry.IPAddress,
		entry.UserAgent,
		toMillis(entry.CreatedAt),
	); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}
