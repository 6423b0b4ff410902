package auditfilter

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage/sqlite"
)

func TestParseEmpty(t *testing.T) {
	cond, err := Parse("  ")
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if cond.Clause != "" || cond.Params != nil {
		t.Fatalf("expected empty condition, got %+v", cond)
	}
}

func TestParseComparisons(t *testing.T) {
	tests := []struct {
		filter string
		clause string
		params []any
	}{
		{filter: `type = "DOCUMENT_COMPLETED"`, clause: "type = ?", params: []any{"DOCUMENT_COMPLETED"}},
		{filter: `user_id != "u1"`, clause: "user_id != ?", params: []any{"u1"}},
		{filter: `type = "A" AND transaction_id = "tx"`, clause: "(type = ? AND transaction_id = ?)", params: []any{"A", "tx"}},
		{filter: `type = "A" OR type = "B"`, clause: "(type = ? OR type = ?)", params: []any{"A", "B"}},
		{filter: `NOT type = "A"`, clause: "NOT type = ?", params: []any{"A"}},
		{
			filter: `created_at >= timestamp("2026-01-02T03:04:05Z")`,
			clause: "created_at >= ?",
			params: []any{time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			cond, err := Parse(tt.filter)
			if err != nil {
				t.Fatalf("parse filter: %v", err)
			}
			if cond.Clause != tt.clause {
				t.Fatalf("Clause = %q, want %q", cond.Clause, tt.clause)
			}
			if !reflect.DeepEqual(cond.Params, tt.params) {
				t.Fatalf("Params = %#v, want %#v", cond.Params, tt.params)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, filter := range []string{
		`unknown = "x"`,
		`created_at = duration("1h")`,
		`created_at = timestamp("not-a-time")`,
		`type = `,
	} {
		t.Run(filter, func(t *testing.T) {
			if _, err := Parse(filter); !apperrors.Is(err, apperrors.CodeValidation) {
				t.Fatalf("err = %v, want VALIDATION", err)
			}
		})
	}
}

func TestConditionQueriesStore(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "signing.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	ctx := context.Background()
	if err := store.PutDocumentData(ctx, document.Data{ID: "data-1", Data: "a/doc.pdf", InitialData: "a/doc.pdf"}); err != nil {
		t.Fatalf("put data: %v", err)
	}
	doc, err := store.CreateDocument(ctx, document.Document{UserID: "owner", Title: "Doc", DocumentDataID: "data-1"})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	user := "u1"
	entries := []document.AuditLogEntry{
		{ID: "a1", Type: document.AuditFieldInserted, TransactionID: "tx1", UserID: &user, CreatedAt: base},
		{ID: "a2", Type: document.AuditRecipientSigned, TransactionID: "tx1", UserID: &user, CreatedAt: base.Add(time.Minute)},
		{ID: "a3", Type: document.AuditDocumentCompleted, TransactionID: "tx2", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, entry := range entries {
		entry.DocumentID = doc.ID
		if err := store.AppendAuditLog(ctx, entry); err != nil {
			t.Fatalf("append audit log: %v", err)
		}
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{filter: "", want: []string{"a1", "a2", "a3"}},
		{filter: `transaction_id = "tx1"`, want: []string{"a1", "a2"}},
		{filter: `user_id = "u1" AND type = "DOCUMENT_RECIPIENT_COMPLETED"`, want: []string{"a2"}},
		{filter: `created_at > timestamp("2026-01-01T00:00:30Z")`, want: []string{"a2", "a3"}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			cond, err := Parse(tt.filter)
			if err != nil {
				t.Fatalf("parse filter: %v", err)
			}
			got, err := store.ListAuditLogs(ctx, cond.Query(doc.ID, 0))
			if err != nil {
				t.Fatalf("list audit logs: %v", err)
			}
			var ids []string
			for _, entry := range got {
				ids = append(ids, entry.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}
