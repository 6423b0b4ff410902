package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signing.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func seedDocument(t *testing.T, store *Store) document.Document {
	t.Helper()
	ctx := context.Background()
	if err := store.PutDocumentData(ctx, document.Data{ID: "data-1", Data: "blob/original.pdf"}); err != nil {
		t.Fatalf("put document data: %v", err)
	}
	typed := "Ada Lovelace"
	doc, err := store.CreateDocument(ctx, document.Document{
		UserID:         "user-owner",
		Title:          "Lease.pdf",
		Status:         document.StatusPending,
		DocumentDataID: "data-1",
		Recipients: []document.Recipient{
			{Email: "Ada@Example.com", Name: "Ada", Role: document.RoleSigner, SigningStatus: document.SigningStatusSigned},
			{Email: "cc@example.com", Name: "Copy", Role: document.RoleCC},
		},
		Fields: []document.Field{
			{RecipientID: 0, Type: document.FieldTypeSignature, Page: 1, PositionX: 10, PositionY: 20, Width: 20, Height: 5, Inserted: true, Required: true,
				Signature: &document.Signature{TypedSignature: &typed, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Hash: "abc"}},
			{RecipientID: 0, Type: document.FieldTypeName, Page: 1, Inserted: true, Required: true, CustomText: "Ada"},
		},
	})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	return doc
}

func TestUserRoundTripAndLookupByEmail(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutUser(ctx, storage.User{ID: "u1", Email: "Ada@Example.com", TOTPSecret: "SECRET", TwoFactorEnabled: true}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	got, err := store.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("get user by email: %v", err)
	}
	if got.ID != "u1" || !got.TwoFactorEnabled || got.TOTPSecret != "SECRET" {
		t.Fatalf("user = %+v", got)
	}
	if _, err := store.GetUser(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPasskeyChallengeDeletesOnce(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Minute).UTC().Truncate(time.Millisecond)
	if err := store.PutPasskeyChallenge(ctx, storage.PasskeyChallenge{
		UserID: "u1", TokenReference: "ref-1", Challenge: "challenge-bytes", ExpiresAt: expires,
	}); err != nil {
		t.Fatalf("put challenge: %v", err)
	}
	got, err := store.DeletePasskeyChallenge(ctx, "u1", "ref-1")
	if err != nil {
		t.Fatalf("delete challenge: %v", err)
	}
	if got.Challenge != "challenge-bytes" || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("challenge = %+v", got)
	}
	if _, err := store.DeletePasskeyChallenge(ctx, "u1", "ref-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
}

func TestPasskeyUsageUpdate(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutUser(ctx, storage.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("put user: %v", err)
	}
	if err := store.PutPasskey(ctx, storage.Passkey{ID: "pk1", UserID: "u1", CredentialID: "cred", CredentialJSON: `{}`}); err != nil {
		t.Fatalf("put passkey: %v", err)
	}
	used := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	if err := store.UpdatePasskeyUsage(ctx, "pk1", 7, "", used); err != nil {
		t.Fatalf("update usage: %v", err)
	}
	got, err := store.GetPasskeyByCredentialID(ctx, "u1", "cred")
	if err != nil {
		t.Fatalf("get passkey: %v", err)
	}
	if got.Counter != 7 || got.LastUsedAt == nil || !got.LastUsedAt.Equal(used) {
		t.Fatalf("passkey = %+v", got)
	}
	if _, err := store.GetPasskeyByCredentialID(ctx, "other-user", "cred"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected credential bound to user, got %v", err)
	}
}

func TestSMSTokenReplaceAndConsume(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	phone := "+12025550123"

	if err := store.ReplaceSMSToken(ctx, storage.SMSToken{ID: "t1", Token: "111222", PhoneNumber: phone, ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}); err != nil {
		t.Fatalf("replace first: %v", err)
	}
	if err := store.ReplaceSMSToken(ctx, storage.SMSToken{ID: "t2", Token: "333444", PhoneNumber: phone, ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("replace second: %v", err)
	}

	if _, err := store.ConsumeSMSToken(ctx, phone, "111222", now); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected superseded token to be gone, got %v", err)
	}
	got, err := store.ConsumeSMSToken(ctx, phone, "333444", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !got.Used || got.ID != "t2" {
		t.Fatalf("token = %+v", got)
	}
	if _, err := store.ConsumeSMSToken(ctx, phone, "333444", now.Add(time.Minute)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected single use, got %v", err)
	}
}

func TestSMSTokenExpired(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.ReplaceSMSToken(ctx, storage.SMSToken{ID: "t1", Token: "123123", PhoneNumber: "+15550000000", ExpiresAt: now}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := store.ConsumeSMSToken(ctx, "+15550000000", "123123", now.Add(time.Millisecond)); !errors.Is(err, storage.ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	removed, err := store.DeleteExpiredSMSTokens(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
}

func TestCreateAndGetDocument(t *testing.T) {
	store := openTempStore(t)
	doc := seedDocument(t, store)

	got, err := store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Title != "Lease.pdf" || got.Status != document.StatusPending {
		t.Fatalf("document = %+v", got)
	}
	if !got.Team.IncludeSigningCertificate {
		t.Fatal("expected certificate default without team")
	}
	if len(got.Recipients) != 2 || got.Recipients[0].Email != "ada@example.com" {
		t.Fatalf("recipients = %+v", got.Recipients)
	}
	if len(got.Fields) != 2 {
		t.Fatalf("fields = %+v", got.Fields)
	}
	sig := got.Fields[0].Signature
	if sig == nil || sig.TypedSignature == nil || *sig.TypedSignature != "Ada Lovelace" || sig.Hash != "abc" {
		t.Fatalf("signature = %+v", sig)
	}
	if got.Fields[0].RecipientID != got.Recipients[0].ID {
		t.Fatalf("field recipient = %d, want %d", got.Fields[0].RecipientID, got.Recipients[0].ID)
	}
}

func TestTeamSettingsLoaded(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutTeam(ctx, storage.Team{ID: "team-1", Name: "Acme", IncludeSigningCertificate: false}); err != nil {
		t.Fatalf("put team: %v", err)
	}
	if err := store.PutDocumentData(ctx, document.Data{ID: "d", Data: "ref"}); err != nil {
		t.Fatalf("put data: %v", err)
	}
	doc, err := store.CreateDocument(ctx, document.Document{UserID: "u", TeamID: "team-1", Title: "T", DocumentDataID: "d"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Team.Name != "Acme" || got.Team.IncludeSigningCertificate {
		t.Fatalf("team = %+v", got.Team)
	}
}

func TestEnsureQRTokenOnlyAssignsOnce(t *testing.T) {
	store := openTempStore(t)
	doc := seedDocument(t, store)
	ctx := context.Background()

	first, err := store.EnsureQRToken(ctx, doc.ID, "qr_first")
	if err != nil {
		t.Fatalf("ensure first: %v", err)
	}
	second, err := store.EnsureQRToken(ctx, doc.ID, "qr_second")
	if err != nil {
		t.Fatalf("ensure second: %v", err)
	}
	if first != "qr_first" || second != "qr_first" {
		t.Fatalf("tokens = %q, %q", first, second)
	}
}

func TestCommitSealIsAtomicAndCompareAndSet(t *testing.T) {
	store := openTempStore(t)
	doc := seedDocument(t, store)
	ctx := context.Background()
	completedAt := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	commit := storage.SealCommit{
		DocumentID:     doc.ID,
		ExpectedStatus: document.StatusPending,
		Status:         document.StatusCompleted,
		CompletedAt:    completedAt,
		DocumentDataID: "data-1",
		DataRef:        "blob/Lease_signed.pdf",
		Audit: document.AuditLogEntry{
			ID:            "audit-1",
			Type:          document.AuditDocumentCompleted,
			TransactionID: "tx-1",
			Data:          json.RawMessage(`{"transactionId":"tx-1"}`),
		},
		JobID:      "job-1",
		StepKey:    "update-document",
		StepResult: json.RawMessage(`{"status":"COMPLETED"}`),
	}
	if err := store.CommitSeal(ctx, commit); err != nil {
		t.Fatalf("commit seal: %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != document.StatusCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Fatalf("document = %+v", got)
	}
	data, err := store.GetDocumentData(ctx, "data-1")
	if err != nil {
		t.Fatalf("get data: %v", err)
	}
	if data.Data != "blob/Lease_signed.pdf" || data.InitialData != "blob/original.pdf" {
		t.Fatalf("data = %+v", data)
	}
	step, err := store.GetSealStep(ctx, "job-1", "update-document")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if string(step) != `{"status":"COMPLETED"}` {
		t.Fatalf("step = %s", step)
	}

	commit.Audit.ID = "audit-2"
	if err := store.CommitSeal(ctx, commit); !errors.Is(err, storage.ErrStatusConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	logs, err := store.ListAuditLogs(ctx, storage.AuditLogQuery{DocumentID: doc.ID})
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("audit logs = %d, want 1 after losing commit", len(logs))
	}
}

func TestCommitSealRollsBackOnAuditFailure(t *testing.T) {
	store := openTempStore(t)
	doc := seedDocument(t, store)
	ctx := context.Background()

	err := store.CommitSeal(ctx, storage.SealCommit{
		DocumentID:     doc.ID,
		ExpectedStatus: document.StatusPending,
		Status:         document.StatusCompleted,
		DocumentDataID: "data-1",
		DataRef:        "blob/new.pdf",
		Audit:          document.AuditLogEntry{Type: document.AuditDocumentCompleted},
	})
	if err == nil {
		t.Fatal("expected audit validation failure")
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != document.StatusPending {
		t.Fatalf("status = %s, want unchanged", got.Status)
	}
	data, _ := store.GetDocumentData(ctx, "data-1")
	if data.Data != "blob/original.pdf" {
		t.Fatalf("data pointer changed to %q", data.Data)
	}
}

func TestSealStepKeepsFirstResult(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutSealStep(ctx, "job", "get-document-status", json.RawMessage(`"PENDING"`)); err != nil {
		t.Fatalf("put step: %v", err)
	}
	if err := store.PutSealStep(ctx, "job", "get-document-status", json.RawMessage(`"COMPLETED"`)); err != nil {
		t.Fatalf("put step again: %v", err)
	}
	got, err := store.GetSealStep(ctx, "job", "get-document-status")
	if err != nil {
		t.Fatalf("get step: %v", err)
	}
	if string(got) != `"PENDING"` {
		t.Fatalf("step = %s", got)
	}
	if _, err := store.GetSealStep(ctx, "job", "other"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyRecipientAction(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	if err := store.PutDocumentData(ctx, document.Data{ID: "d", Data: "ref"}); err != nil {
		t.Fatalf("put data: %v", err)
	}
	doc, err := store.CreateDocument(ctx, document.Document{
		UserID: "u", Title: "T", DocumentDataID: "d",
		Recipients: []document.Recipient{{Email: "s@example.com", Role: document.RoleSigner}},
		Fields: []document.Field{
			{RecipientID: 0, Type: document.FieldTypeSignature, Required: true},
			{RecipientID: 0, Type: document.FieldTypeText, Required: true},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	recipientID := doc.Recipients[0].ID
	typed := "S"
	at := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	recipient, err := store.ApplyRecipientAction(ctx, storage.RecipientAction{
		DocumentID:     doc.ID,
		RecipientID:    recipientID,
		Signatures:     []document.Signature{{FieldID: doc.Fields[0].ID, TypedSignature: &typed, CreatedAt: at, Hash: "h"}},
		InsertedFields: []storage.FieldValue{{FieldID: doc.Fields[1].ID, CustomText: "hello"}},
		At:             at,
		Audit: []document.AuditLogEntry{
			{ID: "a1", Type: document.AuditRecipientSigned, TransactionID: "tx"},
		},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if recipient.SigningStatus != document.SigningStatusSigned {
		t.Fatalf("recipient = %+v", recipient)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if document.FieldsContainUnsignedRequiredField(got.Fields, got.Recipients) {
		t.Fatalf("expected all fields satisfied: %+v", got.Fields)
	}
	if got.Fields[1].CustomText != "hello" {
		t.Fatalf("custom text = %q", got.Fields[1].CustomText)
	}

	if _, err := store.ApplyRecipientAction(ctx, storage.RecipientAction{DocumentID: doc.ID, RecipientID: recipientID, Reject: true}); !errors.Is(err, storage.ErrStatusConflict) {
		t.Fatalf("expected conflict on second action, got %v", err)
	}
}

func TestListAuditLogsAppliesClause(t *testing.T) {
	store := openTempStore(t)
	doc := seedDocument(t, store)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, typ := range []string{document.AuditRecipientSigned, document.AuditSealRequested, document.AuditDocumentCompleted} {
		if err := store.AppendAuditLog(ctx, document.AuditLogEntry{
			ID: "a" + string(rune('0'+i)), DocumentID: doc.ID, Type: typ, TransactionID: "tx", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	logs, err := store.ListAuditLogs(ctx, storage.AuditLogQuery{DocumentID: doc.ID, Clause: "type = ?", Params: []any{document.AuditDocumentCompleted}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(logs) != 1 || logs[0].Type != document.AuditDocumentCompleted {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestWebhooksForEvent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	hooks := []storage.Webhook{
		{ID: "w1", UserID: "u1", URL: "https://a.example/hook", Events: []string{"DOCUMENT_COMPLETED"}, Enabled: true},
		{ID: "w2", UserID: "u1", URL: "https://b.example/hook", Events: []string{"DOCUMENT_REJECTED"}, Enabled: true},
		{ID: "w3", UserID: "u1", URL: "https://c.example/hook", Events: []string{"DOCUMENT_COMPLETED"}, Enabled: false},
		{ID: "w4", TeamID: "t1", URL: "https://d.example/hook", Events: []string{"DOCUMENT_COMPLETED"}, Enabled: true},
	}
	for _, hook := range hooks {
		if err := store.PutWebhook(ctx, hook); err != nil {
			t.Fatalf("put webhook %s: %v", hook.ID, err)
		}
	}
	got, err := store.ListWebhooksForEvent(ctx, "u1", "", "DOCUMENT_COMPLETED")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "w1" {
		t.Fatalf("user hooks = %+v", got)
	}
	got, err = store.ListWebhooksForEvent(ctx, "u1", "t1", "DOCUMENT_COMPLETED")
	if err != nil {
		t.Fatalf("list team: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("team hooks = %+v", got)
	}
}
