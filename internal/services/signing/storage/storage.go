package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/services/signing/document"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrExpired indicates a one-time record exists but is past its expiry.
var ErrExpired = errors.New(errors.CodeExpiredCode, "record expired")

// ErrStatusConflict indicates a compare-and-set on document status lost.
var ErrStatusConflict = errors.New(errors.CodeConflict, "document status changed concurrently")

// User is an account that can satisfy account, TOTP, and passkey checks.
type User struct {
	ID               string
	Email            string
	Name             string
	TOTPSecret       string
	TwoFactorEnabled bool
	CreatedAt        time.Time
}

// Passkey is a registered WebAuthn credential.
type Passkey struct {
	ID             string
	UserID         string
	CredentialID   string
	CredentialJSON string
	Counter        uint32
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// PasskeyChallenge is an outstanding single-use WebAuthn challenge.
type PasskeyChallenge struct {
	UserID         string
	TokenReference string
	Challenge      string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// SMSToken is a channel verification code bound to a phone number.
type SMSToken struct {
	ID          string
	Token       string
	PhoneNumber string
	RecipientID *int64
	ExpiresAt   time.Time
	Used        bool
	CreatedAt   time.Time
}

// UserStore persists accounts.
type UserStore interface {
	PutUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// PasskeyStore persists WebAuthn credentials and challenges.
type PasskeyStore interface {
	PutPasskey(ctx context.Context, passkey Passkey) error
	GetPasskeyByCredentialID(ctx context.Context, userID string, credentialID string) (Passkey, error)
	ListPasskeys(ctx context.Context, userID string) ([]Passkey, error)
	UpdatePasskeyUsage(ctx context.Context, id string, counter uint32, credentialJSON string, usedAt time.Time) error
	PutPasskeyChallenge(ctx context.Context, challenge PasskeyChallenge) error
	// DeletePasskeyChallenge removes and returns the challenge, or ErrNotFound.
	DeletePasskeyChallenge(ctx context.Context, userID string, tokenReference string) (PasskeyChallenge, error)
}

// SMSTokenStore persists channel verification codes.
type SMSTokenStore interface {
	// ReplaceSMSToken deletes unused tokens for the phone and inserts token
	// in one transaction.
	ReplaceSMSToken(ctx context.Context, token SMSToken) error
	// ConsumeSMSToken marks the matching unused token used. It returns
	// ErrNotFound when no unused token matches and ErrExpired when the match
	// has expired.
	ConsumeSMSToken(ctx context.Context, phone string, token string, now time.Time) (SMSToken, error)
	DeleteExpiredSMSTokens(ctx context.Context, now time.Time) (int64, error)
}

// Team is an owning organisation with sealing preferences.
type Team struct {
	ID                        string
	Name                      string
	IncludeSigningCertificate bool
}

// DocumentStore reads and mutates documents and their recipients.
type DocumentStore interface {
	PutTeam(ctx context.Context, team Team) error
	PutDocumentData(ctx context.Context, data document.Data) error
	GetDocumentData(ctx context.Context, id string) (document.Data, error)
	// CreateDocument inserts the document with its recipients and fields and
	// assigns their IDs.
	CreateDocument(ctx context.Context, doc document.Document) (document.Document, error)
	// GetDocument loads the document with recipients, fields, signatures, and
	// team settings.
	GetDocument(ctx context.Context, id int64) (document.Document, error)
	ListRecipients(ctx context.Context, documentID int64) ([]document.Recipient, error)
	GetRecipient(ctx context.Context, documentID int64, recipientID int64) (document.Recipient, error)
	// EnsureQRToken assigns token when the document has none and returns
	// the token in effect.
	EnsureQRToken(ctx context.Context, documentID int64, token string) (string, error)
}

// SealCommit is the atomic status transition at the end of sealing.
type SealCommit struct {
	DocumentID     int64
	ExpectedStatus document.Status
	Status         document.Status
	CompletedAt    time.Time
	DocumentDataID string
	DataRef        string
	Audit          document.AuditLogEntry
	JobID          string
	StepKey        string
	StepResult     json.RawMessage
}

// SealStore commits seals and journals pipeline steps.
type SealStore interface {
	// CommitSeal updates status, completion time, and data pointer, appends
	// the audit entry, and journals the step in one transaction. It returns
	// ErrStatusConflict when the document status is no longer ExpectedStatus.
	CommitSeal(ctx context.Context, commit SealCommit) error
	GetSealStep(ctx context.Context, jobID string, stepKey string) (json.RawMessage, error)
	PutSealStep(ctx context.Context, jobID string, stepKey string, result json.RawMessage) error
}

// RecipientAction records a recipient signing or rejecting.
type RecipientAction struct {
	DocumentID      int64
	RecipientID     int64
	Reject          bool
	RejectionReason string
	Signatures      []document.Signature
	InsertedFields  []FieldValue
	At              time.Time
	Audit           []document.AuditLogEntry
}

// FieldValue is a non-signature field value set by a recipient.
type FieldValue struct {
	FieldID    int64
	CustomText string
}

// RecipientActionStore applies recipient actions atomically.
type RecipientActionStore interface {
	ApplyRecipientAction(ctx context.Context, action RecipientAction) (document.Recipient, error)
}

// AuditLogQuery selects audit entries for one document.
type AuditLogQuery struct {
	DocumentID int64
	// Clause is an optional SQL boolean expression over audit log columns
	// with positional parameters in Params.
	Clause   string
	Params   []any
	PageSize int
}

// AuditLogStore reads and appends audit entries.
type AuditLogStore interface {
	AppendAuditLog(ctx context.Context, entry document.AuditLogEntry) error
	ListAuditLogs(ctx context.Context, query AuditLogQuery) ([]document.AuditLogEntry, error)
}

// Webhook is a subscriber endpoint for document events.
type Webhook struct {
	ID        string
	UserID    string
	TeamID    string
	URL       string
	Secret    string
	Events    []string
	Enabled   bool
	CreatedAt time.Time
}

// WebhookStore persists webhook subscriptions.
type WebhookStore interface {
	PutWebhook(ctx context.Context, hook Webhook) error
	GetWebhook(ctx context.Context, id string) (Webhook, error)
	// ListWebhooksForEvent returns enabled hooks owned by the user or team
	// that subscribe to event.
	ListWebhooksForEvent(ctx context.Context, userID string, teamID string, event string) ([]Webhook, error)
}
