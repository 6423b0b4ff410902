// Package document defines the document, recipient, and field records that
// the signing subsystem reads and seals.
package document

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is the lifecycle state of a document.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
)

// IsSealed reports whether the status is terminal.
func (s Status) IsSealed() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Role is a recipient's part in the workflow.
type Role string

const (
	RoleSigner    Role = "SIGNER"
	RoleApprover  Role = "APPROVER"
	RoleViewer    Role = "VIEWER"
	RoleCC        Role = "CC"
	RoleAssistant Role = "ASSISTANT"
)

// SigningStatus is a recipient's progress.
type SigningStatus string

const (
	SigningStatusNotSigned SigningStatus = "NOT_SIGNED"
	SigningStatusSigned    SigningStatus = "SIGNED"
	SigningStatusRejected  SigningStatus = "REJECTED"
)

// FieldType identifies what a field captures.
type FieldType string

const (
	FieldTypeSignature     FieldType = "SIGNATURE"
	FieldTypeFreeSignature FieldType = "FREE_SIGNATURE"
	FieldTypeInitials      FieldType = "INITIALS"
	FieldTypeName          FieldType = "NAME"
	FieldTypeEmail         FieldType = "EMAIL"
	FieldTypeDate          FieldType = "DATE"
	FieldTypeText          FieldType = "TEXT"
	FieldTypeNumber        FieldType = "NUMBER"
	FieldTypeCheckbox      FieldType = "CHECKBOX"
	FieldTypeRadio         FieldType = "RADIO"
	FieldTypeDropdown      FieldType = "DROPDOWN"
)

// IsSignature reports whether the field holds a signature record.
func (t FieldType) IsSignature() bool {
	return t == FieldTypeSignature || t == FieldTypeFreeSignature
}

// TeamSettings are the owning team's sealing preferences.
type TeamSettings struct {
	Name                      string
	IncludeSigningCertificate bool
}

// Document is a document with its recipients and fields loaded.
type Document struct {
	ID                      int64
	UserID                  string
	TeamID                  string
	Title                   string
	Status                  Status
	DocumentDataID          string
	QRToken                 string
	UseLegacyFieldInsertion bool
	AuthOptions             json.RawMessage
	CompletedAt             *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time
	Team                    TeamSettings
	Recipients              []Recipient
	Fields                  []Field
}

// Data points at the mutable and initial blob revisions of a document.
type Data struct {
	ID          string
	Data        string
	InitialData string
}

// Recipient is a party attached to a document.
type Recipient struct {
	ID              int64
	DocumentID      int64
	Email           string
	Name            string
	Phone           string
	NationalID      string
	Role            Role
	SigningStatus   SigningStatus
	RejectionReason string
	SignedAt        *time.Time
	AuthOptions     json.RawMessage
}

// Field is a placement on a document page owned by one recipient.
//
// Positions and sizes are percentages of the page dimensions.
type Field struct {
	ID          int64
	DocumentID  int64
	RecipientID int64
	Type        FieldType
	Page        int
	PositionX   float64
	PositionY   float64
	Width       float64
	Height      float64
	CustomText  string
	Inserted    bool
	Required    bool
	Signature   *Signature
}

// Signature is the content captured for a signature field.
type Signature struct {
	ID             int64
	FieldID        int64
	RecipientID    int64
	ImageBase64    *string
	TypedSignature *string
	CreatedAt      time.Time
	Hash           string
}

// AuditLogEntry is one immutable lifecycle record.
type AuditLogEntry struct {
	ID            string
	DocumentID    int64
	Type          string
	TransactionID string
	UserID        *string
	Data          json.RawMessage
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
}

// Audit log types written by the signing subsystem.
const (
	AuditDocumentCompleted = "DOCUMENT_COMPLETED"
	AuditRecipientSigned   = "DOCUMENT_RECIPIENT_COMPLETED"
	AuditRecipientRejected = "DOCUMENT_RECIPIENT_REJECTED"
	AuditFieldInserted     = "DOCUMENT_FIELD_INSERTED"
	AuditSealRequested     = "DOCUMENT_SEAL_REQUESTED"
)

// RequestMetadata identifies the client behind an action.
type RequestMetadata struct {
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// TitleStem returns title without a trailing ".pdf" extension.
func TitleStem(title string) string {
	title = strings.TrimSpace(title)
	if len(title) >= 4 && strings.EqualFold(title[len(title)-4:], ".pdf") {
		title = title[:len(title)-4]
	}
	if title == "" {
		return "document"
	}
	return title
}

// SealedFileName names the sealed artifact by outcome.
func SealedFileName(title string, rejected bool) string {
	if rejected {
		return TitleStem(title) + "_rejected.pdf"
	}
	return TitleStem(title) + "_signed.pdf"
}
