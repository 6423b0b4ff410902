// Package recipientaction records a recipient signing or rejecting a
// document after checking the recipient's authorization requirements, and
// schedules sealing once the document is complete.
package recipientaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/platform/id"
	"github.com/louisbranch/docseal/internal/services/signing/authz"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/integrity"
	"github.com/louisbranch/docseal/internal/services/signing/sealing"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// Authorizer decides authorization requests.
type Authorizer interface {
	IsAuthorized(ctx context.Context, req authz.Request) bool
}

// SealQueue schedules seal jobs.
type SealQueue interface {
	Enqueue(ctx context.Context, req sealing.Request) (string, error)
}

// Service applies recipient actions.
type Service struct {
	documents  storage.DocumentStore
	actions    storage.RecipientActionStore
	authorizer Authorizer
	seals      SealQueue
	clock      func() time.Time
	logf       func(format string, args ...any)
}

// NewService returns a Service. A nil seals queue leaves sealing to an
// explicit seal request.
func NewService(documents storage.DocumentStore, actions storage.RecipientActionStore, authorizer Authorizer, seals SealQueue) *Service {
	return &Service{
		documents:  documents,
		actions:    actions,
		authorizer: authorizer,
		seals:      seals,
		clock:      time.Now,
		logf:       log.Printf,
	}
}

// Caller identifies who is acting and how they proved it.
type Caller struct {
	// UserID is empty when no session identity is present.
	UserID          string
	Proof           authz.Proof
	RequestMetadata document.RequestMetadata
}

// AuthorizeInput is an authorization check against stored requirements.
type AuthorizeInput struct {
	Operation   authz.Operation
	DocumentID  int64
	RecipientID int64
	Caller      Caller
}

// FieldInput is the value a recipient supplies for one field.
type FieldInput struct {
	FieldID        int64
	ImageBase64    *string
	TypedSignature *string
	CustomText     string
}

// SignInput is a recipient completing their fields.
type SignInput struct {
	DocumentID  int64
	RecipientID int64
	Caller      Caller
	Fields      []FieldInput
}

// RejectInput is a recipient declining the document.
type RejectInput struct {
	DocumentID  int64
	RecipientID int64
	Caller      Caller
	Reason      string
}

// Outcome is the recipient after the action and the seal job it started,
// if any.
type Outcome struct {
	Recipient document.Recipient
	SealJobID string
}

// Authorize checks in against the document and recipient requirements.
func (s *Service) Authorize(ctx context.Context, in AuthorizeInput) (bool, error) {
	doc, recipient, err := s.load(ctx, in.DocumentID, in.RecipientID)
	if err != nil {
		return false, err
	}
	return s.authorized(ctx, in.Operation, doc, recipient, in.Caller)
}

// Sign records the recipient's field values and signatures.
func (s *Service) Sign(ctx context.Context, in SignInput) (Outcome, error) {
	doc, recipient, err := s.loadPending(ctx, in.DocumentID, in.RecipientID)
	if err != nil {
		return Outcome{}, err
	}
	ok, err := s.authorized(ctx, authz.OperationAction, doc, recipient, in.Caller)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, apperrors.New(apperrors.CodeUnauthorized, "recipient is not authorized to sign")
	}

	now := s.clock().UTC()
	transactionID, err := id.NewID()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate transaction id: %w", err)
	}
	action := storage.RecipientAction{DocumentID: doc.ID, RecipientID: recipient.ID, At: now}

	fields := make(map[int64]document.Field)
	for _, field := range doc.Fields {
		if field.RecipientID == recipient.ID {
			fields[field.ID] = field
		}
	}
	provided := make(map[int64]bool, len(in.Fields))
	for _, value := range in.Fields {
		field, ok := fields[value.FieldID]
		if !ok {
			return Outcome{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("field %d does not belong to recipient %d", value.FieldID, recipient.ID))
		}
		if provided[field.ID] {
			return Outcome{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("field %d is provided twice", field.ID))
		}
		provided[field.ID] = true

		if field.Type.IsSignature() {
			sig, err := signatureFor(recipient.ID, field.ID, value, now)
			if err != nil {
				return Outcome{}, err
			}
			action.Signatures = append(action.Signatures, sig)
		} else {
			text := strings.TrimSpace(value.CustomText)
			if text == "" {
				return Outcome{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("field %d has no value", field.ID))
			}
			action.InsertedFields = append(action.InsertedFields, storage.FieldValue{FieldID: field.ID, CustomText: text})
		}
		entry, err := auditEntry(doc.ID, document.AuditFieldInserted, transactionID, in.Caller, now, map[string]any{
			"fieldId":     field.ID,
			"fieldType":   field.Type,
			"recipientId": recipient.ID,
		})
		if err != nil {
			return Outcome{}, err
		}
		action.Audit = append(action.Audit, entry)
	}
	for _, field := range doc.Fields {
		if field.RecipientID == recipient.ID && field.Required && !field.Inserted && !provided[field.ID] {
			return Outcome{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("required field %d is missing", field.ID))
		}
	}

	entry, err := auditEntry(doc.ID, document.AuditRecipientSigned, transactionID, in.Caller, now, map[string]any{
		"recipientId":    recipient.ID,
		"recipientEmail": recipient.Email,
		"recipientRole":  recipient.Role,
	})
	if err != nil {
		return Outcome{}, err
	}
	action.Audit = append(action.Audit, entry)
	return s.apply(ctx, action, in.Caller)
}

// Reject records the recipient declining the document with a reason.
func (s *Service) Reject(ctx context.Context, in RejectInput) (Outcome, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Outcome{}, apperrors.New(apperrors.CodeValidation, "rejection reason is required")
	}
	doc, recipient, err := s.loadPending(ctx, in.DocumentID, in.RecipientID)
	if err != nil {
		return Outcome{}, err
	}
	ok, err := s.authorized(ctx, authz.OperationAction, doc, recipient, in.Caller)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, apperrors.New(apperrors.CodeUnauthorized, "recipient is not authorized to reject")
	}

	now := s.clock().UTC()
	transactionID, err := id.NewID()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate transaction id: %w", err)
	}
	entry, err := auditEntry(doc.ID, document.AuditRecipientRejected, transactionID, in.Caller, now, map[string]any{
		"recipientId":    recipient.ID,
		"recipientEmail": recipient.Email,
		"reason":         reason,
	})
	if err != nil {
		return Outcome{}, err
	}
	return s.apply(ctx, storage.RecipientAction{
		DocumentID:      doc.ID,
		RecipientID:     recipient.ID,
		Reject:          true,
		RejectionReason: reason,
		At:              now,
		Audit:           []document.AuditLogEntry{entry},
	}, in.Caller)
}

func (s *Service) apply(ctx context.Context, action storage.RecipientAction, caller Caller) (Outcome, error) {
	recipient, err := s.actions.ApplyRecipientAction(ctx, action)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeConflict) {
			return Outcome{}, apperrors.Wrap(apperrors.CodeConflict, "recipient has already acted", err)
		}
		return Outcome{}, apperrors.Wrap(apperrors.CodeTransactionFailure, "apply recipient action", err)
	}
	outcome := Outcome{Recipient: recipient}

	recipients, err := s.documents.ListRecipients(ctx, action.DocumentID)
	if err != nil {
		s.logf("recipient action on document %d: list recipients: %v", action.DocumentID, err)
		return outcome, nil
	}
	if !document.IsComplete(recipients) || s.seals == nil {
		return outcome, nil
	}
	jobID, err := s.seals.Enqueue(ctx, sealing.Request{
		DocumentID:      action.DocumentID,
		RequestMetadata: caller.RequestMetadata,
	})
	if err != nil {
		s.logf("recipient action on document %d: enqueue seal: %v", action.DocumentID, err)
		return outcome, nil
	}
	outcome.SealJobID = jobID
	return outcome, nil
}

func (s *Service) load(ctx context.Context, documentID int64, recipientID int64) (document.Document, document.Recipient, error) {
	if documentID <= 0 || recipientID <= 0 {
		return document.Document{}, document.Recipient{}, apperrors.New(apperrors.CodeValidation, "document and recipient ids are required")
	}
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return document.Document{}, document.Recipient{}, fmt.Errorf("load document %d: %w", documentID, err)
	}
	for _, recipient := range doc.Recipients {
		if recipient.ID == recipientID {
			return doc, recipient, nil
		}
	}
	return document.Document{}, document.Recipient{}, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("recipient %d is not on document %d", recipientID, documentID))
}

func (s *Service) loadPending(ctx context.Context, documentID int64, recipientID int64) (document.Document, document.Recipient, error) {
	doc, recipient, err := s.load(ctx, documentID, recipientID)
	if err != nil {
		return document.Document{}, document.Recipient{}, err
	}
	if doc.Status.IsSealed() {
		return document.Document{}, document.Recipient{}, apperrors.New(apperrors.CodeAlreadySealed, fmt.Sprintf("document %d is already %s", doc.ID, doc.Status))
	}
	if doc.Status != document.StatusPending {
		return document.Document{}, document.Recipient{}, apperrors.New(apperrors.CodeNotReady, fmt.Sprintf("document %d is %s", doc.ID, doc.Status))
	}
	if recipient.SigningStatus != document.SigningStatusNotSigned {
		return document.Document{}, document.Recipient{}, apperrors.New(apperrors.CodeConflict, "recipient has already acted")
	}
	return doc, recipient, nil
}

func (s *Service) authorized(ctx context.Context, op authz.Operation, doc document.Document, recipient document.Recipient, caller Caller) (bool, error) {
	docAuth, err := authz.ParseDocumentAuthOptions(doc.AuthOptions)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeValidation, "document auth options", err)
	}
	recipientAuth, err := authz.ParseRecipientAuthOptions(recipient.AuthOptions)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeValidation, "recipient auth options", err)
	}
	return s.authorizer.IsAuthorized(ctx, authz.Request{
		Operation:      op,
		DocumentAuth:   docAuth,
		RecipientAuth:  recipientAuth,
		RecipientEmail: recipient.Email,
		CallerUserID:   caller.UserID,
		Proof:          caller.Proof,
	}), nil
}

func signatureFor(recipientID int64, fieldID int64, value FieldInput, now time.Time) (document.Signature, error) {
	image := trimmedOrNil(value.ImageBase64)
	typed := trimmedOrNil(value.TypedSignature)
	if image == nil && typed == nil {
		return document.Signature{}, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("signature field %d has no signature", fieldID))
	}
	hash, err := integrity.HashSignature(integrity.SignatureInput{
		RecipientID:    recipientID,
		FieldID:        fieldID,
		ImageBase64:    image,
		TypedSignature: typed,
		CreatedAt:      now,
	})
	if err != nil {
		return document.Signature{}, fmt.Errorf("hash signature: %w", err)
	}
	return document.Signature{
		FieldID:        fieldID,
		RecipientID:    recipientID,
		ImageBase64:    image,
		TypedSignature: typed,
		CreatedAt:      now,
		Hash:           hash,
	}, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func auditEntry(documentID int64, kind string, transactionID string, caller Caller, at time.Time, data map[string]any) (document.AuditLogEntry, error) {
	entryID, err := id.NewID()
	if err != nil {
		return document.AuditLogEntry{}, fmt.Errorf("generate audit id: %w", err)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return document.AuditLogEntry{}, fmt.Errorf("encode audit data: %w", err)
	}
	entry := document.AuditLogEntry{
		ID:            entryID,
		DocumentID:    documentID,
		Type:          kind,
		TransactionID: transactionID,
		Data:          encoded,
		IPAddress:     caller.RequestMetadata.IPAddress,
		UserAgent:     caller.RequestMetadata.UserAgent,
		CreatedAt:     at,
	}
	if userID := strings.TrimSpace(caller.UserID); userID != "" {
		entry.UserID = &userID
	}
	return entry, nil
}
