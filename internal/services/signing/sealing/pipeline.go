// Package sealing finalizes a fully signed or rejected document: it stamps
// and signs the PDF, stores the artifact, commits the terminal status, and
// schedules the completion email and webhook.
package sealing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/platform/id"
	platformotel "github.com/louisbranch/docseal/internal/platform/otel"
	"github.com/louisbranch/docseal/internal/services/signing/blob"
	"github.com/louisbranch/docseal/internal/services/signing/certification"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/pdf"
	"github.com/louisbranch/docseal/internal/services/signing/signer"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
	"github.com/louisbranch/docseal/internal/services/signing/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Request asks for one document to be sealed.
type Request struct {
	// JobID identifies the job run; steps are journaled under it. An empty
	// JobID runs every step without journaling.
	JobID           string
	DocumentID      int64
	SendEmail       *bool
	IsResealing     bool
	RequestMetadata document.RequestMetadata
}

func (r Request) sendEmail() bool {
	return r.SendEmail == nil || *r.SendEmail
}

// Result is the outcome of a seal run.
type Result struct {
	Status  document.Status
	DataRef string
	// Skipped is set when the status commit was already journaled by an
	// earlier run of the same job.
	Skipped bool
}

// CertificationRenderer renders the custom certification page.
type CertificationRenderer interface {
	Render(in certification.Input) ([]byte, error)
}

// StandardCertificateSource produces the standard signing certificate
// appended before the custom certification page.
type StandardCertificateSource interface {
	StandardCertificate(ctx context.Context, doc document.Document) ([]byte, error)
}

// WebhookTrigger schedules webhook deliveries.
type WebhookTrigger interface {
	Trigger(ctx context.Context, event webhook.Event) error
}

// EmailQueue schedules completion emails.
type EmailQueue interface {
	EnqueueCompletedEmail(ctx context.Context, documentID int64, dedupeKey string, meta document.RequestMetadata) error
}

// Deps are the collaborators of a Pipeline. Documents, Seals, Blobs, PDF,
// and Signer are required.
type Deps struct {
	Documents           storage.DocumentStore
	Seals               storage.SealStore
	Blobs               blob.Store
	PDF                 pdf.Engine
	Signer              signer.Signer
	Certification       CertificationRenderer
	StandardCertificate StandardCertificateSource
	Webhooks            WebhookTrigger
	Emails              EmailQueue
}

// Pipeline seals documents.
type Pipeline struct {
	documents storage.DocumentStore
	seals     storage.SealStore
	blobs     blob.Store
	engine    pdf.Engine
	signer    signer.Signer
	certs     CertificationRenderer
	standard  StandardCertificateSource
	webhooks  WebhookTrigger
	emails    EmailQueue
	group     singleflight.Group
	tracer    trace.Tracer
	clock     func() time.Time
	logf      func(format string, args ...any)
}

// New builds a Pipeline from deps.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Documents == nil:
		return nil, fmt.Errorf("document store is required")
	case deps.Seals == nil:
		return nil, fmt.Errorf("seal store is required")
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.PDF == nil:
		return nil, fmt.Errorf("pdf engine is required")
	case deps.Signer == nil:
		return nil, fmt.Errorf("signer is required")
	}
	certs := deps.Certification
	if certs == nil {
		certs = certification.NewGenerator()
	}
	return &Pipeline{
		documents: deps.Documents,
		seals:     deps.Seals,
		blobs:     deps.Blobs,
		engine:    deps.PDF,
		signer:    deps.Signer,
		certs:     certs,
		standard:  deps.StandardCertificate,
		webhooks:  deps.Webhooks,
		emails:    deps.Emails,
		tracer:    platformotel.Tracer("sealing"),
		clock:     time.Now,
		logf:      log.Printf,
	}, nil
}

// Seal runs the pipeline for req.DocumentID. Concurrent calls for the same
// document in this process share one run.
func (p *Pipeline) Seal(ctx context.Context, req Request) (Result, error) {
	if req.DocumentID <= 0 {
		return Result{}, apperrors.New(apperrors.CodeValidation, "document id is required")
	}
	req.JobID = strings.TrimSpace(req.JobID)
	value, err, _ := p.group.Do(strconv.FormatInt(req.DocumentID, 10), func() (any, error) {
		return p.seal(ctx, req)
	})
	if err != nil {
		return Result{}, err
	}
	return value.(Result), nil
}

type commitResult struct {
	Status  document.Status `json:"status"`
	DataRef string          `json:"dataRef"`
}

func (p *Pipeline) seal(ctx context.Context, req Request) (result Result, err error) {
	ctx, span := p.tracer.Start(ctx, "seal.document", trace.WithAttributes(
		attribute.Int64("document.id", req.DocumentID),
		attribute.String("seal.job_id", req.JobID),
		attribute.Bool("seal.resealing", req.IsResealing),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	doc, err := p.documents.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return Result{}, fmt.Errorf("load document %d: %w", req.DocumentID, err)
	}
	if !document.IsComplete(doc.Recipients) {
		return Result{}, apperrors.New(apperrors.CodeNotReady, "document not complete")
	}

	priorStatus, err := runStep(ctx, p, req.JobID, StepGetDocumentStatus, func(context.Context) (document.Status, error) {
		return doc.Status, nil
	})
	if err != nil {
		return Result{}, err
	}
	dataID, err := runStep(ctx, p, req.JobID, StepGetDocumentDataID, func(context.Context) (string, error) {
		return doc.DocumentDataID, nil
	})
	if err != nil {
		return Result{}, err
	}
	committed, commitJournaled, err := p.journaled(ctx, req.JobID, StepUpdateDocument)
	if err != nil {
		return Result{}, err
	}
	// The journaled status can predate another job's commit, so a run that
	// still has to commit checks the live status.
	if doc.Status.IsSealed() && !req.IsResealing && !commitJournaled {
		return Result{}, alreadySealed(doc.ID, doc.Status)
	}

	data, err := p.documents.GetDocumentData(ctx, dataID)
	if err != nil {
		return Result{}, fmt.Errorf("load document data %s: %w", dataID, err)
	}

	recipients, err := p.documents.ListRecipients(ctx, doc.ID)
	if err != nil {
		return Result{}, fmt.Errorf("list recipients of document %d: %w", doc.ID, err)
	}
	signers := document.NonCCRecipients(recipients)
	rejectedBy, rejected := document.RejectedRecipient(signers)
	reason := strings.TrimSpace(rejectedBy.RejectionReason)

	if !rejected && document.FieldsContainUnsignedRequiredField(doc.Fields, recipients) {
		return Result{}, apperrors.New(apperrors.CodeNotReady, "document has unsigned required fields")
	}

	source := data.Data
	if req.IsResealing {
		source = data.InitialData
	}

	if doc.QRToken == "" {
		token, err := id.Prefixed("qr")
		if err != nil {
			return Result{}, fmt.Errorf("generate qr token: %w", err)
		}
		if doc.QRToken, err = p.documents.EnsureQRToken(ctx, doc.ID, token); err != nil {
			return Result{}, fmt.Errorf("ensure qr token: %w", err)
		}
	}

	status := document.StatusCompleted
	if rejected {
		status = document.StatusRejected
	}

	var outcome commitResult
	if commitJournaled {
		if err := json.Unmarshal(committed, &outcome); err != nil {
			return Result{}, fmt.Errorf("decode step %s: %w", StepUpdateDocument, err)
		}
	} else {
		dataRef, err := runStep(ctx, p, req.JobID, StepDecorateAndSignPDF, func(ctx context.Context) (string, error) {
			return p.decorateAndSign(ctx, decorateInput{
				doc:      doc,
				signers:  signers,
				source:   source,
				rejected: rejected,
				reason:   reason,
			})
		})
		if err != nil {
			return Result{}, err
		}
		outcome = commitResult{Status: status, DataRef: dataRef}
		if err := p.commit(ctx, req, doc.ID, doc.Status, data.ID, outcome, reason); err != nil {
			if apperrors.Is(err, apperrors.CodeConflict) && !req.IsResealing {
				if current, getErr := p.documents.GetDocument(ctx, doc.ID); getErr == nil && current.Status.IsSealed() {
					return Result{}, alreadySealed(doc.ID, current.Status)
				}
			}
			return Result{}, err
		}
	}

	dedupe := req.JobID
	isRejected := outcome.Status == document.StatusRejected
	if ShouldSendCompletedEmail(req.sendEmail(), req.IsResealing, isRejected, priorStatus) {
		p.attempt(doc.ID, StepSendCompletedEmail, func() error {
			_, err := runStep(ctx, p, req.JobID, StepSendCompletedEmail, func(ctx context.Context) (bool, error) {
				if p.emails == nil {
					return false, fmt.Errorf("email queue is not configured")
				}
				key := ""
				if dedupe != "" {
					key = fmt.Sprintf("document.completed_email:%d:%s", doc.ID, dedupe)
				}
				if err := p.emails.EnqueueCompletedEmail(ctx, doc.ID, key, req.RequestMetadata); err != nil {
					return false, err
				}
				return true, nil
			})
			return err
		})
	}

	p.attempt(doc.ID, StepTriggerWebhook, func() error {
		_, err := runStep(ctx, p, req.JobID, StepTriggerWebhook, func(ctx context.Context) (string, error) {
			return p.triggerWebhook(ctx, doc.ID, outcome.Status, dedupe)
		})
		return err
	})

	return Result{Status: outcome.Status, DataRef: outcome.DataRef, Skipped: commitJournaled}, nil
}

func alreadySealed(documentID int64, status document.Status) error {
	return apperrors.New(apperrors.CodeAlreadySealed, fmt.Sprintf("document %d is already %s", documentID, status))
}

// commit applies the terminal transition and journals the update step in
// the same transaction.
func (p *Pipeline) commit(ctx context.Context, req Request, documentID int64, expected document.Status, dataID string, outcome commitResult, reason string) error {
	ctx, span := p.tracer.Start(ctx, "seal."+StepUpdateDocument)
	defer span.End()

	transactionID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate transaction id: %w", err)
	}
	auditID, err := id.NewID()
	if err != nil {
		return fmt.Errorf("generate audit id: %w", err)
	}
	auditData := map[string]any{"transactionId": transactionID}
	if outcome.Status == document.StatusRejected {
		auditData["isRejected"] = true
		auditData["rejectionReason"] = reason
	}
	auditJSON, err := json.Marshal(auditData)
	if err != nil {
		return fmt.Errorf("encode audit data: %w", err)
	}
	stepResult, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode step %s: %w", StepUpdateDocument, err)
	}
	now := p.clock().UTC()
	err = p.seals.CommitSeal(ctx, storage.SealCommit{
		DocumentID:     documentID,
		ExpectedStatus: expected,
		Status:         outcome.Status,
		CompletedAt:    now,
		DocumentDataID: dataID,
		DataRef:        outcome.DataRef,
		Audit: document.AuditLogEntry{
			ID:            auditID,
			DocumentID:    documentID,
			Type:          document.AuditDocumentCompleted,
			TransactionID: transactionID,
			Data:          auditJSON,
			IPAddress:     req.RequestMetadata.IPAddress,
			UserAgent:     req.RequestMetadata.UserAgent,
			CreatedAt:     now,
		},
		JobID:      req.JobID,
		StepKey:    StepUpdateDocument,
		StepResult: stepResult,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if apperrors.Is(err, apperrors.CodeConflict) {
			return apperrors.Wrap(apperrors.CodeConflict, fmt.Sprintf("document %d changed status while sealing", documentID), err)
		}
		return apperrors.Wrap(apperrors.CodeTransactionFailure, fmt.Sprintf("commit seal of document %d", documentID), err)
	}
	return nil
}

// triggerWebhook reloads the sealed document and schedules its webhook.
func (p *Pipeline) triggerWebhook(ctx context.Context, documentID int64, status document.Status, dedupe string) (string, error) {
	if p.webhooks == nil {
		return "", fmt.Errorf("webhook dispatcher is not configured")
	}
	sealed, err := p.documents.GetDocument(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("reload document: %w", err)
	}
	kind := webhook.KindForStatus(status)
	key := ""
	if dedupe != "" {
		key = fmt.Sprintf("webhook:%d:%s:%s", documentID, kind, dedupe)
	}
	if err := p.webhooks.Trigger(ctx, webhook.Event{
		Kind:      kind,
		Payload:   webhook.PayloadFromDocument(sealed),
		UserID:    sealed.UserID,
		TeamID:    sealed.TeamID,
		DedupeKey: key,
	}); err != nil {
		return "", err
	}
	return kind, nil
}
