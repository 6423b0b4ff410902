package sealing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/platform/id"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// EventTypeSealRequested is the outbox event type of a seal job.
const EventTypeSealRequested = "document.seal_requested"

// JobPayload is the outbox payload of a seal job.
type JobPayload struct {
	JobID           string                   `json:"jobId"`
	DocumentID      int64                    `json:"documentId"`
	SendEmail       *bool                    `json:"sendEmail,omitempty"`
	IsResealing     bool                     `json:"isResealing,omitempty"`
	RequestMetadata document.RequestMetadata `json:"requestMetadata"`
}

// Queue schedules seal jobs for the worker.
type Queue struct {
	outbox storage.OutboxStore
	clock  func() time.Time
}

// NewQueue returns a Queue writing to outbox.
func NewQueue(outbox storage.OutboxStore) *Queue {
	return &Queue{outbox: outbox, clock: time.Now}
}

// Enqueue records a seal request in the audit log and schedules the job in
// the same transaction. It returns the job id.
func (q *Queue) Enqueue(ctx context.Context, req Request) (string, error) {
	if q == nil || q.outbox == nil {
		return "", fmt.Errorf("seal outbox is not configured")
	}
	if req.DocumentID <= 0 {
		return "", apperrors.New(apperrors.CodeValidation, "document id is required")
	}
	jobID, err := id.Prefixed("job")
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	body, err := json.Marshal(JobPayload{
		JobID:           jobID,
		DocumentID:      req.DocumentID,
		SendEmail:       req.SendEmail,
		IsResealing:     req.IsResealing,
		RequestMetadata: req.RequestMetadata,
	})
	if err != nil {
		return "", fmt.Errorf("encode seal job: %w", err)
	}
	auditID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate audit id: %w", err)
	}
	auditData, err := json.Marshal(map[string]any{"jobId": jobID, "isResealing": req.IsResealing})
	if err != nil {
		return "", fmt.Errorf("encode audit data: %w", err)
	}
	now := q.clock().UTC()
	err = q.outbox.EnqueueOutboxEventWithAudit(ctx, storage.OutboxEvent{
		ID:            jobID,
		EventType:     EventTypeSealRequested,
		PayloadJSON:   string(body),
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, document.AuditLogEntry{
		ID:            auditID,
		DocumentID:    req.DocumentID,
		Type:          document.AuditSealRequested,
		TransactionID: jobID,
		Data:          auditData,
		IPAddress:     req.RequestMetadata.IPAddress,
		UserAgent:     req.RequestMetadata.UserAgent,
		CreatedAt:     now,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue seal job: %w", err)
	}
	return jobID, nil
}

// RequestFromEvent decodes a seal job. The event id stands in for a missing
// job id.
func RequestFromEvent(event storage.OutboxEvent) (Request, error) {
	var payload JobPayload
	if err := json.Unmarshal([]byte(event.PayloadJSON), &payload); err != nil {
		return Request{}, apperrors.Wrap(apperrors.CodeValidation, "decode seal job", err)
	}
	if payload.DocumentID <= 0 {
		return Request{}, apperrors.New(apperrors.CodeValidation, "seal job has no document id")
	}
	jobID := payload.JobID
	if jobID == "" {
		jobID = event.ID
	}
	return Request{
		JobID:           jobID,
		DocumentID:      payload.DocumentID,
		SendEmail:       payload.SendEmail,
		IsResealing:     payload.IsResealing,
		RequestMetadata: payload.RequestMetadata,
	}, nil
}
