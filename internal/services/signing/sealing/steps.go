package sealing

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Stable step keys journaled per seal job.
const (
	StepGetDocumentStatus  = "get-document-status"
	StepGetDocumentDataID  = "get-document-data-id"
	StepDecorateAndSignPDF = "decorate-and-sign-pdf"
	StepUpdateDocument     = "update-document"
	StepSendCompletedEmail = "send-completed-email"
	StepTriggerWebhook     = "trigger-webhook"
)

// StepKeys lists every journaled step in pipeline order.
func StepKeys() []string {
	return []string{
		StepGetDocumentStatus,
		StepGetDocumentDataID,
		StepDecorateAndSignPDF,
		StepUpdateDocument,
		StepSendCompletedEmail,
		StepTriggerWebhook,
	}
}

// journaled returns the recorded result of a step. Without a job id
// nothing is journaled.
func (p *Pipeline) journaled(ctx context.Context, jobID string, key string) (json.RawMessage, bool, error) {
	if jobID == "" {
		return nil, false, nil
	}
	raw, err := p.seals.GetSealStep(ctx, jobID, key)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load step %s: %w", key, err)
	}
	return raw, true, nil
}

// runStep executes fn once per job. A journaled step returns the recorded
// result without running fn again.
func runStep[T any](ctx context.Context, p *Pipeline, jobID string, key string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := p.tracer.Start(ctx, "seal."+key)
	defer span.End()

	var out T
	raw, ok, err := p.journaled(ctx, jobID, key)
	if err != nil {
		span.RecordError(err)
		return out, err
	}
	if ok {
		span.SetAttributes(attribute.Bool("seal.step.replayed", true))
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("decode step %s: %w", key, err)
		}
		return out, nil
	}

	out, err = fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	if jobID == "" {
		return out, nil
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return out, fmt.Errorf("encode step %s: %w", key, err)
	}
	if err := p.seals.PutSealStep(ctx, jobID, key, encoded); err != nil {
		return out, fmt.Errorf("journal step %s: %w", key, err)
	}
	return out, nil
}

// attempt runs a best-effort step, logging and discarding its failure.
func (p *Pipeline) attempt(documentID int64, step string, fn func() error) bool {
	if err := fn(); err != nil {
		p.logf("seal document %d: %s: %v", documentID, step, err)
		return false
	}
	return true
}
