package domain

import (
	"context"
	"fmt"
	"log"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/services/signing/sealing"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// Sealer runs the sealing pipeline.
type Sealer interface {
	Seal(ctx context.Context, req sealing.Request) (sealing.Result, error)
}

// SealHandler runs seal jobs.
type SealHandler struct {
	sealer Sealer
	logf   func(format string, args ...any)
}

// NewSealHandler creates a seal job handler.
func NewSealHandler(sealer Sealer) *SealHandler {
	return &SealHandler{sealer: sealer, logf: log.Printf}
}

// Handle decodes the job and seals its document. Jobs that can never
// succeed are permanent; everything else is retried under the same job id
// so journaled steps are replayed.
func (h *SealHandler) Handle(ctx context.Context, event storage.OutboxEvent) error {
	if h == nil || h.sealer == nil {
		return Permanent(fmt.Errorf("sealing pipeline is not configured"))
	}
	req, err := sealing.RequestFromEvent(event)
	if err != nil {
		return Permanent(err)
	}
	result, err := h.sealer.Seal(ctx, req)
	if err != nil {
		return permanentForCodes(err, apperrors.CodeAlreadySealed, apperrors.CodeNotReady, apperrors.CodeValidation, apperrors.CodeNotFound)
	}
	h.logf("sealed document %d as %s (job %s, replayed %t)", req.DocumentID, result.Status, req.JobID, result.Skipped)
	return nil
}
