// Package httpapi exposes the signing subsystem over JSON HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/platform/httpx"
	"github.com/louisbranch/docseal/internal/services/signing/authz"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/recipientaction"
	"github.com/louisbranch/docseal/internal/services/signing/sealing"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
	"github.com/louisbranch/docseal/internal/services/signing/verification"
)

// BasePath is the prefix of every route.
const BasePath = "/api/v1"

const (
	messageMethodNotAllowed = "Method not allowed"
	messageInvalidBody      = "Invalid request body"
	defaultSMSTokenTTL      = 10 * time.Minute
)

// Verifier starts SMS verification.
type Verifier interface {
	Initiate(ctx context.Context, input verification.InitiateInput) verification.Result
}

// RecipientActions authorizes recipients and records their actions.
type RecipientActions interface {
	Authorize(ctx context.Context, in recipientaction.AuthorizeInput) (bool, error)
	Sign(ctx context.Context, in recipientaction.SignInput) (recipientaction.Outcome, error)
	Reject(ctx context.Context, in recipientaction.RejectInput) (recipientaction.Outcome, error)
}

// PasskeyChallenger issues WebAuthn challenges.
type PasskeyChallenger interface {
	NewPasskeyChallenge(ctx context.Context, userID string) (authz.PasskeyChallenge, error)
}

// SealQueue schedules seal jobs.
type SealQueue interface {
	Enqueue(ctx context.Context, req sealing.Request) (string, error)
}

// Documents loads documents.
type Documents interface {
	GetDocument(ctx context.Context, id int64) (document.Document, error)
}

// AuditLogs lists audit entries.
type AuditLogs interface {
	ListAuditLogs(ctx context.Context, query storage.AuditLogQuery) ([]document.AuditLogEntry, error)
}

// Config tunes request handling.
type Config struct {
	// DefaultRegion is used to parse phone numbers without a country code.
	DefaultRegion string
	// SMSTokenTTL is the lifetime of codes issued by send-verification.
	SMSTokenTTL time.Duration
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Verifier   Verifier
	Recipients RecipientActions
	Passkeys   PasskeyChallenger
	Seals      SealQueue
	Documents  Documents
	AuditLogs  AuditLogs
}

// Handler serves the signing API.
type Handler struct {
	deps Deps
	cfg  Config
}

// NewHandler returns the API handler. Routes whose collaborator is nil
// answer 404.
func NewHandler(deps Deps, cfg Config) http.Handler {
	if cfg.SMSTokenTTL <= 0 {
		cfg.SMSTokenTTL = defaultSMSTokenTTL
	}
	h := &Handler{deps: deps, cfg: cfg}
	return httpx.Chain(h.routes(), httpx.RequestID(), httpx.RecoverPanic())
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		_ = httpx.WriteJSONError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		_ = httpx.WriteJSONError(w, http.StatusMethodNotAllowed, messageMethodNotAllowed)
	})

	r.Route(BasePath, func(r chi.Router) {
		if h.deps.Verifier != nil {
			r.Post("/sms/send-verification", h.sendVerification)
		}
		if h.deps.Recipients != nil {
			r.Post("/authorize", h.authorize)
			r.Post("/documents/{documentId}/recipients/{recipientId}/sign", h.sign)
			r.Post("/documents/{documentId}/recipients/{recipientId}/reject", h.reject)
		}
		if h.deps.Passkeys != nil {
			r.Post("/passkeys/challenge", h.passkeyChallenge)
		}
		if h.deps.Seals != nil && h.deps.Documents != nil {
			r.Post("/documents/{documentId}/seal", h.seal)
		}
		if h.deps.AuditLogs != nil {
			r.Get("/documents/{documentId}/audit-logs", h.auditLogs)
		}
		if h.deps.Documents != nil {
			r.Get("/documents/{documentId}/verify", h.verify)
		}
	})
	return r
}

// requestMetadata identifies the client behind r.
func requestMetadata(r *http.Request) document.RequestMetadata {
	return document.RequestMetadata{
		IPAddress: httpx.ClientIP(r),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, apperrors.New(apperrors.CodeValidation, name+" must be a positive integer")
	}
	return value, nil
}
