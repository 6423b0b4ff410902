package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/platform/httpx"
	"github.com/louisbranch/docseal/internal/services/signing/auditfilter"
	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/integrity"
	"github.com/louisbranch/docseal/internal/services/signing/sealing"
)

const maxAuditPageSize = 500

type sealRequest struct {
	SendEmail   *bool `json:"sendEmail"`
	IsResealing bool  `json:"isResealing"`
}

func (h *Handler) seal(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathID(r, "documentId")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var body sealRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messageInvalidBody)
		return
	}
	if _, err := h.deps.Documents.GetDocument(r.Context(), documentID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	jobID, err := h.deps.Seals.Enqueue(r.Context(), sealing.Request{
		DocumentID:      documentID,
		SendEmail:       body.SendEmail,
		IsResealing:     body.IsResealing,
		RequestMetadata: requestMetadata(r),
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"jobId": jobID})
}

type auditLogResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	TransactionID string          `json:"transactionId"`
	UserID        *string         `json:"userId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	IPAddress     string          `json:"ipAddress,omitempty"`
	UserAgent     string          `json:"userAgent,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (h *Handler) auditLogs(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathID(r, "documentId")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	pageSize := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 0 || pageSize > maxAuditPageSize {
			httpx.WriteError(w, apperrors.New(apperrors.CodeValidation, "pageSize must be between 0 and 500"))
			return
		}
	}
	cond, err := auditfilter.Parse(r.URL.Query().Get("filter"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	entries, err := h.deps.AuditLogs.ListAuditLogs(r.Context(), cond.Query(documentID, pageSize))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]auditLogResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditLogResponse{
			ID:            entry.ID,
			Type:          entry.Type,
			TransactionID: entry.TransactionID,
			UserID:        entry.UserID,
			Data:          entry.Data,
			IPAddress:     entry.IPAddress,
			UserAgent:     entry.UserAgent,
			CreatedAt:     entry.CreatedAt.UTC(),
		})
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"auditLogs": out})
}

type signatureCheck struct {
	ID      int64 `json:"id"`
	FieldID int64 `json:"fieldId"`
	Valid   bool  `json:"valid"`
}

type verifyResponse struct {
	DocumentID   int64            `json:"documentId"`
	Status       document.Status  `json:"status"`
	DocumentHash string           `json:"documentHash"`
	Matches      *bool            `json:"matches,omitempty"`
	Signatures   []signatureCheck `json:"signatures"`
}

// verify recomputes the document fingerprint and checks every stored
// signature hash against its content. An optional hash query parameter is
// compared against the fingerprint.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	documentID, err := pathID(r, "documentId")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	doc, err := h.deps.Documents.GetDocument(r.Context(), documentID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	resp := verifyResponse{DocumentID: doc.ID, Status: doc.Status, Signatures: []signatureCheck{}}
	var refs []integrity.SignatureRef
	for _, recipient := range document.NonCCRecipients(doc.Recipients) {
		for _, field := range doc.Fields {
			sig := field.Signature
			if field.RecipientID != recipient.ID || sig == nil {
				continue
			}
			hash := sig.Hash
			refs = append(refs, integrity.SignatureRef{ID: sig.ID, Hash: &hash})
			valid, err := integrity.VerifySignatureHash(integrity.SignatureInput{
				RecipientID:    sig.RecipientID,
				FieldID:        sig.FieldID,
				ImageBase64:    sig.ImageBase64,
				TypedSignature: sig.TypedSignature,
				CreatedAt:      sig.CreatedAt,
			}, sig.Hash)
			if err != nil {
				httpx.WriteError(w, err)
				return
			}
			resp.Signatures = append(resp.Signatures, signatureCheck{ID: sig.ID, FieldID: field.ID, Valid: valid})
		}
	}

	input := integrity.DocumentInput{
		ID:             doc.ID,
		Title:          doc.Title,
		DocumentDataID: doc.DocumentDataID,
		CompletedAt:    doc.CompletedAt,
		Signatures:     refs,
	}
	resp.DocumentHash, err = integrity.HashDocument(input)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if expected := strings.TrimSpace(r.URL.Query().Get("hash")); expected != "" {
		matches, err := integrity.VerifyDocumentHash(input, expected)
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		resp.Matches = &matches
	}
	_ = httpx.WriteJSON(w, http.StatusOK, resp)
}
