package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/platform/httpx"
	"github.com/louisbranch/docseal/internal/services/signing/authz"
	"github.com/louisbranch/docseal/internal/services/signing/recipientaction"
)

type callerRequest struct {
	UserID string          `json:"userId"`
	Proof  json.RawMessage `json:"proof"`
}

func (c callerRequest) caller(r *http.Request) (recipientaction.Caller, error) {
	caller := recipientaction.Caller{
		UserID:          strings.TrimSpace(c.UserID),
		RequestMetadata: requestMetadata(r),
	}
	if len(c.Proof) == 0 || string(c.Proof) == "null" {
		return caller, nil
	}
	proof, err := authz.DecodeProof(c.Proof)
	if err != nil {
		return recipientaction.Caller{}, apperrors.Wrap(apperrors.CodeValidation, "invalid proof", err)
	}
	caller.Proof = proof
	return caller, nil
}

type authorizeRequest struct {
	callerRequest
	Operation   authz.Operation `json:"operation"`
	DocumentID  int64           `json:"documentId"`
	RecipientID int64           `json:"recipientId"`
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	var body authorizeRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messageInvalidBody)
		return
	}
	switch body.Operation {
	case authz.OperationAccess, authz.OperationAction:
	default:
		httpx.WriteError(w, apperrors.New(apperrors.CodeValidation, "operation must be ACCESS or ACTION"))
		return
	}
	if body.DocumentID <= 0 || body.RecipientID <= 0 {
		httpx.WriteError(w, apperrors.New(apperrors.CodeValidation, "documentId and recipientId are required"))
		return
	}
	caller, err := body.caller(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	ok, err := h.deps.Recipients.Authorize(r.Context(), recipientaction.AuthorizeInput{
		Operation:   body.Operation,
		DocumentID:  body.DocumentID,
		RecipientID: body.RecipientID,
		Caller:      caller,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"authorized": ok})
}

type fieldRequest struct {
	FieldID        int64   `json:"fieldId"`
	SignatureImage *string `json:"signatureImage"`
	TypedSignature *string `json:"typedSignature"`
	CustomText     string  `json:"customText"`
}

type signRequest struct {
	callerRequest
	Fields []fieldRequest `json:"fields"`
}

type rejectRequest struct {
	callerRequest
	Reason string `json:"reason"`
}

type outcomeResponse struct {
	RecipientID   int64  `json:"recipientId"`
	SigningStatus string `json:"signingStatus"`
	SealJobID     string `json:"sealJobId,omitempty"`
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	documentID, recipientID, ok := recipientPath(w, r)
	if !ok {
		return
	}
	var body signRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messageInvalidBody)
		return
	}
	caller, err := body.caller(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	fields := make([]recipientaction.FieldInput, 0, len(body.Fields))
	for _, field := range body.Fields {
		fields = append(fields, recipientaction.FieldInput{
			FieldID:        field.FieldID,
			ImageBase64:    field.SignatureImage,
			TypedSignature: field.TypedSignature,
			CustomText:     field.CustomText,
		})
	}
	outcome, err := h.deps.Recipients.Sign(r.Context(), recipientaction.SignInput{
		DocumentID:  documentID,
		RecipientID: recipientID,
		Caller:      caller,
		Fields:      fields,
	})
	writeOutcome(w, outcome, err)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	documentID, recipientID, ok := recipientPath(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messageInvalidBody)
		return
	}
	caller, err := body.caller(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	outcome, err := h.deps.Recipients.Reject(r.Context(), recipientaction.RejectInput{
		DocumentID:  documentID,
		RecipientID: recipientID,
		Caller:      caller,
		Reason:      body.Reason,
	})
	writeOutcome(w, outcome, err)
}

func recipientPath(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	documentID, err := pathID(r, "documentId")
	if err != nil {
		httpx.WriteError(w, err)
		return 0, 0, false
	}
	recipientID, err := pathID(r, "recipientId")
	if err != nil {
		httpx.WriteError(w, err)
		return 0, 0, false
	}
	return documentID, recipientID, true
}

func writeOutcome(w http.ResponseWriter, outcome recipientaction.Outcome, err error) {
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, outcomeResponse{
		RecipientID:   outcome.Recipient.ID,
		SigningStatus: string(outcome.Recipient.SigningStatus),
		SealJobID:     outcome.SealJobID,
	})
}

type passkeyChallengeRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) passkeyChallenge(w http.ResponseWriter, r *http.Request) {
	var body passkeyChallengeRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messageInvalidBody)
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		httpx.WriteError(w, apperrors.New(apperrors.CodeValidation, "userId is required"))
		return
	}
	challenge, err := h.deps.Passkeys.NewPasskeyChallenge(r.Context(), body.UserID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"tokenReference": challenge.TokenReference,
		"challenge":      challenge.Challenge,
		"expiresAt":      challenge.ExpiresAt.UTC(),
	})
}
