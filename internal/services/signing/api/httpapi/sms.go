package httpapi

import (
	"net/http"
	"strings"

	"github.com/louisbranch/docseal/internal/platform/httpx"
	"github.com/louisbranch/docseal/internal/platform/phone"
	"github.com/louisbranch/docseal/internal/services/signing/verification"
)

const (
	messagePhoneRequired = "Phone number is required"
	messageInvalidPhone  = "Invalid phone number"
)

type sendVerificationRequest struct {
	PhoneNumber   string `json:"phoneNumber"`
	RecipientID   *int64 `json:"recipientId"`
	RecipientName string `json:"recipientName"`
	DocumentTitle string `json:"documentTitle"`
}

func (h *Handler) sendVerification(w http.ResponseWriter, r *http.Request) {
	var body sendVerificationRequest
	if err := httpx.ReadJSON(r, &body); err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messageInvalidBody)
		return
	}
	if strings.TrimSpace(body.PhoneNumber) == "" {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messagePhoneRequired)
		return
	}
	formatted, err := phone.Normalize(body.PhoneNumber, h.cfg.DefaultRegion)
	if err != nil {
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, messageInvalidPhone)
		return
	}

	result := h.deps.Verifier.Initiate(r.Context(), verification.InitiateInput{
		PhoneNumber:   formatted,
		RecipientID:   body.RecipientID,
		RecipientName: body.RecipientName,
		DocumentTitle: body.DocumentTitle,
		ExpiresIn:     h.cfg.SMSTokenTTL,
	})
	if !result.Success {
		message := result.Error
		if message == "" {
			message = verification.MessageSendFailed
		}
		_ = httpx.WriteJSONError(w, http.StatusBadRequest, message)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}
