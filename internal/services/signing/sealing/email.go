package sealing

import "github.com/louisbranch/docseal/internal/services/signing/document"

// ShouldSendCompletedEmail decides whether a seal run emails recipients.
//
// A first seal emails unless the caller suppressed it or the document was
// rejected. Resealing a document that was already sealed stays silent,
// while resealing one that never reached a terminal status follows
// sendEmail alone.
func ShouldSendCompletedEmail(sendEmail bool, isResealing bool, isRejected bool, priorStatus document.Status) bool {
	if isResealing && !priorStatus.IsSealed() {
		return sendEmail
	}
	return sendEmail && !isResealing && !isRejected
}
