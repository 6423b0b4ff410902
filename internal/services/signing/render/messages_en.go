package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "sms.verification.document", "Your verification code for document \"%s\" is: %s. This code expires in %d minutes.")
	message.SetString(lang, "sms.verification.generic", "Your verification code for %s is: %s. This code expires in %d minutes.")
	message.SetString(lang, "email.recipient.fallback", "there")
	message.SetString(lang, "email.generic.subject", defaultGenericEmailSubject)
	message.SetString(lang, "email.document_completed.subject", "Signing complete!")
	message.SetString(lang, "email.document_completed.body", "Hi %s, all recipients have signed \"%s\". The sealed copy is attached.")
	message.SetString(lang, "email.document_rejected.subject", "Document rejected")
	message.SetString(lang, "email.document_rejected.body", "Hi %s, \"%s\" was rejected by a recipient and has been sealed as rejected.")
	message.SetString(lang, "email.document_rejected.reason", "Reason: %s")
}
