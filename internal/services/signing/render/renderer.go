// Package render produces the user-facing copy for SMS codes and completion
// emails through a golang.org/x/text message catalog.
package render

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultCompanyName         = "Documenso"
	defaultExpiryMinutes       = 10
	defaultCompletedSubject    = "Document completed"
	defaultRejectedSubject     = "Document rejected"
	defaultGenericEmailSubject = "Document notification"
)

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// NewPrinter returns the English catalog printer.
func NewPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

// SMSInput carries the values interpolated into a verification SMS.
type SMSInput struct {
	CompanyName   string
	DocumentTitle string
	Code          string
	ExpiryMinutes int
}

// SMSVerification renders the verification code message.
func SMSVerification(loc Localizer, input SMSInput) string {
	minutes := input.ExpiryMinutes
	if minutes <= 0 {
		minutes = defaultExpiryMinutes
	}
	if title := strings.TrimSpace(input.DocumentTitle); title != "" {
		return localize(loc, "sms.verification.document", title, input.Code, minutes)
	}
	company := strings.TrimSpace(input.CompanyName)
	if company == "" {
		company = defaultCompanyName
	}
	return localize(loc, "sms.verification.generic", company, input.Code, minutes)
}

// EmailInput carries the values interpolated into a completion email.
type EmailInput struct {
	DocumentTitle   string
	RecipientName   string
	Rejected        bool
	RejectionReason string
}

// Email is rendered email copy.
type Email struct {
	Subject string
	Body    string
}

// CompletedEmail renders the email sent when a document is sealed.
func CompletedEmail(loc Localizer, input EmailInput) Email {
	title := strings.TrimSpace(input.DocumentTitle)
	name := strings.TrimSpace(input.RecipientName)
	if name == "" {
		name = localizeWithFallback(loc, "email.recipient.fallback", "there")
	}

	if input.Rejected {
		body := localize(loc, "email.document_rejected.body", name, title)
		if reason := strings.TrimSpace(input.RejectionReason); reason != "" {
			body += "\n\n" + localize(loc, "email.document_rejected.reason", reason)
		}
		return Email{
			Subject: localizeWithFallback(loc, "email.document_rejected.subject", defaultRejectedSubject),
			Body:    body,
		}
	}
	return Email{
		Subject: localizeWithFallback(loc, "email.document_completed.subject", defaultCompletedSubject),
		Body:    localize(loc, "email.document_completed.body", name, title),
	}
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		loc = NewPrinter()
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
