package render

import (
	"fmt"
	"testing"

	"golang.org/x/text/message"
)

func TestSMSVerificationWithDocumentTitle(t *testing.T) {
	t.Parallel()

	got := SMSVerification(nil, SMSInput{DocumentTitle: "Lease", Code: "482913"})
	want := `Your verification code for document "Lease" is: 482913. This code expires in 10 minutes.`
	if got != want {
		t.Fatalf("sms = %q, want %q", got, want)
	}
}

func TestSMSVerificationWithoutDocumentTitle(t *testing.T) {
	t.Parallel()

	got := SMSVerification(NewPrinter(), SMSInput{Code: "100000", ExpiryMinutes: 5})
	want := "Your verification code for Documenso is: 100000. This code expires in 5 minutes."
	if got != want {
		t.Fatalf("sms = %q, want %q", got, want)
	}
}

func TestSMSVerificationUsesCompanyName(t *testing.T) {
	t.Parallel()

	got := SMSVerification(nil, SMSInput{CompanyName: "Acme", Code: "123456"})
	want := "Your verification code for Acme is: 123456. This code expires in 10 minutes."
	if got != want {
		t.Fatalf("sms = %q, want %q", got, want)
	}
}

func TestCompletedEmail(t *testing.T) {
	t.Parallel()

	out := CompletedEmail(nil, EmailInput{DocumentTitle: "Lease", RecipientName: "Ada"})
	if out.Subject != "Signing complete!" {
		t.Fatalf("subject = %q", out.Subject)
	}
	if out.Body != `Hi Ada, all recipients have signed "Lease". The sealed copy is attached.` {
		t.Fatalf("body = %q", out.Body)
	}
}

func TestRejectedEmailIncludesReason(t *testing.T) {
	t.Parallel()

	out := CompletedEmail(nil, EmailInput{DocumentTitle: "Lease", Rejected: true, RejectionReason: "wrong rent"})
	if out.Subject != "Document rejected" {
		t.Fatalf("subject = %q", out.Subject)
	}
	want := "Hi there, \"Lease\" was rejected by a recipient and has been sealed as rejected.\n\nReason: wrong rent"
	if out.Body != want {
		t.Fatalf("body = %q, want %q", out.Body, want)
	}
}

func TestCompletedEmailFallsBackWhenCatalogMissing(t *testing.T) {
	t.Parallel()

	out := CompletedEmail(fakeLocalizer{}, EmailInput{DocumentTitle: "Lease"})
	if out.Subject != defaultCompletedSubject {
		t.Fatalf("subject = %q, want fallback", out.Subject)
	}
}

type fakeLocalizer struct {
	values map[string]string
}

func (f fakeLocalizer) Sprintf(key message.Reference, args ...any) string {
	k, _ := key.(string)
	if value, ok := f.values[k]; ok {
		return fmt.Sprintf(value, args...)
	}
	return k
}
