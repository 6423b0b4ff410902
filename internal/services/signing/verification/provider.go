package verification

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Provider delivers one SMS message.
//
// A false result with a nil error means the carrier refused the message.
type Provider interface {
	SendSMS(ctx context.Context, to string, message string) (bool, error)
}

// Logf matches log.Printf.
type Logf func(format string, args ...any)

// NewProvider selects the provider named by cfg.Provider. Unknown names and
// twilio without credentials fall back to the console provider.
func NewProvider(cfg Config, logf Logf) Provider {
	if logf == nil {
		logf = log.Printf
	}
	cfg = cfg.normalized()
	switch cfg.Provider {
	case ProviderMock:
		return MockProvider{}
	case ProviderDev:
		return DevProvider{Logf: logf}
	case ProviderTwilio:
		if strings.TrimSpace(cfg.TwilioAccountSID) == "" ||
			strings.TrimSpace(cfg.TwilioAuthToken) == "" ||
			strings.TrimSpace(cfg.TwilioPhoneNumber) == "" {
			logf("twilio credentials not configured (DOCSEAL_TWILIO_ACCOUNT_SID, DOCSEAL_TWILIO_AUTH_TOKEN, DOCSEAL_TWILIO_PHONE_NUMBER); falling back to console provider")
			return ConsoleProvider{Logf: logf}
		}
		return NewTwilioProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, logf)
	default:
		return ConsoleProvider{Logf: logf}
	}
}

// ConsoleProvider writes messages to the log instead of sending them.
type ConsoleProvider struct {
	Logf Logf
}

// SendSMS logs the message and reports success.
func (p ConsoleProvider) SendSMS(ctx context.Context, to string, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	logf := p.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("=== SMS to %s ===\n%s\n===================", to, message)
	return true, nil
}

// MockProvider accepts every message.
type MockProvider struct {
	Delay time.Duration
}

// SendSMS waits for Delay and reports success.
func (p MockProvider) SendSMS(ctx context.Context, _ string, _ string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.Delay <= 0 {
		return true, nil
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}

// DevProvider logs messages and announces the accepted test codes.
type DevProvider struct {
	Logf Logf
}

// SendSMS logs the message with the test code banner.
func (p DevProvider) SendSMS(ctx context.Context, to string, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	logf := p.Logf
	if logf == nil {
		logf = log.Printf
	}
	logf("=== DEV SMS to %s ===\n%s\n=== TEST CODES ACCEPTED ===\n%s\n==========================",
		to, message, strings.Join(testCodes, ", "))
	return true, nil
}

type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioProvider sends messages through the Twilio REST API.
type TwilioProvider struct {
	messages messageCreator
	from     string
	logf     Logf
}

// NewTwilioProvider builds a provider for the given account.
func NewTwilioProvider(accountSID string, authToken string, from string, logf Logf) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: strings.TrimSpace(accountSID),
		Password: strings.TrimSpace(authToken),
	})
	return newTwilioProvider(client.Api, from, logf)
}

func newTwilioProvider(messages messageCreator, from string, logf Logf) *TwilioProvider {
	if logf == nil {
		logf = log.Printf
	}
	return &TwilioProvider{messages: messages, from: strings.TrimSpace(from), logf: logf}
}

// SendSMS creates the message and reports whether Twilio queued or sent it.
func (p *TwilioProvider) SendSMS(ctx context.Context, to string, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p == nil || p.messages == nil {
		return false, fmt.Errorf("twilio provider is not configured")
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(p.from)
	params.SetBody(message)

	resp, err := p.messages.CreateMessage(params)
	if err != nil {
		p.logf("twilio sms error: %v", err)
		return false, nil
	}
	if resp == nil || resp.Status == nil {
		return false, nil
	}
	switch *resp.Status {
	case "queued", "sent":
		return true, nil
	default:
		p.logf("twilio sms to %s returned status %s", to, *resp.Status)
		return false, nil
	}
}
