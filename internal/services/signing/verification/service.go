package verification

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/platform/errors"
	"github.com/louisbranch/docseal/internal/platform/id"
	"github.com/louisbranch/docseal/internal/platform/phone"
	"github.com/louisbranch/docseal/internal/services/signing/ratelimit"
	"github.com/louisbranch/docseal/internal/services/signing/render"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// Messages returned to callers of Initiate.
const (
	MessageInvalidPhone   = "Invalid phone number format"
	MessageSendFailed     = "Failed to send SMS"
	MessageInternalError  = "Internal server error"
	rateLimitedMessageFmt = "Too many SMS requests. Please try again after %s."
	resetTimeLayout       = "15:04:05"
)

// Limiter throttles sends per key.
type Limiter interface {
	Check(key string, limit int, window time.Duration) ratelimit.Result
}

// Service creates verification tokens and delivers them by SMS.
type Service struct {
	store    storage.SMSTokenStore
	limiter  Limiter
	provider Provider
	cfg      Config

	clock       func() time.Time
	idGenerator func() (string, error)
	codeSource  func() (string, error)
}

// NewService builds a Service. The limiter is owned by the caller.
func NewService(store storage.SMSTokenStore, limiter Limiter, provider Provider, cfg Config) *Service {
	return &Service{
		store:       store,
		limiter:     limiter,
		provider:    provider,
		cfg:         cfg.normalized(),
		clock:       time.Now,
		idGenerator: id.NewID,
		codeSource:  randomCode,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// CreateToken issues a fresh code for phone, invalidating its unused codes.
// A non-positive ttl uses the configured token TTL.
func (s *Service) CreateToken(ctx context.Context, phoneNumber string, recipientID *int64, ttl time.Duration) (storage.SMSToken, error) {
	if s == nil || s.store == nil {
		return storage.SMSToken{}, fmt.Errorf("sms token store is not configured")
	}
	if ttl <= 0 {
		ttl = s.cfg.TokenTTL
	}
	code := devCode
	if !s.cfg.DevMode() {
		var err error
		if code, err = s.codeSource(); err != nil {
			return storage.SMSToken{}, err
		}
	}
	tokenID, err := s.idGenerator()
	if err != nil {
		return storage.SMSToken{}, fmt.Errorf("generate token id: %w", err)
	}
	now := s.clock().UTC()
	token := storage.SMSToken{
		ID:          tokenID,
		Token:       code,
		PhoneNumber: strings.TrimSpace(phoneNumber),
		RecipientID: recipientID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := s.store.ReplaceSMSToken(ctx, token); err != nil {
		return storage.SMSToken{}, fmt.Errorf("store sms token: %w", err)
	}
	return token, nil
}

// InitiateInput describes one verification request.
type InitiateInput struct {
	PhoneNumber   string
	RecipientID   *int64
	RecipientName string
	DocumentTitle string
	ExpiresIn     time.Duration
}

// Result is the caller-facing outcome of Initiate.
type Result struct {
	Success   bool
	Error     string
	Code      errors.Code
	ResetTime time.Time
}

func failure(code errors.Code, message string) Result {
	return Result{Error: message, Code: code}
}

// Initiate validates the phone, applies the rate limit, issues a code, and
// sends it. Failures are reported in the Result, never as an error.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) Result {
	if !phone.IsE164(input.PhoneNumber) {
		return failure(errors.CodeValidation, MessageInvalidPhone)
	}
	if s == nil || s.limiter == nil || s.provider == nil {
		log.Printf("initiate sms verification: service is not configured")
		return failure(errors.CodeUnknown, MessageInternalError)
	}

	limit := s.limiter.Check(ratelimit.SMSKey(input.PhoneNumber), s.cfg.RateLimit, s.cfg.RateWindow)
	if !limit.Allowed {
		result := failure(errors.CodeRateLimited, fmt.Sprintf(rateLimitedMessageFmt, limit.ResetTime.Format(resetTimeLayout)))
		result.ResetTime = limit.ResetTime
		return result
	}

	ttl := input.ExpiresIn
	if ttl <= 0 {
		ttl = s.cfg.TokenTTL
	}
	token, err := s.CreateToken(ctx, input.PhoneNumber, input.RecipientID, ttl)
	if err != nil {
		log.Printf("initiate sms verification: %v", err)
		return failure(errors.CodeUnknown, MessageInternalError)
	}

	message := render.SMSVerification(nil, render.SMSInput{
		CompanyName:   s.cfg.CompanyName,
		DocumentTitle: input.DocumentTitle,
		Code:          token.Token,
		ExpiryMinutes: int(math.Ceil(ttl.Minutes())),
	})
	sent, err := s.provider.SendSMS(ctx, input.PhoneNumber, message)
	if err != nil {
		log.Printf("send sms verification: %v", err)
		return failure(errors.CodeNotificationFailure, MessageSendFailed)
	}
	if !sent {
		return failure(errors.CodeNotificationFailure, MessageSendFailed)
	}
	return Result{Success: true}
}

// PurgeExpiredTokens deletes stored codes past their expiry.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("sms token store is not configured")
	}
	removed, err := s.store.DeleteExpiredSMSTokens(ctx, s.clock().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired sms tokens: %w", err)
	}
	return removed, nil
}

// RunTokenSweep purges expired codes every SweepInterval until ctx ends.
func (s *Service) RunTokenSweep(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.PurgeExpiredTokens(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("sweep sms tokens: %v", err)
				}
				continue
			}
			if removed > 0 {
				log.Printf("swept %d expired sms tokens", removed)
			}
		}
	}
}
