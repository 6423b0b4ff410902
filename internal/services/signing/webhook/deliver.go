package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/louisbranch/docseal/internal/platform/config"
)

const (
	eventSource     = "docseal/signing"
	signatureHeader = "X-Docseal-Signature"
	structuredType  = "application/cloudevents+json"
)

// Config controls webhook delivery.
type Config struct {
	URL     string        `env:"DOCSEAL_WEBHOOK_URL"`
	Secret  string        `env:"DOCSEAL_WEBHOOK_SECRET"`
	Timeout time.Duration `env:"DOCSEAL_WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// LoadConfigFromEnv loads webhook delivery settings.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Printf("webhook: %v", err)
		return Config{Timeout: 10 * time.Second}
	}
	return cfg
}

// Target is one endpoint receiving deliveries.
type Target struct {
	ID     string
	URL    string
	Secret string
}

// StatusError reports a non-2xx response from a target.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s responded %d", e.URL, e.StatusCode)
}

// Retryable reports whether the target may accept a later attempt.
func (e *StatusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	default:
		return true
	}
}

type signatureClaims struct {
	jwt.RegisteredClaims
	BodySHA256 string `json:"body_sha256"`
}

// Deliverer posts structured CloudEvents to targets.
type Deliverer struct {
	client *http.Client
	clock  func() time.Time
}

// NewDeliverer returns a Deliverer with the given request timeout.
func NewDeliverer(timeout time.Duration) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{client: &http.Client{Timeout: timeout}, clock: time.Now}
}

// delivery is the CloudEvent data sent to subscribers.
type delivery struct {
	Event           string          `json:"event"`
	Payload         DocumentPayload `json:"payload"`
	CreatedAt       time.Time       `json:"createdAt"`
	WebhookEndpoint string          `json:"webhookEndpoint"`
}

// Deliver posts envelope to target. eventID identifies the outbox event and
// is stable across retries.
func (d *Deliverer) Deliver(ctx context.Context, target Target, eventID string, envelope Envelope) error {
	ce := cloudevents.NewEvent()
	ce.SetID(eventID)
	ce.SetSource(eventSource)
	ce.SetType("docseal.document." + strings.ToLower(strings.TrimPrefix(envelope.Event, "DOCUMENT_")))
	ce.SetSubject(strconv.FormatInt(envelope.Payload.ID, 10))
	ce.SetTime(envelope.CreatedAt)
	if err := ce.SetData(cloudevents.ApplicationJSON, delivery{
		Event:           envelope.Event,
		Payload:         envelope.Payload,
		CreatedAt:       envelope.CreatedAt,
		WebhookEndpoint: target.URL,
	}); err != nil {
		return fmt.Errorf("encode cloudevent data: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return fmt.Errorf("validate cloudevent: %w", err)
	}
	body, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("encode cloudevent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", structuredType)
	if secret := strings.TrimSpace(target.Secret); secret != "" {
		signature, err := d.sign(secret, eventID, body)
		if err != nil {
			return err
		}
		req.Header.Set(signatureHeader, signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", target.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{URL: target.URL, StatusCode: resp.StatusCode}
	}
	return nil
}

func (d *Deliverer) sign(secret string, eventID string, body []byte) (string, error) {
	sum := sha256.Sum256(body)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, signatureClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   eventSource,
			IssuedAt: jwt.NewNumericDate(d.clock()),
			ID:       eventID,
		},
		BodySHA256: hex.EncodeToString(sum[:]),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign webhook: %w", err)
	}
	return signed, nil
}

// VerifySignature checks a signature header against body, returning the
// event id it was issued for.
func VerifySignature(secret string, header string, body []byte) (string, error) {
	var claims signatureClaims
	_, err := jwt.ParseWithClaims(header, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(eventSource))
	if err != nil {
		return "", fmt.Errorf("parse webhook signature: %w", err)
	}
	sum := sha256.Sum256(body)
	if claims.BodySHA256 != hex.EncodeToString(sum[:]) {
		return "", stderrors.New("webhook body does not match signature")
	}
	return claims.ID, nil
}
