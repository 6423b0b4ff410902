package authz

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/louisbranch/docseal/internal/platform/id"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
	"github.com/louisbranch/docseal/internal/services/signing/verification"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

type credentialUser struct {
	id          string
	email       string
	credentials []webauthn.Credential
}

func (u *credentialUser) WebAuthnID() []byte {
	return []byte(u.id)
}

func (u *credentialUser) WebAuthnName() string {
	return u.id
}

func (u *credentialUser) WebAuthnDisplayName() string {
	if u.email != "" {
		return u.email
	}
	return u.id
}

func (u *credentialUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// verifyPasskey consumes the issued challenge and checks the assertion
// against the stored credential.
func (e *Engine) verifyPasskey(ctx context.Context, userID string, proof PasskeyProof) (bool, error) {
	if e.stores.Passkeys == nil {
		return false, fmt.Errorf("passkey store is not configured")
	}
	if e.webAuthn == nil {
		return false, fmt.Errorf("webauthn is not configured")
	}
	if strings.TrimSpace(proof.TokenReference) == "" || len(proof.AuthenticationResponse) == 0 {
		return false, fmt.Errorf("token reference and authentication response are required")
	}

	parsed, err := e.parser.ParseCredentialRequestResponseBytes(proof.AuthenticationResponse)
	if err != nil {
		return false, fmt.Errorf("parse assertion: %w", err)
	}
	credentialID := encodeCredentialID(parsed.RawID)
	stored, err := e.stores.Passkeys.GetPasskeyByCredentialID(ctx, userID, credentialID)
	if err != nil {
		return false, fmt.Errorf("load passkey: %w", err)
	}

	challenge, err := e.stores.Passkeys.DeletePasskeyChallenge(ctx, userID, proof.TokenReference)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	now := e.clock().UTC()
	if challenge.ExpiresAt.Before(now) {
		return false, storage.ErrExpired
	}

	var credential webauthn.Credential
	if err := json.Unmarshal([]byte(stored.CredentialJSON), &credential); err != nil {
		return false, fmt.Errorf("decode credential %s: %w", stored.CredentialID, err)
	}
	credential.Authenticator.SignCount = stored.Counter

	user := &credentialUser{id: userID, credentials: []webauthn.Credential{credential}}
	session := webauthn.SessionData{
		Challenge:            challenge.Challenge,
		RelyingPartyID:       e.cfg.RPID,
		UserID:               user.WebAuthnID(),
		AllowedCredentialIDs: [][]byte{credential.ID},
		Expires:              challenge.ExpiresAt,
		UserVerification:     protocol.VerificationPreferred,
	}
	validated, err := e.webAuthn.ValidateLogin(user, session, parsed)
	if err != nil {
		return false, fmt.Errorf("validate assertion: %w", err)
	}

	credentialJSON, err := json.Marshal(validated)
	if err != nil {
		return false, fmt.Errorf("encode credential: %w", err)
	}
	if err := e.stores.Passkeys.UpdatePasskeyUsage(ctx, stored.ID, validated.Authenticator.SignCount, string(credentialJSON), now); err != nil {
		return false, fmt.Errorf("update passkey usage: %w", err)
	}
	return true, nil
}

func (e *Engine) verifyTOTP(ctx context.Context, userID string, proof TOTPProof) (bool, error) {
	if e.stores.Users == nil {
		return false, fmt.Errorf("user store is not configured")
	}
	user, err := e.stores.Users.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load caller: %w", err)
	}
	if !user.TwoFactorEnabled || strings.TrimSpace(user.TOTPSecret) == "" {
		return false, fmt.Errorf("two factor authentication is not enabled for %s", userID)
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(proof.Code), user.TOTPSecret, e.clock().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      e.cfg.TOTPWindow,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("validate totp: %w", err)
	}
	return ok, nil
}

func (e *Engine) verifySMS(ctx context.Context, proof SMSProof) (bool, error) {
	if e.cfg.AllowTestCodes && verification.IsTestCode(proof.Code) {
		e.logf("authz: accepted dev test code for %s", proof.PhoneNumber)
		return true, nil
	}
	if e.stores.SMS == nil {
		return false, fmt.Errorf("sms token store is not configured")
	}
	if _, err := e.stores.SMS.ConsumeSMSToken(ctx, proof.PhoneNumber, proof.Code, e.clock().UTC()); err != nil {
		return false, fmt.Errorf("consume sms token: %w", err)
	}
	return true, nil
}

// PasskeyChallenge is an issued challenge the client signs with a passkey.
type PasskeyChallenge struct {
	TokenReference string
	Challenge      string
	ExpiresAt      time.Time
}

func createChallenge() (string, error) {
	challenge, err := protocol.CreateChallenge()
	if err != nil {
		return "", fmt.Errorf("create challenge: %w", err)
	}
	return challenge.String(), nil
}

// NewPasskeyChallenge issues a single-use challenge for userID.
func (e *Engine) NewPasskeyChallenge(ctx context.Context, userID string) (PasskeyChallenge, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return PasskeyChallenge{}, fmt.Errorf("user id is required")
	}
	if e.stores.Passkeys == nil {
		return PasskeyChallenge{}, fmt.Errorf("passkey store is not configured")
	}
	challenge, err := e.newChallenge()
	if err != nil {
		return PasskeyChallenge{}, err
	}
	reference, err := id.NewID()
	if err != nil {
		return PasskeyChallenge{}, fmt.Errorf("generate token reference: %w", err)
	}
	now := e.clock().UTC()
	issued := PasskeyChallenge{
		TokenReference: reference,
		Challenge:      challenge,
		ExpiresAt:      now.Add(e.cfg.ChallengeTTL),
	}
	if err := e.stores.Passkeys.PutPasskeyChallenge(ctx, storage.PasskeyChallenge{
		UserID:         userID,
		TokenReference: issued.TokenReference,
		Challenge:      issued.Challenge,
		ExpiresAt:      issued.ExpiresAt,
		CreatedAt:      now,
	}); err != nil {
		return PasskeyChallenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return issued, nil
}
