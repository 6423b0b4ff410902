package authz

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Proof is evidence supplied for one auth method. The set of variants is
// closed: AccountProof, PasskeyProof, TOTPProof, and SMSProof.
type Proof interface {
	Kind() Kind
	isProof()
}

// AccountProof relies on the caller's session identity.
type AccountProof struct{}

// PasskeyProof carries a WebAuthn assertion for an issued challenge.
type PasskeyProof struct {
	TokenReference         string
	AuthenticationResponse json.RawMessage
}

// TOTPProof carries an authenticator app code.
type TOTPProof struct {
	Code string
}

// SMSProof carries a code delivered to PhoneNumber.
type SMSProof struct {
	Code        string
	PhoneNumber string
}

func (AccountProof) Kind() Kind { return KindAccount }
func (PasskeyProof) Kind() Kind { return KindPasskey }
func (TOTPProof) Kind() Kind    { return KindTwoFactor }
func (SMSProof) Kind() Kind     { return KindSMS }

func (AccountProof) isProof() {}
func (PasskeyProof) isProof() {}
func (TOTPProof) isProof()    {}
func (SMSProof) isProof()     {}

type proofEnvelope struct {
	Type                   Kind            `json:"type"`
	TokenReference         string          `json:"tokenReference"`
	AuthenticationResponse json.RawMessage `json:"authenticationResponse"`
	Token                  string          `json:"token"`
	PhoneNumber            string          `json:"phoneNumber"`
}

// DecodeProof parses the wire form {"type": KIND, ...}. Empty input yields
// a nil Proof.
func DecodeProof(raw json.RawMessage) (Proof, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var envelope proofEnvelope
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	switch envelope.Type {
	case KindAccount:
		return AccountProof{}, nil
	case KindPasskey:
		return PasskeyProof{
			TokenReference:         strings.TrimSpace(envelope.TokenReference),
			AuthenticationResponse: envelope.AuthenticationResponse,
		}, nil
	case KindTwoFactor:
		return TOTPProof{Code: strings.TrimSpace(envelope.Token)}, nil
	case KindSMS:
		return SMSProof{Code: strings.TrimSpace(envelope.Token), PhoneNumber: strings.TrimSpace(envelope.PhoneNumber)}, nil
	default:
		return nil, fmt.Errorf("unsupported proof type %q", envelope.Type)
	}
}
