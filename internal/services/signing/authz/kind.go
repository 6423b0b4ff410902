// Package authz decides whether a recipient may access or act on a document
// given the document and recipient auth options and a supplied proof.
package authz

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is an authentication method a document can require.
type Kind string

const (
	KindAccount      Kind = "ACCOUNT"
	KindPasskey      Kind = "PASSKEY"
	KindTwoFactor    Kind = "TWO_FACTOR_AUTH"
	KindSMS          Kind = "SMS"
	KindExplicitNone Kind = "EXPLICIT_NONE"
)

// AllKinds lists every method, including EXPLICIT_NONE.
func AllKinds() []Kind {
	return []Kind{KindAccount, KindPasskey, KindTwoFactor, KindSMS, KindExplicitNone}
}

// Valid reports whether k is a known method.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Operation is what the recipient is attempting.
type Operation string

const (
	OperationAccess Operation = "ACCESS"
	OperationAction Operation = "ACTION"
)

// DocumentAuthOptions are the document-wide requirements.
type DocumentAuthOptions struct {
	GlobalAccessAuth *Kind `json:"globalAccessAuth"`
	GlobalActionAuth *Kind `json:"globalActionAuth"`
}

// RecipientAuthOptions override the document requirements for one recipient.
type RecipientAuthOptions struct {
	AccessAuth *Kind `json:"accessAuth"`
	ActionAuth *Kind `json:"actionAuth"`
}

// ParseDocumentAuthOptions decodes stored document auth options. Empty input
// means no requirements.
func ParseDocumentAuthOptions(raw json.RawMessage) (DocumentAuthOptions, error) {
	var opts DocumentAuthOptions
	if err := decodeOptions(raw, &opts); err != nil {
		return DocumentAuthOptions{}, fmt.Errorf("decode document auth options: %w", err)
	}
	if err := validateKinds(opts.GlobalAccessAuth, opts.GlobalActionAuth); err != nil {
		return DocumentAuthOptions{}, err
	}
	return opts, nil
}

// ParseRecipientAuthOptions decodes stored recipient auth options.
func ParseRecipientAuthOptions(raw json.RawMessage) (RecipientAuthOptions, error) {
	var opts RecipientAuthOptions
	if err := decodeOptions(raw, &opts); err != nil {
		return RecipientAuthOptions{}, fmt.Errorf("decode recipient auth options: %w", err)
	}
	if err := validateKinds(opts.AccessAuth, opts.ActionAuth); err != nil {
		return RecipientAuthOptions{}, err
	}
	return opts, nil
}

func decodeOptions(raw json.RawMessage, target any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.Unmarshal([]byte(trimmed), target)
}

func validateKinds(kinds ...*Kind) error {
	for _, kind := range kinds {
		if kind != nil && !kind.Valid() {
			return fmt.Errorf("unknown auth method %q", *kind)
		}
	}
	return nil
}

// DeriveMethods merges recipient overrides over document requirements. A
// recipient value, EXPLICIT_NONE included, wins whenever it is set.
func DeriveMethods(document DocumentAuthOptions, recipient RecipientAuthOptions) (access *Kind, action *Kind) {
	access = document.GlobalAccessAuth
	if recipient.AccessAuth != nil {
		access = recipient.AccessAuth
	}
	action = document.GlobalActionAuth
	if recipient.ActionAuth != nil {
		action = recipient.ActionAuth
	}
	return access, action
}

// KindPtr returns a pointer to k.
func KindPtr(k Kind) *Kind {
	return &k
}
