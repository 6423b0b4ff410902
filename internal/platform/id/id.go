// Package id generates opaque identifiers for persisted records.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random UUIDv4 encoded as 26 lowercase base32 characters.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}

// Prefixed returns NewID with a type prefix, e.g. "qr_4xk...".
func Prefixed(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", fmt.Errorf("id prefix is required")
	}
	value, err := NewID()
	if err != nil {
		return "", err
	}
	return prefix + "_" + value, nil
}
