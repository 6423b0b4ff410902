// Package integrity computes the SHA-512 fingerprints stored with signatures
// and printed on certification pages.
package integrity

import (
	"bytes"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 UTC layout used inside hashed payloads.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// SignatureInput is the content bound by a signature hash.
type SignatureInput struct {
	RecipientID    int64
	FieldID        int64
	ImageBase64    *string
	TypedSignature *string
	CreatedAt      time.Time
}

// SignatureRef is one signature as it appears in a document hash.
type SignatureRef struct {
	ID   int64
	Hash *string
}

// DocumentInput is the content bound by a document hash.
type DocumentInput struct {
	ID             int64
	Title          string
	DocumentDataID string
	CompletedAt    *time.Time
	Signatures     []SignatureRef
}

type signaturePayload struct {
	RecipientID            int64   `json:"recipientId"`
	FieldID                int64   `json:"fieldId"`
	SignatureImageAsBase64 *string `json:"signatureImageAsBase64"`
	TypedSignature         *string `json:"typedSignature"`
	Created                string  `json:"created"`
}

type signatureEntry struct {
	ID            int64   `json:"id"`
	SignatureHash *string `json:"signatureHash"`
}

type documentPayload struct {
	ID             int64            `json:"id"`
	Title          string           `json:"title"`
	DocumentDataID string           `json:"documentDataId"`
	CompletedAt    *string          `json:"completedAt,omitempty"`
	Signatures     []signatureEntry `json:"signatures"`
}

// HashSignature returns the lowercase hex SHA-512 of the signature payload.
func HashSignature(in SignatureInput) (string, error) {
	return hashJSON(signaturePayload{
		RecipientID:            in.RecipientID,
		FieldID:                in.FieldID,
		SignatureImageAsBase64: in.ImageBase64,
		TypedSignature:         in.TypedSignature,
		Created:                formatTime(in.CreatedAt),
	})
}

// HashDocument returns the lowercase hex SHA-512 of the document payload.
// Signatures keep the caller's order.
func HashDocument(in DocumentInput) (string, error) {
	payload := documentPayload{
		ID:             in.ID,
		Title:          in.Title,
		DocumentDataID: in.DocumentDataID,
		Signatures:     make([]signatureEntry, 0, len(in.Signatures)),
	}
	if in.CompletedAt != nil {
		completed := formatTime(*in.CompletedAt)
		payload.CompletedAt = &completed
	}
	for _, sig := range in.Signatures {
		payload.Signatures = append(payload.Signatures, signatureEntry{ID: sig.ID, SignatureHash: sig.Hash})
	}
	return hashJSON(payload)
}

// VerifySignatureHash reports whether expected matches the recomputed hash.
func VerifySignatureHash(in SignatureInput, expected string) (bool, error) {
	actual, err := HashSignature(in)
	if err != nil {
		return false, err
	}
	return equalHex(actual, expected), nil
}

// VerifyDocumentHash reports whether expected matches the recomputed hash.
func VerifyDocumentHash(in DocumentInput, expected string) (bool, error) {
	actual, err := HashDocument(in)
	if err != nil {
		return false, err
	}
	return equalHex(actual, expected), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func equalHex(actual, expected string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}

func hashJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode hash payload: %w", err)
	}
	sum := sha512.Sum512(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(sum[:]), nil
}
