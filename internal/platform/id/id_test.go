package id

import (
	"encoding/base32"
	"strings"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}
	if strings.Contains(id, "=") {
		t.Fatal("expected no padding")
	}
	if len(id) != 26 {
		t.Fatalf("expected 26-character id, got %d", len(id))
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < '2' || r > '7') {
			t.Fatalf("unexpected character %q in id", r)
		}
	}

	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(id))
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	if len(decoded) != 16 {
		t.Fatalf("expected 16 decoded bytes, got %d", len(decoded))
	}
}

func TestNewIDSetsUUIDVersionAndVariant(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}

	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(id))
	if err != nil {
		t.Fatalf("decode id: %v", err)
	}
	if len(decoded) != 16 {
		t.Fatalf("expected 16 decoded bytes, got %d", len(decoded))
	}

	version := decoded[6] >> 4
	if version != 4 {
		t.Fatalf("expected version 4, got %d", version)
	}
	variant := decoded[8] & 0xC0
	if variant != 0x80 {
		t.Fatalf("expected variant 0x80, got 0x%X", variant)
	}
}

func TestPrefixed(t *testing.T) {
	value, err := Prefixed("qr")
	if err != nil {
		t.Fatalf("prefixed id: %v", err)
	}
	if !strings.HasPrefix(value, "qr_") {
		t.Fatalf("id = %q, want qr_ prefix", value)
	}
	if len(value) != len("qr_")+26 {
		t.Fatalf("id length = %d, want %d", len(value), len("qr_")+26)
	}
}

func TestPrefixedRequiresPrefix(t *testing.T) {
	if _, err := Prefixed("  "); err == nil {
		t.Fatal("expected error for empty prefix")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if _, ok := seen[value]; ok {
			t.Fatalf("duplicate id %q", value)
		}
		seen[value] = struct{}{}
	}
}
