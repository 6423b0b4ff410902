// Package blob stores document revisions by content address.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/louisbranch/docseal/internal/platform/config"
	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
)

// Backends.
const (
	BackendFS  = "fs"
	BackendGCS = "gcs"
)

// ErrNotFound reports a missing blob.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "blob not found")

// Store reads and writes immutable blobs.
type Store interface {
	Get(ctx context.Context, ref string) ([]byte, error)
	// Put stores data and returns its reference. Writing identical content
	// under the same name returns the same reference.
	Put(ctx context.Context, name string, mimeType string, data []byte) (string, error)
}

// Config selects and configures the backend.
type Config struct {
	Backend   string `env:"DOCSEAL_BLOB_BACKEND" envDefault:"fs"`
	Dir       string `env:"DOCSEAL_BLOB_DIR" envDefault:"data/blobs"`
	GCSBucket string `env:"DOCSEAL_BLOB_GCS_BUCKET"`
}

// LoadConfigFromEnv loads blob configuration, falling back to defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{Backend: BackendFS, Dir: "data/blobs"}
	if err := config.ParseEnv(&cfg); err != nil {
		log.Printf("blob: %v", err)
		return Config{Backend: BackendFS, Dir: "data/blobs"}
	}
	return cfg
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFS:
		return NewFSStore(cfg.Dir)
	case BackendGCS:
		if err := config.RequireValues("DOCSEAL_BLOB_GCS_BUCKET", cfg.GCSBucket); err != nil {
			return nil, err
		}
		return NewGCSStore(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("unsupported blob backend %q", cfg.Backend)
	}
}

// Ref returns the content address for name and data.
func Ref(name string, data []byte) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + "/" + clean, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || base == "." || base == "/" || base == ".." {
		return "", apperrors.New(apperrors.CodeValidation, "blob name is required")
	}
	return base, nil
}

// checkRef rejects absolute or escaping references.
func checkRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	clean := path.Clean(ref)
	if ref == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid blob reference %q", ref))
	}
	return clean, nil
}
