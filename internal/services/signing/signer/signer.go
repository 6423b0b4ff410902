// Package signer applies the platform signature to sealed PDFs.
package signer

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/hhrutter/pkcs7"
	"golang.org/x/crypto/pkcs12"
)

// Transports select how documents are signed.
const (
	TransportLocal = "local"
	TransportNone  = "none"
)

var trailerMarker = []byte("\n%DOCSEAL-SIGNATURE ")

// Signer signs finished PDF bytes.
type Signer interface {
	Sign(ctx context.Context, data []byte) ([]byte, error)
}

// Config locates the signing certificate.
type Config struct {
	CertPath   string `env:"DOCSEAL_SIGNING_CERT_PATH"`
	Passphrase string `env:"DOCSEAL_SIGNING_CERT_PASSPHRASE"`
	Transport  string `env:"DOCSEAL_SIGNING_TRANSPORT" envDefault:"local"`
}

// LoadConfigFromEnv loads signer configuration from environment variables.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Printf("signer: parse env: %v", err)
		cfg.Transport = TransportLocal
	}
	return cfg
}

// New builds the Signer for cfg. A local transport without a certificate
// falls back to NoopSigner so development stacks can seal.
func New(cfg Config) (Signer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case TransportNone:
		return NoopSigner{}, nil
	case "", TransportLocal:
		if strings.TrimSpace(cfg.CertPath) == "" {
			log.Printf("signer: no certificate configured, sealed documents will not be signed")
			return NoopSigner{}, nil
		}
		return LoadPKCS12(cfg.CertPath, cfg.Passphrase)
	default:
		return nil, fmt.Errorf("unsupported signing transport %q", cfg.Transport)
	}
}

// NoopSigner returns its input unchanged.
type NoopSigner struct{}

// Sign returns data as is.
func (NoopSigner) Sign(_ context.Context, data []byte) ([]byte, error) {
	return data, nil
}

// PKCS7Signer appends a detached PKCS#7 signature over the document bytes
// as a trailing comment block.
type PKCS7Signer struct {
	cert *x509.Certificate
	key  crypto.PrivateKey
}

// NewPKCS7Signer signs with cert and key.
func NewPKCS7Signer(cert *x509.Certificate, key crypto.PrivateKey) (*PKCS7Signer, error) {
	if cert == nil || key == nil {
		return nil, fmt.Errorf("certificate and key are required")
	}
	return &PKCS7Signer{cert: cert, key: key}, nil
}

// LoadPKCS12 reads a PKCS#12 bundle holding one key and certificate.
func LoadPKCS12(path string, passphrase string) (*PKCS7Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing certificate: %w", err)
	}
	key, cert, err := pkcs12.Decode(raw, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decode signing certificate: %w", err)
	}
	return NewPKCS7Signer(cert, key)
}

// Sign appends the signature trailer to data.
func (s *PKCS7Signer) Sign(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	signed, err := pkcs7.NewSignedData(data)
	if err != nil {
		return nil, fmt.Errorf("init signed data: %w", err)
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := signed.AddSigner(s.cert, s.key, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("add signer: %w", err)
	}
	signed.Detach()
	der, err := signed.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish signature: %w", err)
	}

	out := make([]byte, 0, len(data)+len(trailerMarker)+base64.StdEncoding.EncodedLen(len(der))+1)
	out = append(out, data...)
	out = append(out, trailerMarker...)
	out = base64.StdEncoding.AppendEncode(out, der)
	out = append(out, '\n')
	return out, nil
}

// Verify checks the trailing signature and returns the signing certificate.
func Verify(signed []byte) (*x509.Certificate, error) {
	idx := bytes.LastIndex(signed, trailerMarker)
	if idx < 0 {
		return nil, fmt.Errorf("document carries no signature")
	}
	content := signed[:idx]
	encoded := bytes.TrimSpace(signed[idx+len(trailerMarker):])
	der, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, fmt.Errorf("parse signature: %w", err)
	}
	p7.Content = content
	if err := p7.Verify(); err != nil {
		return nil, fmt.Errorf("verify signature: %w", err)
	}
	return p7.GetOnlySigner(), nil
}
