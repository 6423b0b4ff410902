// Package passkey configures the WebAuthn relying party used to verify
// passkey assertions during recipient authorization.
package passkey

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-webauthn/webauthn/webauthn"
)

const (
	defaultDisplayName  = "Documenso"
	defaultRPID         = "localhost"
	defaultOrigin       = "http://localhost:8090"
	defaultChallengeTTL = 5 * time.Minute
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"DOCSEAL_WEBAUTHN_RP_DISPLAY_NAME"`
	RPID          string        `env:"DOCSEAL_WEBAUTHN_RP_ID"            envDefault:"localhost"`
	RPOrigins     []string      `env:"DOCSEAL_WEBAUTHN_RP_ORIGINS"       envSeparator:","`
	ChallengeTTL  time.Duration `env:"DOCSEAL_WEBAUTHN_CHALLENGE_TTL"    envDefault:"5m"`
}

// LoadConfigFromEnv returns passkey configuration with defaults. Values that
// fail to parse are logged and fall back to their defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Printf("passkey: parse env: %v", err)
	}
	if cfg.RPDisplayName == "" {
		cfg.RPDisplayName = defaultDisplayName
	}
	if cfg.RPID == "" {
		cfg.RPID = defaultRPID
	}
	if len(cfg.RPOrigins) == 0 {
		cfg.RPOrigins = []string{defaultOrigin}
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = defaultChallengeTTL
	}
	return cfg
}

// NewWebAuthn builds the relying party from cfg.
func NewWebAuthn(cfg Config) (*webauthn.WebAuthn, error) {
	rp, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return rp, nil
}
