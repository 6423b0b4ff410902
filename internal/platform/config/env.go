package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is shared by every docseal environment variable.
const EnvPrefix = "DOCSEAL_"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// RequireValues reports the first empty value in pairs of name/value.
func RequireValues(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}
