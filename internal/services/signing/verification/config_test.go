package verification

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DOCSEAL_SMS_PROVIDER", "")
	t.Setenv("DOCSEAL_SMS_TOKEN_TTL", "")
	cfg := LoadConfigFromEnv()
	if cfg.Provider != ProviderConsole {
		t.Fatalf("provider = %q", cfg.Provider)
	}
	if cfg.TokenTTL != 10*time.Minute || cfg.RateLimit != 3 || cfg.RateWindow != time.Hour {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.CompanyName != "Documenso" {
		t.Fatalf("company = %q", cfg.CompanyName)
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("DOCSEAL_SMS_PROVIDER", "Dev")
	t.Setenv("DOCSEAL_SMS_RATE_LIMIT", "5")
	t.Setenv("DOCSEAL_SMS_RATE_WINDOW", "15m")
	cfg := LoadConfigFromEnv()
	if cfg.Provider != ProviderDev || cfg.RateLimit != 5 || cfg.RateWindow != 15*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.DevMode() {
		t.Fatal("expected dev mode")
	}
	if !cfg.AllowTestCodes() {
		t.Fatal("expected test codes in non-production build")
	}
}

func TestAllowTestCodesRequiresDevProvider(t *testing.T) {
	if (Config{Provider: ProviderConsole}).AllowTestCodes() {
		t.Fatal("console provider must not accept test codes")
	}
	if IsTestCode("222222") {
		t.Fatal("unexpected test code membership")
	}
}

func TestIsTestCodeFollowsBuild(t *testing.T) {
	for _, code := range TestCodes() {
		if got := IsTestCode(code); got != testCodesCompiled {
			t.Fatalf("IsTestCode(%q) = %v, compiled = %v", code, got, testCodesCompiled)
		}
	}
}
