package verification

import (
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Provider names accepted by DOCSEAL_SMS_PROVIDER.
const (
	ProviderConsole = "console"
	ProviderMock    = "mock"
	ProviderDev     = "dev"
	ProviderTwilio  = "twilio"
)

const (
	defaultTokenTTL    = 10 * time.Minute
	defaultRateLimit   = 3
	defaultRateWindow  = 60 * time.Minute
	defaultCompanyName = "Documenso"
	defaultSweepEvery  = time.Hour
)

// Config controls code issuance, throttling, and delivery.
type Config struct {
	Provider          string        `env:"DOCSEAL_SMS_PROVIDER"          envDefault:"console"`
	TokenTTL          time.Duration `env:"DOCSEAL_SMS_TOKEN_TTL"         envDefault:"10m"`
	RateLimit         int           `env:"DOCSEAL_SMS_RATE_LIMIT"        envDefault:"3"`
	RateWindow        time.Duration `env:"DOCSEAL_SMS_RATE_WINDOW"       envDefault:"60m"`
	SweepInterval     time.Duration `env:"DOCSEAL_SMS_TOKEN_SWEEP_INTERVAL" envDefault:"1h"`
	DefaultRegion     string        `env:"DOCSEAL_SMS_DEFAULT_REGION"`
	CompanyName       string        `env:"DOCSEAL_COMPANY_NAME"          envDefault:"Documenso"`
	TwilioAccountSID  string        `env:"DOCSEAL_TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string        `env:"DOCSEAL_TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string        `env:"DOCSEAL_TWILIO_PHONE_NUMBER"`
}

// LoadConfigFromEnv returns SMS configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Printf("verification: parse env: %v", err)
		return Config{}.normalized()
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderConsole
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	if strings.TrimSpace(c.CompanyName) == "" {
		c.CompanyName = defaultCompanyName
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepEvery
	}
	return c
}

// DevMode reports whether codes are fixed and test codes are announced.
func (c Config) DevMode() bool {
	return strings.EqualFold(strings.TrimSpace(c.Provider), ProviderDev)
}

// AllowTestCodes reports whether the fixed test codes satisfy SMS checks.
// Production builds never allow them.
func (c Config) AllowTestCodes() bool {
	return testCodesCompiled && c.DevMode()
}
