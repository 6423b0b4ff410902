package authz

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/louisbranch/docseal/internal/platform/config"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

const (
	defaultTOTPWindow = 10
	totpPeriod        = 30
)

var errUnsupportedProof = stderrors.New("unsupported proof")

// Config tunes the verification strategies.
type Config struct {
	// TOTPWindow is the number of 30 second periods accepted on each side of
	// the current one.
	TOTPWindow uint `env:"DOCSEAL_TOTP_WINDOW" envDefault:"10"`

	// AllowTestCodes lets the dev SMS codes pass without a stored token.
	// Production builds ignore it.
	AllowTestCodes bool

	// ChallengeTTL bounds issued passkey challenges.
	ChallengeTTL time.Duration

	RPID string
}

// LoadConfigFromEnv loads the TOTP window; the remaining fields are set by
// the composition root.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		log.Printf("authz: %v", err)
		return Config{TOTPWindow: defaultTOTPWindow}
	}
	return cfg
}

// Request is one authorization check.
type Request struct {
	Operation      Operation
	DocumentAuth   DocumentAuthOptions
	RecipientAuth  RecipientAuthOptions
	RecipientEmail string
	// CallerUserID is empty when no session identity is present.
	CallerUserID string
	// Proof is nil when the caller supplied none.
	Proof Proof
}

// Stores groups the persistence the strategies need.
type Stores struct {
	Users    storage.UserStore
	Passkeys storage.PasskeyStore
	SMS      storage.SMSTokenStore
}

type loginValidator interface {
	ValidateLogin(user webauthn.User, session webauthn.SessionData, parsedResponse *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

type assertionParser interface {
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultAssertionParser struct{}

func (defaultAssertionParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Engine evaluates recipient authorization.
type Engine struct {
	stores   Stores
	webAuthn loginValidator
	parser   assertionParser
	cfg      Config

	clock        func() time.Time
	logf         func(format string, args ...any)
	newChallenge func() (string, error)
}

// NewEngine builds an Engine. rp may be nil when passkeys are not configured;
// PASSKEY checks then always fail.
func NewEngine(stores Stores, rp *webauthn.WebAuthn, cfg Config) *Engine {
	if cfg.TOTPWindow == 0 {
		cfg.TOTPWindow = defaultTOTPWindow
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	engine := &Engine{
		stores:       stores,
		parser:       defaultAssertionParser{},
		cfg:          cfg,
		clock:        time.Now,
		logf:         log.Printf,
		newChallenge: createChallenge,
	}
	if rp != nil {
		engine.webAuthn = rp
		if engine.cfg.RPID == "" && rp.Config != nil {
			engine.cfg.RPID = rp.Config.RPID
		}
	}
	return engine
}

// IsAuthorized reports whether req may proceed. Every failure, including
// store errors, yields false; the reason is only logged.
func (e *Engine) IsAuthorized(ctx context.Context, req Request) bool {
	access, action := DeriveMethods(req.DocumentAuth, req.RecipientAuth)
	required := access
	if req.Operation == OperationAction {
		required = action
	}
	if required == nil || *required == KindExplicitNone {
		return true
	}

	proof := req.Proof
	if proof == nil && *required == KindAccount {
		proof = AccountProof{}
	}
	if proof == nil || proof.Kind() != *required {
		e.deny(req, "proof does not match required method %s", *required)
		return false
	}
	if *required != KindSMS && strings.TrimSpace(req.CallerUserID) == "" {
		e.deny(req, "caller identity required for %s", *required)
		return false
	}

	ok, err := e.verify(ctx, req, proof)
	if err != nil {
		e.deny(req, "%s verification: %v", *required, err)
		return false
	}
	return ok
}

func (e *Engine) deny(req Request, format string, args ...any) {
	if e.logf == nil {
		return
	}
	e.logf("authz deny %s: "+format, append([]any{req.Operation}, args...)...)
}

func (e *Engine) verify(ctx context.Context, req Request, proof Proof) (bool, error) {
	switch p := proof.(type) {
	case AccountProof:
		return e.verifyAccount(ctx, req)
	case PasskeyProof:
		return e.verifyPasskey(ctx, req.CallerUserID, p)
	case TOTPProof:
		return e.verifyTOTP(ctx, req.CallerUserID, p)
	case SMSProof:
		return e.verifySMS(ctx, p)
	default:
		return false, fmt.Errorf("%w: %T", errUnsupportedProof, proof)
	}
}

func (e *Engine) verifyAccount(ctx context.Context, req Request) (bool, error) {
	if e.stores.Users == nil {
		return false, fmt.Errorf("user store is not configured")
	}
	user, err := e.stores.Users.GetUserByEmail(ctx, req.RecipientEmail)
	if err != nil {
		return false, fmt.Errorf("resolve recipient account: %w", err)
	}
	return user.ID == strings.TrimSpace(req.CallerUserID), nil
}
