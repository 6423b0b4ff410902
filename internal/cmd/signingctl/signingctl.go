// Package signingctl implements the signing maintenance commands.
package signingctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	entrypoint "github.com/louisbranch/docseal/internal/platform/cmd"
	"github.com/louisbranch/docseal/internal/platform/discovery"
	platformgrpc "github.com/louisbranch/docseal/internal/platform/grpc"
	"github.com/louisbranch/docseal/internal/platform/phone"
	"github.com/louisbranch/docseal/internal/platform/timeouts"
	"github.com/louisbranch/docseal/internal/services/signing/certification"
	"github.com/louisbranch/docseal/internal/services/signing/ratelimit"
	signingsqlite "github.com/louisbranch/docseal/internal/services/signing/storage/sqlite"
	"github.com/louisbranch/docseal/internal/services/signing/verification"
	workerstorage "github.com/louisbranch/docseal/internal/services/worker/storage"
	workersqlite "github.com/louisbranch/docseal/internal/services/worker/storage/sqlite"
)

// Commands.
const (
	CommandCertPage = "certpage"
	CommandSMS      = "sms"
	CommandHealth   = "health"
	CommandAttempts = "attempts"
)

const usage = "usage: signingctl <certpage|sms|health|attempts> [flags]"

// Config holds signingctl configuration.
type Config struct {
	Command      string
	Out          string
	Title        string
	Phone        string
	Region       string
	Addr         string
	Target       string
	Service      string
	EventID      string
	Limit        int
	JSONOutput   bool
	WorkerDBPath string        `env:"DOCSEAL_WORKER_DB_PATH" envDefault:"data/worker.db"`
	Timeout      time.Duration `env:"DOCSEAL_SIGNINGCTL_TIMEOUT" envDefault:"30s"`
}

// ParseConfig reads the command name from args[0] and its flags from the rest.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return Config{}, errors.New(usage)
	}
	cfg.Command = strings.TrimSpace(args[0])
	cfg.Limit = 50

	fs.StringVar(&cfg.Out, "out", "certification.pdf", "certpage: output file (- for stdout)")
	fs.StringVar(&cfg.Title, "title", "Sample Agreement", "certpage: document title")
	fs.StringVar(&cfg.Phone, "phone", "", "sms: destination phone number")
	fs.StringVar(&cfg.Region, "region", "", "sms: default region for numbers without a country code")
	fs.StringVar(&cfg.Target, "target", discovery.ServiceSigning, "health: service to check when -addr is empty (signing|worker)")
	fs.StringVar(&cfg.Addr, "addr", "", "health: gRPC health address")
	fs.StringVar(&cfg.Service, "service", "", "health: service name to check (empty = server)")
	fs.StringVar(&cfg.EventID, "event-id", "", "attempts: only list attempts of this outbox event")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "attempts: max rows to list")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "attempts: output JSON")
	fs.StringVar(&cfg.WorkerDBPath, "worker-db-path", cfg.WorkerDBPath, "attempts: worker SQLite database path")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := entrypoint.ParseArgs(fs, args[1:]); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the configured command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	switch cfg.Command {
	case CommandCertPage:
		return runCertPage(cfg, out)
	case CommandSMS:
		return runSMS(ctx, cfg, out, errOut)
	case CommandHealth:
		return runHealth(ctx, cfg, out, errOut)
	case CommandAttempts:
		return runAttempts(ctx, cfg, out)
	default:
		return fmt.Errorf("unknown command %q; %s", cfg.Command, usage)
	}
}

func sampleCertification(title string, now time.Time) certification.Input {
	first := now.Add(-2 * time.Hour)
	second := now.Add(-30 * time.Minute)
	return certification.Input{
		DocumentID:   1,
		Title:        title,
		DocumentHash: strings.Repeat("ab", 64),
		Signers: []certification.Signer{
			{
				Name:          "Ada Lovelace",
				Email:         "ada@example.com",
				NationalID:    "12.345.678-9",
				Phone:         "+16502530000",
				SignedAt:      &first,
				Role:          "SIGNER",
				SignatureHash: strings.Repeat("0f", 64),
			},
			{
				Name:          "Alan Turing",
				Email:         "alan@example.com",
				SignedAt:      &second,
				Role:          "APPROVER",
				SignatureHash: strings.Repeat("e1", 64),
			},
		},
	}
}

func runCertPage(cfg Config, out io.Writer) error {
	data, err := certification.NewGenerator().Render(sampleCertification(cfg.Title, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("render certification page: %w", err)
	}
	if cfg.Out == "-" {
		_, err := out.Write(data)
		return err
	}
	if dir := filepath.Dir(cfg.Out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(cfg.Out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", cfg.Out, err)
	}
	fmt.Fprintf(out, "wrote %d bytes to %s\n", len(data), cfg.Out)
	return nil
}

// runSMS sends one verification code through the configured provider. Tokens
// land in a scratch database that is removed afterwards.
func runSMS(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	smsConfig := verification.LoadConfigFromEnv()
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = smsConfig.DefaultRegion
	}
	number, err := phone.Normalize(cfg.Phone, region)
	if err != nil {
		return fmt.Errorf("invalid phone number %q: %w", cfg.Phone, err)
	}

	dir, err := os.MkdirTemp("", "signingctl-sms-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)
	store, err := signingsqlite.Open(filepath.Join(dir, "signing.db"))
	if err != nil {
		return fmt.Errorf("open scratch store: %w", err)
	}
	defer store.Close()

	logf := func(format string, args ...any) {
		fmt.Fprintf(errOut, format+"\n", args...)
	}
	service := verification.NewService(store, ratelimit.New(ratelimit.Config{}, nil), verification.NewProvider(smsConfig, logf), smsConfig)

	sendCtx, cancel := context.WithTimeout(ctx, timeouts.SMSSend)
	defer cancel()
	result := service.Initiate(sendCtx, verification.InitiateInput{
		PhoneNumber:   number,
		RecipientName: "Test Recipient",
		DocumentTitle: "Sample Agreement",
		ExpiresIn:     smsConfig.TokenTTL,
	})
	if !result.Success {
		return fmt.Errorf("send verification to %s: %s", number, result.Error)
	}
	fmt.Fprintf(out, "sent verification code to %s via %s\n", number, smsConfig.Provider)
	return nil
}

func runHealth(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	logf := func(format string, args ...any) {
		fmt.Fprintf(errOut, format+"\n", args...)
	}
	addr := discovery.OrDefaultGRPCAddr(cfg.Addr, cfg.Target)
	if addr == "" {
		return fmt.Errorf("unknown health target %q", cfg.Target)
	}
	conn, err := platformgrpc.DialWithHealth(ctx, nil, addr, cfg.Timeout, logf)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if service := strings.TrimSpace(cfg.Service); service != "" {
		waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if err := platformgrpc.WaitForHealth(waitCtx, conn, service, logf); err != nil {
			return fmt.Errorf("check %s: %w", service, err)
		}
	}
	fmt.Fprintf(out, "%s SERVING\n", addr)
	return nil
}

type attemptView struct {
	EventID      string    `json:"eventId"`
	EventType    string    `json:"eventType"`
	Consumer     string    `json:"consumer"`
	Outcome      string    `json:"outcome"`
	AttemptCount int32     `json:"attemptCount"`
	LastError    string    `json:"lastError,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func runAttempts(ctx context.Context, cfg Config, out io.Writer) error {
	if _, err := os.Stat(cfg.WorkerDBPath); err != nil {
		return fmt.Errorf("worker database %s: %w", cfg.WorkerDBPath, err)
	}
	store, err := workersqlite.Open(cfg.WorkerDBPath)
	if err != nil {
		return fmt.Errorf("open worker store: %w", err)
	}
	defer store.Close()

	var records []workerstorage.AttemptRecord
	if eventID := strings.TrimSpace(cfg.EventID); eventID != "" {
		records, err = store.ListEventAttempts(ctx, eventID)
	} else {
		records, err = store.ListAttempts(ctx, cfg.Limit)
	}
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}

	if cfg.JSONOutput {
		views := make([]attemptView, 0, len(records))
		for _, record := range records {
			views = append(views, attemptView{
				EventID:      record.EventID,
				EventType:    record.EventType,
				Consumer:     record.Consumer,
				Outcome:      record.Outcome,
				AttemptCount: record.AttemptCount,
				LastError:    record.LastError,
				CreatedAt:    record.CreatedAt,
			})
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(views)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tEVENT\tTYPE\tOUTCOME\tATTEMPT\tERROR")
	for _, record := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			record.CreatedAt.Format(time.RFC3339),
			record.EventID,
			record.EventType,
			record.Outcome,
			record.AttemptCount,
			record.LastError,
		)
	}
	return tw.Flush()
}
