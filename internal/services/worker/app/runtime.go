package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/blob"
	"github.com/louisbranch/docseal/internal/services/signing/certification"
	"github.com/louisbranch/docseal/internal/services/signing/notify"
	"github.com/louisbranch/docseal/internal/services/signing/pdf"
	"github.com/louisbranch/docseal/internal/services/signing/render"
	"github.com/louisbranch/docseal/internal/services/signing/sealing"
	"github.com/louisbranch/docseal/internal/services/signing/signer"
	signingsqlite "github.com/louisbranch/docseal/internal/services/signing/storage/sqlite"
	"github.com/louisbranch/docseal/internal/services/signing/webhook"
	workerdomain "github.com/louisbranch/docseal/internal/services/worker/domain"
	workerstorage "github.com/louisbranch/docseal/internal/services/worker/storage"
	workersqlite "github.com/louisbranch/docseal/internal/services/worker/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port          int
	DBPath        string
	SigningDBPath string
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	BatchSize     int
}

const (
	defaultWorkerPort   = 8089
	defaultWorkerDB     = "data/worker.db"
	defaultSigningDB    = "data/signing.db"
	healthServiceWorker = "worker.runtime"
)

// Run opens the stores, builds the sealing and delivery handlers, and polls
// the signing outbox until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if strings.TrimSpace(cfg.SigningDBPath) == "" {
		cfg.SigningDBPath = defaultSigningDB
	}

	for _, path := range []string{cfg.DBPath, cfg.SigningDBPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create worker storage dir: %w", err)
			}
		}
	}

	workerStore, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := workerStore.Close(); closeErr != nil {
			log.Printf("close worker sqlite store: %v", closeErr)
		}
	}()

	signingStore, err := signingsqlite.Open(cfg.SigningDBPath)
	if err != nil {
		return fmt.Errorf("open signing sqlite store: %w", err)
	}
	defer func() {
		if closeErr := signingStore.Close(); closeErr != nil {
			log.Printf("close signing sqlite store: %v", closeErr)
		}
	}()

	blobs, err := blob.Open(ctx, blob.LoadConfigFromEnv())
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	if closer, ok := blobs.(io.Closer); ok {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				log.Printf("close blob store: %v", closeErr)
			}
		}()
	}

	handlers, err := buildHandlers(signingStore, blobs)
	if err != nil {
		return err
	}

	loopConfig := Config{
		Consumer:      cfg.Consumer,
		PollInterval:  cfg.PollInterval,
		LeaseTTL:      cfg.LeaseTTL,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
		BatchSize:     cfg.BatchSize,
	}
	normalizedLoopConfig := loopConfig.normalized()

	workerLoop := New(
		signingStore,
		newAttemptStoreRecorder(workerStore, normalizedLoopConfig.Consumer),
		handlers,
		normalizedLoopConfig,
		nil,
	)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceWorker, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("worker server listening at %v", listener.Addr())
	return workerLoop.Run(ctx)
}

// buildHandlers wires the sealing pipeline and both delivery channels to
// their outbox event types.
func buildHandlers(store *signingsqlite.Store, blobs blob.Store) (map[string]EventHandler, error) {
	sign, err := signer.New(signer.LoadConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	generator := certification.NewGenerator()
	pipeline, err := sealing.New(sealing.Deps{
		Documents:           store,
		Seals:               store,
		Blobs:               blobs,
		PDF:                 pdf.NewPDFCPU(),
		Signer:              sign,
		Certification:       generator,
		StandardCertificate: sealing.NewAuditTrailCertificate(store, generator),
		Webhooks:            webhook.NewDispatcher(store),
		Emails:              notify.NewQueue(store),
	})
	if err != nil {
		return nil, fmt.Errorf("build sealing pipeline: %w", err)
	}

	webhookConfig := webhook.LoadConfigFromEnv()
	webhooks := workerdomain.NewWebhookHandler(webhook.NewFanout(store, webhook.NewDeliverer(webhookConfig.Timeout), webhookConfig))

	return map[string]EventHandler{
		sealing.EventTypeSealRequested:     workerdomain.NewSealHandler(pipeline),
		notify.EventTypeCompletedEmail:     workerdomain.NewCompletedEmailHandler(notify.NewHandler(store, notify.LogSender{}, render.NewPrinter())),
		webhook.EventTypeDocumentCompleted: webhooks,
		webhook.EventTypeDocumentRejected:  webhooks,
	}, nil
}

type attemptStoreRecorder struct {
	store    workerstorage.AttemptStore
	consumer string
}

func newAttemptStoreRecorder(store workerstorage.AttemptStore, consumer string) *attemptStoreRecorder {
	normalizedConsumer := strings.TrimSpace(consumer)
	if normalizedConsumer == "" {
		normalizedConsumer = defaultConsumer
	}
	return &attemptStoreRecorder{store: store, consumer: normalizedConsumer}
}

func (r *attemptStoreRecorder) RecordAttempt(ctx context.Context, attempt Attempt) error {
	if r == nil || r.store == nil {
		return nil
	}
	consumer := strings.TrimSpace(r.consumer)
	if consumer == "" {
		consumer = defaultConsumer
	}
	return r.store.RecordAttempt(ctx, workerstorage.AttemptRecord{
		EventID:      attempt.EventID,
		EventType:    attempt.EventType,
		Consumer:     consumer,
		Outcome:      canonicalOutcomeValue(attempt.Outcome),
		AttemptCount: attempt.AttemptCount,
		LastError:    attempt.Error,
		CreatedAt:    attempt.CreatedAt,
	})
}

func canonicalOutcomeValue(outcome Outcome) string {
	switch outcome {
	case OutcomeSucceeded, OutcomeRetry, OutcomeDead:
		return string(outcome)
	default:
		return "unknown"
	}
}
