// Package server wires the signing HTTP API and its health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/api/httpapi"
	"github.com/louisbranch/docseal/internal/services/signing/authz"
	"github.com/louisbranch/docseal/internal/services/signing/passkey"
	"github.com/louisbranch/docseal/internal/services/signing/ratelimit"
	"github.com/louisbranch/docseal/internal/services/signing/recipientaction"
	"github.com/louisbranch/docseal/internal/services/signing/sealing"
	signingsqlite "github.com/louisbranch/docseal/internal/services/signing/storage/sqlite"
	"github.com/louisbranch/docseal/internal/services/signing/verification"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	defaultPort      = 8090
	defaultHTTPAddr  = ":8091"
	defaultDBPath    = "data/signing.db"
	shutdownTimeout  = 10 * time.Second
	healthServiceAPI = "signing.api"
)

// Config controls server startup.
type Config struct {
	Port     int
	HTTPAddr string
	DBPath   string
}

// Server hosts the signing API.
type Server struct {
	listener     net.Listener
	grpcServer   *grpc.Server
	health       *health.Server
	store        *signingsqlite.Store
	limiter      *ratelimit.Limiter
	verifier     *verification.Service
	httpListener net.Listener
	httpServer   *http.Server
}

// New opens the store, builds the services, and binds both listeners.
func New(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = defaultHTTPAddr
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	handler, limiter, verifier, err := buildHandler(store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	httpListener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("listen on http addr %s: %w", cfg.HTTPAddr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthServiceAPI, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:     listener,
		grpcServer:   grpcServer,
		health:       healthServer,
		store:        store,
		limiter:      limiter,
		verifier:     verifier,
		httpListener: httpListener,
		httpServer:   &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
	}, nil
}

func buildHandler(store *signingsqlite.Store) (http.Handler, *ratelimit.Limiter, *verification.Service, error) {
	smsConfig := verification.LoadConfigFromEnv()
	limiter := ratelimit.New(ratelimit.LoadConfigFromEnv(), nil)
	verifier := verification.NewService(store, limiter, verification.NewProvider(smsConfig, log.Printf), smsConfig)

	passkeyConfig := passkey.LoadConfigFromEnv()
	rp, err := passkey.NewWebAuthn(passkeyConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	authzConfig := authz.LoadConfigFromEnv()
	authzConfig.AllowTestCodes = smsConfig.AllowTestCodes()
	authzConfig.ChallengeTTL = passkeyConfig.ChallengeTTL
	engine := authz.NewEngine(authz.Stores{Users: store, Passkeys: store, SMS: store}, rp, authzConfig)

	seals := sealing.NewQueue(store)
	handler := httpapi.NewHandler(httpapi.Deps{
		Verifier:   verifier,
		Recipients: recipientaction.NewService(store, store, engine, seals),
		Passkeys:   engine,
		Seals:      seals,
		Documents:  store,
		AuditLogs:  store,
	}, httpapi.Config{
		DefaultRegion: smsConfig.DefaultRegion,
		SMSTokenTTL:   smsConfig.TokenTTL,
	})
	return handler, limiter, verifier, nil
}

// Addr returns the health listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// HTTPAddr returns the API listener address.
func (s *Server) HTTPAddr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Run creates and serves a signing server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	srv, err := New(cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts both listeners and blocks until one stops or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.limiter.Start(serverCtx)
	defer s.limiter.Stop()

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		s.verifier.RunTokenSweep(serverCtx)
	}()
	defer func() {
		cancel()
		<-sweepDone
	}()

	log.Printf("signing health server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()
	log.Printf("signing HTTP server listening at %v", s.httpListener.Addr())
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- s.httpServer.Serve(s.httpListener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
	shutdownGRPC := func() {
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}
	shutdownHTTP := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown signing HTTP server: %v", err)
		}
	}

	select {
	case <-ctx.Done():
		shutdownHTTP()
		shutdownGRPC()
		return handleErr(<-serveErr)
	case err := <-serveErr:
		shutdownHTTP()
		return handleErr(err)
	case err := <-httpErr:
		shutdownGRPC()
		if handled := handleErr(<-serveErr); handled != nil {
			return handled
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close signing store: %v", err)
	}
}

// OpenStore creates the parent directory of path and opens the signing
// store there.
func OpenStore(path string) (*signingsqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := signingsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open signing sqlite store: %w", err)
	}
	return store, nil
}
