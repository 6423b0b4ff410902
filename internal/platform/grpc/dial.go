// Package grpc holds client helpers for docseal gRPC endpoints.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ClientFunc creates a client connection; gogrpc.NewClient satisfies it.
type ClientFunc func(target string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)

// DialStage describes where a dial attempt failed.
type DialStage string

const (
	// DialStageConnect indicates the client could not be created.
	DialStageConnect DialStage = "connect"
	// DialStageHealth indicates the health check failed.
	DialStageHealth DialStage = "health"
)

// DialError wraps dial and health check failures with a stage indicator.
type DialError struct {
	Stage DialStage
	Err   error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e == nil {
		return "gRPC dial error"
	}
	return fmt.Sprintf("gRPC %s error: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *DialError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DefaultClientDialOptions returns insecure transport plus OTel client stats.
func DefaultClientDialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// DialWithHealth creates a client for addr and waits for the health check to
// report SERVING within timeout. The connection is closed on failure.
func DialWithHealth(ctx context.Context, newClient ClientFunc, addr string, timeout time.Duration, logf func(string, ...any)) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if newClient == nil {
		newClient = gogrpc.NewClient
	}

	conn, err := newClient(addr, DefaultClientDialOptions()...)
	if err != nil {
		return nil, &DialError{Stage: DialStageConnect, Err: err}
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := WaitForHealth(waitCtx, conn, "", logf); err != nil {
		_ = conn.Close()
		return nil, &DialError{Stage: DialStageHealth, Err: err}
	}
	return conn, nil
}
