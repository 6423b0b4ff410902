package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func TestDialWithHealthSuccess(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_SERVING)
	defer stop()

	conn, err := DialWithHealth(context.Background(), nil, addr, 2*time.Second, nil)
	if err != nil {
		t.Fatalf("dial with health: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close conn: %v", err)
	}
}

func TestDialWithHealthBoundsWaitByTimeout(t *testing.T) {
	addr, _, stop := startHealthServer(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	defer stop()

	start := time.Now()
	_, err := DialWithHealth(context.Background(), nil, addr, 150*time.Millisecond, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageHealth {
		t.Fatalf("expected health stage error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected timeout to bound health check, took %v", elapsed)
	}
}

func TestDialWithHealthConnectStage(t *testing.T) {
	failing := func(string, ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
		return nil, fmt.Errorf("dial failure")
	}
	_, err := DialWithHealth(context.Background(), failing, "unused", time.Second, nil)
	var dialErr *DialError
	if !errors.As(err, &dialErr) || dialErr.Stage != DialStageConnect {
		t.Fatalf("expected connect stage error, got %v", err)
	}
}

func TestDialErrorFormatting(t *testing.T) {
	wrapped := &DialError{Stage: DialStageConnect, Err: fmt.Errorf("boom")}
	if !strings.Contains(wrapped.Error(), "gRPC connect") {
		t.Fatalf("unexpected error: %s", wrapped.Error())
	}
	var nilErr *DialError
	if nilErr.Error() == "" || nilErr.Unwrap() != nil {
		t.Fatal("expected nil-safe DialError")
	}
}
