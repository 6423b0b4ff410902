package grpc

import (
	"context"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthProbeTimeout   = time.Second
	healthInitialBackoff = 200 * time.Millisecond
	healthMaxBackoff     = time.Second
)

// HealthError reports a service that never reached SERVING.
type HealthError struct {
	Service    string
	LastStatus grpc_health_v1.HealthCheckResponse_ServingStatus
	Err        error
}

func (e *HealthError) Error() string {
	service := e.Service
	if service == "" {
		service = "server"
	}
	return fmt.Sprintf("wait for gRPC health of %s (last status %s): %v", service, e.LastStatus, e.Err)
}

func (e *HealthError) Unwrap() error {
	return e.Err
}

// CheckHealth runs one health probe for service. An empty service checks the
// whole server.
func CheckHealth(ctx context.Context, conn *gogrpc.ClientConn, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	if conn == nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	response, err := grpc_health_v1.NewHealthClient(conn).Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return response.GetStatus(), nil
}

// WaitForHealth probes service until it reports SERVING or ctx ends. The
// returned *HealthError carries the last observed status.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := healthInitialBackoff
	for {
		status, err := CheckHealth(ctx, conn, service)
		if err == nil && status == grpc_health_v1.HealthCheckResponse_SERVING {
			if logf != nil {
				logf("gRPC health check is SERVING")
			}
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("waiting for gRPC health: %v", err)
			} else {
				logf("waiting for gRPC health: status %s", status)
			}
		}

		select {
		case <-ctx.Done():
			return &HealthError{Service: service, LastStatus: status, Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, healthMaxBackoff)
	}
}
