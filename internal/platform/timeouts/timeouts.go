// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer.
const GRPCDial = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// SMSSend caps a single outbound SMS provider call.
const SMSSend = 10 * time.Second

// WebhookDelivery caps a single webhook POST.
const WebhookDelivery = 10 * time.Second

// SealJob caps one sealing pipeline run inside the worker.
const SealJob = 2 * time.Minute

// CertificateFetch caps the best-effort standard certificate render.
const CertificateFetch = 15 * time.Second
