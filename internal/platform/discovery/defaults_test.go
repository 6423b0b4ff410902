package discovery

import "testing"

func TestDefaultGRPCAddr(t *testing.T) {
	cases := map[string]string{
		ServiceSigning: "signing:8090",
		ServiceWorker:  "worker:8089",
		"unknown":      "",
	}
	for service, want := range cases {
		if got := DefaultGRPCAddr(service); got != want {
			t.Fatalf("DefaultGRPCAddr(%q) = %q, want %q", service, got, want)
		}
	}
}

func TestOrDefaultGRPCAddr(t *testing.T) {
	if got := OrDefaultGRPCAddr(" custom:9000 ", ServiceSigning); got != "custom:9000" {
		t.Fatalf("expected explicit grpc addr to win, got %q", got)
	}
	if got := OrDefaultGRPCAddr("", ServiceWorker); got != "worker:8089" {
		t.Fatalf("expected default grpc addr, got %q", got)
	}
}
