package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
)

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	t.Parallel()

	called := ""
	mw1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called += "1"
			next.ServeHTTP(w, r)
		})
	}
	mw2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called += "2"
			next.ServeHTTP(w, r)
		})
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called += "h"
		w.WriteHeader(http.StatusNoContent)
	}), mw1, nil, mw2)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if called != "12h" {
		t.Fatalf("call order = %q, want %q", called, "12h")
	}
}

func TestRequestIDAddsHeaderWhenMissing(t *testing.T) {
	t.Parallel()

	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	got := rr.Header().Get("X-Request-ID")
	if !strings.HasPrefix(got, "req_") {
		t.Fatalf("X-Request-ID = %q, want req_ prefix", got)
	}
	if seen != got {
		t.Fatalf("handler saw %q, response has %q", seen, got)
	}
}

func TestRequestIDKeepsIncomingHeader(t *testing.T) {
	t.Parallel()

	h := RequestID()(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc" {
		t.Fatalf("X-Request-ID = %q, want %q", got, "abc")
	}
}

func TestRecoverPanicWritesJSON500(t *testing.T) {
	var logs bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(prev) })

	h := RecoverPanic()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"error":"Internal server error"}` {
		t.Fatalf("body = %s", body)
	}
	if !strings.Contains(logs.String(), "panic recovered method=POST path=/x") {
		t.Fatalf("log = %q", logs.String())
	}
}

func TestReadJSON(t *testing.T) {
	t.Parallel()

	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ada"}`))
	if err := ReadJSON(req, &dst); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if dst.Name != "ada" {
		t.Fatalf("name = %q", dst.Name)
	}

	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := ReadJSON(empty, &dst); err != nil {
		t.Fatalf("ReadJSON empty body: %v", err)
	}

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	if err := ReadJSON(bad, &dst); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   map[string]string
	}{
		{
			name:   "validation",
			err:    apperrors.New(apperrors.CodeValidation, "document id is required"),
			status: http.StatusBadRequest,
			body:   map[string]string{"error": "document id is required", "code": "VALIDATION"},
		},
		{
			name:   "wrapped not ready",
			err:    errors.Join(apperrors.New(apperrors.CodeNotReady, "document not complete")),
			status: http.StatusConflict,
			body:   map[string]string{"error": "document not complete", "code": "NOT_READY"},
		},
		{
			name:   "unknown is hidden",
			err:    errors.New("disk exploded"),
			status: http.StatusInternalServerError,
			body:   map[string]string{"error": "Internal server error", "code": "UNKNOWN"},
		},
	}
	prev := log.Writer()
	log.SetOutput(&bytes.Buffer{})
	t.Cleanup(func() { log.SetOutput(prev) })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			var got map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if got["error"] != tt.body["error"] || got["code"] != tt.body["code"] {
				t.Fatalf("body = %v, want %v", got, tt.body)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("ClientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("ClientIP forwarded = %q", got)
	}
}
