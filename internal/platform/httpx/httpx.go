// Package httpx provides JSON and middleware helpers for HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/louisbranch/docseal/internal/platform/errors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// MessageInternalError is the body of every unexpected failure.
const MessageInternalError = "Internal server error"

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in declaration order.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	wrapped := handler
	for idx := len(middleware) - 1; idx >= 0; idx-- {
		if middleware[idx] == nil {
			continue
		}
		wrapped = middleware[idx](wrapped)
	}
	return wrapped
}

// NewRequestID returns a fresh correlation id.
func NewRequestID() string { return "req_" + uuid.NewString() }

// RequestID injects and echoes a request id for correlation.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if requestID == "" {
				requestID = NewRequestID()
				r.Header.Set("X-Request-ID", requestID)
			}
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// RecoverPanic converts panics into JSON 500 responses.
func RecoverPanic() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				log.Printf(
					"panic recovered method=%s path=%s request_id=%s panic=%v stack=%s",
					r.Method,
					r.URL.Path,
					r.Header.Get("X-Request-ID"),
					recovered,
					strings.TrimSpace(string(debug.Stack())),
				)
				_ = WriteJSONError(w, http.StatusInternalServerError, MessageInternalError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ReadJSON decodes a bounded request body into dst. An empty body leaves
// dst untouched.
func ReadJSON(r *http.Request, dst any) error {
	if r == nil || r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

// WriteJSON writes a JSON response with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return fmt.Errorf("response writer is required")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteJSONError writes {"error": message} with the given status code.
func WriteJSONError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]any{"error": message})
}

// WriteError maps err to a status through its error code and writes
// {"error", "code"}. Errors without a code are logged and hidden.
func WriteError(w http.ResponseWriter, err error) {
	if w == nil {
		return
	}
	code := apperrors.GetCode(err)
	if code == apperrors.CodeUnknown {
		log.Printf("http request failed: %v", err)
		_ = WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": MessageInternalError,
			"code":  string(code),
		})
		return
	}
	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}
	_ = WriteJSON(w, code.HTTPStatus(), map[string]any{
		"error": message,
		"code":  string(code),
	})
}

// ClientIP returns the first X-Forwarded-For hop, or the remote address host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
