// Package errors provides structured error handling for signing services.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeValidation Code = "VALIDATION"

	// Lifecycle errors
	CodeNotReady      Code = "NOT_READY"
	CodeAlreadySealed Code = "ALREADY_SEALED"
	CodeConflict      Code = "CONFLICT"

	// Verification errors
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeExpiredCode  Code = "EXPIRED_CODE"
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeTransactionFailure Code = "TRANSACTION_FAILURE"

	// Collaborator errors
	CodeDependencyFailure   Code = "DEPENDENCY_FAILURE"
	CodeNotificationFailure Code = "NOTIFICATION_FAILURE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation:
		return codes.InvalidArgument
	case CodeNotReady, CodeAlreadySealed:
		return codes.FailedPrecondition
	case CodeConflict:
		return codes.Aborted
	case CodeRateLimited:
		return codes.ResourceExhausted
	case CodeNotFound:
		return codes.NotFound
	case CodeExpiredCode, CodeUnauthorized:
		return codes.PermissionDenied
	case CodeDependencyFailure, CodeNotificationFailure:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotReady, CodeAlreadySealed, CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeExpiredCode, CodeUnauthorized:
		return http.StatusForbidden
	case CodeDependencyFailure, CodeNotificationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may retry an operation that failed with c.
func (c Code) Retryable() bool {
	switch c {
	case CodeTransactionFailure, CodeConflict, CodeDependencyFailure, CodeNotificationFailure, CodeUnknown:
		return true
	default:
		return false
	}
}
