package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrConflict
	ErrInternal
)

// Sync error codes. These drive the retry decisions made by the job
// orchestrator and the sync coordinator.
const (
	ErrAuthExpired ErrorCode = iota + 2000
	ErrRateLimited
	ErrTransientNetwork
	ErrTransientStorage
	ErrMalformedPayload
	ErrDeadLettered
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode     `json:"code"`
	Message string        `json:"message"`
	Err     error         `json:"-"`
	// RetryAfter is set on rate-limit errors when the provider supplied
	// a backoff hint.
	RetryAfter time.Duration `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf returns the error code of err, or ErrInternal when err carries
// no AppError in its chain.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Retryable reports whether err may succeed on a later attempt.
// AuthExpired and MalformedPayload are never retryable; Conflict is
// handled by the caller with a single immediate retry, not here.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrRateLimited, ErrTransientNetwork, ErrTransientStorage:
		return true
	}
	return false
}

// BackoffHint returns the provider-specified delay for rate-limit
// errors, zero otherwise.
func BackoffHint(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// Error constructors
func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Conflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal error",
		Err:     err,
	}
}

func AuthExpired(source string, err error) *AppError {
	return &AppError{
		Code:    ErrAuthExpired,
		Message: fmt.Sprintf("%s credentials expired, reconnect required", source),
		Err:     err,
	}
}

func RateLimited(source string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       ErrRateLimited,
		Message:    fmt.Sprintf("%s rate limited", source),
		RetryAfter: retryAfter,
	}
}

func TransientNetwork(message string, err error) *AppError {
	return &AppError{
		Code:    ErrTransientNetwork,
		Message: message,
		Err:     err,
	}
}

func TransientStorage(message string, err error) *AppError {
	return &AppError{
		Code:    ErrTransientStorage,
		Message: message,
		Err:     err,
	}
}

func MalformedPayload(source string, err error) *AppError {
	return &AppError{
		Code:    ErrMalformedPayload,
		Message: fmt.Sprintf("malformed %s payload", source),
		Err:     err,
	}
}

func DeadLettered(jobID string, err error) *AppError {
	return &AppError{
		Code:    ErrDeadLettered,
		Message: fmt.Sprintf("job %s exhausted retries", jobID),
		Err:     err,
	}
}
