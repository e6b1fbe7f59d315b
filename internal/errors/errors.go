// Package errors provides structured error types for the helpdesk bot.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout      = errors.New("operation timed out")
	ErrAuthFailure  = errors.New("authentication failed")
	ErrRateLimit    = errors.New("rate limit exceeded")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("service unavailable")
)

// APIError represents an error from an external API call.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// StorageError wraps a failure from the durable store so callers can
// distinguish transient contention from permanent corruption or misuse.
type StorageError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// WrapStorage classifies a database error. SQLite surfaces contention as
// "database is locked" / "database table is locked" / SQLITE_BUSY text; those
// and plain timeouts are worth retrying, everything else is not.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	transient := strings.Contains(msg, "locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection")
	return &StorageError{Op: op, Transient: transient, Err: err}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	var storeErr *StorageError
	if errors.As(err, &storeErr) {
		return storeErr.Transient
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
