package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	err := NewAPIError("telegram", 403, "forbidden")
	assert.Contains(t, err.Error(), "telegram")
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "forbidden")
}

func TestAPIError_WithWrapped(t *testing.T) {
	inner := errors.New("connection refused")
	err := &APIError{Service: "odoo", StatusCode: 500, Message: "fail", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewAPIError("tg", 429, "rate limit")))
	assert.True(t, IsRetryable(NewAPIError("tg", 502, "bad gateway")))
	assert.True(t, IsRetryable(NewAPIError("tg", 503, "unavailable")))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(ErrUnavailable))

	assert.False(t, IsRetryable(NewAPIError("tg", 401, "unauth")))
	assert.False(t, IsRetryable(NewAPIError("tg", 404, "not found")))
	assert.False(t, IsRetryable(ErrAuthFailure))
	assert.False(t, IsRetryable(ErrInvalidInput))
}

func TestWrapStorage_Classification(t *testing.T) {
	locked := WrapStorage("upsert", errors.New("database is locked (SQLITE_BUSY)"))
	assert.True(t, IsRetryable(locked))
	assert.Contains(t, locked.Error(), "upsert")

	syntax := WrapStorage("lookup", errors.New("no such column: email"))
	assert.False(t, IsRetryable(syntax))

	assert.NoError(t, WrapStorage("noop", nil))
}

func TestStorageError_Unwrap(t *testing.T) {
	inner := errors.New("database is locked")
	err := WrapStorage("purge", inner)
	assert.ErrorIs(t, err, inner)
}
