package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewSchemaError("missing column Anomaly"),
			expected: "[SCHEMA] missing column Anomaly",
		},
		{
			name:     "with cause",
			err:      NewEmptyInputWarning("detector source unreadable", fmt.Errorf("open heap.csv: no such file")),
			expected: "[EMPTY_INPUT] detector source unreadable: open heap.csv: no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("write panel", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, err.Unwrap())
}

func TestAppError_WithContext(t *testing.T) {
	err := &AppError{Type: ErrTypeUnresolvable, Message: "index out of range"}
	err.WithContext("index", 42).WithContext("ticker", "AAPL")

	require.NotNil(t, err.Context)
	assert.Equal(t, 42, err.Context["index"])
	assert.Equal(t, "AAPL", err.Context["ticker"])
}

func TestIsInvariantViolation(t *testing.T) {
	violation := NewInvariantViolation("duplicate key AAPL@2024-01-02")
	wrapped := fmt.Errorf("reconcile: %w", violation)

	assert.True(t, IsInvariantViolation(violation))
	assert.True(t, IsInvariantViolation(wrapped))
	assert.False(t, IsInvariantViolation(NewSchemaError("x")))
	assert.False(t, IsInvariantViolation(errors.New("plain")))
	assert.Equal(t, ErrTypeInvariant, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"api error passthrough", ErrReportNotReady, http.StatusServiceUnavailable},
		{"not found", NewNotFoundError("detector heap"), http.StatusNotFound},
		{"invariant", NewInvariantViolation("dup"), http.StatusConflict},
		{"parsing", NewParsingError("bad date", nil), http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, ToAPIError(tt.err).StatusCode)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := NewErrorHandler(nil)
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("unexpected")
	})

	rec := httptest.NewRecorder()
	RecoveryMiddleware(handler)(panicking).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.ErrorCode)
}

func TestHandleError(t *testing.T) {
	handler := NewErrorHandler(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies/unknown", nil)

	handler.HandleError(rec, req, NewNotFoundError("detector unknown"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "detector unknown not found")
}

func TestPredefinedAPIErrors(t *testing.T) {
	tests := []struct {
		err    *APIError
		status int
		code   string
	}{
		{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrReportNotReady, http.StatusServiceUnavailable, "REPORT_NOT_READY"},
		{ErrInternalServer, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{ErrInvalidParameter, http.StatusBadRequest, "INVALID_PARAMETER"},
		{ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.StatusCode)
			assert.Equal(t, tt.code, tt.err.ErrorCode)
		})
	}
}
