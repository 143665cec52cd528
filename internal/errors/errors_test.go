package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk I/O error")

	// When: wrapping with BankError
	bankErr := New(ErrCodeStoreFailed, "save document", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, bankErr)
	assert.Equal(t, originalErr, errors.Unwrap(bankErr))
	assert.True(t, errors.Is(bankErr, originalErr))
}

func TestBankError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"config error", ErrCodeConfigNotFound, "config file not found", "[ERR_101_CONFIG_NOT_FOUND] config file not found"},
		{"store error", ErrCodeStoreFailed, "insert failed", "[ERR_201_STORE_FAILED] insert failed"},
		{"upstream error", ErrCodeUpstreamTimeout, "request timed out", "[ERR_301_UPSTREAM_TIMEOUT] request timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestBankError_Is_MatchesSentinelThroughWrapping(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("doc-1"))

	assert.True(t, errors.Is(err, ErrDocumentNotFound))
	assert.False(t, errors.Is(err, ErrConsistency))
	assert.Equal(t, ErrCodeDocumentNotFound, GetCode(err))
	assert.Equal(t, CategoryStorage, GetCategory(err))
}

func TestCategoryAndSeverity_DerivedFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
		{ErrCodeStoreLocked, CategoryStorage, SeverityWarning, true},
		{ErrCodeUpstreamUnavailable, CategoryUpstream, SeverityWarning, true},
		{ErrCodeUpstreamPartial, CategoryUpstream, SeverityWarning, false},
		{ErrCodeChunkCapacity, CategoryValidation, SeverityWarning, false},
		{ErrCodeConsistency, CategoryInternal, SeverityFatal, false},
		{ErrCodeConcurrencyViolation, CategoryInternal, SeverityFatal, false},
		{"BAD", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestConsistencyError_IsFatalWithDetails(t *testing.T) {
	err := ConsistencyError("doc-a", "doc-b")

	assert.True(t, IsFatal(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "doc-a", err.Details["expected_id"])
	assert.Equal(t, "doc-b", err.Details["assigned_id"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestUpstreamFailure_IsRetryable(t *testing.T) {
	err := fmt.Errorf("embed batch: %w", UpstreamFailure("ollama down", errors.New("connection refused")))

	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestFormatForCLI_IncludesCodeAndHint(t *testing.T) {
	err := ConsistencyError("a", "b")
	out := FormatForCLI(fmt.Errorf("ingest: %w", err))

	assert.Contains(t, out, ErrCodeConsistency)
	assert.Contains(t, out, "kbank rebuild")
}

func TestLogAttr(t *testing.T) {
	// Given: a plain error and a wrapped BankError with details
	plain := LogAttr(errors.New("disk full"))
	be := NotFound("doc-7").WithDetail("kb", "notes")
	grouped := LogAttr(fmt.Errorf("delete: %w", be))

	// Then: the plain error is one string, the BankError a group
	assert.Equal(t, "error", plain.Key)
	assert.Equal(t, "disk full", plain.Value.String())

	require.Equal(t, "error", grouped.Key)
	require.Equal(t, slog.KindGroup, grouped.Value.Kind())
	got := make(map[string]string)
	var keys []string
	for _, a := range grouped.Value.Group() {
		keys = append(keys, a.Key)
		got[a.Key] = a.Value.String()
	}
	assert.Equal(t, []string{"message", "code", "severity", "retryable", "document_id", "kb"}, keys)
	assert.Equal(t, ErrCodeDocumentNotFound, got["code"])
	assert.Equal(t, "delete: "+be.Error(), got["message"])
	assert.Equal(t, "doc-7", got["document_id"])

	assert.True(t, LogAttr(nil).Equal(slog.Attr{}))
}
