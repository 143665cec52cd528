package errors

import (
	"errors"
	"fmt"
)

// BankError is the structured error type for kbank.
// It provides rich context for error handling, logging, and user presentation.
type BankError struct {
	// Code is the unique error code (e.g., "ERR_207_DOCUMENT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Upstream, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *BankError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *BankError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with BankError.
func (e *BankError) Is(target error) bool {
	if t, ok := target.(*BankError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *BankError) WithDetail(key, value string) *BankError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *BankError) WithSuggestion(suggestion string) *BankError {
	e.Suggestion = suggestion
	return e
}

// New creates a new BankError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *BankError {
	return &BankError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a BankError from an existing error.
// The error's message becomes the BankError message.
func Wrap(code string, err error) *BankError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel values for errors.Is matching by code.
var (
	ErrConfigInvalid        = &BankError{Code: ErrCodeConfigInvalid}
	ErrInvalidInput         = &BankError{Code: ErrCodeInvalidInput}
	ErrDocumentNotFound     = &BankError{Code: ErrCodeDocumentNotFound}
	ErrDuplicateDocument    = &BankError{Code: ErrCodeDuplicateDocument}
	ErrConsistency          = &BankError{Code: ErrCodeConsistency}
	ErrConcurrencyViolation = &BankError{Code: ErrCodeConcurrencyViolation}
	ErrUpstream             = &BankError{Code: ErrCodeUpstreamUnavailable}
	ErrDimensionMismatch    = &BankError{Code: ErrCodeDimensionMismatch}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *BankError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a durable store error.
func StoreError(message string, cause error) *BankError {
	return New(ErrCodeStoreFailed, message, cause)
}

// InputError reports empty or invalid text. Callers that can degrade
// (the chunker, search) return an empty result instead of raising it.
func InputError(message string) *BankError {
	return New(ErrCodeInvalidInput, message, nil)
}

// CapacityError reports a semantic unit that still exceeds the token cap
// after sentence-level splitting.
func CapacityError(tokens, maxTokens int) *BankError {
	return New(ErrCodeChunkCapacity,
		fmt.Sprintf("unit of %d tokens exceeds max %d after sentence split", tokens, maxTokens), nil)
}

// UpstreamFailure creates a retryable error for a failed external call.
func UpstreamFailure(message string, cause error) *BankError {
	return New(ErrCodeUpstreamUnavailable, message, cause)
}

// PartialUpstreamFailure records that some items of a batch came back empty.
func PartialUpstreamFailure(failed, total int) *BankError {
	return New(ErrCodeUpstreamPartial,
		fmt.Sprintf("%d of %d items failed upstream", failed, total), nil)
}

// ConsistencyError reports an id assigned by an index that differs from the
// id the durable store expects.
func ConsistencyError(expected, got string) *BankError {
	return New(ErrCodeConsistency,
		fmt.Sprintf("index assigned id %q, store expects %q", got, expected), nil).
		WithDetail("expected_id", expected).
		WithDetail("assigned_id", got).
		WithSuggestion("run 'kbank rebuild' to regenerate indexes from the store")
}

// ConcurrencyViolation reports a write attempted without the knowledge-base
// write lock. It is a programming error and is raised with panic.
func ConcurrencyViolation(kb, op string) *BankError {
	return New(ErrCodeConcurrencyViolation,
		fmt.Sprintf("%s on knowledge base %q without write lock", op, kb), nil)
}

// NotFound creates a document-not-found error.
func NotFound(docID string) *BankError {
	return New(ErrCodeDocumentNotFound, fmt.Sprintf("document %q not found", docID), nil).
		WithDetail("document_id", docID)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *BankError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if any BankError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	var be *BankError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var be *BankError
	if errors.As(err, &be) {
		return be.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a BankError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var be *BankError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// GetCategory extracts the category from a BankError in the chain.
func GetCategory(err error) Category {
	var be *BankError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// asBankError finds the first BankError in err's chain.
func asBankError(err error) (*BankError, bool) {
	var be *BankError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
