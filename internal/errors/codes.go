// Package errors provides structured error handling for kbank.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (database, index files)
//   - 3XX: Upstream errors (embedding provider)
//   - 4XX: Input and validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates durable store and index file errors.
	CategoryStorage Category = "STORAGE"
	// CategoryUpstream indicates failures of an external capability.
	CategoryUpstream Category = "UPSTREAM"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStoreFailed      = "ERR_201_STORE_FAILED"
	ErrCodeStoreLocked      = "ERR_202_STORE_LOCKED"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"
	ErrCodeDocumentNotFound = "ERR_207_DOCUMENT_NOT_FOUND"

	// Upstream errors (300-399)
	ErrCodeUpstreamTimeout     = "ERR_301_UPSTREAM_TIMEOUT"
	ErrCodeUpstreamUnavailable = "ERR_302_UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamPartial     = "ERR_303_UPSTREAM_PARTIAL"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeEmptyText         = "ERR_404_EMPTY_TEXT"
	ErrCodeDuplicateDocument = "ERR_407_DUPLICATE_DOCUMENT"
	ErrCodeChunkCapacity     = "ERR_408_CHUNK_CAPACITY"

	// Internal errors (500-599)
	ErrCodeInternal             = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed      = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed         = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed       = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed          = "ERR_505_INDEX_FAILED"
	ErrCodeConsistency          = "ERR_506_CONSISTENCY"
	ErrCodeConcurrencyViolation = "ERR_507_CONCURRENCY_VIOLATION"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryUpstream
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeConsistency, ErrCodeConcurrencyViolation:
		return SeverityFatal
	case ErrCodeChunkCapacity, ErrCodeUpstreamPartial:
		return SeverityWarning
	}

	// Retryable upstream errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Structural errors are never retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeUpstreamTimeout, ErrCodeUpstreamUnavailable, ErrCodeStoreLocked:
		return true
	default:
		return false
	}
}
