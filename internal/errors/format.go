package errors

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI renders err for the terminal: the message, a hint when one
// is known, and the code to quote in bug reports. Errors that are not a
// BankError are reported as internal.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	be, ok := asBankError(err)
	if !ok {
		be = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", be.Message)
	if be.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", be.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", be.Code)
	return sb.String()
}

// LogAttr returns err as a log attribute keyed "error". A plain error is a
// single string; a BankError becomes a group carrying the full message,
// code, severity, retryable flag, cause and details (in key order).
func LogAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	be, ok := asBankError(err)
	if !ok {
		return slog.String("error", err.Error())
	}

	args := []any{
		slog.String("message", err.Error()),
		slog.String("code", be.Code),
		slog.String("severity", string(be.Severity)),
		slog.Bool("retryable", be.Retryable),
	}
	if be.Cause != nil {
		args = append(args, slog.String("cause", be.Cause.Error()))
	}
	keys := make([]string, 0, len(be.Details))
	for k := range be.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, slog.String(k, be.Details[k]))
	}
	return slog.Group("error", args...)
}
