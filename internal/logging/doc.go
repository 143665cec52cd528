// Package logging configures structured JSON logging for kbank.
//
// Logs go to a size-rotated file under ~/.kbank/logs/ and, unless the
// command runs quietly, to stderr as well. The viewer reads those files
// back for `kbank logs`.
package logging
