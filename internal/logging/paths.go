package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.kbank/logs, or a directory under the temp dir
// when there is no home directory.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kbank", "logs")
	}
	return filepath.Join(home, ".kbank", "logs")
}

// DefaultLogPath returns the log file used by the kbank binary.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "kbank.log")
}

// FindLogFile returns explicit when it exists, otherwise the default log path.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found at %s; run any kbank command with --debug first", path)
	}
	return path, nil
}
