package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/kbank/internal/config"
)

// Operation represents the type of file system operation.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
	// OpRename indicates a file was moved away from Path. The new name
	// arrives as its own OpCreate.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Removes reports whether the operation means the file is gone.
func (op Operation) Removes() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is relative to the watched root, slash separated.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait for more events on a path.
	DebounceWindow time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	EventBufferSize int

	// Extensions lists the watched file extensions, with the leading dot.
	// Empty watches every file.
	Extensions []string
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		EventBufferSize: 100,
		Extensions:      []string{".md", ".markdown", ".txt", ".rst"},
	}
}

// OptionsFrom maps the watch section of the configuration.
func OptionsFrom(cfg config.WatchConfig) Options {
	opts := DefaultOptions()
	if d := cfg.DebounceDuration(); d > 0 {
		opts.DebounceWindow = d
	}
	if len(cfg.Extensions) > 0 {
		opts.Extensions = cfg.Extensions
	}
	return opts
}

// Validate checks that options are valid.
func (o Options) Validate() error {
	if o.DebounceWindow < 0 {
		return fmt.Errorf("debounce window cannot be negative: %v", o.DebounceWindow)
	}
	if o.EventBufferSize < 0 {
		return fmt.Errorf("event buffer size cannot be negative: %d", o.EventBufferSize)
	}
	for _, ext := range o.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	return nil
}

// WithDefaults returns options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}

// Matches reports whether a file name has a watched extension.
func (o Options) Matches(name string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range o.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
