package chunk

import (
	"log/slog"
	"strings"

	"github.com/Aman-CERP/kbank/internal/config"
)

// CounterNamed returns the token counter for a config name. Unknown names
// fall back to CharRatioCounter.
func CounterNamed(name string) TokenCounter {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "words", "word":
		return WordCounter{}
	default:
		return CharRatioCounter{}
	}
}

// FromConfig builds a Chunker from the chunking section of the config.
func FromConfig(cfg config.ChunkingConfig, logger *slog.Logger) *Chunker {
	return New(Options{
		TargetTokens:  cfg.TargetTokens,
		MaxTokens:     cfg.MaxTokens,
		MinTokens:     cfg.MinTokens,
		OverlapTokens: cfg.OverlapTokens,
	}, WithCounter(CounterNamed(cfg.Counter)), WithLogger(logger))
}
