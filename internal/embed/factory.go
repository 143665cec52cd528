package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/kbank/internal/config"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, deterministic)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider converts a string to ProviderType.
// Returns ProviderStatic for an empty string.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic, nil
	case "ollama":
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q", s)
	}
}

// NewEmbedder creates the configured provider wrapped in an LRU cache.
// There is no silent fallback: an unreachable Ollama is an error, since
// vectors from a different model would not be comparable with those
// already stored.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var inner Embedder
	switch provider {
	case ProviderOllama:
		oc := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			oc.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if t := cfg.TimeoutDuration(); t > 0 {
			oc.Timeout = t
		}
		oc.Dimensions = cfg.Dimensions
		o, err := NewOllamaEmbedder(ctx, oc)
		if err != nil {
			return nil, err
		}
		inner = o
	default:
		inner = NewStaticEmbedder(cfg.Dimensions)
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
