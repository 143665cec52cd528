package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// Config is the complete kbank configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Graph      GraphConfig      `yaml:"graph" json:"graph"`
	Duplicates DuplicatesConfig `yaml:"duplicates" json:"duplicates"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ChunkingConfig holds the chunker token budgets.
type ChunkingConfig struct {
	TargetTokens  int `yaml:"target_tokens" json:"target_tokens"`
	MaxTokens     int `yaml:"max_tokens" json:"max_tokens"`
	MinTokens     int `yaml:"min_tokens" json:"min_tokens"`
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
	// Counter selects token counting: "chars" (4 characters per token) or "words".
	Counter string `yaml:"counter" json:"counter"`
}

// EmbeddingsConfig configures the embedding provider and the batching gateway.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"` // static | ollama
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Timeout    string `yaml:"timeout" json:"timeout"`

	BatchSize       int    `yaml:"batch_size" json:"batch_size"`
	InterBatchDelay string `yaml:"inter_batch_delay" json:"inter_batch_delay"`
	MaxParallel     int    `yaml:"max_parallel" json:"max_parallel"`
	MaxRetries      int    `yaml:"max_retries" json:"max_retries"`
	CacheSize       int    `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures chunk search defaults and the optional ANN path.
type SearchConfig struct {
	TopK          int     `yaml:"top_k" json:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity" json:"min_similarity"`
	// ANNMinVectors enables HNSW candidate generation for partitions at
	// least this large. Zero keeps search exact.
	ANNMinVectors int `yaml:"ann_min_vectors" json:"ann_min_vectors"`
}

// GraphConfig configures the knowledge graph builder.
type GraphConfig struct {
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	WarnThreshold int     `yaml:"warn_threshold" json:"warn_threshold"`
}

// DuplicatesConfig configures duplicate detection defaults.
type DuplicatesConfig struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	NeighborK int     `yaml:"neighbor_k" json:"neighbor_k"`
	Limit     int     `yaml:"limit" json:"limit"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	CacheMB     int    `yaml:"cache_mb" json:"cache_mb"`
	BusyTimeout string `yaml:"busy_timeout" json:"busy_timeout"`
}

// WatchConfig configures directory watching.
type WatchConfig struct {
	Debounce   string   `yaml:"debounce" json:"debounce"`
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// LoggingConfig configures the log file.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Chunking: ChunkingConfig{
			TargetTokens:  8192,
			MaxTokens:     16384,
			MinTokens:     256,
			OverlapTokens: 256,
			Counter:       "chars",
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "static",
			Model:           "nomic-embed-text",
			Dimensions:      256,
			OllamaHost:      "",
			Timeout:         "60s",
			BatchSize:       32,
			InterBatchDelay: "100ms",
			MaxParallel:     2,
			MaxRetries:      3,
			CacheSize:       1000,
		},
		Search: SearchConfig{
			TopK:          10,
			MinSimilarity: 0.0,
			ANNMinVectors: 5000,
		},
		Graph: GraphConfig{
			MinConfidence: 0.0,
			WarnThreshold: 2000,
		},
		Duplicates: DuplicatesConfig{
			Threshold: 0.85,
			NeighborK: 20,
			Limit:     50,
		},
		Store: StoreConfig{
			CacheMB:     64,
			BusyTimeout: "5s",
		},
		Watch: WatchConfig{
			Debounce:   "500ms",
			Extensions: []string{".md", ".markdown", ".txt", ".rst"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kbank", "data")
	}
	return filepath.Join(home, ".kbank", "data")
}

// GetUserConfigPath returns the user configuration file:
// $XDG_CONFIG_HOME/kbank/config.yaml, or ~/.config/kbank/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbank", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kbank", "config.yaml")
	}
	return filepath.Join(home, ".config", "kbank", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for dir, in increasing precedence:
//  1. defaults
//  2. user config
//  3. project config (.kbank.yaml, then .kbank.yml, in dir)
//  4. KBANK_* environment variables
//
// The result is validated.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".kbank.yaml", ".kbank.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, bankerrors.ConfigError("invalid configuration: "+err.Error(), err).
			WithSuggestion("fix the value or regenerate the file with 'kbank config init --force'")
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return bankerrors.ConfigError(fmt.Sprintf("failed to parse config file %s: %v", path, err), err).
			WithDetail("path", path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies the non-zero values of other into c.
func (c *Config) mergeWith(other *Config) {
	setInt(&c.Version, other.Version)
	setString(&c.DataDir, other.DataDir)

	setInt(&c.Chunking.TargetTokens, other.Chunking.TargetTokens)
	setInt(&c.Chunking.MaxTokens, other.Chunking.MaxTokens)
	setInt(&c.Chunking.MinTokens, other.Chunking.MinTokens)
	setInt(&c.Chunking.OverlapTokens, other.Chunking.OverlapTokens)
	setString(&c.Chunking.Counter, other.Chunking.Counter)

	setString(&c.Embeddings.Provider, other.Embeddings.Provider)
	setString(&c.Embeddings.Model, other.Embeddings.Model)
	setInt(&c.Embeddings.Dimensions, other.Embeddings.Dimensions)
	setString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	setString(&c.Embeddings.Timeout, other.Embeddings.Timeout)
	setInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	setString(&c.Embeddings.InterBatchDelay, other.Embeddings.InterBatchDelay)
	setInt(&c.Embeddings.MaxParallel, other.Embeddings.MaxParallel)
	setInt(&c.Embeddings.MaxRetries, other.Embeddings.MaxRetries)
	setInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)

	setInt(&c.Search.TopK, other.Search.TopK)
	setFloat(&c.Search.MinSimilarity, other.Search.MinSimilarity)
	setInt(&c.Search.ANNMinVectors, other.Search.ANNMinVectors)

	setFloat(&c.Graph.MinConfidence, other.Graph.MinConfidence)
	setInt(&c.Graph.WarnThreshold, other.Graph.WarnThreshold)

	setFloat(&c.Duplicates.Threshold, other.Duplicates.Threshold)
	setInt(&c.Duplicates.NeighborK, other.Duplicates.NeighborK)
	setInt(&c.Duplicates.Limit, other.Duplicates.Limit)

	setInt(&c.Store.CacheMB, other.Store.CacheMB)
	setString(&c.Store.BusyTimeout, other.Store.BusyTimeout)

	setString(&c.Watch.Debounce, other.Watch.Debounce)
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}

	setString(&c.Logging.Level, other.Logging.Level)
	setInt(&c.Logging.MaxSizeMB, other.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxFiles, other.Logging.MaxFiles)
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies KBANK_* environment variables. Unparseable
// values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBANK_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KBANK_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("KBANK_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("KBANK_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("KBANK_EMBEDDINGS_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("KBANK_CHUNK_TARGET_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.TargetTokens = n
		}
	}
	if v := os.Getenv("KBANK_CHUNK_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.MaxTokens = n
		}
	}
	// Explicit zero is allowed here, unlike in YAML.
	if v := os.Getenv("KBANK_DUPLICATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Duplicates.Threshold = f
		}
	}
	if v := os.Getenv("KBANK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	ch := c.Chunking
	if ch.TargetTokens <= 0 || ch.MaxTokens <= 0 {
		return fmt.Errorf("chunking.target_tokens and chunking.max_tokens must be positive")
	}
	if ch.TargetTokens > ch.MaxTokens {
		return fmt.Errorf("chunking.target_tokens (%d) must not exceed chunking.max_tokens (%d)", ch.TargetTokens, ch.MaxTokens)
	}
	if ch.MinTokens < 0 || ch.MinTokens > ch.TargetTokens {
		return fmt.Errorf("chunking.min_tokens must be between 0 and target_tokens, got %d", ch.MinTokens)
	}
	if ch.OverlapTokens < 0 || ch.OverlapTokens >= ch.TargetTokens {
		return fmt.Errorf("chunking.overlap_tokens must be between 0 and target_tokens, got %d", ch.OverlapTokens)
	}
	switch strings.ToLower(ch.Counter) {
	case "chars", "words":
	default:
		return fmt.Errorf("chunking.counter must be 'chars' or 'words', got %s", ch.Counter)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.MaxRetries < 0 {
		return fmt.Errorf("embeddings.max_retries must be non-negative, got %d", c.Embeddings.MaxRetries)
	}
	for name, v := range map[string]string{
		"embeddings.inter_batch_delay": c.Embeddings.InterBatchDelay,
		"embeddings.timeout":           c.Embeddings.Timeout,
		"store.busy_timeout":           c.Store.BusyTimeout,
		"watch.debounce":               c.Watch.Debounce,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("search.min_similarity must be between -1 and 1, got %f", c.Search.MinSimilarity)
	}
	if c.Graph.MinConfidence < 0 || c.Graph.MinConfidence > 1 {
		return fmt.Errorf("graph.min_confidence must be between 0 and 1, got %f", c.Graph.MinConfidence)
	}
	if c.Duplicates.Threshold < 0 || c.Duplicates.Threshold > 1 {
		return fmt.Errorf("duplicates.threshold must be between 0 and 1, got %f", c.Duplicates.Threshold)
	}
	if c.Duplicates.NeighborK <= 0 {
		return fmt.Errorf("duplicates.neighbor_k must be positive, got %d", c.Duplicates.NeighborK)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// InterBatchDelayDuration returns the parsed embeddings.inter_batch_delay.
func (e EmbeddingsConfig) InterBatchDelayDuration() time.Duration {
	d, _ := parseDuration(e.InterBatchDelay)
	return d
}

// TimeoutDuration returns the parsed embeddings.timeout.
func (e EmbeddingsConfig) TimeoutDuration() time.Duration {
	d, _ := parseDuration(e.Timeout)
	return d
}

// BusyTimeoutDuration returns the parsed store.busy_timeout.
func (s StoreConfig) BusyTimeoutDuration() time.Duration {
	d, _ := parseDuration(s.BusyTimeout)
	return d
}

// DebounceDuration returns the parsed watch.debounce.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, _ := parseDuration(w.Debounce)
	return d
}

// parseDuration treats "" and "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
