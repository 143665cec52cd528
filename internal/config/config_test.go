package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// isolate points the user config at an empty temp dir.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 8192, cfg.Chunking.TargetTokens)
	assert.Equal(t, 16384, cfg.Chunking.MaxTokens)
	assert.Equal(t, 256, cfg.Chunking.MinTokens)
	assert.Equal(t, 256, cfg.Chunking.OverlapTokens)
	assert.Equal(t, "chars", cfg.Chunking.Counter)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Embeddings.InterBatchDelayDuration())
	assert.Equal(t, 0.85, cfg.Duplicates.Threshold)
	assert.Equal(t, 2000, cfg.Graph.WarnThreshold)
	assert.Contains(t, cfg.DataDir, ".kbank")
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Chunking, cfg.Chunking)
}

func TestLoad_ProjectYaml_OverridesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	yaml := `
chunking:
  target_tokens: 512
  max_tokens: 1024
  min_tokens: 32
  overlap_tokens: 16
embeddings:
  provider: ollama
  ollama_host: http://gpu:11434
duplicates:
  threshold: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbank.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Chunking.TargetTokens)
	assert.Equal(t, 16, cfg.Chunking.OverlapTokens)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "http://gpu:11434", cfg.Embeddings.OllamaHost)
	assert.Equal(t, 0.9, cfg.Duplicates.Threshold)
	// untouched values keep defaults
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbank.yaml"), []byte("search:\n  top_k: 7\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbank.yml"), []byte("search:\n  top_k: 3\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.TopK)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbank.yaml"), []byte("chunking: [unclosed"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, bankerrors.ErrConfigInvalid)
}

func TestLoad_InvalidValueIsConfigError(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbank.yaml"), []byte("duplicates:\n  threshold: 1.5\n"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.ErrorIs(t, err, bankerrors.ErrConfigInvalid)
	assert.Contains(t, bankerrors.FormatForCLI(err), "duplicates.threshold")
	assert.Contains(t, bankerrors.FormatForCLI(err), "kbank config init --force")
}

func TestLoad_LayeringOrder(t *testing.T) {
	// Given: user config, project config and env var all set the log level
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("logging:\n  level: warn\nsearch:\n  top_k: 5\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kbank.yml"), []byte("logging:\n  level: error\n"), 0o644))

	// When: loading without the env var
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project beats user, user beats defaults
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Search.TopK)

	// And: env beats everything
	t.Setenv("KBANK_LOG_LEVEL", "debug")
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("KBANK_EMBEDDINGS_PROVIDER", "ollama")
	t.Setenv("KBANK_DATA_DIR", "/var/lib/kbank")
	t.Setenv("KBANK_DUPLICATE_THRESHOLD", "0")
	t.Setenv("KBANK_EMBEDDINGS_BATCH_SIZE", "not-a-number")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "/var/lib/kbank", cfg.DataDir)
	assert.Equal(t, 0.0, cfg.Duplicates.Threshold)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"target above max", func(c *Config) { c.Chunking.TargetTokens = c.Chunking.MaxTokens + 1 }},
		{"overlap not below target", func(c *Config) { c.Chunking.OverlapTokens = c.Chunking.TargetTokens }},
		{"unknown counter", func(c *Config) { c.Chunking.Counter = "bytes" }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }},
		{"bad delay", func(c *Config) { c.Embeddings.InterBatchDelay = "soon" }},
		{"threshold above one", func(c *Config) { c.Duplicates.Threshold = 1.5 }},
		{"zero neighbors", func(c *Config) { c.Duplicates.NeighborK = 0 }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.TopK = 42
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".kbank.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Search.TopK)
}

func TestBackupFile_KeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, got, "missing file is not an error")

	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupFile(path)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
}
