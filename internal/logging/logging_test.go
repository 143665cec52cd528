package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath_UnderKbankDir(t *testing.T) {
	path := DefaultLogPath()
	assert.Equal(t, "kbank.log", filepath.Base(path))
	assert.Contains(t, path, filepath.Join(".kbank", "logs"))
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.WriteToStderr)
	assert.Equal(t, DefaultConfig().MaxFiles, cfg.MaxFiles)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a config pointing at a temp file
	path := filepath.Join(t.TempDir(), "logs", "kbank.log")
	cfg := Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2}

	// When: logging through the configured logger
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("ingest_complete", slog.String("kb", "notes"), slog.Int("chunks", 3))
	cleanup()

	// Then: only the info record is in the file, as JSON
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"ingest_complete"`)
	assert.Contains(t, out, `"kb":"notes"`)
	assert.NotContains(t, out, "hidden")
}

func TestSetup_NoOutputsDiscards(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	defer cleanup()
	logger.Info("nowhere")
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromString(tt.in), tt.in)
	}
}

func TestFindLogFile_Explicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	_, err := FindLogFile(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	got, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbank.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	w.SetImmediateSync(false)

	chunk := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "only maxFiles rotated copies are kept")
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbank.log")
	w, err := NewRotatingWriter(path, 10, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = w.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 400, strings.Count(string(data), "line\n"))
}

func TestViewer_TailFiltersAndFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbank.log")
	lines := strings.Join([]string{
		`{"time":"2026-01-02T03:04:05.000Z","level":"DEBUG","msg":"chunked","kb":"a"}`,
		`{"time":"2026-01-02T03:04:06.000Z","level":"INFO","msg":"embedded","kb":"a","count":2}`,
		`not json`,
		`{"time":"2026-01-02T03:04:07.000Z","level":"ERROR","msg":"failed","kb":"b"}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{Level: "info", NoColor: true}, &buf)
	entries, err := v.Tail(path, 3)
	require.NoError(t, err)

	// "not json" has no level and parses as info; debug is filtered out.
	require.Len(t, entries, 3)
	assert.Equal(t, "embedded", entries[0].Msg)
	assert.False(t, entries[1].IsValid)
	assert.Equal(t, "failed", entries[2].Msg)

	v.Print(entries)
	out := buf.String()
	assert.Contains(t, out, "03:04:06.000 INFO  embedded count=2 kb=a")
	assert.Contains(t, out, "not json")
}

func TestViewer_PatternFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbank.log")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"level":"INFO","msg":"ingest","kb":"notes"}`+"\n"+
			`{"level":"INFO","msg":"search","kb":"other"}`+"\n"), 0o644))

	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`"kb":"notes"`), NoColor: true}, &bytes.Buffer{})
	entries, err := v.Tail(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ingest", entries[0].Msg)
}
