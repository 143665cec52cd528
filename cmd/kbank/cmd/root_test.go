package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/kbank/internal/bank"
	"github.com/Aman-CERP/kbank/internal/config"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/lexical"
	"github.com/Aman-CERP/kbank/internal/watcher"
)

// isolate points every kbank path at temp directories and returns the
// working directory used as --config-dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("KBANK_DATA_DIR", filepath.Join(home, "data"))
	t.Setenv("NO_COLOR", "1")
	return t.TempDir()
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "list", "show", "delete", "search", "related", "path",
		"concepts", "duplicates", "status", "check", "rebuild", "reembed", "watch", "config", "logs", "version"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestIngestAndSearch(t *testing.T) {
	// Given: two ingested notes
	dir := isolate(t)
	raft := writeNote(t, dir, "raft.md", "Raft elects a leader that replicates the log to followers.")
	bread := writeNote(t, dir, "bread.md", "Sourdough bread rises slowly in a cold fermentation.")

	out, err := run(t, dir, "ingest", raft, "--id", "raft", "--concept", "consensus")
	require.NoError(t, err)
	assert.Contains(t, out, "added raft")
	assert.Contains(t, out, "completed")

	_, err = run(t, dir, "ingest", bread, "--id", "bread")
	require.NoError(t, err)

	// When: searching lexically in JSON
	out, err = run(t, dir, "search", "leader", "election", "--json")

	// Then: the raft note ranks first
	require.NoError(t, err)
	var results []lexical.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "raft", results[0].DocID)

	// And: chunk search returns chunks of stored documents
	out, err = run(t, dir, "search", "replicates the log", "--chunks")
	require.NoError(t, err)
	assert.Contains(t, out, "SIMILARITY")
}

func TestIngest_ReplaceAndStdin(t *testing.T) {
	dir := isolate(t)
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("first text from stdin"))
	cmd.SetArgs([]string{"--config-dir", dir, "ingest", "-", "--id", "scratch", "--json"})
	require.NoError(t, cmd.Execute())

	var res bank.IngestResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.Equal(t, "scratch", res.DocumentID)
	assert.False(t, res.Replaced)

	path := writeNote(t, dir, "scratch.md", "second text")
	out, err := run(t, dir, "ingest", path, "--id", "scratch")
	require.NoError(t, err)
	assert.Contains(t, out, "replaced scratch")

	out, err = run(t, dir, "show", "scratch")
	require.NoError(t, err)
	assert.Contains(t, out, "second text")
	assert.Contains(t, out, "scratch.md")
}

func TestIngest_DirectorySyncsFiles(t *testing.T) {
	dir := isolate(t)
	notes := filepath.Join(dir, "notes")
	writeNote(t, notes, "a.md", "alpha note")
	writeNote(t, notes, "sub/b.txt", "beta note")
	writeNote(t, notes, "skip.go", "package skip")

	out, err := run(t, dir, "ingest", notes)
	require.NoError(t, err)
	assert.Contains(t, out, "2 ingested")

	out, err = run(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, watcher.DocumentID("a.md"))
	assert.Contains(t, out, watcher.DocumentID("sub/b.txt"))
	assert.NotContains(t, out, "skip.go")
}

func TestKnowledgeBasesAreSeparate(t *testing.T) {
	dir := isolate(t)
	path := writeNote(t, dir, "x.md", "kubernetes operators reconcile resources")

	_, err := run(t, dir, "--kb", "work", "ingest", path, "--id", "x")
	require.NoError(t, err)

	out, err := run(t, dir, "--kb", "home", "search", "kubernetes", "--json")
	require.NoError(t, err)
	var results []lexical.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Empty(t, results)

	_, err = run(t, dir, "--kb", "home", "show", "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, bankerrors.ErrDocumentNotFound)
}

func TestGraphCommands(t *testing.T) {
	dir := isolate(t)
	for _, n := range []struct{ id, text, concepts string }{
		{"intro", "HTTP requests and responses.", "http"},
		{"proxy", "Reverse proxies forward HTTP to backends.", "http,proxy"},
		{"lb", "Load balancers spread traffic across backends.", "proxy,load balancing"},
	} {
		path := writeNote(t, dir, n.id+".md", n.text)
		args := []string{"ingest", path, "--id", n.id}
		for _, c := range strings.Split(n.concepts, ",") {
			args = append(args, "--concept", c)
		}
		_, err := run(t, dir, args...)
		require.NoError(t, err)
	}

	out, err := run(t, dir, "related", "proxy")
	require.NoError(t, err)
	assert.Contains(t, out, "intro")
	assert.Contains(t, out, "lb")
	assert.Contains(t, out, "shared_concept")

	out, err = run(t, dir, "path", "http", "load balancing", "--json")
	require.NoError(t, err)
	var hops []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &hops))
	require.NotEmpty(t, hops)
	assert.Equal(t, "lb", hops[len(hops)-1]["DocID"])

	out, err = run(t, dir, "concepts")
	require.NoError(t, err)
	assert.Contains(t, out, "http")
	assert.Contains(t, out, "proxy")

	_, err = run(t, dir, "related", "proxy", "--kind", "nonsense")
	assert.ErrorIs(t, err, bankerrors.ErrInvalidInput)
}

func TestDuplicatesCommand(t *testing.T) {
	dir := isolate(t)
	text := "Go channels pass values between goroutines safely."
	for _, id := range []string{"one", "two"} {
		path := writeNote(t, dir, id+".md", text)
		_, err := run(t, dir, "ingest", path, "--id", id)
		require.NoError(t, err)
	}
	path := writeNote(t, dir, "other.md", "Sourdough starter needs daily feeding.")
	_, err := run(t, dir, "ingest", path, "--id", "other")
	require.NoError(t, err)

	out, err := run(t, dir, "duplicates")
	require.NoError(t, err)
	assert.Contains(t, out, "one (2 documents)")
	assert.Contains(t, out, "two")
	assert.NotContains(t, out, "other")
}

func TestMaintenanceCommands(t *testing.T) {
	dir := isolate(t)
	path := writeNote(t, dir, "n.md", "Notes about vector search and cosine similarity.")
	_, err := run(t, dir, "ingest", path, "--id", "n")
	require.NoError(t, err)

	out, err := run(t, dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge base default")
	assert.Contains(t, out, "completed 1")

	out, err = run(t, dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "1 documents consistent")

	out, err = run(t, dir, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "rebuilt 1 documents")

	out, err = run(t, dir, "reembed", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "reprocessed 1 of 1")

	_, err = run(t, dir, "delete", "n")
	require.NoError(t, err)
	_, err = run(t, dir, "delete", "n")
	assert.ErrorIs(t, err, bankerrors.ErrDocumentNotFound)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, dir, "config", "init", "--project")
	require.NoError(t, err)
	assert.Contains(t, out, ".kbank.yaml")

	_, err = run(t, dir, "config", "init", "--project")
	require.Error(t, err)

	_, err = run(t, dir, "config", "init", "--project", "--force")
	require.NoError(t, err)
	backups, err := config.ListBackups(filepath.Join(dir, ".kbank.yaml"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	out, err = run(t, dir, "config", "show", "--json")
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 0.85, cfg.Duplicates.Threshold)
}

func TestVersionCmd(t *testing.T) {
	dir := isolate(t)
	out, err := run(t, dir, "version", "--short")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	out, err = run(t, dir, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kbank")
}

func TestLogsCmd_ReadsLogFile(t *testing.T) {
	dir := isolate(t)
	path := writeNote(t, dir, "n.md", "logged")
	_, err := run(t, dir, "ingest", path, "--id", "n")
	require.NoError(t, err)

	out, err := run(t, dir, "logs", "--no-color", "--filter", "document_processed")
	require.NoError(t, err)
	assert.Contains(t, out, "document_processed")
}

func TestParseConcepts(t *testing.T) {
	got, err := parseConcepts([]string{"raft", "leader election:0.5"})
	require.NoError(t, err)
	assert.Equal(t, []bank.Concept{{Name: "raft", Confidence: 1}, {Name: "leader election", Confidence: 0.5}}, got)

	_, err = parseConcepts([]string{"x:2"})
	assert.Error(t, err)
	_, err = parseConcepts([]string{":0.5"})
	assert.Error(t, err)
}
