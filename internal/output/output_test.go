package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_BufferIsNeverColored(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Success("indexed 3 documents")
	w.Warning("1 chunk failed")
	w.Error("store locked")

	assert.False(t, w.Color())
	assert.NotContains(t, buf.String(), "\033[")
	assert.Contains(t, buf.String(), "✓ indexed 3 documents")
	assert.Contains(t, buf.String(), "! 1 chunk failed")
	assert.Contains(t, buf.String(), "✗ store locked")
}

func TestWriter_ColorWrapsMarkers(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &Writer{out: buf, useColor: true}

	w.Success("done")

	assert.Equal(t, ansiGreen+"✓"+ansiReset+" done\n", buf.String())
}

func TestWriter_StatusWithoutMarkerIsIndented(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPlain(buf).Status("", "detail")
	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_KeyValueAligns(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPlain(buf).KeyValue([2]string{"documents", "4"}, [2]string{"kb", "notes"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"  documents: 4", "  kb:        notes"}, lines)
}

func TestWriter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPlain(buf).Table([]string{"ID", "SCORE"}, [][]string{{"doc-1", "0.91"}, {"d2", "0.50"}})

	assert.Equal(t, "ID     SCORE\ndoc-1  0.91\nd2     0.50\n", buf.String())
}

func TestWriter_Progress(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewPlain(buf)

	w.Progress(0, 0, "nothing")
	assert.Empty(t, buf.String())

	w.Progress(2, 2, "embedding")
	assert.Contains(t, buf.String(), "100% embedding\n")
}

func TestRenderProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░", renderProgressBar(0, 4, 4))
	assert.Equal(t, "██░░", renderProgressBar(2, 4, 4))
	assert.Equal(t, "████", renderProgressBar(9, 4, 4))
	assert.Equal(t, "░░░░", renderProgressBar(1, 0, 4))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"line one\nline two", 100, "line one line two"},
		{"abcdefgh", 5, "abcd…"},
		{"abc", 0, "abc"},
		{"abc", 1, "…"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.in, tt.n))
	}
}
