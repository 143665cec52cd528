package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzer_Terms(t *testing.T) {
	a, err := NewAnalyzer()
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"stop words removed", "the cat and the hat", []string{"cat", "hat"}},
		{"stemmed", "connections connected", []string{"connect", "connect"}},
		{"camel case split", "getUserName", []string{"get", "user", "name"}},
		{"snake case split", "max_batch_size", []string{"max", "batch", "size"}},
		{"short pieces dropped", "a b cd", []string{"cd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Terms(tt.text))
		})
	}
}

func TestSplitIdentifier_Offsets(t *testing.T) {
	pieces := splitIdentifier("getUser_byID")
	require.Len(t, pieces, 4)
	word := "getUser_byID"
	for _, p := range pieces {
		assert.Equal(t, p.text, word[p.offset:p.offset+len(p.text)])
	}
	assert.Equal(t, []string{"get", "User", "by", "ID"}, []string{pieces[0].text, pieces[1].text, pieces[2].text, pieces[3].text})
}
