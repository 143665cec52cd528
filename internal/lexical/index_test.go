package lexical

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/scope"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	a, err := NewAnalyzer()
	require.NoError(t, err)
	return New(scope.NewLock("kb-test"), a, nil)
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.DocID
	}
	return out
}

func TestIndex_AddHonoursRequestedID(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	id, err := ix.Add(ctx, "Goroutines and channels", "doc-42")
	require.NoError(t, err)
	assert.Equal(t, "doc-42", id)

	generated, err := ix.Add(ctx, "Another document", "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated)
	assert.NotEqual(t, "doc-42", generated)
	assert.Equal(t, 2, ix.Len())
}

func TestIndex_AddDuplicateIDFails(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	_, err := ix.Add(ctx, "first", "same")
	require.NoError(t, err)
	_, err = ix.Add(ctx, "second", "same")

	require.Error(t, err)
	assert.ErrorIs(t, err, bankerrors.ErrDuplicateDocument)
	content, _ := ix.Get("same")
	assert.Equal(t, "first", content)
}

// Scenario: a document added and then searched by its own text ranks
// first with a score of 1.
func TestIndex_SearchOwnTextRanksFirst(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	text := "Kubernetes operators reconcile custom resources"

	_, err := ix.Add(ctx, "Baking sourdough bread at home", "a")
	require.NoError(t, err)
	_, err = ix.Add(ctx, text, "b")
	require.NoError(t, err)
	_, err = ix.Add(ctx, "Kubernetes pods and services", "c")
	require.NoError(t, err)

	results, err := ix.Search(ctx, text, 10, nil)
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.Equal(t, "b", results[0].DocID)
	assert.Equal(t, 1.0, results[0].Score)
	assert.NotContains(t, ids(results), "a", "zero-score documents are not returned")
	for _, r := range results {
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.Greater(t, r.Score, 0.0)
	}
}

var selfMatchVocabulary = strings.Fields(`kernel socket buffer cluster replica
	shard ledger cursor schema tensor gradient lattice vertex packet router
	gateway bucket mirror beacon cipher quorum token parser lexer compiler
	thread mutex channel pointer module library binary archive journal
	snapshot checksum widget sensor turbine harbor glacier canyon meadow`)

func randomText(rng *rand.Rand, words int) string {
	out := make([]string, words)
	for i := range out {
		out[i] = selfMatchVocabulary[rng.Intn(len(selfMatchVocabulary))]
	}
	return strings.Join(out, " ")
}

func TestIndex_SelfMatchScoresExactlyOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for trial := 0; trial < 200; trial++ {
		ix := newTestIndex(t)
		texts := make([]string, 8)
		for i := range texts {
			texts[i] = randomText(rng, 40)
			_, err := ix.Add(ctx, texts[i], fmt.Sprintf("d%02d", i))
			require.NoError(t, err)
		}

		results, err := ix.Search(ctx, texts[3], 10, nil)
		require.NoError(t, err)
		require.NotEmpty(t, results)

		scores := make(map[string]float64, len(results))
		for _, r := range results {
			scores[r.DocID] = r.Score
		}
		require.Equal(t, 1.0, scores["d03"], "trial %d", trial)
		require.Equal(t, 1.0, results[0].Score, "trial %d", trial)
	}
}

func TestIndex_IdenticalDocumentsScoreExactlyOne(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ctx := context.Background()

	for trial := 0; trial < 100; trial++ {
		ix := newTestIndex(t)
		text := randomText(rng, 40)
		_, err := ix.Add(ctx, text, "a")
		require.NoError(t, err)
		_, err = ix.Add(ctx, text, "b")
		require.NoError(t, err)
		_, err = ix.Add(ctx, randomText(rng, 40), "c")
		require.NoError(t, err)

		results, err := ix.SearchByDocID(ctx, "a", 10, nil)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		require.Equal(t, "b", results[0].DocID, "trial %d", trial)
		require.Equal(t, 1.0, results[0].Score, "trial %d", trial)
	}
}

func TestIndex_RemovedDocumentNeverMatches(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	_, err := ix.Add(ctx, "vector databases store embeddings", "gone")
	require.NoError(t, err)
	_, err = ix.Add(ctx, "relational databases store rows", "kept")
	require.NoError(t, err)

	assert.True(t, ix.Remove("gone"))
	assert.False(t, ix.Remove("gone"))

	results, err := ix.Search(ctx, "vector embeddings databases", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, ids(results))

	results, err = ix.Search(ctx, "vector embeddings", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "terms unique to the removed document match nothing")
	assert.NotContains(t, ix.IDs(), "gone")
}

func TestIndex_TiesBrokenByAscendingID(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	for _, id := range []string{"d3", "d1", "d2"} {
		_, err := ix.Add(ctx, "identical content about caching", id)
		require.NoError(t, err)
	}

	results, err := ix.Search(ctx, "caching", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, ids(results))
}

func TestIndex_AllowedFilterAppliesBeforeTopK(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	// strong matches outside the allowed set would fill top-k if the
	// filter ran after truncation
	for i := 0; i < 5; i++ {
		_, err := ix.Add(ctx, "raft consensus raft consensus leader", fmt.Sprintf("strong-%d", i))
		require.NoError(t, err)
	}
	_, err := ix.Add(ctx, "a short note mentioning raft once among other words", "weak")
	require.NoError(t, err)

	allowed := map[string]struct{}{"weak": {}}
	results, err := ix.Search(ctx, "raft consensus", 2, allowed)
	require.NoError(t, err)
	assert.Equal(t, []string{"weak"}, ids(results))
}

func TestIndex_SearchByDocIDExcludesSelf(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	_, err := ix.Add(ctx, "Postgres indexing with btree indexes", "p1")
	require.NoError(t, err)
	_, err = ix.Add(ctx, "Postgres indexing with btree indexes explained", "p2")
	require.NoError(t, err)
	_, err = ix.Add(ctx, "Gardening tips for spring", "g1")
	require.NoError(t, err)

	results, err := ix.SearchByDocID(ctx, "p1", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids(results))

	_, err = ix.SearchByDocID(ctx, "missing", 5, nil)
	assert.ErrorIs(t, err, bankerrors.ErrDocumentNotFound)
}

func TestIndex_ReplaceSwapsContent(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	_, err := ix.Add(ctx, "old topic about ferrets", "x")
	require.NoError(t, err)

	require.NoError(t, ix.Replace(ctx, "x", "new topic about compilers"))

	results, err := ix.Search(ctx, "ferrets", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	results, err = ix.Search(ctx, "compilers", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids(results))
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_LoadReplacesContents(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	_, err := ix.Add(ctx, "stale", "old")
	require.NoError(t, err)

	err = ix.Load(ctx, []Document{{ID: "b", Content: "beta"}, {ID: "a", Content: "alpha"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ix.IDs())

	err = ix.Load(ctx, []Document{{ID: "a", Content: "x"}, {ID: "a", Content: "y"}})
	assert.ErrorIs(t, err, bankerrors.ErrDuplicateDocument)
}

func TestIndex_EmptyQueryReturnsNothing(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	_, err := ix.Add(ctx, "something", "s")
	require.NoError(t, err)

	results, err := ix.Search(ctx, "   ", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = ix.Search(ctx, "the and of", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "stop words alone carry no terms")
}

func TestIndex_LockedMethodsPanicWithoutLock(t *testing.T) {
	ix := newTestIndex(t)

	assert.PanicsWithValue(t, bankerrors.ConcurrencyViolation("kb-test", "lexical.Add"), func() {
		_, _ = ix.AddLocked(context.Background(), "text", "id")
	})
	assert.Panics(t, func() { ix.RemoveLocked("id") })
	assert.PanicsWithValue(t, bankerrors.ConcurrencyViolation("kb-test", "lexical.Load"), func() {
		_ = ix.LoadLocked(context.Background(), []Document{{ID: "a", Content: "text"}})
	})
}

func TestIndex_SnippetIsBounded(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()
	long := strings.Repeat("telemetry pipeline   details\n", 50)
	_, err := ix.Add(ctx, long, "long")
	require.NoError(t, err)

	results, err := ix.Search(ctx, "telemetry", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, strings.HasSuffix(results[0].Snippet, "..."))
	assert.NotContains(t, results[0].Snippet, "\n")
	assert.Equal(t, SnippetRunes+3, len([]rune(results[0].Snippet)))
}
