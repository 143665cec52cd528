package dedup

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/lexical"
	"github.com/Aman-CERP/kbank/internal/scope"
)

// fakeNeighbors serves canned neighbour lists.
type fakeNeighbors struct {
	lists   map[string][]lexical.Result
	queried []string
}

func (f *fakeNeighbors) IDs() []string {
	ids := make([]string, 0, len(f.lists))
	for id := range f.lists {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeNeighbors) SearchByDocID(ctx context.Context, docID string, topK int, allowed map[string]struct{}) ([]lexical.Result, error) {
	f.queried = append(f.queried, docID)
	list, ok := f.lists[docID]
	if !ok {
		return nil, bankerrors.NotFound(docID)
	}
	var out []lexical.Result
	for _, r := range list {
		if allowed != nil {
			if _, ok := allowed[r.DocID]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func r(id string, score float64) lexical.Result {
	return lexical.Result{DocID: id, Score: score}
}

func newLexical(t *testing.T, docs map[string]string) *lexical.Index {
	t.Helper()
	a, err := lexical.NewAnalyzer()
	require.NoError(t, err)
	ix := lexical.New(scope.NewLock("kb-test"), a, nil)
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		_, err := ix.Add(context.Background(), docs[id], id)
		require.NoError(t, err)
	}
	return ix
}

func assertDisjoint(t *testing.T, groups []Group) {
	t.Helper()
	seen := make(map[string]bool)
	for _, g := range groups {
		assert.Equal(t, len(g.Members)+1, g.Size)
		ids := []string{g.Primary}
		for _, m := range g.Members {
			ids = append(ids, m.DocID)
		}
		for _, id := range ids {
			assert.False(t, seen[id], "%s is in two groups", id)
			seen[id] = true
		}
	}
}

// Scenario: two documents with identical content form one group of two.
func TestFindDuplicates_IdenticalDocuments(t *testing.T) {
	text := "Configuring retries with exponential backoff for the embedding client"
	ix := newLexical(t, map[string]string{
		"a": text,
		"b": text,
		"c": "A recipe for lemon cake with buttercream frosting",
	})

	groups, err := New(ix, 0, nil).FindDuplicates(context.Background(), nil, 0.85, 0)

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "a", groups[0].Primary)
	assert.Equal(t, 2, groups[0].Size)
	require.Len(t, groups[0].Members, 1)
	assert.Equal(t, "b", groups[0].Members[0].DocID)
	assert.Equal(t, 1.0, groups[0].Members[0].Similarity)
}

func TestFindDuplicates_ExactThresholdGroupsIdenticalDocuments(t *testing.T) {
	words := strings.Fields("cache eviction policy shard replica quorum ledger snapshot journal cursor")
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 100; trial++ {
		picked := make([]string, 40)
		for i := range picked {
			picked[i] = words[rng.Intn(len(words))]
		}
		text := strings.Join(picked, " ")
		ix := newLexical(t, map[string]string{"a": text, "b": text})

		groups, err := New(ix, 0, nil).FindDuplicates(context.Background(), nil, 1.0, 0)

		require.NoError(t, err)
		require.Len(t, groups, 1, "trial %d", trial)
		assert.Equal(t, "a", groups[0].Primary)
		assert.Equal(t, 2, groups[0].Size)
	}
}

func TestFindDuplicates_NeverClaimsTwice(t *testing.T) {
	f := &fakeNeighbors{lists: map[string][]lexical.Result{
		"a": {r("b", 0.9)},
		"b": {r("a", 0.9), r("c", 0.95)},
		"c": {r("b", 0.95), r("d", 0.9)},
		"d": {r("c", 0.9)},
	}}

	groups, err := New(f, 5, nil).FindDuplicates(context.Background(), nil, 0.85, 0)

	require.NoError(t, err)
	assertDisjoint(t, groups)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Primary)
	assert.Equal(t, []Member{{DocID: "b", Similarity: 0.9}}, groups[0].Members)
	// b was claimed by a, so c keeps only d
	assert.Equal(t, "c", groups[1].Primary)
	assert.Equal(t, []Member{{DocID: "d", Similarity: 0.9}}, groups[1].Members)
	assert.NotContains(t, f.queried, "b")
	assert.NotContains(t, f.queried, "d")
}

func TestFindDuplicates_ThresholdAndOrdering(t *testing.T) {
	f := &fakeNeighbors{lists: map[string][]lexical.Result{
		"a": {r("b", 0.9), r("x", 0.5)},
		"b": {r("a", 0.9)},
		"c": {r("d", 0.99), r("e", 0.9), r("f", 0.86)},
		"d": {}, "e": {}, "f": {}, "x": {},
	}}

	groups, err := New(f, 5, nil).FindDuplicates(context.Background(), nil, 0.85, 0)

	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "c", groups[0].Primary, "largest group first")
	assert.Equal(t, 4, groups[0].Size)
	assert.Equal(t, "a", groups[1].Primary)
	assert.Equal(t, 2, groups[1].Size, "x is below threshold")
}

func TestFindDuplicates_StopsAtLimit(t *testing.T) {
	f := &fakeNeighbors{lists: map[string][]lexical.Result{
		"a": {r("b", 0.9)}, "b": {},
		"c": {r("d", 0.9)}, "d": {},
		"e": {r("f", 0.9)}, "f": {},
	}}

	groups, err := New(f, 5, nil).FindDuplicates(context.Background(), nil, 0.85, 2)

	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "a", groups[0].Primary)
	assert.Equal(t, "c", groups[1].Primary)
	assert.NotContains(t, f.queried, "e")
}

func TestFindDuplicates_ScopeRestrictsCandidatesAndNeighbours(t *testing.T) {
	text := "Vector search with cosine similarity over normalized embeddings"
	ix := newLexical(t, map[string]string{"a": text, "b": text, "c": text})

	groups, err := New(ix, 0, nil).FindDuplicates(context.Background(), []string{"c", "b", "b", "gone"}, 0.85, 0)

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "b", groups[0].Primary)
	assert.Equal(t, []string{"c"}, []string{groups[0].Members[0].DocID})
}

func TestFindDuplicates_InvalidThreshold(t *testing.T) {
	d := New(&fakeNeighbors{}, 0, nil)
	for _, th := range []float64{0, -0.5, 1.5} {
		_, err := d.FindDuplicates(context.Background(), nil, th, 0)
		assert.Equal(t, bankerrors.ErrCodeInvalidInput, bankerrors.GetCode(err), "threshold %g", th)
	}
}

func TestFindDuplicates_Cancelled(t *testing.T) {
	f := &fakeNeighbors{lists: map[string][]lexical.Result{"a": {}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(f, 0, nil).FindDuplicates(ctx, nil, 0.9, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
