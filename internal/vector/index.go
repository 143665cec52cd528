// Package vector holds the dense chunk index, partitioned by knowledge base.
//
// Search is exact cosine similarity over the partition. Large partitions
// can use an HNSW graph to pick candidates, which are then re-scored
// exactly, so ranking and filtering never depend on approximate distances.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/scope"
)

// Entry is one chunk vector.
type Entry struct {
	ChunkID         string
	DocumentID      string
	KnowledgeBaseID string
	ChunkIndex      int
	Vector          []float32
	TokenCount      int
	Content         string
}

// Result is one ranked chunk.
type Result struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Similarity float64
}

// Options tune the optional ANN path.
type Options struct {
	// ANNMinVectors enables HNSW candidates for partitions with at least
	// this many vectors. Zero keeps every search exact.
	ANNMinVectors int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int

	// Oversample multiplies topK when drawing ANN candidates (default: 4)
	Oversample int
}

func (o Options) withDefaults() Options {
	if o.M <= 0 {
		o.M = 16
	}
	if o.EfSearch <= 0 {
		o.EfSearch = 64
	}
	if o.Oversample <= 0 {
		o.Oversample = 4
	}
	return o
}

// Index is the chunk index across knowledge bases. Each partition is
// guarded by its knowledge base's scope.Lock.
type Index struct {
	locks  *scope.Registry
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	parts map[string]*partition
}

// New creates an empty index.
func New(locks *scope.Registry, opts Options, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		locks:  locks,
		opts:   opts.withDefaults(),
		logger: logger,
		parts:  make(map[string]*partition),
	}
}

func (ix *Index) partition(kb string) *partition {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.parts[kb]
	if !ok {
		p = newPartition()
		ix.parts[kb] = p
	}
	return p
}

// Replace swaps the full chunk set of docID in kb.
func (ix *Index) Replace(ctx context.Context, kb, docID string, entries []Entry) error {
	lock := ix.locks.For(kb)
	lock.Lock()
	defer lock.Unlock()
	return ix.ReplaceLocked(ctx, kb, docID, entries)
}

// ReplaceLocked is Replace for callers already holding kb's write lock.
// Either every entry is stored or none is.
func (ix *Index) ReplaceLocked(ctx context.Context, kb, docID string, entries []Entry) error {
	ix.locks.For(kb).AssertHeld("vector.Replace")
	if err := ctx.Err(); err != nil {
		return err
	}

	p := ix.partition(kb)
	dims := p.dims
	if p.remaining(docID) == 0 {
		dims = 0
	}
	for _, e := range entries {
		if e.DocumentID != docID {
			return bankerrors.InternalError(
				fmt.Sprintf("entry %s belongs to %s, not %s", e.ChunkID, e.DocumentID, docID), nil)
		}
		if len(e.Vector) == 0 {
			return bankerrors.InputError(fmt.Sprintf("entry %s has no vector", e.ChunkID))
		}
		if dims == 0 {
			dims = len(e.Vector)
		}
		if len(e.Vector) != dims {
			return dimensionMismatch(dims, len(e.Vector))
		}
	}

	p.removeDocument(docID)
	for _, e := range entries {
		e.KnowledgeBaseID = kb
		p.add(e)
	}
	if p.size() == 0 {
		p.dims = 0
	} else {
		p.dims = dims
	}
	ix.reindex(kb, p)
	return nil
}

// DeleteDocument removes every chunk of docID and returns how many went.
func (ix *Index) DeleteDocument(kb, docID string) int {
	lock := ix.locks.For(kb)
	lock.Lock()
	defer lock.Unlock()
	return ix.DeleteDocumentLocked(kb, docID)
}

// DeleteDocumentLocked is DeleteDocument for callers holding the lock.
func (ix *Index) DeleteDocumentLocked(kb, docID string) int {
	ix.locks.For(kb).AssertHeld("vector.DeleteDocument")
	p := ix.partition(kb)
	n := p.removeDocument(docID)
	if n > 0 {
		if p.size() == 0 {
			p.dims = 0
		}
		ix.reindex(kb, p)
	}
	return n
}

// Load replaces the whole partition of kb.
func (ix *Index) Load(ctx context.Context, kb string, entries []Entry) error {
	lock := ix.locks.For(kb)
	lock.Lock()
	defer lock.Unlock()
	return ix.LoadLocked(ctx, kb, entries)
}

// LoadLocked is Load for callers already holding kb's write lock.
func (ix *Index) LoadLocked(ctx context.Context, kb string, entries []Entry) error {
	ix.locks.For(kb).AssertHeld("vector.Load")

	fresh := newPartition()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(e.Vector) == 0 {
			continue
		}
		if fresh.dims == 0 {
			fresh.dims = len(e.Vector)
		}
		if len(e.Vector) != fresh.dims {
			return dimensionMismatch(fresh.dims, len(e.Vector))
		}
		e.KnowledgeBaseID = kb
		fresh.add(e)
	}
	ix.reindex(kb, fresh)

	ix.mu.Lock()
	ix.parts[kb] = fresh
	ix.mu.Unlock()

	ix.logger.Debug("vector_loaded",
		slog.String("kb", kb),
		slog.Int("chunks", fresh.size()),
		slog.Int("dims", fresh.dims))
	return nil
}

// Search ranks chunks of kb by cosine similarity to query. Chunks below
// minSimilarity are dropped before ranking; ties order by ChunkID.
func (ix *Index) Search(ctx context.Context, query []float32, kb string, topK int, minSimilarity float64) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	lock := ix.locks.For(kb)
	lock.RLock()
	defer lock.RUnlock()

	p := ix.partition(kb)
	if p.size() == 0 {
		return nil, nil
	}
	if len(query) != p.dims {
		return nil, dimensionMismatch(p.dims, len(query))
	}
	q := normalized(query)
	if q == nil {
		return nil, nil
	}

	var candidates []*item
	if p.ann != nil {
		candidates = p.annCandidates(q, max(topK*ix.opts.Oversample, ix.opts.EfSearch))
	} else {
		candidates = p.all()
	}

	results := make([]Result, 0, len(candidates))
	for _, it := range candidates {
		sim := dot(q, it.unit)
		if sim < minSimilarity {
			continue
		}
		results = append(results, Result{
			ChunkID:    it.ChunkID,
			DocumentID: it.DocumentID,
			ChunkIndex: it.ChunkIndex,
			Content:    it.Content,
			Similarity: sim,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of chunks stored for kb.
func (ix *Index) Count(kb string) int {
	lock := ix.locks.For(kb)
	lock.RLock()
	defer lock.RUnlock()
	return ix.partition(kb).size()
}

// Dimensions returns the vector dimension of kb, or 0 when empty.
func (ix *Index) Dimensions(kb string) int {
	lock := ix.locks.For(kb)
	lock.RLock()
	defer lock.RUnlock()
	return ix.partition(kb).dims
}

// DocumentChunks returns the number of chunks stored for docID.
func (ix *Index) DocumentChunks(kb, docID string) int {
	lock := ix.locks.For(kb)
	lock.RLock()
	defer lock.RUnlock()
	return len(ix.partition(kb).byDoc[docID])
}

// Documents returns the chunk count of every document in kb.
func (ix *Index) Documents(kb string) map[string]int {
	lock := ix.locks.For(kb)
	lock.RLock()
	defer lock.RUnlock()
	p := ix.partition(kb)
	out := make(map[string]int, len(p.byDoc))
	for doc, chunks := range p.byDoc {
		out[doc] = len(chunks)
	}
	return out
}

// reindex rebuilds the ANN graph when the partition is large enough.
func (ix *Index) reindex(kb string, p *partition) {
	if ix.opts.ANNMinVectors <= 0 || p.size() < ix.opts.ANNMinVectors {
		p.ann = nil
		return
	}
	p.buildANN(ix.opts.M, ix.opts.EfSearch)
	ix.logger.Debug("vector_ann_rebuilt",
		slog.String("kb", kb),
		slog.Int("nodes", p.size()))
}

func dimensionMismatch(want, got int) error {
	return bankerrors.New(bankerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector has %d dimensions, index expects %d", got, want), nil).
		WithDetail("expected", fmt.Sprint(want)).
		WithDetail("got", fmt.Sprint(got))
}

func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	n := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return math.Max(-1, math.Min(1, s))
}
