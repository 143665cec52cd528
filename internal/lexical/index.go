// Package lexical implements the whole-document sparse-vector index.
//
// Documents are analyzed into term frequencies. A document's weight for a
// term is (1+ln tf)*idf with the smoothed idf = ln((1+N)/(1+df))+1, and
// search ranks by cosine similarity. Removal excises a document from the
// postings, so a removed document can never match again.
package lexical

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/scope"
)

// SnippetRunes bounds the snippet returned with each result.
const SnippetRunes = 200

// Result is one ranked document.
type Result struct {
	DocID   string
	Score   float64
	Snippet string
}

// Document is a bulk-load input.
type Document struct {
	ID      string
	Content string
}

type entry struct {
	content string
	tf      map[string]int
}

// Index is the lexical index of one knowledge base. Mutations take the
// knowledge base's write lock; searches take the read side.
type Index struct {
	lock     *scope.Lock
	analyzer *Analyzer
	logger   *slog.Logger

	docs     map[string]*entry
	postings map[string]map[string]int // term -> doc -> tf

	// norms caches squared document vector lengths for the current corpus. Any
	// mutation changes N and df, so it is dropped on every write.
	normsMu sync.Mutex
	norms   map[string]float64
}

// New creates an empty index guarded by lock.
func New(lock *scope.Lock, analyzer *Analyzer, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		lock:     lock,
		analyzer: analyzer,
		logger:   logger,
		docs:     make(map[string]*entry),
		postings: make(map[string]map[string]int),
	}
}

// Add registers content under requestedID, or under a fresh UUID when
// requestedID is empty, and returns the id used.
func (ix *Index) Add(ctx context.Context, content, requestedID string) (string, error) {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	return ix.AddLocked(ctx, content, requestedID)
}

// AddLocked is Add for callers already holding the write lock.
func (ix *Index) AddLocked(ctx context.Context, content, requestedID string) (string, error) {
	ix.lock.AssertHeld("lexical.Add")
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := requestedID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := ix.docs[id]; exists {
		return "", bankerrors.New(bankerrors.ErrCodeDuplicateDocument, "document already indexed", nil).
			WithDetail("document_id", id)
	}

	ix.insert(id, content)
	return id, nil
}

// Replace swaps the content of docID as one remove-then-add step.
func (ix *Index) Replace(ctx context.Context, docID, content string) error {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	return ix.ReplaceLocked(ctx, docID, content)
}

// ReplaceLocked is Replace for callers already holding the write lock. A
// missing docID is simply added.
func (ix *Index) ReplaceLocked(ctx context.Context, docID, content string) error {
	ix.lock.AssertHeld("lexical.Replace")
	if err := ctx.Err(); err != nil {
		return err
	}
	if docID == "" {
		return bankerrors.InputError("replace requires a document id")
	}
	ix.excise(docID)
	ix.insert(docID, content)
	return nil
}

// Remove excises docID. It reports whether the document was present.
func (ix *Index) Remove(docID string) bool {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	return ix.RemoveLocked(docID)
}

// RemoveLocked is Remove for callers already holding the write lock.
func (ix *Index) RemoveLocked(docID string) bool {
	ix.lock.AssertHeld("lexical.Remove")
	return ix.excise(docID)
}

// Load clears the index and bulk-adds docs. Ids must be unique.
func (ix *Index) Load(ctx context.Context, docs []Document) error {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	return ix.LoadLocked(ctx, docs)
}

// LoadLocked is Load for callers already holding the write lock, so that
// the snapshot being loaded cannot go stale before it lands.
func (ix *Index) LoadLocked(ctx context.Context, docs []Document) error {
	ix.lock.AssertHeld("lexical.Load")

	ix.docs = make(map[string]*entry, len(docs))
	ix.postings = make(map[string]map[string]int)
	ix.invalidate()

	for i, d := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := ix.AddLocked(ctx, d.Content, d.ID); err != nil {
			return err
		}
	}
	ix.logger.Debug("lexical_loaded",
		slog.String("kb", ix.lock.KB()),
		slog.Int("documents", len(ix.docs)),
		slog.Int("terms", len(ix.postings)))
	return nil
}

// Get returns the stored content of docID.
func (ix *Index) Get(docID string) (string, bool) {
	ix.lock.RLock()
	defer ix.lock.RUnlock()
	e, ok := ix.docs[docID]
	if !ok {
		return "", false
	}
	return e.content, true
}

// Has reports whether docID is indexed.
func (ix *Index) Has(docID string) bool {
	ix.lock.RLock()
	defer ix.lock.RUnlock()
	_, ok := ix.docs[docID]
	return ok
}

// IDs returns all document ids in ascending order.
func (ix *Index) IDs() []string {
	ix.lock.RLock()
	defer ix.lock.RUnlock()
	ids := make([]string, 0, len(ix.docs))
	for id := range ix.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.lock.RLock()
	defer ix.lock.RUnlock()
	return len(ix.docs)
}

// Search ranks documents against query. When allowed is non-nil only those
// ids are considered, and the filter applies before truncation to topK.
// Only documents with a positive score are returned.
func (ix *Index) Search(ctx context.Context, query string, topK int, allowed map[string]struct{}) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qtf := ix.analyzer.TermFrequencies(query)

	ix.lock.RLock()
	defer ix.lock.RUnlock()
	return ix.rank(qtf, topK, allowed, ""), nil
}

// SearchByDocID ranks the other documents against docID's own vector.
func (ix *Index) SearchByDocID(ctx context.Context, docID string, topK int, allowed map[string]struct{}) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.lock.RLock()
	defer ix.lock.RUnlock()
	e, ok := ix.docs[docID]
	if !ok {
		return nil, bankerrors.NotFound(docID)
	}
	return ix.rank(e.tf, topK, allowed, docID), nil
}

func (ix *Index) insert(id, content string) {
	tf := ix.analyzer.TermFrequencies(content)
	ix.docs[id] = &entry{content: content, tf: tf}
	for term, n := range tf {
		p, ok := ix.postings[term]
		if !ok {
			p = make(map[string]int)
			ix.postings[term] = p
		}
		p[id] = n
	}
	ix.invalidate()
}

func (ix *Index) excise(id string) bool {
	e, ok := ix.docs[id]
	if !ok {
		return false
	}
	for term := range e.tf {
		p := ix.postings[term]
		delete(p, id)
		if len(p) == 0 {
			delete(ix.postings, term)
		}
	}
	delete(ix.docs, id)
	ix.invalidate()
	return true
}

func (ix *Index) invalidate() {
	ix.normsMu.Lock()
	ix.norms = nil
	ix.normsMu.Unlock()
}

func (ix *Index) idf(term string) float64 {
	n := float64(len(ix.docs))
	df := float64(len(ix.postings[term]))
	return math.Log((1+n)/(1+df)) + 1
}

func weight(tf int, idf float64) float64 {
	if tf <= 0 {
		return 0
	}
	return (1 + math.Log(float64(tf))) * idf
}

// sortedTerms returns the terms of tf in ascending order. Norms and dot
// products are always summed in this order so that a document compared with
// itself scores exactly 1.
func sortedTerms(tf map[string]int) []string {
	terms := make([]string, 0, len(tf))
	for term := range tf {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// squaredNorm is the squared length of the weighted vector of tf.
func (ix *Index) squaredNorm(tf map[string]int, terms []string) float64 {
	var sq float64
	for _, term := range terms {
		w := weight(tf[term], ix.idf(term))
		sq += w * w
	}
	return sq
}

// docNorms returns the squared vector lengths of every document. Callers
// hold the read lock; the cache has its own mutex because readers share
// that lock.
func (ix *Index) docNorms() map[string]float64 {
	ix.normsMu.Lock()
	defer ix.normsMu.Unlock()
	if ix.norms != nil {
		return ix.norms
	}

	norms := make(map[string]float64, len(ix.docs))
	for id, e := range ix.docs {
		norms[id] = ix.squaredNorm(e.tf, sortedTerms(e.tf))
	}
	ix.norms = norms
	return norms
}

func (ix *Index) rank(qtf map[string]int, topK int, allowed map[string]struct{}, exclude string) []Result {
	if len(qtf) == 0 || len(ix.docs) == 0 || topK <= 0 {
		return nil
	}

	terms := sortedTerms(qtf)
	qsq := ix.squaredNorm(qtf, terms)
	dots := make(map[string]float64)
	for _, term := range terms {
		idf := ix.idf(term)
		qw := weight(qtf[term], idf)
		for id, tf := range ix.postings[term] {
			if id == exclude {
				continue
			}
			if allowed != nil {
				if _, ok := allowed[id]; !ok {
					continue
				}
			}
			dots[id] += qw * weight(tf, idf)
		}
	}
	if qsq == 0 || len(dots) == 0 {
		return nil
	}
	norms := ix.docNorms()

	results := make([]Result, 0, len(dots))
	for id, dot := range dots {
		dsq := norms[id]
		if dsq == 0 || dot <= 0 {
			continue
		}
		// sqrt(x*x) == x exactly, so identical vectors give dot/x == 1
		score := math.Min(dot/math.Sqrt(qsq*dsq), 1)
		results = append(results, Result{DocID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Snippet = Snippet(ix.docs[results[i].DocID].content)
	}
	return results
}

// Snippet collapses whitespace and cuts text to SnippetRunes runes.
func Snippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(s) <= SnippetRunes {
		return s
	}
	r := []rune(s)
	return string(r[:SnippetRunes]) + "..."
}
