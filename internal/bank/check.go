package bank

import (
	"context"
	"log/slog"
	"sort"
	"time"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/store"
)

// InconsistencyType categorizes a divergence between the store and an index.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical is a lexical entry with no stored document.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyMissingLexical is a stored document the lexical index lacks.
	InconsistencyMissingLexical
	// InconsistencyOrphanVector is a chunk index document with no stored document.
	InconsistencyOrphanVector
	// InconsistencyVectorCount is a document whose indexed chunk count differs
	// from its stored embedded chunks.
	InconsistencyVectorCount
)

// String returns a human-readable name of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyVectorCount:
		return "vector_count"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected divergence.
type Inconsistency struct {
	Type       InconsistencyType
	DocumentID string
	Details    string
}

// CheckResult is the outcome of Check.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether no divergence was found.
func (r *CheckResult) Consistent() bool { return len(r.Inconsistencies) == 0 }

// Check compares both indexes against the store, which is the source of
// truth. Any finding means the indexes should be rebuilt.
func (b *Bank) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	docs, err := b.m.source.ListDocuments(ctx, b.kb)
	if err != nil {
		return nil, err
	}
	rows, err := b.m.source.ListChunkVectors(ctx, b.kb)
	if err != nil {
		return nil, err
	}
	stored := make(map[string]bool, len(docs))
	for _, d := range docs {
		stored[d.ID] = true
	}
	embedded := make(map[string]int)
	for _, r := range rows {
		embedded[r.DocumentID]++
	}

	var issues []Inconsistency
	for _, id := range b.lexical.IDs() {
		if !stored[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanLexical, DocumentID: id,
				Details: "lexical entry without a stored document"})
		}
	}
	for _, d := range docs {
		if !b.lexical.Has(d.ID) {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingLexical, DocumentID: d.ID,
				Details: "stored document missing from the lexical index"})
		}
	}

	indexed := b.m.vectors.Documents(b.kb)
	ids := make([]string, 0, len(indexed)+len(embedded))
	seen := make(map[string]bool)
	for id := range indexed {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range embedded {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		switch {
		case !stored[id]:
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVector, DocumentID: id,
				Details: "indexed chunks without a stored document"})
		case indexed[id] != embedded[id]:
			issues = append(issues, Inconsistency{Type: InconsistencyVectorCount, DocumentID: id,
				Details: "indexed chunk count differs from stored embeddings"})
		}
	}

	res := &CheckResult{Checked: len(docs), Inconsistencies: issues, Duration: time.Since(start)}
	if !res.Consistent() {
		b.m.logger.Warn("index_inconsistent",
			slog.String("kb", b.kb),
			slog.Int("issues", len(issues)))
	}
	return res, nil
}

// Stats summarizes one knowledge base.
type Stats struct {
	KnowledgeBase string
	Documents     int
	ByStatus      map[store.Status]int
	Chunks        int
	Embedded      int
	LexicalDocs   int
	IndexedChunks int
	Dimensions    int
	Model         string
	Breaker       bankerrors.State
}

// Stats returns counts from the store and both indexes.
func (b *Bank) Stats(ctx context.Context) (*Stats, error) {
	st, err := b.m.source.Stats(ctx, b.kb)
	if err != nil {
		return nil, err
	}
	return &Stats{
		KnowledgeBase: b.kb,
		Documents:     st.Documents,
		ByStatus:      st.ByStatus,
		Chunks:        st.Chunks,
		Embedded:      st.Embedded,
		LexicalDocs:   b.lexical.Len(),
		IndexedChunks: b.m.vectors.Count(b.kb),
		Dimensions:    b.m.vectors.Dimensions(b.kb),
		Model:         b.m.gateway.ModelName(),
		Breaker:       b.m.gateway.BreakerState(),
	}, nil
}
