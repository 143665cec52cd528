package bank

import (
	"context"

	"github.com/Aman-CERP/kbank/internal/graph"
)

// Graph returns the knowledge graph of this knowledge base. The snapshot
// is cached until the next mutation.
func (b *Bank) Graph(ctx context.Context) (*graph.Graph, error) {
	b.graphMu.Lock()
	defer b.graphMu.Unlock()

	gen := b.generation.Load()
	if b.graph != nil && b.graphGen == gen {
		return b.graph, nil
	}
	g, err := b.graphs.Build(ctx, b.kb)
	if err != nil {
		return nil, err
	}
	b.graph, b.graphGen = g, gen
	return g, nil
}

// RelatedDocuments returns the documents related to docID, strongest
// first. An empty kind matches every kind.
func (b *Bank) RelatedDocuments(ctx context.Context, docID string, kind graph.EdgeKind, minStrength float64, limit int) ([]graph.Relation, error) {
	if _, err := b.document(ctx, docID); err != nil {
		return nil, err
	}
	g, err := b.Graph(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Node(docID); !ok {
		// stored, but no metadata yet
		return nil, nil
	}
	return g.Related(docID, kind, minStrength, limit)
}

// LearningPath returns a chain of related documents leading from the
// concept start to the concept end, or nil when there is none.
func (b *Bank) LearningPath(ctx context.Context, start, end string, maxSteps int) ([]graph.Hop, error) {
	g, err := b.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.FindPath(start, end, maxSteps), nil
}

// ConceptCloud returns the most common concepts of this knowledge base.
func (b *Bank) ConceptCloud(ctx context.Context, limit int) ([]graph.ConceptCount, error) {
	g, err := b.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.ConceptCloud(limit), nil
}

// DocumentsWithConcept returns the ids of documents carrying concept.
func (b *Bank) DocumentsWithConcept(ctx context.Context, concept string) ([]string, error) {
	g, err := b.Graph(ctx)
	if err != nil {
		return nil, err
	}
	return g.DocumentsWithConcept(concept), nil
}
