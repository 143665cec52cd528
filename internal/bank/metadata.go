package bank

import (
	"context"

	"github.com/Aman-CERP/kbank/internal/graph"
	"github.com/Aman-CERP/kbank/internal/store"
)

// Metadata is the structured metadata of one document. Every field but
// DocumentID is optional.
type Metadata = graph.Metadata

// Concept is an extracted concept label with its confidence.
type Concept = graph.Concept

// metadataProvider reads graph metadata straight from the store.
type metadataProvider struct {
	source Source
}

func (p metadataProvider) ListMetadata(ctx context.Context, kb string) ([]graph.Metadata, error) {
	rows, err := p.source.ListMetadata(ctx, kb)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Metadata, len(rows))
	for i, r := range rows {
		out[i] = fromStore(r)
	}
	return out, nil
}

func fromStore(m store.Metadata) graph.Metadata {
	concepts := make([]graph.Concept, len(m.Concepts))
	for i, c := range m.Concepts {
		concepts[i] = graph.Concept{Name: c.Name, Confidence: c.Confidence}
	}
	return graph.Metadata{
		DocumentID: m.DocumentID,
		SourceType: m.SourceType,
		Concepts:   concepts,
		TechStack:  m.TechStack,
		SkillLevel: m.SkillLevel,
		ClusterID:  m.ClusterID,
	}
}

func toStore(m graph.Metadata) store.Metadata {
	concepts := make([]store.Concept, len(m.Concepts))
	for i, c := range m.Concepts {
		concepts[i] = store.Concept{Name: c.Name, Confidence: c.Confidence}
	}
	return store.Metadata{
		DocumentID: m.DocumentID,
		SourceType: m.SourceType,
		Concepts:   concepts,
		TechStack:  m.TechStack,
		SkillLevel: m.SkillLevel,
		ClusterID:  m.ClusterID,
	}
}
