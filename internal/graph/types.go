// Package graph builds a relationship graph over the documents of one
// knowledge base from their concept, technology and cluster metadata.
//
// A graph is a transient snapshot: it is rebuilt from current metadata on
// demand and never persisted. Building compares every pair of documents,
// which is O(n²) and only suitable for low thousands of documents. Past
// that the build needs an inverted index from concept to documents and
// incremental edge maintenance on metadata change.
package graph

import (
	"context"
	"strings"
)

// EdgeKind names the relation an edge encodes.
type EdgeKind string

const (
	KindSharedConcept EdgeKind = "shared_concept"
	KindSharedTech    EdgeKind = "shared_tech"
	KindSameCluster   EdgeKind = "same_cluster"
)

// Kinds lists every edge kind in a fixed order.
var Kinds = []EdgeKind{KindSharedConcept, KindSharedTech, KindSameCluster}

// ParseKind resolves a kind name. The empty string means any kind.
func ParseKind(s string) (EdgeKind, bool) {
	k := EdgeKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "", KindSharedConcept, KindSharedTech, KindSameCluster:
		return k, true
	}
	return "", false
}

// Concept is an extracted concept label with the extractor's confidence.
type Concept struct {
	Name       string
	Confidence float64
}

// Metadata is what the builder reads for one document. Every field is
// optional: no concepts, no tech stack, an empty SkillLevel (unknown) and
// an empty ClusterID (unclustered) are all valid.
type Metadata struct {
	DocumentID string
	SourceType string
	Concepts   []Concept
	TechStack  []string
	SkillLevel string
	ClusterID  string
}

// MetadataProvider supplies the metadata of every document in a knowledge base.
type MetadataProvider interface {
	ListMetadata(ctx context.Context, kb string) ([]Metadata, error)
}

// MetadataProviderFunc adapts a function to MetadataProvider.
type MetadataProviderFunc func(ctx context.Context, kb string) ([]Metadata, error)

// ListMetadata implements MetadataProvider.
func (f MetadataProviderFunc) ListMetadata(ctx context.Context, kb string) ([]Metadata, error) {
	return f(ctx, kb)
}

// Node is one document in the graph. Concepts and TechStack are
// normalized, deduplicated and sorted.
type Node struct {
	DocID      string
	SourceType string
	Concepts   []string
	TechStack  []string
	SkillLevel string
	ClusterID  string
}

// Edge links two documents. Strength is in [0,1]; Shared lists the items
// both documents have in common for that kind.
type Edge struct {
	Source   string
	Target   string
	Kind     EdgeKind
	Strength float64
	Shared   []string
}

// Relation is a related document as seen from a query document.
type Relation struct {
	DocID    string
	Kind     EdgeKind
	Strength float64
	Shared   []string
}

// Hop is one document on a learning path. Kind and Shared describe the
// edge taken to reach it and are empty on the first hop.
type Hop struct {
	DocID  string
	Kind   EdgeKind
	Shared []string
}

// ConceptCount is one entry of a concept cloud.
type ConceptCount struct {
	Name      string
	Documents int
}

// Stats summarizes a graph.
type Stats struct {
	Nodes     int
	Edges     int
	ByKind    map[EdgeKind]int
	Concepts  int
	Clusters  int
	Isolated  int
	AvgDegree float64
}

// Normalize canonicalizes a concept or technology label: lower case,
// trimmed, inner whitespace collapsed to one space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
