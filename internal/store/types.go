package store

import (
	"fmt"
	"time"
)

// Status is a document's processing state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is a stored source document.
type Document struct {
	ID              string
	KnowledgeBaseID string
	Title           string
	SourceType      string
	Content         string
	Status          Status
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Chunk is a stored chunk row. Embedding is nil when embedding failed.
type Chunk struct {
	ID              string
	DocumentID      string
	KnowledgeBaseID string
	Index           int
	Content         string
	StartToken      int
	EndToken        int
	TokenCount      int
	SectionTitle    string
	IsCodeBlock     bool
	Embedding       []float32
}

// Concept is an extracted concept label with its confidence.
type Concept struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Metadata is the structured metadata of one document. Empty SkillLevel
// and ClusterID mean unknown and unclustered.
type Metadata struct {
	DocumentID string
	SourceType string
	Concepts   []Concept
	TechStack  []string
	SkillLevel string
	ClusterID  string
}

// KBStats summarizes one knowledge base.
type KBStats struct {
	Documents int
	ByStatus  map[Status]int
	Chunks    int
	Embedded  int
}

// ChunkID returns the stable id of chunk index of docID. The index is
// zero-padded so ids sort in chunk order.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s#%05d", docID, index)
}
