package vector

import (
	"sort"

	"github.com/coder/hnsw"
)

// item is a stored entry plus its unit-length vector. Zero vectors keep a
// nil unit and never match.
type item struct {
	Entry
	unit []float32
}

type partition struct {
	dims  int
	items map[string]*item    // chunk id -> item
	byDoc map[string][]string // document id -> chunk ids
	ann   *hnsw.Graph[string]
}

func newPartition() *partition {
	return &partition{
		items: make(map[string]*item),
		byDoc: make(map[string][]string),
	}
}

func (p *partition) size() int { return len(p.items) }

// remaining is the partition size once docID is gone.
func (p *partition) remaining(docID string) int {
	return len(p.items) - len(p.byDoc[docID])
}

func (p *partition) add(e Entry) {
	if old, ok := p.items[e.ChunkID]; ok {
		p.unlink(old.DocumentID, e.ChunkID)
	}
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec
	p.items[e.ChunkID] = &item{Entry: e, unit: normalized(vec)}
	p.byDoc[e.DocumentID] = append(p.byDoc[e.DocumentID], e.ChunkID)
}

func (p *partition) unlink(docID, chunkID string) {
	ids := p.byDoc[docID]
	for i, id := range ids {
		if id == chunkID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(p.byDoc, docID)
	} else {
		p.byDoc[docID] = ids
	}
}

func (p *partition) removeDocument(docID string) int {
	ids := p.byDoc[docID]
	for _, id := range ids {
		delete(p.items, id)
	}
	delete(p.byDoc, docID)
	return len(ids)
}

func (p *partition) all() []*item {
	out := make([]*item, 0, len(p.items))
	for _, it := range p.items {
		if it.unit != nil {
			out = append(out, it)
		}
	}
	return out
}

// buildANN builds a fresh graph in chunk id order, so the same partition
// always yields the same graph layout up to level sampling.
func (p *partition) buildANN(m, efSearch int) {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = m
	g.EfSearch = efSearch
	g.Ml = 0.25

	ids := make([]string, 0, len(p.items))
	for id, it := range p.items {
		if it.unit != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		g.Add(hnsw.MakeNode(id, p.items[id].unit))
	}
	p.ann = g
}

func (p *partition) annCandidates(q []float32, k int) []*item {
	nodes := p.ann.Search(q, k)
	out := make([]*item, 0, len(nodes))
	for _, n := range nodes {
		if it, ok := p.items[n.Key]; ok {
			out = append(out, it)
		}
	}
	return out
}
