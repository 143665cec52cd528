package graph

import (
	"sort"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// DefaultMaxSteps bounds a learning path when the caller passes no limit.
const DefaultMaxSteps = 5

// Graph is an immutable snapshot. It is safe for concurrent reads.
type Graph struct {
	kb    string
	nodes map[string]*Node
	ids   []string
	// adj holds each undirected edge twice, once from either end,
	// ordered by strength desc, target asc, kind asc.
	adj         map[string][]Edge
	conceptDocs map[string][]string
	edges       int
	byKind      map[EdgeKind]int
}

func newGraph(kb string) *Graph {
	return &Graph{
		kb:          kb,
		nodes:       make(map[string]*Node),
		adj:         make(map[string][]Edge),
		conceptDocs: make(map[string][]string),
		byKind:      make(map[EdgeKind]int),
	}
}

func (g *Graph) addEdge(e Edge) {
	g.adj[e.Source] = append(g.adj[e.Source], e)
	g.adj[e.Target] = append(g.adj[e.Target], Edge{
		Source:   e.Target,
		Target:   e.Source,
		Kind:     e.Kind,
		Strength: e.Strength,
		Shared:   e.Shared,
	})
	g.edges++
	g.byKind[e.Kind]++
}

// finish sorts adjacency lists and indexes concepts. ids is sorted, so
// every concept's document list comes out sorted too.
func (g *Graph) finish() {
	for id, edges := range g.adj {
		sort.SliceStable(edges, func(i, j int) bool {
			if edges[i].Strength != edges[j].Strength {
				return edges[i].Strength > edges[j].Strength
			}
			if edges[i].Target != edges[j].Target {
				return edges[i].Target < edges[j].Target
			}
			return edges[i].Kind < edges[j].Kind
		})
		g.adj[id] = edges
	}
	for _, id := range g.ids {
		for _, c := range g.nodes[id].Concepts {
			g.conceptDocs[c] = append(g.conceptDocs[c], id)
		}
	}
}

// KB returns the knowledge base the graph was built for.
func (g *Graph) KB() string { return g.kb }

// Node returns the node of docID.
func (g *Graph) Node(docID string) (Node, bool) {
	n, ok := g.nodes[docID]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// Edges returns every edge once, Source < Target, in a stable order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for _, id := range g.ids {
		for _, e := range g.adj[id] {
			if e.Source < e.Target {
				out = append(out, e)
			}
		}
	}
	return out
}

// Related returns the documents linked to docID, strongest first. An empty
// kind matches every kind; limit <= 0 returns all.
func (g *Graph) Related(docID string, kind EdgeKind, minStrength float64, limit int) ([]Relation, error) {
	if _, ok := g.nodes[docID]; !ok {
		return nil, bankerrors.NotFound(docID)
	}
	var out []Relation
	for _, e := range g.adj[docID] {
		if kind != "" && e.Kind != kind {
			continue
		}
		if e.Strength < minStrength {
			continue
		}
		out = append(out, Relation{DocID: e.Target, Kind: e.Kind, Strength: e.Strength, Shared: e.Shared})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// DocumentsWithConcept returns the sorted ids of documents carrying concept.
func (g *Graph) DocumentsWithConcept(concept string) []string {
	docs := g.conceptDocs[Normalize(concept)]
	return append([]string(nil), docs...)
}

// FindPath returns a shortest chain of linked documents leading from one
// that carries start to one that carries end. maxSteps bounds the number
// of documents on the path; <= 0 means DefaultMaxSteps. When a single
// document carries both concepts the path is just that document. An
// unreachable end yields nil.
func (g *Graph) FindPath(start, end string, maxSteps int) []Hop {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	seeds := g.conceptDocs[Normalize(start)]
	targets := make(map[string]struct{})
	for _, id := range g.conceptDocs[Normalize(end)] {
		targets[id] = struct{}{}
	}
	if len(seeds) == 0 || len(targets) == 0 {
		return nil
	}
	for _, id := range seeds {
		if _, ok := targets[id]; ok {
			return []Hop{{DocID: id}}
		}
	}

	visited := make(map[string]visit, len(g.ids))
	queue := make([]string, 0, len(seeds))
	for _, id := range seeds {
		visited[id] = visit{depth: 1}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		depth := visited[cur].depth
		if depth >= maxSteps {
			continue
		}
		for _, e := range g.adj[cur] {
			if _, seen := visited[e.Target]; seen {
				continue
			}
			visited[e.Target] = visit{parent: cur, via: e, depth: depth + 1}
			if _, ok := targets[e.Target]; ok {
				return g.trace(e.Target, visited)
			}
			queue = append(queue, e.Target)
		}
	}
	return nil
}

// visit is the BFS record of one reached document.
type visit struct {
	parent string
	via    Edge
	depth  int // documents on the path so far
}

func (g *Graph) trace(end string, visited map[string]visit) []Hop {
	var rev []Hop
	for id := end; ; {
		v := visited[id]
		if v.parent == "" {
			rev = append(rev, Hop{DocID: id})
			break
		}
		rev = append(rev, Hop{DocID: id, Kind: v.via.Kind, Shared: v.via.Shared})
		id = v.parent
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// ConceptCloud returns concepts by the number of documents carrying them,
// most common first, ties by name. limit <= 0 returns all.
func (g *Graph) ConceptCloud(limit int) []ConceptCount {
	out := make([]ConceptCount, 0, len(g.conceptDocs))
	for c, docs := range g.conceptDocs {
		out = append(out, ConceptCount{Name: c, Documents: len(docs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Documents != out[j].Documents {
			return out[i].Documents > out[j].Documents
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats summarizes the graph.
func (g *Graph) Stats() Stats {
	st := Stats{
		Nodes:    len(g.ids),
		Edges:    g.edges,
		ByKind:   make(map[EdgeKind]int, len(g.byKind)),
		Concepts: len(g.conceptDocs),
	}
	for k, n := range g.byKind {
		st.ByKind[k] = n
	}
	clusters := make(map[string]struct{})
	for _, id := range g.ids {
		if c := g.nodes[id].ClusterID; c != "" {
			clusters[c] = struct{}{}
		}
		if len(g.adj[id]) == 0 {
			st.Isolated++
		}
	}
	st.Clusters = len(clusters)
	if st.Nodes > 0 {
		st.AvgDegree = 2 * float64(st.Edges) / float64(st.Nodes)
	}
	return st
}
