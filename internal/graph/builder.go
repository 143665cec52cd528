package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/kbank/internal/config"
)

// DefaultWarnThreshold is the document count past which a build logs a
// scale warning.
const DefaultWarnThreshold = 2000

// Options configures a Builder.
type Options struct {
	// MinConfidence drops concepts below this confidence before comparing.
	MinConfidence float64
	// WarnThreshold is the document count that triggers the scale
	// warning. Zero means DefaultWarnThreshold.
	WarnThreshold int
}

// OptionsFrom reads Options from the graph config section.
func OptionsFrom(cfg config.GraphConfig) Options {
	return Options{MinConfidence: cfg.MinConfidence, WarnThreshold: cfg.WarnThreshold}
}

// Builder builds graph snapshots.
type Builder struct {
	provider MetadataProvider
	opts     Options
	logger   *slog.Logger
}

// NewBuilder creates a Builder reading from provider.
func NewBuilder(provider MetadataProvider, opts Options, logger *slog.Logger) *Builder {
	if opts.WarnThreshold <= 0 {
		opts.WarnThreshold = DefaultWarnThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{provider: provider, opts: opts, logger: logger}
}

// Build loads the metadata of kb and builds its graph.
func (b *Builder) Build(ctx context.Context, kb string) (*Graph, error) {
	metas, err := b.provider.ListMetadata(ctx, kb)
	if err != nil {
		return nil, fmt.Errorf("loading metadata for %s: %w", kb, err)
	}
	return b.BuildFrom(ctx, kb, metas)
}

// BuildFrom builds a graph from metas. When a document appears more than
// once the last entry wins.
func (b *Builder) BuildFrom(ctx context.Context, kb string, metas []Metadata) (*Graph, error) {
	start := time.Now()
	g := newGraph(kb)

	for _, m := range metas {
		if m.DocumentID == "" {
			continue
		}
		g.nodes[m.DocumentID] = b.node(m)
	}
	g.ids = make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)

	n := len(g.ids)
	if n > b.opts.WarnThreshold {
		b.logger.Warn("graph_build_large",
			slog.String("kb", kb),
			slog.Int("documents", n),
			slog.Int("threshold", b.opts.WarnThreshold),
			slog.Int("pairs", n*(n-1)/2))
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := g.nodes[g.ids[i]]
		for j := i + 1; j < n; j++ {
			for _, e := range relate(a, g.nodes[g.ids[j]]) {
				g.addEdge(e)
			}
		}
	}
	g.finish()

	b.logger.Debug("graph_built",
		slog.String("kb", kb),
		slog.Int("nodes", n),
		slog.Int("edges", g.edges),
		slog.Duration("duration", time.Since(start)))
	return g, nil
}

func (b *Builder) node(m Metadata) *Node {
	concepts := make([]string, 0, len(m.Concepts))
	for _, c := range m.Concepts {
		if c.Confidence < b.opts.MinConfidence {
			continue
		}
		concepts = append(concepts, c.Name)
	}
	return &Node{
		DocID:      m.DocumentID,
		SourceType: m.SourceType,
		Concepts:   normalizeSet(concepts),
		TechStack:  normalizeSet(m.TechStack),
		SkillLevel: m.SkillLevel,
		ClusterID:  m.ClusterID,
	}
}

// relate runs the three relation tests on a pair, a.DocID < b.DocID.
func relate(a, b *Node) []Edge {
	var out []Edge
	if shared, s := jaccard(a.Concepts, b.Concepts); len(shared) > 0 {
		out = append(out, Edge{Source: a.DocID, Target: b.DocID, Kind: KindSharedConcept, Strength: s, Shared: shared})
	}
	if shared, s := jaccard(a.TechStack, b.TechStack); len(shared) > 0 {
		out = append(out, Edge{Source: a.DocID, Target: b.DocID, Kind: KindSharedTech, Strength: s, Shared: shared})
	}
	if a.ClusterID != "" && a.ClusterID == b.ClusterID {
		out = append(out, Edge{Source: a.DocID, Target: b.DocID, Kind: KindSameCluster, Strength: 1, Shared: []string{a.ClusterID}})
	}
	return out
}

// jaccard returns the intersection of two sorted sets and |A∩B| / |A∪B|
// clamped to [0,1].
func jaccard(a, b []string) ([]string, float64) {
	var shared []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			shared = append(shared, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	union := len(a) + len(b) - len(shared)
	if union == 0 || len(shared) == 0 {
		return nil, 0
	}
	return shared, clamp01(float64(len(shared)) / float64(union))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// normalizeSet normalizes, drops blanks, deduplicates and sorts.
func normalizeSet(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		n := Normalize(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
