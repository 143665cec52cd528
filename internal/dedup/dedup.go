// Package dedup groups near-identical documents using lexical similarity.
//
// Grouping is single-link: every member scores at least the threshold
// against the group's primary, but members are never compared with each
// other, so two members of one group may be less similar than the
// threshold. Transitive clustering is deliberately not attempted.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Aman-CERP/kbank/internal/config"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/lexical"
)

// Defaults mirror the duplicates config section.
const (
	DefaultThreshold = 0.85
	DefaultNeighborK = 20
)

// Neighbors is the lexical index surface the detector needs.
type Neighbors interface {
	IDs() []string
	SearchByDocID(ctx context.Context, docID string, topK int, allowed map[string]struct{}) ([]lexical.Result, error)
}

// Member is a document grouped under a primary.
type Member struct {
	DocID      string
	Similarity float64
}

// Group is one primary and the documents that duplicate it.
type Group struct {
	Primary string
	Members []Member
	Size    int
}

// Detector finds duplicate groups.
type Detector struct {
	index     Neighbors
	neighborK int
	logger    *slog.Logger
}

// New creates a Detector. neighborK bounds how many nearest neighbours are
// considered per primary; <= 0 means DefaultNeighborK.
func New(index Neighbors, neighborK int, logger *slog.Logger) *Detector {
	if neighborK <= 0 {
		neighborK = DefaultNeighborK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{index: index, neighborK: neighborK, logger: logger}
}

// NewFromConfig creates a Detector from the duplicates config section.
func NewFromConfig(index Neighbors, cfg config.DuplicatesConfig, logger *slog.Logger) *Detector {
	return New(index, cfg.NeighborK, logger)
}

// FindDuplicates groups the documents in scope (every indexed document
// when scope is empty). Candidates are visited in ascending id order; a
// document claimed by one group is never placed in another. At most limit
// groups are formed (limit <= 0 means no limit), then ordered by size,
// largest first, keeping discovery order among equal sizes.
func (d *Detector) FindDuplicates(ctx context.Context, scope []string, threshold float64, limit int) ([]Group, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, bankerrors.InputError(fmt.Sprintf("threshold must be in (0, 1], got %g", threshold))
	}

	candidates, allowed := d.candidates(scope)
	claimed := make(map[string]struct{}, len(candidates))
	var groups []Group

	for _, id := range candidates {
		if limit > 0 && len(groups) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := claimed[id]; ok {
			continue
		}

		neighbors, err := d.index.SearchByDocID(ctx, id, d.neighborK, allowed)
		if errors.Is(err, bankerrors.ErrDocumentNotFound) {
			// removed since the candidate list was taken
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("neighbours of %s: %w", id, err)
		}

		claimed[id] = struct{}{}
		var members []Member
		for _, n := range neighbors {
			if n.Score < threshold {
				continue
			}
			if _, ok := claimed[n.DocID]; ok {
				continue
			}
			claimed[n.DocID] = struct{}{}
			members = append(members, Member{DocID: n.DocID, Similarity: n.Score})
		}
		if len(members) == 0 {
			continue
		}
		groups = append(groups, Group{Primary: id, Members: members, Size: len(members) + 1})
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Size > groups[j].Size })

	d.logger.Debug("duplicates_found",
		slog.Int("candidates", len(candidates)),
		slog.Int("groups", len(groups)),
		slog.Float64("threshold", threshold))
	return groups, nil
}

// candidates returns the sorted, deduplicated candidate ids and the
// allowed-set restricting neighbours to the same scope. An empty scope
// means every document, with no neighbour restriction.
func (d *Detector) candidates(scope []string) ([]string, map[string]struct{}) {
	if len(scope) == 0 {
		ids := d.index.IDs()
		sort.Strings(ids)
		return ids, nil
	}
	allowed := make(map[string]struct{}, len(scope))
	ids := make([]string, 0, len(scope))
	for _, id := range scope {
		if _, ok := allowed[id]; ok {
			continue
		}
		allowed[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, allowed
}
