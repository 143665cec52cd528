package bank

import (
	"context"
	"strings"

	"github.com/Aman-CERP/kbank/internal/dedup"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/lexical"
	"github.com/Aman-CERP/kbank/internal/vector"
)

// Search ranks whole documents lexically against query. allowed, when
// non-empty, restricts the candidates before truncation to topK. A blank
// query has no terms and returns nothing.
func (b *Bank) Search(ctx context.Context, query string, topK int, allowed []string) ([]lexical.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = b.m.cfg.Search.TopK
	}
	return b.lexical.Search(ctx, query, topK, toSet(allowed))
}

// SearchChunks ranks chunks of this knowledge base by cosine similarity to
// a query vector.
func (b *Bank) SearchChunks(ctx context.Context, query []float32, topK int, minSimilarity float64) ([]vector.Result, error) {
	if topK <= 0 {
		topK = b.m.cfg.Search.TopK
	}
	return b.m.vectors.Search(ctx, query, b.kb, topK, minSimilarity)
}

// SearchChunksText embeds query and runs SearchChunks.
func (b *Bank) SearchChunksText(ctx context.Context, query string, topK int, minSimilarity float64) ([]vector.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec := b.m.gateway.EmbedOne(ctx, query)
	if vec == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, bankerrors.UpstreamFailure("could not embed the query", nil)
	}
	return b.SearchChunks(ctx, vec, topK, minSimilarity)
}

// FindDuplicates groups near-identical documents. scope limits the
// candidates (every document when empty). threshold <= 0 and limit == 0
// take the configured defaults; a negative limit means no limit.
func (b *Bank) FindDuplicates(ctx context.Context, scope []string, threshold float64, limit int) ([]dedup.Group, error) {
	if threshold <= 0 {
		threshold = b.m.cfg.Duplicates.Threshold
	}
	if limit == 0 {
		limit = b.m.cfg.Duplicates.Limit
	}
	return b.dedup.FindDuplicates(ctx, scope, threshold, limit)
}

func toSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
