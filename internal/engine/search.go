package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/agentrecall/recall/internal/storage"
	"github.com/agentrecall/recall/pkg/types"
)

// Search retrieves memories by meaning, by keyword, or by a fused ranking of
// both. Every strategy over-fetches 3x the requested limit, applies the tag
// post-filter in memory, rescales raw scores by temporal decay, and re-sorts
// before truncating.
//
// Degradation rules: a missing table yields empty results; keyword search
// with no full-text index yields empty results rather than an error; hybrid
// search falls back entirely to semantic when the index is missing or the
// fused query fails.
func (e *Engine) Search(ctx context.Context, query string, mode types.SearchMode, filters types.SearchFilters) ([]types.SearchResult, error) {
	if mode == "" {
		mode = types.SearchHybrid
	}
	if !types.IsValidSearchMode(mode) {
		return nil, fmt.Errorf("%w: unknown search mode %q", storage.ErrInvalidInput, mode)
	}

	exists, err := e.store.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []types.SearchResult{}, nil
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = types.DefaultSearchLimit
	}
	fetch := limit * overFetchFactor
	pred := storage.Predicate{
		Category: string(filters.Category),
		After:    filters.After,
		Before:   filters.Before,
	}

	var scored []storage.Scored
	switch mode {
	case types.SearchSemantic:
		scored, err = e.semanticSearch(ctx, query, pred, fetch)
		if err != nil {
			return nil, err
		}

	case types.SearchKeyword:
		scored, err = e.store.KeywordSearch(ctx, query, pred, fetch)
		if err != nil {
			// Keyword search never errors the caller: a missing index or a
			// failed query degrades to zero results.
			log.Printf("engine: keyword search degraded: %v", err)
			return []types.SearchResult{}, nil
		}

	case types.SearchHybrid:
		scored, err = e.hybridSearch(ctx, query, pred, fetch)
		if err != nil {
			return nil, err
		}
	}

	results := e.finalize(scored, filters.Tags, limit)
	return results, nil
}

// FindRelated returns the memories nearest to the given memory's own vector.
// The target is fetched with one extra slot so it can be excluded regardless
// of whether it ranks first.
func (e *Engine) FindRelated(ctx context.Context, id string, limit int) ([]types.SearchResult, error) {
	if limit <= 0 {
		limit = types.DefaultSearchLimit
	}

	row, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("engine: find related %s: %w", id, storage.ErrNotFound)
	}

	scored, err := e.store.VectorSearch(ctx, row.Vector, storage.Predicate{}, limit+1)
	if err != nil {
		return nil, err
	}

	filtered := scored[:0]
	for _, s := range scored {
		if s.Row.ID != id {
			filtered = append(filtered, s)
		}
	}
	return e.finalize(filtered, nil, limit), nil
}

// semanticSearch embeds the query and ranks by cosine distance.
func (e *Engine) semanticSearch(ctx context.Context, query string, pred storage.Predicate, fetch int) ([]storage.Scored, error) {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: embed query: %w", err)
	}
	return e.store.VectorSearch(ctx, vector, pred, fetch)
}

// hybridSearch asks the store's native fusion for a combined ranking and
// falls back entirely to semantic search when the capability is missing or
// the fused query fails for any reason.
func (e *Engine) hybridSearch(ctx context.Context, query string, pred storage.Predicate, fetch int) ([]storage.Scored, error) {
	hs, ok := e.store.(storage.HybridSearcher)
	if !ok || !e.store.KeywordAvailable() {
		return e.semanticSearch(ctx, query, pred, fetch)
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine: embed query: %w", err)
	}

	scored, err := hs.HybridSearch(ctx, query, vector, pred, fetch)
	if err != nil {
		log.Printf("engine: hybrid search failed, falling back to semantic: %v", err)
		return e.store.VectorSearch(ctx, vector, pred, fetch)
	}
	return scored, nil
}

// finalize applies the tag post-filter, converts raw score material to a
// relevance score, rescales by temporal decay, sorts descending and truncates.
func (e *Engine) finalize(scored []storage.Scored, tags []string, limit int) []types.SearchResult {
	now := e.now()
	results := make([]types.SearchResult, 0, len(scored))
	seen := make(map[string]bool, len(scored))

	for _, s := range scored {
		if seen[s.Row.ID] {
			continue
		}
		seen[s.Row.ID] = true

		mem := s.Row.Memory()
		if len(tags) > 0 && !mem.HasAnyTag(tags) {
			continue
		}

		score := rawScore(s)
		if !mem.DecayExempt() {
			score *= DecayFactor(mem.UpdatedAt, e.halfLifeDays, now)
		}
		results = append(results, types.SearchResult{Memory: mem, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// rawScore interprets a scored row's raw material, independent of which
// search path produced it: a native fusion relevance wins, then a distance
// converted to 1/(1+d), then a raw keyword score, then zero.
func rawScore(s storage.Scored) float64 {
	switch {
	case s.Relevance != nil:
		return *s.Relevance
	case s.Distance != nil:
		return 1.0 / (1.0 + *s.Distance)
	case s.Keyword != nil:
		return *s.Keyword
	default:
		return 0
	}
}
