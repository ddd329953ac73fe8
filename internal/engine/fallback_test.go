package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrecall/recall/internal/embedding/embedtest"
	"github.com/agentrecall/recall/internal/storage"
	"github.com/agentrecall/recall/internal/storage/sqlite"
	"github.com/agentrecall/recall/pkg/types"
)

// degradedStore wraps a real store but reports the keyword index as
// unavailable, simulating an FTS build failure. It deliberately does not
// implement the hybrid capability.
type degradedStore struct {
	storage.Store
}

func (d *degradedStore) KeywordAvailable() bool { return false }

func (d *degradedStore) KeywordSearch(ctx context.Context, query string, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	return nil, storage.ErrDegraded
}

func newDegradedEngine(t *testing.T) *Engine {
	t.Helper()
	inner, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return New(&degradedStore{Store: inner}, embedtest.New(32),
		WithClock(func() time.Time { return clock }))
}

func TestKeywordSearchDegradesToEmpty(t *testing.T) {
	eng := newDegradedEngine(t)
	ctx := context.Background()

	_, err := eng.Store(ctx, types.StoreRequest{Content: "indexed content", Category: types.CategoryFact})
	require.NoError(t, err)

	results, err := eng.Search(ctx, "indexed content", types.SearchKeyword, types.SearchFilters{})
	require.NoError(t, err, "keyword degradation must never error the caller")
	assert.Empty(t, results)
}

func TestHybridFallsBackToSemantic(t *testing.T) {
	eng := newDegradedEngine(t)
	ctx := context.Background()

	_, err := eng.StoreBatch(ctx, []types.StoreRequest{
		{Content: "postgres connection pooling notes", Category: types.CategoryLearning},
		{Content: "favourite editor is helix", Category: types.CategoryPreference},
	})
	require.NoError(t, err)

	hybrid, err := eng.Search(ctx, "postgres connection pooling", types.SearchHybrid, types.SearchFilters{})
	require.NoError(t, err, "hybrid with no index must fall back, not fail")
	semantic, err := eng.Search(ctx, "postgres connection pooling", types.SearchSemantic, types.SearchFilters{})
	require.NoError(t, err)

	require.Equal(t, len(semantic), len(hybrid))
	for i := range hybrid {
		assert.Equal(t, semantic[i].Memory.ID, hybrid[i].Memory.ID)
		assert.InDelta(t, semantic[i].Score, hybrid[i].Score, 1e-12)
	}
}
