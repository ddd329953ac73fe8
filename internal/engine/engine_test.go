package engine

import (
	"context"
	"errors"
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

// testClock is a settable time source so decay behaviour is deterministic.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// newTestEngine builds an engine over a throwaway SQLite store and the
// deterministic test embedder.
func newTestEngine(t *testing.T, opts ...Option) (*Engine, *testClock) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(store, embedtest.New(32), opts...), clock
}

func TestStoreAndGet(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	mem, err := eng.Store(ctx, types.StoreRequest{
		Content:  "the deploy pipeline runs on push to main",
		Category: types.CategoryFact,
		Tags:     []string{"ci"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, mem.ID)
	assert.Equal(t, mem.CreatedAt, mem.UpdatedAt)

	got, err := eng.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.Equal(t, mem.Content, got.Content)
	assert.Equal(t, types.CategoryFact, got.Category)
	assert.Equal(t, []string{"ci"}, got.Tags)
}

func TestStoreValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Store(ctx, types.StoreRequest{Content: "", Category: types.CategoryFact})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = eng.Store(ctx, types.StoreRequest{Content: "valid", Category: "reminder"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStoreBatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	reqs := []types.StoreRequest{
		{Content: "batch one", Category: types.CategoryFact},
		{Content: "batch two", Category: types.CategoryEvent},
		{Content: "batch three", Category: types.CategoryFact},
	}
	stored, err := eng.StoreBatch(ctx, reqs)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMemories)
	assert.Equal(t, 2, stats.ByCategory[types.CategoryFact])
	assert.Equal(t, 1, stats.ByCategory[types.CategoryEvent])
}

func TestSearchBeforeFirstWrite(t *testing.T) {
	eng, _ := newTestEngine(t)

	for _, mode := range []types.SearchMode{types.SearchSemantic, types.SearchKeyword, types.SearchHybrid} {
		results, err := eng.Search(context.Background(), "anything", mode, types.SearchFilters{})
		require.NoError(t, err, "mode %s", mode)
		assert.Empty(t, results, "mode %s", mode)
	}
}

func TestSearchReturnsUniqueResults(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreBatch(ctx, []types.StoreRequest{
		{Content: "the database uses write ahead logging", Category: types.CategoryFact},
		{Content: "write ahead logging lets readers proceed", Category: types.CategoryLearning},
		{Content: "the cat sat on the mat", Category: types.CategoryObservation},
	})
	require.NoError(t, err)

	results, err := eng.Search(ctx, "write ahead logging", types.SearchHybrid, types.SearchFilters{Limit: 2})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)

	seen := map[string]bool{}
	for _, r := range results {
		assert.False(t, seen[r.Memory.ID], "duplicate id %s in results", r.Memory.ID)
		seen[r.Memory.ID] = true
	}
}

func TestSearchTagFilterMatchesAny(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.StoreBatch(ctx, []types.StoreRequest{
		{Content: "grafana dashboard for latency", Category: types.CategoryFact, Tags: []string{"observability"}},
		{Content: "grafana dashboard for errors", Category: types.CategoryFact, Tags: []string{"alerts", "oncall"}},
		{Content: "grafana dashboard for capacity", Category: types.CategoryFact},
	})
	require.NoError(t, err)

	results, err := eng.Search(ctx, "grafana dashboard", types.SearchSemantic, types.SearchFilters{
		Tags: []string{"observability", "oncall"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Memory.HasAnyTag([]string{"observability", "oncall"}))
	}
}

func TestSearchDecayPrefersRecent(t *testing.T) {
	eng, clock := newTestEngine(t, WithHalfLife(30))
	ctx := context.Background()

	// Same content stored twice: once long ago, once now. With identical raw
	// relevance, decay must rank the recent one first.
	_, err := eng.Store(ctx, types.StoreRequest{Content: "quarterly planning doc location", Category: types.CategoryFact, Tags: []string{"old"}})
	require.NoError(t, err)

	clock.now = clock.now.AddDate(0, 0, 90)
	recent, err := eng.Store(ctx, types.StoreRequest{Content: "quarterly planning doc location", Category: types.CategoryFact, Tags: []string{"new"}})
	require.NoError(t, err)

	results, err := eng.Search(ctx, "quarterly planning doc location", types.SearchSemantic, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, recent.ID, results[0].Memory.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestEvergreenMemoriesDoNotDecay(t *testing.T) {
	eng, clock := newTestEngine(t, WithHalfLife(30))
	ctx := context.Background()

	evergreen, err := eng.Store(ctx, types.StoreRequest{
		Content:  "the owner prefers short answers",
		Category: types.CategoryPreference,
		Tags:     []string{types.TagEvergreen},
	})
	require.NoError(t, err)
	plain, err := eng.Store(ctx, types.StoreRequest{
		Content:  "the owner prefers short answers",
		Category: types.CategoryPreference,
	})
	require.NoError(t, err)

	clock.now = clock.now.AddDate(0, 0, 60)

	results, err := eng.Search(ctx, "the owner prefers short answers", types.SearchSemantic, types.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[string]float64{}
	for _, r := range results {
		byID[r.Memory.ID] = r.Score
	}
	assert.Greater(t, byID[evergreen.ID], byID[plain.ID],
		"evergreen memory should outscore its decayed twin")
	assert.InDelta(t, byID[evergreen.ID]*0.25, byID[plain.ID], 1e-6,
		"plain twin should carry two half-lives of decay")
}

func TestUpdatePreservesCreatedAt(t *testing.T) {
	eng, clock := newTestEngine(t)
	ctx := context.Background()

	mem, err := eng.Store(ctx, types.StoreRequest{Content: "release is thursday", Category: types.CategoryEvent})
	require.NoError(t, err)

	clock.now = clock.now.Add(48 * time.Hour)
	content := "release slipped to friday"
	updated, err := eng.Update(ctx, mem.ID, types.UpdateRequest{Content: &content})
	require.NoError(t, err)

	assert.Equal(t, mem.ID, updated.ID)
	assert.Equal(t, mem.CreatedAt, updated.CreatedAt)
	assert.Greater(t, updated.UpdatedAt, mem.UpdatedAt)
	assert.Equal(t, content, updated.Content)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMemories, "update must not duplicate the row")
}

func TestUpdateUnknownID(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Store(ctx, types.StoreRequest{Content: "something", Category: types.CategoryFact})
	require.NoError(t, err)

	content := "new"
	_, err = eng.Update(ctx, "no-such-id", types.UpdateRequest{Content: &content})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	mem, err := eng.Store(ctx, types.StoreRequest{Content: "forget me", Category: types.CategoryFact})
	require.NoError(t, err)

	require.NoError(t, eng.Delete(ctx, mem.ID))
	_, err = eng.Get(ctx, mem.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, errors.Is(eng.Delete(ctx, mem.ID), storage.ErrNotFound))
}

func TestFindRelatedExcludesSelf(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	stored, err := eng.StoreBatch(ctx, []types.StoreRequest{
		{Content: "kubernetes pod eviction thresholds", Category: types.CategoryLearning},
		{Content: "kubernetes pod restart backoff", Category: types.CategoryLearning},
		{Content: "favourite coffee order is flat white", Category: types.CategoryPreference},
	})
	require.NoError(t, err)

	results, err := eng.FindRelated(ctx, stored[0].ID, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 5)
	for _, r := range results {
		assert.NotEqual(t, stored[0].ID, r.Memory.ID, "reference memory must be excluded")
	}
	// The lexically overlapping memory should beat the unrelated one.
	assert.Equal(t, stored[1].ID, results[0].Memory.ID)
}

func TestFindRelatedUnknownID(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.FindRelated(context.Background(), "ghost", 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListRecent(t *testing.T) {
	eng, clock := newTestEngine(t)
	ctx := context.Background()

	for i, content := range []string{"first", "second", "third"} {
		cat := types.CategoryFact
		if i == 1 {
			cat = types.CategoryEvent
		}
		_, err := eng.Store(ctx, types.StoreRequest{Content: content, Category: cat})
		require.NoError(t, err)
		clock.now = clock.now.Add(time.Minute)
	}

	memories, err := eng.ListRecent(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, memories, 2)
	assert.Equal(t, "third", memories[0].Content)
	assert.Equal(t, "second", memories[1].Content)

	memories, err = eng.ListRecent(ctx, 10, types.CategoryEvent)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "second", memories[0].Content)
}

func TestStatsEmptyStore(t *testing.T) {
	eng, _ := newTestEngine(t)

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMemories)
	assert.Empty(t, stats.OldestMemory)
	assert.Empty(t, stats.NewestMemory)
}

func TestStatsTimestamps(t *testing.T) {
	eng, clock := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.Store(ctx, types.StoreRequest{Content: "oldest", Category: types.CategoryFact})
	require.NoError(t, err)
	clock.now = clock.now.AddDate(0, 1, 0)
	last, err := eng.Store(ctx, types.StoreRequest{Content: "newest", Category: types.CategoryFact})
	require.NoError(t, err)

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, stats.OldestMemory)
	assert.Equal(t, last.CreatedAt, stats.NewestMemory)
}
