// Package engine is the retrieval and ranking core: it owns the memory
// lifecycle over a storage backend, dispatches the three search strategies
// with their fallback chains, and applies temporal decay rescoring to every
// search result.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/agentrecall/recall/internal/embedding"
	"github.com/agentrecall/recall/internal/storage"
	"github.com/agentrecall/recall/pkg/types"
)

// overFetchFactor is how many candidates each strategy retrieves per
// requested result. Tag filtering happens outside the storage predicate
// language and decay can reorder results, so strategies over-fetch to avoid
// under-filling the final result set.
const overFetchFactor = 3

// Engine implements the upward memory API. It performs request/response calls
// against the store and the embedding provider and has no internal threading:
// concurrent reads are safe, concurrent writes to the same id are the
// caller's responsibility.
type Engine struct {
	store        storage.Store
	embedder     embedding.Embedder
	halfLifeDays float64
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithHalfLife sets the decay half-life in days. Values <= 0 disable decay.
func WithHalfLife(days float64) Option {
	return func(e *Engine) { e.halfLifeDays = days }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store and embedding provider.
func New(store storage.Store, embedder embedding.Embedder, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		embedder:     embedder,
		halfLifeDays: DefaultHalfLifeDays,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize prepares the store. Idempotent; safe to call again to reconcile
// the full-text index after a degraded start.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.store.Initialize(ctx)
}

// Store embeds the content and persists a new memory. The first ever write
// creates the table with this row as its seed.
func (e *Engine) Store(ctx context.Context, req types.StoreRequest) (types.Memory, error) {
	if err := validateStore(req); err != nil {
		return types.Memory{}, err
	}

	vector, err := e.embedder.Embed(ctx, req.Content)
	if err != nil {
		return types.Memory{}, fmt.Errorf("engine: embed content: %w", err)
	}

	mem := e.newMemory(req, storage.FormatTime(e.now()))
	row, err := storage.NewRow(mem, vector)
	if err != nil {
		return types.Memory{}, err
	}

	created, err := e.store.EnsureTable(ctx, row)
	if err != nil {
		return types.Memory{}, err
	}
	if !created {
		if err := e.store.Insert(ctx, []storage.Row{row}); err != nil {
			return types.Memory{}, err
		}
	}
	return mem, nil
}

// StoreBatch embeds all contents in a single provider call and persists the
// memories with a shared timestamp. When the table does not exist yet the
// first row seeds it and only the remainder is bulk-inserted.
func (e *Engine) StoreBatch(ctx context.Context, reqs []types.StoreRequest) ([]types.Memory, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	contents := make([]string, len(reqs))
	for i, req := range reqs {
		if err := validateStore(req); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		contents[i] = req.Content
	}

	vectors, err := e.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("engine: embed batch: %w", err)
	}
	if len(vectors) != len(reqs) {
		return nil, fmt.Errorf("engine: embedding provider returned %d vectors for %d texts", len(vectors), len(reqs))
	}

	now := storage.FormatTime(e.now())
	memories := make([]types.Memory, len(reqs))
	rows := make([]storage.Row, len(reqs))
	for i, req := range reqs {
		memories[i] = e.newMemory(req, now)
		rows[i], err = storage.NewRow(memories[i], vectors[i])
		if err != nil {
			return nil, err
		}
	}

	created, err := e.store.EnsureTable(ctx, rows[0])
	if err != nil {
		return nil, err
	}
	remainder := rows
	if created {
		remainder = rows[1:]
	}
	if err := e.store.Insert(ctx, remainder); err != nil {
		return nil, err
	}
	return memories, nil
}

// Update merges the provided fields into an existing memory. Content changes
// trigger re-embedding; otherwise the stored vector is reused to avoid an
// unnecessary provider call. created_at is preserved, updated_at is stamped.
func (e *Engine) Update(ctx context.Context, id string, upd types.UpdateRequest) (types.Memory, error) {
	row, err := e.store.GetByID(ctx, id)
	if err != nil {
		return types.Memory{}, err
	}
	if row == nil {
		return types.Memory{}, fmt.Errorf("engine: update %s: %w", id, storage.ErrNotFound)
	}

	mem := row.Memory()
	vector := row.Vector

	if upd.Content != nil && *upd.Content != mem.Content {
		if *upd.Content == "" {
			return types.Memory{}, fmt.Errorf("%w: content cannot be empty", storage.ErrInvalidInput)
		}
		mem.Content = *upd.Content
		vector, err = e.embedder.Embed(ctx, mem.Content)
		if err != nil {
			return types.Memory{}, fmt.Errorf("engine: re-embed content: %w", err)
		}
	}
	if upd.Category != nil {
		if !types.IsValidCategory(*upd.Category) {
			return types.Memory{}, fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, *upd.Category)
		}
		mem.Category = *upd.Category
	}
	if upd.Tags != nil {
		mem.Tags = *upd.Tags
	}
	mem.UpdatedAt = storage.FormatTime(e.now())

	newRow, err := storage.NewRow(mem, vector)
	if err != nil {
		return types.Memory{}, err
	}
	if err := e.store.Replace(ctx, newRow); err != nil {
		return types.Memory{}, err
	}
	return mem, nil
}

// Delete removes a memory. Unknown ids surface as ErrNotFound.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.DeleteByID(ctx, id)
}

// Get fetches a single memory by id, or ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (types.Memory, error) {
	row, err := e.store.GetByID(ctx, id)
	if err != nil {
		return types.Memory{}, err
	}
	if row == nil {
		return types.Memory{}, fmt.Errorf("engine: get %s: %w", id, storage.ErrNotFound)
	}
	return row.Memory(), nil
}

// ListRecent returns the newest memories, optionally restricted to a
// category. This is a full scan; fine at single-agent scale.
func (e *Engine) ListRecent(ctx context.Context, limit int, category types.Category) ([]types.Memory, error) {
	if limit <= 0 {
		limit = types.DefaultSearchLimit
	}
	rows, err := e.store.List(ctx, storage.Predicate{Category: string(category)}, limit)
	if err != nil {
		return nil, err
	}
	memories := make([]types.Memory, len(rows))
	for i := range rows {
		memories[i] = rows[i].Memory()
	}
	return memories, nil
}

// Stats summarises the store with a full scan. A store with no table yields a
// zeroed result, not an error.
func (e *Engine) Stats(ctx context.Context) (types.Stats, error) {
	rows, err := e.store.ScanAll(ctx)
	if err != nil {
		return types.Stats{}, err
	}

	stats := types.Stats{
		TotalMemories: len(rows),
		ByCategory:    make(map[types.Category]int),
	}
	timestamps := make([]string, 0, len(rows))
	for i := range rows {
		stats.ByCategory[types.Category(rows[i].Category)]++
		timestamps = append(timestamps, rows[i].CreatedAt)
	}
	if len(timestamps) > 0 {
		// Timestamps use a fixed lexicographic layout, so a string sort
		// yields chronological order.
		sort.Strings(timestamps)
		stats.OldestMemory = timestamps[0]
		stats.NewestMemory = timestamps[len(timestamps)-1]
	}
	return stats, nil
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) newMemory(req types.StoreRequest, now string) types.Memory {
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	return types.Memory{
		ID:        uuid.NewString(),
		Content:   req.Content,
		Category:  req.Category,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func validateStore(req types.StoreRequest) error {
	if req.Content == "" {
		return fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	if !types.IsValidCategory(req.Category) {
		return fmt.Errorf("%w: unknown category %q", storage.ErrInvalidInput, req.Category)
	}
	return nil
}
