// Package storage defines the contract between the retrieval engine and its
// storage backends, plus the physical row model shared by all of them.
//
// The interfaces are deliberately small: a backend provides row CRUD, the lazy
// table lifecycle, and the raw search primitives. Everything with ranking
// semantics (score interpretation, fusion fallback, decay, tag filtering)
// lives above this layer in the engine.
package storage

import "context"

// Store is implemented by every storage backend.
//
// Table existence is lazy: EnsureTable creates the table from its seed row on
// the first write, and every read method returns empty results (not an error)
// while no table exists.
type Store interface {
	// Initialize prepares the backend. It is idempotent: when the table
	// already exists it re-runs the best-effort full-text index build so a
	// previously degraded index can be reconciled.
	Initialize(ctx context.Context) error

	// TableExists reports whether the memories table has been created.
	TableExists(ctx context.Context) (bool, error)

	// EnsureTable creates the table using seed as schema-inferring seed data
	// and returns true when it did so. The seed row is then already persisted;
	// callers must not insert it again. When the table exists it returns
	// false and writes nothing.
	EnsureTable(ctx context.Context, seed Row) (bool, error)

	// Insert appends rows to an existing table.
	Insert(ctx context.Context, rows []Row) error

	// Replace removes the row with row.ID and inserts the replacement within
	// a single transaction. The delete-then-insert shape is kept because the
	// row model is append-oriented; the transaction closes the crash window
	// between the two steps.
	Replace(ctx context.Context, row Row) error

	// DeleteByID removes the row with the given id. Returns ErrNotFound when
	// no row (or no table) matched.
	DeleteByID(ctx context.Context, id string) error

	// GetByID returns the row with the given id, or (nil, nil) when it does
	// not exist or the table has not been created.
	GetByID(ctx context.Context, id string) (*Row, error)

	// List returns up to limit rows matching pred, newest created_at first.
	List(ctx context.Context, pred Predicate, limit int) ([]Row, error)

	// ScanAll returns every row. Vectors are omitted; this exists for the
	// stats full scan.
	ScanAll(ctx context.Context) ([]Row, error)

	// VectorSearch returns up to limit rows nearest to vector by cosine
	// distance, filtered by pred, each carrying its Distance.
	VectorSearch(ctx context.Context, vector []float64, pred Predicate, limit int) ([]Scored, error)

	// KeywordSearch runs a full-text query, best match first, each row
	// carrying its Keyword score. Returns ErrDegraded when no full-text
	// index is available.
	KeywordSearch(ctx context.Context, query string, pred Predicate, limit int) ([]Scored, error)

	// KeywordAvailable reports whether the full-text index is usable.
	KeywordAvailable() bool

	// Close releases backend resources.
	Close() error
}

// HybridSearcher is the optional native-fusion capability. Backends that can
// run vector and keyword search in one fused query expose it; the engine
// treats any error from it as a signal to fall back to semantic search.
type HybridSearcher interface {
	// HybridSearch merges keyword and vector rankings (reciprocal rank
	// fusion, k=60) and returns rows carrying a fused Relevance score.
	HybridSearch(ctx context.Context, query string, vector []float64, pred Predicate, limit int) ([]Scored, error)
}
