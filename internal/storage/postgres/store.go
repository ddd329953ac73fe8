// Package postgres implements the storage contract on PostgreSQL with the
// pgvector extension: indexed cosine nearest-neighbour search, tsvector
// keyword search, and a native hybrid query that fuses both rankings with
// reciprocal rank fusion inside SQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/agentrecall/recall/internal/storage"
)

var (
	_ storage.Store          = (*Store)(nil)
	_ storage.HybridSearcher = (*Store)(nil)
)

// Store implements storage.Store on PostgreSQL + pgvector.
type Store struct {
	db *sql.DB

	mu           sync.Mutex
	tableKnown   bool
	ftsAvailable bool
}

// Open connects to PostgreSQL and verifies the pgvector extension is
// installed. As with the SQLite backend, the memories table is created lazily
// by the first write, not here.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: pgvector extension: %w", err)
	}
	return &Store{db: db}, nil
}

// Initialize re-runs the best-effort keyword index build when the table
// already exists. Idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		s.buildKeywordIndex(ctx)
	}
	return nil
}

// TableExists reports whether the memories table has been created.
func (s *Store) TableExists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	known := s.tableKnown
	s.mu.Unlock()
	if known {
		return true, nil
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT to_regclass('memories') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check table existence: %w", err)
	}
	if exists {
		s.mu.Lock()
		s.tableKnown = true
		s.mu.Unlock()
	}
	return exists, nil
}

// EnsureTable creates the memories table sized to the seed row's vector
// dimension, inserts the seed, and builds the keyword index. Returns true
// when the table was just created.
func (s *Store) EnsureTable(ctx context.Context, seed storage.Row) (bool, error) {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	// The vector column dimension is inferred from the seed row and fixed for
	// the lifetime of the table.
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS memories (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			category   TEXT NOT NULL,
			tags       TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			vector     vector(%d) NOT NULL,
			search_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED
		);
		CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
		CREATE INDEX IF NOT EXISTS idx_memories_category   ON memories(category);
	`, len(seed.Vector))

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return false, fmt.Errorf("postgres: create memories table: %w", err)
	}
	s.mu.Lock()
	s.tableKnown = true
	s.mu.Unlock()

	if err := s.Insert(ctx, []storage.Row{seed}); err != nil {
		return false, fmt.Errorf("postgres: insert seed row: %w", err)
	}

	s.buildKeywordIndex(ctx)
	return true, nil
}

// buildKeywordIndex (re)creates the GIN index over the tsvector column.
// Best-effort: failure leaves keyword search degraded, never errors the write.
func (s *Store) buildKeywordIndex(ctx context.Context) {
	_, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_memories_search_tsv ON memories USING GIN (search_tsv)`)

	s.mu.Lock()
	s.ftsAvailable = err == nil
	s.mu.Unlock()

	if err != nil {
		log.Printf("postgres: FTS unavailable: keyword index build failed: %v", err)
	}
}

// KeywordAvailable reports whether the keyword index is usable.
func (s *Store) KeywordAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ftsAvailable
}

// Insert appends rows in a single transaction.
func (s *Store) Insert(ctx context.Context, rows []storage.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, content, category, tags, created_at, updated_at, vector)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("postgres: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Content, r.Category, r.TagsJSON, r.CreatedAt, r.UpdatedAt, toPgVector(r.Vector),
		); err != nil {
			return fmt.Errorf("postgres: insert memory %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit insert: %w", err)
	}
	return nil
}

// Replace deletes row.ID and inserts the replacement in one transaction.
func (s *Store) Replace(ctx context.Context, row storage.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, row.ID); err != nil {
		return fmt.Errorf("postgres: replace delete %s: %w", row.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, category, tags, created_at, updated_at, vector)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.Content, row.Category, row.TagsJSON, row.CreatedAt, row.UpdatedAt, toPgVector(row.Vector),
	); err != nil {
		return fmt.Errorf("postgres: replace insert %s: %w", row.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit replace: %w", err)
	}
	return nil
}

// DeleteByID removes a row, mapping zero rows affected to ErrNotFound.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete memory %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: delete rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID returns the row or (nil, nil) when absent or the table is missing.
func (s *Store) GetByID(ctx context.Context, id string) (*storage.Row, error) {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var r storage.Row
	var vec pgvector.Vector
	err = s.db.QueryRowContext(ctx, `
		SELECT id, content, category, tags, created_at, updated_at, vector
		FROM memories WHERE id = $1 LIMIT 1`, id,
	).Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt, &vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get memory %s: %w", id, err)
	}
	r.Vector = fromPgVector(vec)
	return &r, nil
}

// List returns up to limit rows matching pred, newest first.
func (s *Store) List(ctx context.Context, pred storage.Predicate, limit int) ([]storage.Row, error) {
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	where, args := predicateClause(pred, 1)
	query := `SELECT id, content, category, tags, created_at, updated_at FROM memories` +
		where + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list memories: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ScanAll returns every row without vectors.
func (s *Store) ScanAll(ctx context.Context) ([]storage.Row, error) {
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, category, tags, created_at, updated_at FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan memories: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// predicateClause renders pred as a WHERE clause with numbered placeholders
// starting at start.
func predicateClause(pred storage.Predicate, start int) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(expr string, v interface{}) {
		conditions = append(conditions, fmt.Sprintf(expr, start+len(args)))
		args = append(args, v)
	}
	if pred.Category != "" {
		add("category = $%d", pred.Category)
	}
	if pred.After != "" {
		add("created_at >= $%d", pred.After)
	}
	if pred.Before != "" {
		add("created_at <= $%d", pred.Before)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func scanRows(rows *sql.Rows) ([]storage.Row, error) {
	var out []storage.Row
	for rows.Next() {
		var r storage.Row
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rows: %w", err)
	}
	return out, nil
}

// toPgVector converts a float64 slice to the pgvector wire type (float32).
func toPgVector(v []float64) pgvector.Vector {
	f32 := make([]float32, len(v))
	for i, f := range v {
		f32[i] = float32(f)
	}
	return pgvector.NewVector(f32)
}

// fromPgVector converts back to the engine's float64 representation.
func fromPgVector(v pgvector.Vector) []float64 {
	s := v.Slice()
	f64 := make([]float64, len(s))
	for i, f := range s {
		f64[i] = float64(f)
	}
	return f64
}
