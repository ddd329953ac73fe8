// Package sqlite implements the storage contract on an embedded SQLite
// database: lazy table lifecycle, row CRUD, an FTS5 keyword index, and
// brute-force cosine vector search over BLOB-encoded embeddings.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/agentrecall/recall/internal/storage"
)

// Store implements storage.Store (and storage.HybridSearcher) on SQLite.
type Store struct {
	db *sql.DB

	mu           sync.Mutex
	tableKnown   bool // table confirmed to exist; never reset
	ftsAvailable bool
}

// Open opens (or creates) the SQLite database file and configures the
// connection. The memories table itself is NOT created here: table creation
// is deferred to the first write via EnsureTable.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// SQLite supports one writer at a time. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent use; WAL mode
	// lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying connection for collaborators that need direct
// access (the backup service's VACUUM INTO).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Initialize is idempotent. When the table already exists it re-runs the
// best-effort FTS build so an index that failed to build earlier (or went
// stale) is reconciled; when no table exists yet it does nothing, leaving
// creation to the first write.
func (s *Store) Initialize(ctx context.Context) error {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		s.buildFTS(ctx)
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

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'memories'`,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: check table existence: %w", err)
	}
	if n > 0 {
		s.mu.Lock()
		s.tableKnown = true
		s.mu.Unlock()
	}
	return n > 0, nil
}

// EnsureTable creates the memories table from the seed row if it does not
// exist yet. Returns true when the table was just created; the seed row is
// then already inserted and callers must not insert it again.
func (s *Store) EnsureTable(ctx context.Context, seed storage.Row) (bool, error) {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, tableSchema); err != nil {
		return false, fmt.Errorf("sqlite: create memories table: %w", err)
	}
	s.mu.Lock()
	s.tableKnown = true
	s.mu.Unlock()

	if err := s.Insert(ctx, []storage.Row{seed}); err != nil {
		return false, fmt.Errorf("sqlite: insert seed row: %w", err)
	}

	s.buildFTS(ctx)
	return true, nil
}

// buildFTS (re)creates the full-text index. Best-effort: a failure is logged
// and recorded as "FTS unavailable" so keyword/hybrid search degrade instead
// of erroring.
func (s *Store) buildFTS(ctx context.Context) {
	_, err := s.db.ExecContext(ctx, ftsSchema)

	s.mu.Lock()
	s.ftsAvailable = err == nil
	s.mu.Unlock()

	if err != nil {
		log.Printf("sqlite: FTS unavailable: index build failed: %v", err)
	}
}

// KeywordAvailable reports whether the FTS5 index is usable.
func (s *Store) KeywordAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ftsAvailable
}

// Insert appends rows to the memories table in a single transaction.
func (s *Store) Insert(ctx context.Context, rows []storage.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, content, category, tags, created_at, updated_at, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Content, r.Category, r.TagsJSON, r.CreatedAt, r.UpdatedAt,
			serializeVector(r.Vector),
		); err != nil {
			return fmt.Errorf("sqlite: insert memory %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit insert: %w", err)
	}
	return nil
}

// Replace deletes the row with row.ID and inserts the replacement. Both steps
// run inside one transaction so a crash can never leave the id deleted but
// not re-inserted.
func (s *Store) Replace(ctx context.Context, row storage.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, row.ID); err != nil {
		return fmt.Errorf("sqlite: replace delete %s: %w", row.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, category, tags, created_at, updated_at, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Content, row.Category, row.TagsJSON, row.CreatedAt, row.UpdatedAt,
		serializeVector(row.Vector),
	); err != nil {
		return fmt.Errorf("sqlite: replace insert %s: %w", row.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit replace: %w", err)
	}
	return nil
}

// DeleteByID removes a row. Returns storage.ErrNotFound when no row matched
// or the table has never been created.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return storage.ErrNotFound
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete memory %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID returns the row with the given id, or (nil, nil) when it does not
// exist or the table is missing.
func (s *Store) GetByID(ctx context.Context, id string) (*storage.Row, error) {
	exists, err := s.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var r storage.Row
	var blob []byte
	err = s.db.QueryRowContext(ctx, `
		SELECT id, content, category, tags, created_at, updated_at, vector
		FROM memories WHERE id = ? LIMIT 1`, id,
	).Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get memory %s: %w", id, err)
	}

	r.Vector, err = deserializeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("sqlite: memory %s: %w", id, err)
	}
	return &r, nil
}

// List returns up to limit rows matching pred, newest first.
func (s *Store) List(ctx context.Context, pred storage.Predicate, limit int) ([]storage.Row, error) {
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	where, args := predicateClause(pred)
	query := `SELECT id, content, category, tags, created_at, updated_at FROM memories` +
		where + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list memories: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ScanAll returns every row without vectors, for the stats full scan.
func (s *Store) ScanAll(ctx context.Context) ([]storage.Row, error) {
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, category, tags, created_at, updated_at FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan memories: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close flushes the WAL into the main database file and releases resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

// predicateClause renders the pushed-down predicate as a WHERE clause with
// bound arguments. After/Before are inclusive bounds on created_at; string
// comparison is valid because timestamps use a fixed lexicographic layout.
func predicateClause(pred storage.Predicate) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if pred.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, pred.Category)
	}
	if pred.After != "" {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, pred.After)
	}
	if pred.Before != "" {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, pred.Before)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// scanRows reads id/content/category/tags/created_at/updated_at result sets.
func scanRows(rows *sql.Rows) ([]storage.Row, error) {
	var out []storage.Row
	for rows.Next() {
		var r storage.Row
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate rows: %w", err)
	}
	return out, nil
}
