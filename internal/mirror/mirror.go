// Package mirror provides a write-behind decorator that appends every
// successful mutation to a JSON-lines file. It composes around any
// storage.Store; its own I/O failures are logged and swallowed so mirroring
// can never break a memory operation.
package mirror

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentrecall/recall/internal/storage"
)

// Entry is one mirrored mutation.
type Entry struct {
	Op        string `json:"op"` // store, replace, delete
	ID        string `json:"id"`
	Category  string `json:"category,omitempty"`
	Content   string `json:"content,omitempty"`
	Tags      string `json:"tags,omitempty"` // JSON-encoded array, as stored
	UpdatedAt string `json:"updated_at,omitempty"`
	Time      int64  `json:"time"` // mirror write time, unix nanos
}

// Store wraps an inner storage.Store and mirrors mutations to a file.
type Store struct {
	inner storage.Store
	path  string
	mu    sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Wrap decorates inner so every successful mutation is appended to the
// JSON-lines file at path.
func Wrap(inner storage.Store, path string) *Store {
	return &Store{inner: inner, path: path}
}

func (s *Store) record(entries ...Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		log.Printf("mirror: mkdir: %v", err)
		return
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		log.Printf("mirror: open %s: %v", s.path, err)
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range entries {
		e.Time = time.Now().UnixNano()
		if err := enc.Encode(e); err != nil {
			log.Printf("mirror: write entry: %v", err)
			return
		}
	}
}

func rowEntry(op string, r storage.Row) Entry {
	return Entry{
		Op:        op,
		ID:        r.ID,
		Category:  r.Category,
		Content:   r.Content,
		Tags:      r.TagsJSON,
		UpdatedAt: r.UpdatedAt,
	}
}

// EnsureTable mirrors the seed row when the table was just created.
func (s *Store) EnsureTable(ctx context.Context, seed storage.Row) (bool, error) {
	created, err := s.inner.EnsureTable(ctx, seed)
	if err == nil && created {
		s.record(rowEntry("store", seed))
	}
	return created, err
}

// Insert mirrors each inserted row.
func (s *Store) Insert(ctx context.Context, rows []storage.Row) error {
	if err := s.inner.Insert(ctx, rows); err != nil {
		return err
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = rowEntry("store", r)
	}
	s.record(entries...)
	return nil
}

// Replace mirrors the replacement row.
func (s *Store) Replace(ctx context.Context, row storage.Row) error {
	if err := s.inner.Replace(ctx, row); err != nil {
		return err
	}
	s.record(rowEntry("replace", row))
	return nil
}

// DeleteByID mirrors the deletion.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := s.inner.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.record(Entry{Op: "delete", ID: id})
	return nil
}

// The read paths pass straight through.

func (s *Store) Initialize(ctx context.Context) error { return s.inner.Initialize(ctx) }

func (s *Store) TableExists(ctx context.Context) (bool, error) { return s.inner.TableExists(ctx) }

func (s *Store) GetByID(ctx context.Context, id string) (*storage.Row, error) {
	return s.inner.GetByID(ctx, id)
}

func (s *Store) List(ctx context.Context, pred storage.Predicate, limit int) ([]storage.Row, error) {
	return s.inner.List(ctx, pred, limit)
}

func (s *Store) ScanAll(ctx context.Context) ([]storage.Row, error) {
	return s.inner.ScanAll(ctx)
}

func (s *Store) VectorSearch(ctx context.Context, vector []float64, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	return s.inner.VectorSearch(ctx, vector, pred, limit)
}

func (s *Store) KeywordSearch(ctx context.Context, query string, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	return s.inner.KeywordSearch(ctx, query, pred, limit)
}

func (s *Store) KeywordAvailable() bool { return s.inner.KeywordAvailable() }

func (s *Store) Close() error { return s.inner.Close() }

// HybridSearch delegates to the inner store's native fusion when it has one,
// so wrapping does not cost the capability. Inner stores without it report
// ErrDegraded, which triggers the caller's semantic fallback.
func (s *Store) HybridSearch(ctx context.Context, query string, vector []float64, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	if hs, ok := s.inner.(storage.HybridSearcher); ok {
		return hs.HybridSearch(ctx, query, vector, pred, limit)
	}
	return nil, storage.ErrDegraded
}
