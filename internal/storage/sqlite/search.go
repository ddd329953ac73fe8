package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agentrecall/recall/internal/rank"
	"github.com/agentrecall/recall/internal/storage"
)

// Compile-time checks: *Store provides both the base contract and the
// native-fusion capability.
var (
	_ storage.Store          = (*Store)(nil)
	_ storage.HybridSearcher = (*Store)(nil)
)

// vectorSearchMaxCandidates caps how many embeddings are loaded into memory
// during a vector search. Candidates are taken newest first, so the most
// recent memories are always considered. Single-agent stores sit far below
// this limit.
const vectorSearchMaxCandidates = 10_000

// VectorSearch loads the candidate embeddings matching pred and ranks them by
// cosine distance to the query vector. Returns empty results (not an error)
// while no table exists.
func (s *Store) VectorSearch(ctx context.Context, vector []float64, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, nil
	}

	where, args := predicateClause(pred)
	query := `SELECT id, content, category, tags, created_at, updated_at, vector FROM memories` +
		where + ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, vectorSearchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector search: %w", err)
	}
	defer rows.Close()

	var scored []storage.Scored
	for rows.Next() {
		var r storage.Row
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: vector search scan: %w", err)
		}
		r.Vector, err = deserializeVector(blob)
		if err != nil {
			continue // skip rows with corrupt vectors rather than failing the search
		}
		d := cosineDistance(vector, r.Vector)
		scored = append(scored, storage.Scored{Row: r, Distance: &d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector search rows: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return *scored[i].Distance < *scored[j].Distance
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// KeywordSearch runs an FTS5 MATCH query, best match first. Returns
// storage.ErrDegraded when the index is unavailable; other query failures are
// returned as-is for the caller to degrade on.
func (s *Store) KeywordSearch(ctx context.Context, query string, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	if !s.KeywordAvailable() {
		return nil, storage.ErrDegraded
	}
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	// Predicate columns only exist on the memories side of the join, so the
	// unqualified clause from predicateClause is unambiguous here.
	where, args := predicateClause(pred)
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}

	// FTS5 rank is negative bm25 (more negative = better), so rank ASC gives
	// best matches first and -rank is a positive relevance score.
	sqlQuery := `
		SELECT m.id, m.content, m.category, m.tags, m.created_at, m.updated_at, -fts.rank
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid` +
		where + `memories_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`
	args = append(args, ftsQuery, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keyword search MATCH %q: %w", query, err)
	}
	defer rows.Close()

	var scored []storage.Scored
	for rows.Next() {
		var r storage.Row
		var score float64
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("sqlite: keyword search scan: %w", err)
		}
		kw := score
		scored = append(scored, storage.Scored{Row: r, Keyword: &kw})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: keyword search rows: %w", err)
	}
	return scored, nil
}

// HybridSearch runs keyword and vector search together and fuses the two
// rankings with reciprocal rank fusion (k=60). The fused score is returned as
// the row's Relevance. Any failure of the keyword half propagates so the
// engine can fall back to pure semantic search.
func (s *Store) HybridSearch(ctx context.Context, query string, vector []float64, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	kw, err := s.KeywordSearch(ctx, query, pred, limit)
	if err != nil {
		return nil, err
	}
	vec, err := s.VectorSearch(ctx, vector, pred, limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]storage.Row, len(kw)+len(vec))
	kwIDs := make([]string, len(kw))
	for i, r := range kw {
		kwIDs[i] = r.Row.ID
		byID[r.Row.ID] = r.Row
	}
	vecIDs := make([]string, len(vec))
	for i, r := range vec {
		vecIDs[i] = r.Row.ID
		byID[r.Row.ID] = r.Row
	}

	fused := rank.Fuse(kwIDs, vecIDs, rank.DefaultK, limit)
	out := make([]storage.Scored, 0, len(fused))
	for _, f := range fused {
		score := f.Score
		out = append(out, storage.Scored{Row: byID[f.ID], Relevance: &score})
	}
	return out, nil
}

// ftsStopWords are query words with no discriminative value. They are dropped
// during sanitisation rather than at the tokenizer, so stored content keeps
// full position information.
var ftsStopWords = map[string]bool{
	"a": true, "an": true, "the": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"will": true, "would": true, "could": true, "should": true, "can": true,
	"to": true, "of": true, "in": true, "on": true, "at": true,
	"by": true, "for": true, "with": true, "from": true, "as": true,
	"about": true, "into": true, "over": true, "under": true,
	"what": true, "how": true, "when": true, "where": true, "why": true,
	"who": true, "which": true,
	"this": true, "that": true, "these": true, "those": true,
	"i": true, "you": true, "it": true, "we": true, "they": true,
	"and": true, "or": true, "but": true, "if": true, "not": true,
}

// sanitizeFTSQuery converts free-form query text into a safe FTS5 MATCH
// expression. FTS5 syntax is fragile (an unbalanced quote or a bare operator
// keyword causes a syntax error), so the input is reduced to lowercased
// prefix terms joined with OR.
//
//	"What is hybrid search?" -> "hybrid* OR search*"
func sanitizeFTSQuery(query string) string {
	replacer := strings.NewReplacer(
		`"`, ` `, `'`, ` `, `(`, ` `, `)`, ` `,
		`*`, ` `, `-`, ` `, `^`, ` `, `?`, ` `, `:`, ` `, `.`, ` `, `,`, ` `,
	)
	words := strings.Fields(strings.ToLower(replacer.Replace(query)))

	var terms []string
	for _, w := range words {
		if !ftsStopWords[w] && len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}
	if len(terms) == 0 {
		// Everything was a stop word; lowercasing keeps AND/OR/NOT from being
		// parsed as operators.
		return strings.ToLower(strings.TrimSpace(replacer.Replace(query)))
	}
	return strings.Join(terms, " OR ")
}
