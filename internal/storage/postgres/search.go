package postgres

import (
	"context"
	"fmt"

	"github.com/agentrecall/recall/internal/storage"
)

// VectorSearch ranks rows by pgvector cosine distance (the <=> operator).
func (s *Store) VectorSearch(ctx context.Context, vector []float64, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, nil
	}

	args := []interface{}{toPgVector(vector)}
	where, predArgs := predicateClause(pred, 2)
	args = append(args, predArgs...)

	query := fmt.Sprintf(`
		SELECT id, content, category, tags, created_at, updated_at, vector <=> $1 AS distance
		FROM memories%s
		ORDER BY distance
		LIMIT $%d`, where, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer rows.Close()

	var scored []storage.Scored
	for rows.Next() {
		var r storage.Row
		var d float64
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt, &d); err != nil {
			return nil, fmt.Errorf("postgres: vector search scan: %w", err)
		}
		dist := d
		scored = append(scored, storage.Scored{Row: r, Distance: &dist})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector search rows: %w", err)
	}
	return scored, nil
}

// KeywordSearch ranks rows by ts_rank over the generated tsvector column.
func (s *Store) KeywordSearch(ctx context.Context, query string, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	if !s.KeywordAvailable() {
		return nil, storage.ErrDegraded
	}
	exists, err := s.TableExists(ctx)
	if err != nil || !exists {
		return nil, err
	}

	args := []interface{}{query}
	where, predArgs := predicateClause(pred, 2)
	args = append(args, predArgs...)
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}

	sqlQuery := fmt.Sprintf(`
		SELECT id, content, category, tags, created_at, updated_at,
		       ts_rank(search_tsv, plainto_tsquery('english', $1)) AS score
		FROM memories%ssearch_tsv @@ plainto_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $%d`, where, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: keyword search %q: %w", query, err)
	}
	defer rows.Close()

	var scored []storage.Scored
	for rows.Next() {
		var r storage.Row
		var score float64
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("postgres: keyword search scan: %w", err)
		}
		kw := score
		scored = append(scored, storage.Scored{Row: r, Keyword: &kw})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: keyword search rows: %w", err)
	}
	return scored, nil
}

// HybridSearch fuses the keyword and vector rankings with reciprocal rank
// fusion (k=60) inside a single SQL query. The fused score comes back as the
// rows' native Relevance.
func (s *Store) HybridSearch(ctx context.Context, query string, vector []float64, pred storage.Predicate, limit int) ([]storage.Scored, error) {
	if !s.KeywordAvailable() {
		return nil, storage.ErrDegraded
	}
	exists, err := s.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	// $1 = query text, $2 = query vector, then predicate args, then limit.
	args := []interface{}{query, toPgVector(vector)}
	where, predArgs := predicateClause(pred, 3)
	args = append(args, predArgs...)
	kwWhere := where
	if kwWhere == "" {
		kwWhere = " WHERE "
	} else {
		kwWhere += " AND "
	}
	limitPos := len(args) + 1
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
		WITH kw AS (
			SELECT id, ROW_NUMBER() OVER (
				ORDER BY ts_rank(search_tsv, plainto_tsquery('english', $1)) DESC
			) - 1 AS rnk
			FROM memories%ssearch_tsv @@ plainto_tsquery('english', $1)
			LIMIT $%[2]d
		), vec AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY vector <=> $2) - 1 AS rnk
			FROM memories%[3]s
			ORDER BY vector <=> $2
			LIMIT $%[2]d
		), fused AS (
			SELECT COALESCE(kw.id, vec.id) AS id,
			       COALESCE(1.0 / (60 + kw.rnk + 1), 0) +
			       COALESCE(1.0 / (60 + vec.rnk + 1), 0) AS score
			FROM kw FULL OUTER JOIN vec ON kw.id = vec.id
		)
		SELECT m.id, m.content, m.category, m.tags, m.created_at, m.updated_at, fused.score
		FROM fused
		JOIN memories m ON m.id = fused.id
		ORDER BY fused.score DESC
		LIMIT $%[2]d`, kwWhere, limitPos, where)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: hybrid search %q: %w", query, err)
	}
	defer rows.Close()

	var scored []storage.Scored
	for rows.Next() {
		var r storage.Row
		var score float64
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &r.TagsJSON, &r.CreatedAt, &r.UpdatedAt, &score); err != nil {
			return nil, fmt.Errorf("postgres: hybrid search scan: %w", err)
		}
		rel := score
		scored = append(scored, storage.Scored{Row: r, Relevance: &rel})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: hybrid search rows: %w", err)
	}
	return scored, nil
}
