package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentrecall/recall/pkg/types"
)

// TimeFormat is the on-disk timestamp layout: ISO-8601 UTC with fixed
// millisecond precision, so string comparison agrees with time ordering.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the canonical on-disk layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a canonical timestamp. It also accepts plain RFC 3339 so
// externally supplied filter bounds ("2024-01-01T00:00:00Z") work unchanged.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Row is the physical representation of a memory: the Memory fields plus the
// embedding vector, with tags flattened to a JSON string because the engine
// has no native array column usable for them.
type Row struct {
	ID        string
	Content   string
	Category  string
	TagsJSON  string
	CreatedAt string
	UpdatedAt string
	Vector    []float64
}

// NewRow builds a Row from a Memory and its embedding vector.
func NewRow(m types.Memory, vector []float64) (Row, error) {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return Row{}, fmt.Errorf("storage: marshal tags: %w", err)
	}
	return Row{
		ID:        m.ID,
		Content:   m.Content,
		Category:  string(m.Category),
		TagsJSON:  string(encoded),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Vector:    vector,
	}, nil
}

// Memory converts the row back to its logical form. A corrupt tags column
// yields an empty tag list rather than an error; the memory itself is intact.
func (r *Row) Memory() types.Memory {
	var tags []string
	if r.TagsJSON != "" {
		_ = json.Unmarshal([]byte(r.TagsJSON), &tags)
	}
	return types.Memory{
		ID:        r.ID,
		Content:   r.Content,
		Category:  types.Category(r.Category),
		Tags:      tags,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Predicate is the simple equality/range filter pushed down to the storage
// engine. Zero values mean "unconstrained". Tag filtering is NOT part of the
// predicate: tags live in a serialized blob, so they are filtered in memory
// above the storage layer.
type Predicate struct {
	Category string
	After    string // inclusive lower bound on created_at
	Before   string // inclusive upper bound on created_at
}

// IsZero reports whether the predicate constrains nothing.
func (p Predicate) IsZero() bool {
	return p.Category == "" && p.After == "" && p.Before == ""
}

// EscapeLiteral doubles single quotes so a string value is safe to embed in an
// engine query literal. Parameter binding is preferred everywhere it is
// available; this exists for the places where a value must be spliced into a
// query expression (e.g. quoted FTS phrase tokens).
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Scored is a row annotated with the raw score material produced by a search
// path. Exactly which field is set depends on the path that produced the row:
//
//   - Relevance: a native fusion/rerank score (highest interpretation priority)
//   - Distance: a raw vector distance, converted to 1/(1+d) by the caller
//   - Keyword: a raw keyword relevance score, used as-is
//
// When none is set the row scores 0.
type Scored struct {
	Row       Row
	Relevance *float64
	Distance  *float64
	Keyword   *float64
}
