// Package types defines the shared domain types for the recall memory system:
// the Memory record, the fixed category set, search modes, filters, and
// result shapes exchanged between the engine and its callers.
package types

// Category classifies a memory. The set is fixed; anything outside it is
// rejected at the API boundary.
type Category string

const (
	CategoryFact         Category = "fact"
	CategoryPreference   Category = "preference"
	CategoryEvent        Category = "event"
	CategoryTask         Category = "task"
	CategoryLearning     Category = "learning"
	CategoryDecision     Category = "decision"
	CategoryObservation  Category = "observation"
	CategoryInstruction  Category = "instruction"
	CategoryError        Category = "error"
	CategoryIdea         Category = "idea"
	CategoryContext      Category = "context"
	CategoryRelationship Category = "relationship"
)

// Categories lists every valid category, in display order.
var Categories = []Category{
	CategoryFact,
	CategoryPreference,
	CategoryEvent,
	CategoryTask,
	CategoryLearning,
	CategoryDecision,
	CategoryObservation,
	CategoryInstruction,
	CategoryError,
	CategoryIdea,
	CategoryContext,
	CategoryRelationship,
}

// IsValidCategory reports whether c is one of the fixed categories.
func IsValidCategory(c Category) bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// SearchMode selects the retrieval strategy.
type SearchMode string

const (
	SearchSemantic SearchMode = "semantic"
	SearchKeyword  SearchMode = "keyword"
	SearchHybrid   SearchMode = "hybrid" // default
)

// IsValidSearchMode reports whether m is a known search mode.
func IsValidSearchMode(m SearchMode) bool {
	switch m {
	case SearchSemantic, SearchKeyword, SearchHybrid:
		return true
	}
	return false
}

// DefaultSearchLimit is the result cap applied when a caller does not set one.
const DefaultSearchLimit = 10

// SearchFilters narrows a search. All fields are optional; zero values mean
// "no constraint". After and Before are inclusive ISO-8601 bounds on created_at.
type SearchFilters struct {
	Category Category `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"` // match-any semantics
	After    string   `json:"after,omitempty"`
	Before   string   `json:"before,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// SearchResult pairs a memory with its relevance score. Scores are unitless
// and only comparable to other scores from the same query.
type SearchResult struct {
	Memory Memory  `json:"memory"`
	Score  float64 `json:"score"`
}

// Stats summarises the whole store.
type Stats struct {
	TotalMemories int              `json:"total_memories"`
	ByCategory    map[Category]int `json:"by_category"`
	OldestMemory  string           `json:"oldest_memory,omitempty"`
	NewestMemory  string           `json:"newest_memory,omitempty"`
}

// StoreRequest is the input for creating a memory.
type StoreRequest struct {
	Content  string   `json:"content"`
	Category Category `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

// UpdateRequest carries the fields to change on an existing memory.
// Nil pointers mean "leave unchanged".
type UpdateRequest struct {
	Content  *string   `json:"content,omitempty"`
	Category *Category `json:"category,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}
