package types

// Memory represents a single durable memory unit. Timestamps are ISO-8601
// strings in UTC (fixed millisecond precision) so that they sort correctly
// under plain string comparison, which the stats and range-filter paths rely on.
type Memory struct {
	ID        string   `json:"id"`         // Unique identifier (engine-generated UUID)
	Content   string   `json:"content"`    // Raw memory text
	Category  Category `json:"category"`   // One of the fixed categories
	Tags      []string `json:"tags"`       // Free-form labels, order preserved
	CreatedAt string   `json:"created_at"` // Creation timestamp, immutable
	UpdatedAt string   `json:"updated_at"` // Last modification timestamp
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the memory carries at least one of the given tags.
// An empty list matches nothing.
func (m *Memory) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if m.HasTag(t) {
			return true
		}
	}
	return false
}

// Tags that exempt a memory from temporal decay.
const (
	TagEvergreen   = "evergreen"
	TagNeverForget = "never-forget"
)

// DecayExempt reports whether the memory is pinned against temporal decay.
func (m *Memory) DecayExempt() bool {
	return m.HasTag(TagEvergreen) || m.HasTag(TagNeverForget)
}
