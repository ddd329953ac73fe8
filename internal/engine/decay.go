package engine

import (
	"math"
	"time"

	"github.com/agentrecall/recall/internal/storage"
)

// DefaultHalfLifeDays is the decay half-life applied when none is configured.
const DefaultHalfLifeDays = 30.0

// DecayFactor returns the multiplier applied to a raw relevance score based on
// how long ago the memory was last updated.
//
// halfLifeDays <= 0 disables decay (factor 1). Negative ages from clock skew
// clamp to zero, so the factor never exceeds 1: decay can only reduce a score.
// An unparseable timestamp also yields 1 rather than penalising the memory.
func DecayFactor(updatedAt string, halfLifeDays float64, now time.Time) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	t, err := storage.ParseTime(updatedAt)
	if err != nil {
		return 1
	}
	ageDays := now.Sub(t).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}
