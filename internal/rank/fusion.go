// Package rank implements Reciprocal Rank Fusion for merging independently
// ranked result lists.
package rank

import "sort"

// DefaultK is the standard RRF smoothing constant. k=60 is the widely used
// default from the original RRF paper and keeps low-ranked items from being
// drowned out by a single top hit.
const DefaultK = 60.0

// Fused is an id with its accumulated fusion score.
type Fused struct {
	ID    string
	Score float64
}

// Fuse merges two ranked id lists with Reciprocal Rank Fusion. Each list
// member contributes weight/(k+rank+1) with rank being its 0-based position;
// both lists carry weight 1.0. An id present in both lists sums both
// contributions. The result is sorted by fused score descending and truncated
// to n (n <= 0 means no truncation).
func Fuse(a, b []string, k float64, n int) []Fused {
	if k <= 0 {
		k = DefaultK
	}

	scores := make(map[string]float64, len(a)+len(b))
	// Remember first-seen order so equal scores stay deterministic.
	order := make(map[string]int, len(a)+len(b))
	next := 0
	accumulate := func(list []string) {
		for rank, id := range list {
			if _, seen := scores[id]; !seen {
				order[id] = next
				next++
			}
			scores[id] += 1.0 / (k + float64(rank) + 1.0)
		}
	}
	accumulate(a)
	accumulate(b)

	fused := make([]Fused, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, Fused{ID: id, Score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return order[fused[i].ID] < order[fused[j].ID]
	})

	if n > 0 && len(fused) > n {
		fused = fused[:n]
	}
	return fused
}
