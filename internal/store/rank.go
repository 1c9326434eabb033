package store

import (
	"math"
	"sort"
)

// Rank scores results by match position and recency and sorts them best
// first. Input order is taken as relevance order.
func Rank(results []SearchResult) []SearchResult {
	if len(results) == 0 {
		return results
	}
	newest := results[0].CreatedAt
	for _, r := range results {
		if r.CreatedAt.After(newest) {
			newest = r.CreatedAt
		}
	}

	for i := range results {
		relevance := 1.0 / float64(i+1)

		// Recency: exponential decay relative to the newest match
		age := newest.Sub(results[i].CreatedAt).Hours() / 24.0
		recency := math.Exp(-0.1 * age)

		results[i].Score = math.Round((relevance*0.4+recency*0.6)*1000) / 1000
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
