package memory

import (
	"math"
	"sort"
	"strings"
)

// rank scores entries against a query and returns the best limit hits.
// Entries with a vector are compared by cosine similarity when the query has
// one; everything else falls back to keyword overlap.
func rank(entries []Entry, query string, queryVec []float64, limit int) []Hit {
	if limit <= 0 {
		limit = 5
	}
	queryWords := tokenize(query)

	type scored struct {
		entry Entry
		score float64
	}
	var results []scored
	for _, e := range entries {
		var score float64
		if queryVec != nil && len(e.Vector) == len(queryVec) {
			score = cosine(queryVec, e.Vector)
		} else {
			score = keywordScore(queryWords, e.Text)
		}
		if score <= 0 {
			continue
		}
		results = append(results, scored{entry: e, score: score})
	}

	// Score descending, newest first on ties.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].entry.CreatedAt.After(results[j].entry.CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:         r.entry.ID,
			Collection: r.entry.Collection,
			Text:       r.entry.Text,
			Metadata:   r.entry.Metadata,
			Score:      r.score,
		}
	}
	return hits
}

// keywordScore is the share of distinct query words found in text.
func keywordScore(queryWords []string, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, w := range tokenize(text) {
		present[w] = true
	}
	seen := make(map[string]bool, len(queryWords))
	var matched, total int
	for _, qw := range queryWords {
		if seen[qw] {
			continue
		}
		seen[qw] = true
		total++
		if present[qw] {
			matched++
		}
	}
	return float64(matched) / float64(total)
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tokenize splits a string into lowercase words.
func tokenize(s string) []string {
	words := strings.Fields(strings.ToLower(s))
	result := make([]string, 0, len(words))
	for _, w := range words {
		// Strip common punctuation
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) > 1 {
			result = append(result, w)
		}
	}
	return result
}
