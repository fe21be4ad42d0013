// Package vector scores embedded chunks against a query embedding. Scoring
// is cosine-based and normalized into (0, 1], and the retrieval cut is a
// dynamic threshold derived from the candidate pool rather than a fixed
// constant, so dense result sets are trimmed harder than sparse ones.
package vector

import (
	"math"
	"sort"
)

// Cosine returns the cosine of the angle between a and b. Mismatched
// dimensions or a zero-magnitude vector score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similarity maps cosine distance d = 1 - cosine onto (0, 1] with
// s = 1 / (1 + d). Identical vectors score 1; opposite vectors 1/3.
func Similarity(a, b []float32) float64 {
	d := 1 - Cosine(a, b)
	return 1 / (1 + d)
}

// Scored pairs a candidate index with its similarity to the query.
type Scored struct {
	Index int
	Score float64
}

// Rank scores every candidate and returns all of them ordered best first.
// Ties keep candidate order.
func Rank(query []float32, candidates [][]float32) []Scored {
	scored := make([]Scored, len(candidates))
	for i, c := range candidates {
		scored[i] = Scored{Index: i, Score: Similarity(query, c)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored
}

// TopK returns the k best-scoring candidates, fewer when the pool is small.
func TopK(query []float32, candidates [][]float32, k int) []Scored {
	scored := Rank(query, candidates)
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// DynamicThreshold derives the retrieval cut from a score pool:
// (max + mean) / 2, clamped into [lo, hi]. An empty pool yields lo.
func DynamicThreshold(scores []float64, lo, hi float64) float64 {
	if len(scores) == 0 {
		return lo
	}
	max := scores[0]
	sum := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
		sum += s
	}
	t := (max + sum/float64(len(scores))) / 2
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}

// Cut keeps the entries scoring at or above the threshold, preserving order.
func Cut(scored []Scored, threshold float64) []Scored {
	var out []Scored
	for _, s := range scored {
		if s.Score >= threshold {
			out = append(out, s)
		}
	}
	return out
}
