package vecmath

import (
	"math"
	"sort"
)

// CosineDistance returns 1 - cos(a, b), matching pgvector's <=> operator.
// Mismatched or zero-length vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// RankAscending returns the indexes of the k smallest distances. Equal
// distances keep their input order.
func RankAscending(distances []float64, k int) []int {
	idx := make([]int, len(distances))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return distances[idx[i]] < distances[idx[j]] })
	if k >= 0 && k < len(idx) {
		idx = idx[:k]
	}
	return idx
}
