// Package search ranks indexed documents against a query embedding.
package search

import "math"

// CosineSimilarity returns the cosine of the angle between two
// vectors. Returns 0 and ok=false for mismatched lengths or
// zero-magnitude vectors.
func CosineSimilarity(a, b []float32) (float32, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true
}
