package vectorstore

import (
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0 if
// either is a zero vector.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rankTopK orders results by descending score and keeps the first k.
// Equal scores keep insertion order.
func rankTopK(results []SearchResult, k int) []SearchResult {
	if k <= 0 {
		k = DefaultTopK
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
