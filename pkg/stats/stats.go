// Package stats provides the shared similarity and statistics primitives used
// by the collaborative-filtering engine, the content-based engine, and the
// model manager. All functions are pure and degrade to neutral values instead
// of failing on degenerate input.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// PearsonCorrelation computes the Pearson correlation coefficient over paired
// samples. Inputs with mismatched lengths, fewer than two samples, or zero
// variance yield 0 rather than an error or NaN.
func PearsonCorrelation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		// Zero variance in either series.
		return 0
	}
	// Floating point noise can push |r| marginally past 1.
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

// CosineSimilarity computes cosine similarity between two sparse vectors
// keyed by feature name. Keys missing from one vector are treated as zero.
// Returns 0 when either vector has zero magnitude.
func CosineSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
		magA += va * va
	}
	for _, vb := range b {
		magB += vb * vb
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// StatisticalSignificance estimates how confidently the accuracy gap between
// two evaluated models reflects a real difference, via a two-proportion
// z-test. The result is the two-sided confidence in (0,1): it approaches 1 as
// the gap widens and the sample sizes grow, and stays near 0 for similar
// accuracies on small samples.
func StatisticalSignificance(accuracyA float64, nA int, accuracyB float64, nB int) float64 {
	if nA <= 0 || nB <= 0 {
		return 0
	}
	accuracyA = clamp01(accuracyA)
	accuracyB = clamp01(accuracyB)

	pooled := (accuracyA*float64(nA) + accuracyB*float64(nB)) / float64(nA+nB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(nA) + 1/float64(nB)))
	if se == 0 {
		return 0
	}
	z := math.Abs(accuracyA-accuracyB) / se

	// Two-sided confidence: 2*Phi(|z|) - 1.
	return clamp01(math.Erf(z / math.Sqrt2))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
