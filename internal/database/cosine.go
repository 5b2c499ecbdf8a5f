package database

import "math"

// Dot computes the inner product of two vectors.
// For unit-norm vectors this equals their cosine similarity.
// The sum is accumulated in float64 and rounded once to float32.
func Dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float64
	for i := range n {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// Norm returns the L2 norm of a vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-norm copy of v, or nil for a zero vector.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// IsUnitNorm reports whether v has L2 norm 1 within UnitNormTolerance.
func IsUnitNorm(v []float32) bool {
	return math.Abs(Norm(v)-1) <= UnitNormTolerance
}
