package vector

import "math"

// magnitude returns the L2 norm of v, accumulated in float64.
func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// cosine returns dot(a, b) / (|a| |b|) given precomputed magnitudes.
// Zero magnitude on either side yields 0. a and b must have equal length.
func cosine(a, b []float32, magA, magB float64) float64 {
	if magA == 0 || magB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	s := dot / (magA * magB)
	// Rounding can push identical vectors a hair past 1.
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
