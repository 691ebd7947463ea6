// Package vectormath implements the vector primitives the similarity
// search core is built on: L2 normalization, the cosine dot product,
// and centroid computation. All downstream scoring assumes every
// embedding it touches was normalized exactly once, at write time, by
// the external ingestor. IsNormalized is the check for that invariant;
// the matcher and pipeline do not call it and take the invariant as
// given.
package vectormath

import (
	"fmt"
	"math"
)

// normTolerance is how far a vector's L2 norm may drift from 1 and
// still be considered normalized.
const normTolerance = 1e-2

// Normalize returns v scaled to unit L2 length.
func Normalize(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, fmt.Errorf("vectormath.Normalize: empty vector")
	}

	var sumSq float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("vectormath.Normalize: non-finite component")
		}
		sumSq += f * f
	}

	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return nil, fmt.Errorf("vectormath.Normalize: zero vector cannot be normalized")
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Dot returns the dot product of a and b. Under the normalization
// invariant this is exactly the cosine similarity and is the sole
// similarity primitive used downstream. Dot is commutative.
func Dot(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("vectormath.Dot: empty vector")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectormath.Dot: dimension mismatch (%d vs %d)", len(a), len(b))
	}

	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum, nil
}

// Centroid returns the arithmetic mean of vs. All vectors must share
// the same dimension; the centroid of the empty set is an error.
func Centroid(vs [][]float32) ([]float32, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("vectormath.Centroid: empty set")
	}

	dim := len(vs[0])
	if dim == 0 {
		return nil, fmt.Errorf("vectormath.Centroid: zero-dimension vector")
	}

	sum := make([]float64, dim)
	for _, v := range vs {
		if len(v) != dim {
			return nil, fmt.Errorf("vectormath.Centroid: dimension mismatch (%d vs %d)", len(v), dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	out := make([]float32, dim)
	n := float64(len(vs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}

// IsNormalized reports whether v's L2 norm is within tolerance of 1.
func IsNormalized(v []float32) bool {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	return norm >= 1-normTolerance && norm <= 1+normTolerance
}
