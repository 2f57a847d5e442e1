// Package metric provides distance and similarity kernels for float32 vectors.
package metric

import (
	"errors"
	"math"
)

// ErrSizeMismatch is returned when the two vectors have different lengths.
var ErrSizeMismatch = errors.New("vector sizes do not match")

// Dot returns the dot product of v1 and v2. Lengths must match.
func Dot(v1, v2 []float32) float32 {
	var sum float32
	for i := range v1 {
		sum += v1[i] * v2[i]
	}
	return sum
}

// Magnitude calculates the magnitude (length) of a float32 slice.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// CosineSimilarity calculates the cosine similarity between two float32 slices.
func CosineSimilarity(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	dotProduct := Dot(v1, v2)
	magnitudeA := Magnitude(v1)
	magnitudeB := Magnitude(v2)

	// Avoid division by zero
	if magnitudeA == 0 || magnitudeB == 0 {
		return 0, nil
	}

	return dotProduct / (magnitudeA * magnitudeB), nil
}

// SquaredL2 calculates the squared L2 distance between two float32 slices.
func SquaredL2(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	var sum float32
	for i := range v1 {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return sum, nil
}

// Normalize scales v to unit length in place. Zero vectors are left unchanged.
func Normalize(v []float32) {
	mag := Magnitude(v)
	if mag == 0 {
		return
	}
	inv := 1 / mag
	for i := range v {
		v[i] *= inv
	}
}
