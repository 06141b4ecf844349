// Package matcher holds the pure nearest-neighbour math used by enrollment
// and verification: Euclidean distance, centroids and the index contract.
package matcher

import (
	"errors"
	"fmt"
	"math"
)

// DefaultTolerance is the distance at or below which two embeddings are
// considered the same person.
const DefaultTolerance = 0.6

var (
	// ErrNoEmbeddings is returned by Centroid for an empty input.
	ErrNoEmbeddings = errors.New("no embeddings")
	// ErrDimensionMismatch is returned when embeddings disagree on length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Euclidean returns the L2 distance between a and b. Vectors of different
// length are infinitely far apart.
func Euclidean(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// squaredWithin returns the squared L2 distance between a and b, summed in
// the same order as Euclidean. It gives up and reports false as soon as the
// running sum exceeds bound, or when the lengths differ.
func squaredWithin(a, b []float32, bound float64) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
		if sum > bound {
			return 0, false
		}
	}
	return sum, true
}

// Distances returns the distance from query to every embedding, in order.
func Distances(query []float32, embeddings [][]float32) []float64 {
	distances := make([]float64, len(embeddings))
	for i, e := range embeddings {
		distances[i] = Euclidean(query, e)
	}
	return distances
}

// Centroid returns the per-dimension arithmetic mean of embeddings.
func Centroid(embeddings [][]float32) ([]float32, error) {
	if len(embeddings) == 0 {
		return nil, ErrNoEmbeddings
	}
	dim := len(embeddings[0])
	if dim == 0 {
		return nil, ErrNoEmbeddings
	}

	sum := make([]float64, dim)
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(e), dim)
		}
		for j, v := range e {
			sum[j] += float64(v)
		}
	}

	n := float64(len(embeddings))
	centroid := make([]float32, dim)
	for j := range sum {
		centroid[j] = float32(sum[j] / n)
	}
	return centroid, nil
}
