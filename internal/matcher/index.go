package matcher

import "math"

// Index finds the embedding nearest to a query.
type Index interface {
	// Nearest returns the position of the closest embedding and its distance.
	// Ties go to the lowest position. An empty index returns -1 and +Inf.
	Nearest(query []float32) (int, float64)
	Len() int
}

// Linear is an exact scan over all embeddings.
type Linear struct {
	embeddings [][]float32
}

// NewLinear creates a linear index. The slice is not copied.
func NewLinear(embeddings [][]float32) *Linear {
	return &Linear{embeddings: embeddings}
}

// Len returns the number of indexed embeddings.
func (l *Linear) Len() int {
	return len(l.embeddings)
}

// Nearest scans every embedding.
func (l *Linear) Nearest(query []float32) (int, float64) {
	return argmin(Distances(query, l.embeddings))
}

func argmin(distances []float64) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, d := range distances {
		// Strict comparison keeps the lowest index on ties.
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}
