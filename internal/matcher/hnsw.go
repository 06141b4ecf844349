package matcher

import (
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSW graph parameters for 128-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 64

	// HNSWCandidates is how many graph neighbours seed the scan bound.
	HNSWCandidates = 8
)

// HNSW answers queries exactly. The graph supplies a close candidate whose
// squared distance bounds a scan over every embedding; the scan abandons an
// embedding as soon as its running sum exceeds the bound. The result always
// equals Linear, including the lowest-position tie-break.
type HNSW struct {
	graph      *hnsw.Graph[int]
	linear     *Linear
	candidates int
	mu         sync.Mutex // serializes graph access
}

// NewHNSW builds the graph from embeddings. Embeddings whose length differs
// from the first one are left out of the graph; the scan still sees them.
func NewHNSW(embeddings [][]float32) *HNSW {
	h := &HNSW{
		linear:     NewLinear(embeddings),
		candidates: HNSWCandidates,
	}
	if len(embeddings) == 0 {
		return h
	}

	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance

	dim := len(embeddings[0])
	for i, e := range embeddings {
		if len(e) == 0 || len(e) != dim {
			continue
		}
		g.Add(hnsw.MakeNode(i, e))
	}
	h.graph = g
	return h
}

// Len returns the number of indexed embeddings.
func (h *HNSW) Len() int {
	return h.linear.Len()
}

// Nearest seeds the bound from the graph candidates and confirms it with a
// bounded scan.
func (h *HNSW) Nearest(query []float32) (int, float64) {
	if h.graph == nil || h.graph.Len() == 0 || len(query) != h.graph.Dims() {
		return h.linear.Nearest(query)
	}

	h.mu.Lock()
	neighbors := h.graph.Search(query, h.candidates)
	h.mu.Unlock()

	bound := math.Inf(1)
	for _, n := range neighbors {
		if sum, ok := squaredWithin(query, h.linear.embeddings[n.Key], bound); ok && sum < bound {
			bound = sum
		}
	}
	if math.IsInf(bound, 1) {
		return h.linear.Nearest(query)
	}

	best, bestSum := -1, bound
	for i, e := range h.linear.embeddings {
		sum, ok := squaredWithin(query, e, bestSum)
		if !ok {
			continue
		}
		// Strict comparison keeps the lowest position on ties.
		if best == -1 || sum < bestSum {
			best, bestSum = i, sum
		}
	}
	return best, math.Sqrt(bestSum)
}
