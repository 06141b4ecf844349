package matcher

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinear_Nearest(t *testing.T) {
	idx := NewLinear([][]float32{{0, 0}, {1, 1}, {0.1, 0}})

	i, d := idx.Nearest([]float32{0.09, 0})
	assert.Equal(t, 2, i)
	assert.InDelta(t, 0.01, d, 1e-6)
}

func TestLinear_TieGoesToLowestIndex(t *testing.T) {
	idx := NewLinear([][]float32{{5, 5}, {1, 0}, {-1, 0}, {1, 0}})

	i, d := idx.Nearest([]float32{0, 0})
	assert.Equal(t, 1, i)
	assert.InDelta(t, 1, d, 1e-9)
}

func TestLinear_Empty(t *testing.T) {
	i, d := NewLinear(nil).Nearest([]float32{1})
	assert.Equal(t, -1, i)
	assert.True(t, math.IsInf(d, 1))
}

func randomEmbeddings(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		e := make([]float32, dim)
		for j := range e {
			e[j] = rng.Float32()*2 - 1
		}
		out[i] = e
	}
	return out
}

func TestHNSW_AgreesWithLinearOnMatches(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	embeddings := randomEmbeddings(rng, 200, 32)
	linear := NewLinear(embeddings)
	index := NewHNSW(embeddings)

	assert.Equal(t, 200, index.Len())

	for q := 0; q < 50; q++ {
		// Queries close to a known embedding.
		target := embeddings[rng.Intn(len(embeddings))]
		query := make([]float32, len(target))
		for j := range target {
			query[j] = target[j] + rng.Float32()*0.002
		}

		wantIdx, wantDist := linear.Nearest(query)
		gotIdx, gotDist := index.Nearest(query)
		assert.Equal(t, wantIdx, gotIdx)
		assert.Equal(t, wantDist, gotDist)
	}
}

func TestHNSW_FarQuery(t *testing.T) {
	embeddings := [][]float32{{10, 10}, {20, 20}, {-10, 4}}
	index := NewHNSW(embeddings)

	i, d := index.Nearest([]float32{0, 0})
	wantI, wantD := NewLinear(embeddings).Nearest([]float32{0, 0})
	assert.Equal(t, wantI, i)
	assert.InDelta(t, wantD, d, 1e-9)
}

func TestHNSW_Empty(t *testing.T) {
	i, _ := NewHNSW(nil).Nearest([]float32{1, 2})
	assert.Equal(t, -1, i)
}

func TestHNSW_TieGoesToLowestIndex(t *testing.T) {
	embeddings := make([][]float32, 40)
	for i := range embeddings {
		embeddings[i] = []float32{0.25, -0.5, 0.75, 1}
	}
	index := NewHNSW(embeddings)

	i, d := index.Nearest([]float32{0.25, -0.5, 0.75, 1})
	assert.Equal(t, 0, i)
	assert.Equal(t, 0.0, d)
}

func TestHNSW_FindsExactMatchAmongNearDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const dim = 32
	base := randomEmbeddings(rng, 1, dim)[0]

	// 200 slightly perturbed copies, all within tolerance of the query,
	// followed by the query itself.
	embeddings := make([][]float32, 0, 201)
	for range 200 {
		e := make([]float32, dim)
		for j := range e {
			e[j] = base[j] + (rng.Float32()*2-1)*0.1
		}
		embeddings = append(embeddings, e)
	}
	embeddings = append(embeddings, append([]float32(nil), base...))

	index := NewHNSW(embeddings)
	i, d := index.Nearest(base)
	wantI, wantD := NewLinear(embeddings).Nearest(base)

	assert.Equal(t, 200, wantI)
	assert.Equal(t, wantI, i)
	assert.Equal(t, wantD, d)
}

func TestHNSW_AgreesWithLinearEverywhere(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	embeddings := randomEmbeddings(rng, 300, 16)
	// Duplicates put ties in the middle of the set.
	embeddings[150] = embeddings[20]
	embeddings[210] = embeddings[20]
	linear := NewLinear(embeddings)
	index := NewHNSW(embeddings)

	queries := randomEmbeddings(rng, 60, 16)
	queries = append(queries, embeddings[20], embeddings[299])
	for _, query := range queries {
		wantI, wantD := linear.Nearest(query)
		gotI, gotD := index.Nearest(query)
		assert.Equal(t, wantI, gotI)
		assert.Equal(t, wantD, gotD)
	}
}

func TestHNSW_DimensionMismatchUsesLinear(t *testing.T) {
	embeddings := [][]float32{{1, 2}, {3, 4}}
	i, d := NewHNSW(embeddings).Nearest([]float32{1, 2, 3})
	wantI, wantD := NewLinear(embeddings).Nearest([]float32{1, 2, 3})
	assert.Equal(t, wantI, i)
	assert.Equal(t, wantD, d)
}
