package cache

import (
	"time"

	"github.com/kozaktomas/face-registry/internal/matcher"
)

// Entry is one identity as seen by the cache.
type Entry struct {
	Name        string
	Embedding   []float32
	Description string
	Affiliation string
}

// Snapshot is an immutable view of the enrolled identities. Position i in
// every accessor refers to the same identity. Callers must not modify the
// returned slices.
type Snapshot struct {
	names        []string
	embeddings   [][]float32
	descriptions []string
	affiliations []string
	index        matcher.Index
	refreshedAt  time.Time
}

func emptySnapshot() *Snapshot {
	return &Snapshot{index: matcher.NewLinear(nil)}
}

// Len returns the number of identities.
func (s *Snapshot) Len() int {
	return len(s.names)
}

// Entry returns the identity at position i.
func (s *Snapshot) Entry(i int) Entry {
	return Entry{
		Name:        s.names[i],
		Embedding:   s.embeddings[i],
		Description: s.descriptions[i],
		Affiliation: s.affiliations[i],
	}
}

// Names returns a copy of the names in store order.
func (s *Snapshot) Names() []string {
	return append([]string(nil), s.names...)
}

// Embeddings returns the embeddings in store order.
func (s *Snapshot) Embeddings() [][]float32 {
	return s.embeddings
}

// RefreshedAt is when the snapshot was loaded. The zero time means the
// cache has never been populated.
func (s *Snapshot) RefreshedAt() time.Time {
	return s.refreshedAt
}

// Populated reports whether the snapshot came from a successful reload.
func (s *Snapshot) Populated() bool {
	return !s.refreshedAt.IsZero()
}

// Nearest returns the position of the embedding closest to query and its
// distance, or -1 for an empty snapshot.
func (s *Snapshot) Nearest(query []float32) (int, float64) {
	return s.index.Nearest(query)
}
