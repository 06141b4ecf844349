package database

import (
	"time"
)

// StoredIdentity represents one enrolled person as persisted by a store.
type StoredIdentity struct {
	Name         string
	Embedding    []float32 // centroid of the contributing image embeddings
	Description  string
	Affiliation  string
	ImageSources []string // ordered identifiers of contributing images
	ImageCount   int
	UpdatedAt    time.Time
}

// Validate checks the invariants every backend enforces before writing.
func (s *StoredIdentity) Validate() error {
	if s.Name == "" {
		return ErrEmptyName
	}
	if len(s.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	if s.ImageCount != len(s.ImageSources) {
		return ErrImageCountMismatch
	}
	return nil
}

// EmbeddingUpdate replaces the embedding-related fields of a record.
type EmbeddingUpdate struct {
	Embedding    []float32
	ImageSources []string
}

// IdentityUpdate is an edit of an existing record. Name, Description,
// Affiliation and UpdatedAt always overwrite; Embedding is only written when
// non-nil.
type IdentityUpdate struct {
	Name        string
	Description string
	Affiliation string
	UpdatedAt   time.Time
	Embedding   *EmbeddingUpdate
}

// Validate checks the update before a backend applies it.
func (u *IdentityUpdate) Validate() error {
	if u.Name == "" {
		return ErrEmptyName
	}
	if u.Embedding != nil && len(u.Embedding.Embedding) == 0 {
		return ErrEmptyEmbedding
	}
	return nil
}

// Apply returns a copy of s with the update applied.
func (u *IdentityUpdate) Apply(s StoredIdentity) StoredIdentity {
	s.Name = u.Name
	s.Description = u.Description
	s.Affiliation = u.Affiliation
	s.UpdatedAt = u.UpdatedAt
	if u.Embedding != nil {
		s.Embedding = u.Embedding.Embedding
		s.ImageSources = u.Embedding.ImageSources
		s.ImageCount = len(u.Embedding.ImageSources)
	}
	return s
}

// Day truncates t to the calendar day in UTC, the granularity of UpdatedAt.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
