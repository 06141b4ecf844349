package database

import "errors"

var (
	// ErrEmptyName is returned when a record or update has no name.
	ErrEmptyName = errors.New("identity name is empty")
	// ErrEmptyEmbedding is returned when a write would persist an empty embedding.
	ErrEmptyEmbedding = errors.New("identity embedding is empty")
	// ErrImageCountMismatch is returned when ImageCount disagrees with ImageSources.
	ErrImageCountMismatch = errors.New("image count does not match image sources")
	// ErrConflict is returned when a rename targets a name that is already taken.
	ErrConflict = errors.New("identity name already exists")
	// ErrConcurrentWrite is returned when another writer changed the record
	// during an update. Stores do not retry; the caller may.
	ErrConcurrentWrite = errors.New("identity changed by a concurrent write")
	// ErrUnknownBackend is returned by Open for an unregistered driver.
	ErrUnknownBackend = errors.New("unknown store backend")
)
