package database

import (
	"context"
)

// IdentityReader provides read-only access to enrolled identities
type IdentityReader interface {
	// Get retrieves an identity by exact name, returns nil if not found
	Get(ctx context.Context, name string) (*StoredIdentity, error)
	// List enumerates every identity in store-iteration order
	List(ctx context.Context) ([]StoredIdentity, error)
	// Count returns the number of identities stored
	Count(ctx context.Context) (int, error)
}

// IdentityWriter provides write access to enrolled identities
type IdentityWriter interface {
	IdentityReader

	// Upsert creates the record for s.Name or fully replaces it
	Upsert(ctx context.Context, s StoredIdentity) error

	// Update edits the record stored under name, renaming it to upd.Name.
	// Returns false if no record matched. Returns ErrConflict when the new
	// name belongs to another record.
	Update(ctx context.Context, name string, upd IdentityUpdate) (bool, error)

	// Delete removes the record, returns false if it did not exist
	Delete(ctx context.Context, name string) (bool, error)
}

// Store is an IdentityWriter backed by a connection that must be released.
type Store interface {
	IdentityWriter
	Close() error
}
