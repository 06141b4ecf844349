// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-registry/internal/database"
)

// MockIdentityStore is an in-memory implementation of database.Store
type MockIdentityStore struct {
	mu         sync.RWMutex
	identities []database.StoredIdentity // insertion order
	closed     bool

	// Error injection
	GetError    error
	ListError   error
	CountError  error
	UpsertError error
	UpdateError error
	DeleteError error

	// Call counters
	ListCalls int
}

// NewMockIdentityStore creates a new mock identity store
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{}
}

// AddIdentity stores an identity without validation
func (m *MockIdentityStore) AddIdentity(identity database.StoredIdentity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexOf(identity.Name); i >= 0 {
		m.identities[i] = clone(identity)
		return
	}
	m.identities = append(m.identities, clone(identity))
}

// SetListError sets ListError under the store lock
func (m *MockIdentityStore) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListError = err
}

// Closed reports whether Close was called
func (m *MockIdentityStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func (m *MockIdentityStore) indexOf(name string) int {
	for i := range m.identities {
		if m.identities[i].Name == name {
			return i
		}
	}
	return -1
}

// Get retrieves an identity by name
func (m *MockIdentityStore) Get(ctx context.Context, name string) (*database.StoredIdentity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexOf(name)
	if i < 0 {
		return nil, nil
	}
	identity := clone(m.identities[i])
	return &identity, nil
}

// List returns all identities in insertion order
func (m *MockIdentityStore) List(ctx context.Context) ([]database.StoredIdentity, error) {
	m.mu.Lock()
	m.ListCalls++
	err := m.ListError
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]database.StoredIdentity, len(m.identities))
	for i := range m.identities {
		result[i] = clone(m.identities[i])
	}
	return result, nil
}

// Count returns the number of identities
func (m *MockIdentityStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// Upsert inserts or replaces an identity
func (m *MockIdentityStore) Upsert(ctx context.Context, identity database.StoredIdentity) error {
	if m.UpsertError != nil {
		return m.UpsertError
	}
	if err := identity.Validate(); err != nil {
		return err
	}
	m.AddIdentity(identity)
	return nil
}

// Update edits an identity, renaming it when upd.Name differs
func (m *MockIdentityStore) Update(ctx context.Context, name string, upd database.IdentityUpdate) (bool, error) {
	if m.UpdateError != nil {
		return false, m.UpdateError
	}
	if err := upd.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(name)
	if i < 0 {
		return false, nil
	}
	if upd.Name != name && m.indexOf(upd.Name) >= 0 {
		return false, database.ErrConflict
	}
	m.identities[i] = clone(upd.Apply(m.identities[i]))
	return true, nil
}

// Delete removes an identity
func (m *MockIdentityStore) Delete(ctx context.Context, name string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(name)
	if i < 0 {
		return false, nil
	}
	m.identities = append(m.identities[:i], m.identities[i+1:]...)
	return true, nil
}

// Close marks the store closed
func (m *MockIdentityStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func clone(s database.StoredIdentity) database.StoredIdentity {
	s.Embedding = append([]float32(nil), s.Embedding...)
	s.ImageSources = append([]string(nil), s.ImageSources...)
	return s
}

// Verify interface compliance
var _ database.Store = (*MockIdentityStore)(nil)
