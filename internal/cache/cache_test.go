package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func identity(name string, embedding ...float32) database.StoredIdentity {
	return database.StoredIdentity{
		Name:         name,
		Embedding:    embedding,
		Description:  name + " desc",
		Affiliation:  name + " party",
		ImageSources: []string{name + ".jpg"},
		ImageCount:   1,
	}
}

func TestCache_StartsStaleAndEmpty(t *testing.T) {
	c := New(mock.NewMockIdentityStore(), time.Minute)

	assert.Equal(t, Stale, c.State())
	assert.False(t, c.Current().Populated())
	assert.Equal(t, 0, c.Current().Len())
}

func TestCache_LoadsInStoreOrder(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Carol", 3))
	store.AddIdentity(identity("Alice", 1))
	store.AddIdentity(identity("Bob", 2))
	clock := newFakeClock()
	c := New(store, time.Minute, WithClock(clock.Now))

	s, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Carol", "Alice", "Bob"}, s.Names())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, Entry{Name: "Alice", Embedding: []float32{1}, Description: "Alice desc", Affiliation: "Alice party"}, s.Entry(1))
	assert.Equal(t, clock.Now(), s.RefreshedAt())
	assert.Equal(t, Fresh, c.State())
}

func TestCache_SkipsEmptyEmbeddings(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Alice", 1))
	store.AddIdentity(database.StoredIdentity{Name: "Ghost"})
	store.AddIdentity(identity("Bob", 2))

	s, err := New(store, time.Minute).Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Bob"}, s.Names())
	assert.Len(t, s.Embeddings(), 2)
}

func TestCache_WritesInvisibleUntilTTLExpires(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Alice", 1))
	clock := newFakeClock()
	c := New(store, 60*time.Second, WithClock(clock.Now))
	ctx := context.Background()

	_, err := c.Snapshot(ctx)
	require.NoError(t, err)

	store.AddIdentity(identity("Bob", 2))
	clock.Advance(59 * time.Second)

	s, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, s.Names(), "write must stay invisible within the TTL")
	assert.Equal(t, 1, store.ListCalls)

	clock.Advance(time.Second)
	assert.Equal(t, Stale, c.State())

	s, err = c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, s.Names())
	assert.Equal(t, 2, store.ListCalls)
}

func TestCache_FailedReloadKeepsPreviousSnapshot(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Alice", 1))
	clock := newFakeClock()
	c := New(store, time.Minute, WithClock(clock.Now))
	ctx := context.Background()

	first, err := c.Snapshot(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	storeErr := errors.New("connection refused")
	store.SetListError(storeErr)

	s, err := c.Snapshot(ctx)
	require.ErrorIs(t, err, storeErr)
	assert.Same(t, first, s)
	assert.Equal(t, Stale, c.State(), "failed reload must not refresh the timestamp")

	// The next read retries.
	store.SetListError(nil)
	store.AddIdentity(identity("Bob", 2))
	s, err = c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, s.Names())
	assert.Equal(t, 3, store.ListCalls)
}

func TestCache_FailedFirstReload(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.SetListError(errors.New("down"))

	s, err := New(store, time.Minute).Snapshot(context.Background())
	require.Error(t, err)
	assert.False(t, s.Populated())
	assert.Equal(t, 0, s.Len())
}

func TestCache_ZeroTTLReloadsEveryRead(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Alice", 1))
	c := New(store, 0)

	for i := 0; i < 3; i++ {
		_, err := c.Snapshot(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, store.ListCalls)
	assert.Equal(t, Stale, c.State())
}

func TestCache_ConcurrentReadersShareOneReload(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Alice", 1))
	c := New(store, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Snapshot(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 1, s.Len())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.ListCalls)
}

func TestCache_HNSWIndex(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Alice", 0, 0))
	store.AddIdentity(identity("Bob", 5, 5))
	c := New(store, time.Minute, WithIndex(IndexHNSW))

	s, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	i, d := s.Nearest([]float32{5, 5.1})
	assert.Equal(t, 1, i)
	assert.InDelta(t, 0.1, d, 1e-6)
}

func TestCache_UnknownIndexFallsBackToLinear(t *testing.T) {
	store := mock.NewMockIdentityStore()
	store.AddIdentity(identity("Alice", 0, 0))
	core, logs := observer.New(zap.WarnLevel)
	c := New(store, time.Minute, WithLogger(zap.New(core)), WithIndex("hsnw"))

	assert.Equal(t, 1, logs.FilterMessage("unknown match index, using linear scan").Len())

	s, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	i, _ := s.Nearest([]float32{0, 0.1})
	assert.Equal(t, 0, i)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "stale", Stale.String())
}
