// Package cache keeps an in-memory snapshot of every enrolled embedding and
// reloads it from the store once it is older than the TTL.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a snapshot is served before it is reloaded.
const DefaultTTL = 60 * time.Second

// Index kinds.
const (
	IndexLinear = "linear"
	IndexHNSW   = "hnsw"
)

// State is the freshness of the cache.
type State int

const (
	// Stale means the next read reloads from the store.
	Stale State = iota
	// Fresh means reads are served from memory.
	Fresh
)

func (s State) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "stale"
}

// Cache serves snapshots of the identity store. Writes to the store are not
// visible until the current snapshot expires.
type Cache struct {
	store     database.IdentityReader
	ttl       time.Duration
	now       func() time.Time
	logger    *zap.Logger
	metrics   metrics.Recorder
	indexKind string

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Cache) { c.metrics = metrics.OrNoop(r) }
}

// WithIndex selects the nearest-neighbour index built for every snapshot.
// Both kinds return identical results. Unknown kinds are logged and replaced
// by IndexLinear.
func WithIndex(kind string) Option {
	return func(c *Cache) { c.indexKind = kind }
}

// New creates an empty, stale cache over store. A negative ttl means DefaultTTL;
// zero reloads on every read.
func New(store database.IdentityReader, ttl time.Duration, opts ...Option) *Cache {
	if ttl < 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:     store,
		ttl:       ttl,
		now:       time.Now,
		logger:    zap.NewNop(),
		metrics:   metrics.Noop{},
		indexKind: IndexLinear,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.indexKind != IndexLinear && c.indexKind != IndexHNSW {
		c.logger.Warn("unknown match index, using linear scan", zap.String("index", c.indexKind))
		c.indexKind = IndexLinear
	}
	c.current.Store(emptySnapshot())
	return c
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

func (c *Cache) fresh(s *Snapshot) bool {
	return s.Populated() && c.now().Sub(s.refreshedAt) < c.ttl
}

// State reports whether the next read is served from memory.
func (c *Cache) State() State {
	if c.fresh(c.current.Load()) {
		return Fresh
	}
	return Stale
}

// Current returns the latest snapshot without reloading.
func (c *Cache) Current() *Snapshot {
	return c.current.Load()
}

// Snapshot returns a fresh snapshot, reloading it when stale. Concurrent
// reloads are collapsed into one store enumeration. When the reload fails
// the previous snapshot is returned together with the error and the next
// read tries again.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	if s := c.current.Load(); c.fresh(s) {
		return s, nil
	}

	v, err, _ := c.group.Do("reload", func() (any, error) {
		if s := c.current.Load(); c.fresh(s) {
			return s, nil
		}
		return c.reload(ctx)
	})
	if err != nil {
		return c.current.Load(), err
	}
	return v.(*Snapshot), nil
}

func (c *Cache) reload(ctx context.Context) (*Snapshot, error) {
	start := c.now()
	identities, err := c.store.List(ctx)
	if err != nil {
		c.metrics.RecordCacheReload(0, time.Since(start), err)
		c.logger.Warn("embedding cache reload failed", zap.Error(err))
		return nil, fmt.Errorf("reload embedding cache: %w", err)
	}

	s := &Snapshot{
		names:        make([]string, 0, len(identities)),
		embeddings:   make([][]float32, 0, len(identities)),
		descriptions: make([]string, 0, len(identities)),
		affiliations: make([]string, 0, len(identities)),
	}
	for i := range identities {
		identity := &identities[i]
		if len(identity.Embedding) == 0 {
			c.logger.Warn("skipping identity without embedding", zap.String("name", identity.Name))
			continue
		}
		s.names = append(s.names, identity.Name)
		s.embeddings = append(s.embeddings, identity.Embedding)
		s.descriptions = append(s.descriptions, identity.Description)
		s.affiliations = append(s.affiliations, identity.Affiliation)
	}

	if c.indexKind == IndexHNSW {
		s.index = matcher.NewHNSW(s.embeddings)
	} else {
		s.index = matcher.NewLinear(s.embeddings)
	}
	s.refreshedAt = c.now()

	c.current.Store(s)
	c.metrics.RecordCacheReload(s.Len(), time.Since(start), nil)
	c.logger.Debug("embedding cache reloaded", zap.Int("entries", s.Len()))
	return s, nil
}
