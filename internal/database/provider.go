package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/face-registry/internal/config"
	"go.uber.org/zap"
)

// OpenFunc opens a store backend from configuration.
type OpenFunc func(ctx context.Context, cfg *config.StoreConfig, logger *zap.Logger) (Store, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]OpenFunc)
)

// RegisterBackend registers a store constructor under a driver name.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("database: RegisterBackend open func is nil")
	}
	if _, dup := backends[name]; dup {
		panic("database: RegisterBackend called twice for " + name)
	}
	backends[name] = open
}

// Backends returns the registered driver names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg *config.StoreConfig, logger *zap.Logger) (Store, error) {
	backendsMu.RLock()
	open, ok := backends[cfg.Driver]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownBackend, cfg.Driver, Backends())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := open(ctx, cfg, logger.Named(cfg.Driver))
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	return store, nil
}
