package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher re-imports dataset folders when their images change. Changes to
// the manifest re-import the whole dataset. Removing images or folders
// never deletes identities.
type Watcher struct {
	importer  *Importer
	onOutcome func(Outcome)
	debounce  time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer // folder dir (or root) -> pending import
	// importMu serializes imports started by different timers.
	importMu sync.Mutex
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a folder must be quiet before it is imported.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over the importer's dataset. onOutcome is
// called for every folder imported.
func NewWatcher(im *Importer, onOutcome func(Outcome), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		importer:  im,
		onOutcome: onOutcome,
		debounce:  defaultDebounce,
		logger:    im.logger,
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	root := filepath.Clean(w.importer.root)
	if err := fsw.Add(root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	folders, err := Scan(root)
	if err != nil {
		return err
	}
	for _, f := range folders {
		if err := fsw.Add(f.Dir); err != nil {
			return fmt.Errorf("watching %s: %w", f.Dir, err)
		}
	}
	w.logger.Info("watching dataset", zap.String("root", root), zap.Int("folders", len(folders)))

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, root, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, root string, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	dir := filepath.Dir(path)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	changed := ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
	if !changed {
		return
	}

	switch {
	case dir == root && filepath.Base(path) == ManifestFile:
		w.schedule(ctx, root)
	case dir == root:
		if ev.Op&fsnotify.Create == 0 {
			return
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return
		}
		if err := fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch new folder", zap.String("path", path), zap.Error(err))
		}
		w.schedule(ctx, path)
	case filepath.Dir(dir) == root && IsImage(path):
		w.schedule(ctx, dir)
	}
}

// schedule debounces an import of key, a folder dir or the root.
func (w *Watcher) schedule(ctx context.Context, key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, key)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.importKey(ctx, key)
	})
}

func (w *Watcher) importKey(ctx context.Context, key string) {
	w.importMu.Lock()
	defer w.importMu.Unlock()

	if key == filepath.Clean(w.importer.root) {
		summary, err := w.importer.Run(ctx)
		if err != nil {
			w.logger.Error("dataset re-import failed", zap.Error(err))
			return
		}
		for _, o := range summary.Outcomes {
			w.report(o)
		}
		return
	}

	out, err := w.importer.ImportFolder(ctx, key)
	if err != nil {
		w.logger.Warn("folder re-import failed", zap.String("folder", key), zap.Error(err))
		return
	}
	w.report(out)
}

func (w *Watcher) report(o Outcome) {
	if w.onOutcome != nil {
		w.onOutcome(o)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
}
