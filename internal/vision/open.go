package vision

import (
	"fmt"
	"io"

	"github.com/kozaktomas/face-registry/internal/config"
)

// Open builds the primitive selected by cfg.Driver, bounded by
// cfg.MaxConcurrency.
func Open(cfg *config.VisionConfig) (*Limited, error) {
	var p Primitive
	switch cfg.Driver {
	case "", "http":
		p = NewClient(cfg.URL, cfg.Timeout)
	case "dlib":
		rec, err := NewDlibRecognizer(cfg.ModelsDir)
		if err != nil {
			return nil, err
		}
		p = rec
	default:
		return nil, fmt.Errorf("unknown vision driver %q (expected http or dlib)", cfg.Driver)
	}
	return NewLimited(p, cfg.MaxConcurrency), nil
}

// Close closes the wrapped primitive when it holds resources.
func (l *Limited) Close() error {
	if c, ok := l.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
