package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/face-registry/internal/cache"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/vision"
	"go.uber.org/zap"
)

// Result is the outcome of a verification. Distance is nil when there was
// nothing to compare against. Stale is set when the cache reload failed and
// an older snapshot answered the request.
type Result struct {
	Matched     bool     `json:"matched"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Affiliation string   `json:"affiliation,omitempty"`
	Distance    *float64 `json:"distance"`
	Stale       bool     `json:"stale,omitempty"`
}

// Verifier matches query images against the cached identities.
type Verifier struct {
	cache  *cache.Cache
	vision vision.Primitive
	opts   Options
}

// NewVerifier creates a verification engine reading from c.
func NewVerifier(c *cache.Cache, primitive vision.Primitive, opts Options) *Verifier {
	return &Verifier{cache: c, vision: primitive, opts: opts.withDefaults()}
}

// Tolerance returns the matching threshold.
func (v *Verifier) Tolerance() float64 {
	return v.opts.Tolerance
}

// snapshot returns the cache snapshot, tolerating a failed reload as long
// as an earlier reload succeeded. stale reports that case.
func (v *Verifier) snapshot(ctx context.Context) (snap *cache.Snapshot, stale bool, err error) {
	snap, err = v.cache.Snapshot(ctx)
	if err == nil {
		return snap, false, nil
	}
	if snap != nil && snap.Populated() {
		v.opts.Logger.Warn("serving stale embedding cache",
			zap.Time("refreshed_at", snap.RefreshedAt()),
			zap.Error(err))
		return snap, true, nil
	}
	return nil, false, storeError(err)
}

// Verify finds the enrolled identity closest to the first face in image.
func (v *Verifier) Verify(ctx context.Context, image []byte) (*Result, error) {
	start := v.opts.Now()
	result, err := v.verify(ctx, image)

	outcome := metrics.OutcomeError
	switch {
	case err == nil && result.Matched:
		outcome = metrics.OutcomeMatch
	case err == nil:
		outcome = metrics.OutcomeNoMatch
	case errors.Is(err, ErrNoFaceDetected):
		outcome = metrics.OutcomeNoFace
	}
	v.opts.Metrics.RecordVerify(outcome, v.opts.Now().Sub(start))
	return result, err
}

func (v *Verifier) verify(ctx context.Context, image []byte) (*Result, error) {
	prepared, err := vision.Preprocess(image, v.opts.Width, v.opts.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	query, err := vision.FirstEmbedding(ctx, v.vision, prepared)
	if errors.Is(err, vision.ErrNoFace) {
		return nil, ErrNoFaceDetected
	}
	if err != nil {
		return nil, err
	}

	snap, stale, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		return &Result{Name: UnknownName, Stale: stale}, nil
	}

	i, distance := snap.Nearest(query)
	if i < 0 || math.IsInf(distance, 1) || math.IsNaN(distance) {
		v.opts.Logger.Warn("query comparable to no cached embedding", zap.Int("dimensions", len(query)))
		return &Result{Name: UnknownName, Stale: stale}, nil
	}

	if distance > v.opts.Tolerance {
		return &Result{Name: UnknownName, Distance: &distance, Stale: stale}, nil
	}

	entry := snap.Entry(i)
	return &Result{
		Matched:     true,
		Name:        entry.Name,
		Description: entry.Description,
		Affiliation: entry.Affiliation,
		Distance:    &distance,
		Stale:       stale,
	}, nil
}

// Names lists the identities in the cache, reloading it when stale.
func (v *Verifier) Names(ctx context.Context) ([]string, error) {
	snap, _, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Names(), nil
}

// CacheAge reports how long ago the cache was last reloaded, and false if
// it never was.
func (v *Verifier) CacheAge() (time.Duration, bool) {
	snap := v.cache.Current()
	if !snap.Populated() {
		return 0, false
	}
	return v.opts.Now().Sub(snap.RefreshedAt()), true
}
