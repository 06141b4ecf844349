package vision_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/vision"
)

type slowPrimitive struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowPrimitive) DetectFaces(ctx context.Context, img *vision.Image, tier vision.Tier) ([]vision.Box, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return nil, nil
}

func (s *slowPrimitive) ExtractEmbeddings(ctx context.Context, img *vision.Image, boxes []vision.Box) ([][]float32, error) {
	return nil, nil
}

func TestLimited_BoundsConcurrency(t *testing.T) {
	inner := &slowPrimitive{}
	limited := vision.NewLimited(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limited.DetectFaces(context.Background(), &vision.Image{}, vision.TierFast)
		}()
	}
	wg.Wait()

	if peak := inner.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", peak)
	}
}

func TestLimited_ContextCancelled(t *testing.T) {
	limited := vision.NewLimited(&slowPrimitive{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limited.DetectFaces(ctx, &vision.Image{}, vision.TierFast)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := vision.Open(&config.VisionConfig{Driver: "opencv"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpen_HTTP(t *testing.T) {
	p, err := vision.Open(&config.VisionConfig{Driver: "http", URL: "http://face-service:8000", MaxConcurrency: 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
