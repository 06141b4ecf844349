package vision

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limited bounds the number of in-flight calls to a Primitive.
type Limited struct {
	next Primitive
	sem  *semaphore.Weighted
}

// NewLimited wraps p so that at most n calls run at once.
func NewLimited(p Primitive, n int) *Limited {
	if n <= 0 {
		n = 1
	}
	return &Limited{next: p, sem: semaphore.NewWeighted(int64(n))}
}

// DetectFaces waits for a slot, then delegates.
func (l *Limited) DetectFaces(ctx context.Context, img *Image, tier Tier) ([]Box, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.next.DetectFaces(ctx, img, tier)
}

// ExtractEmbeddings waits for a slot, then delegates.
func (l *Limited) ExtractEmbeddings(ctx context.Context, img *Image, boxes []Box) ([][]float32, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.next.ExtractEmbeddings(ctx, img, boxes)
}
