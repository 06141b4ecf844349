//go:build dlib && cgo

package vision

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	face "github.com/Kagami/go-face"
)

// recentLimit bounds how many detection results are kept for ExtractEmbeddings.
const recentLimit = 64

// DlibRecognizer runs dlib in-process. go-face computes descriptors while
// detecting, so DetectFaces remembers them for the ExtractEmbeddings call
// that follows.
type DlibRecognizer struct {
	rec    *face.Recognizer
	mu     sync.Mutex // dlib calls are serialized
	recent map[[sha256.Size]byte][]face.Face
}

// NewDlibRecognizer loads the dlib models from modelsDir.
func NewDlibRecognizer(modelsDir string) (*DlibRecognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlib models from %s: %w", modelsDir, err)
	}
	return &DlibRecognizer{rec: rec, recent: make(map[[sha256.Size]byte][]face.Face)}, nil
}

// DetectFaces runs the HOG or CNN detector.
func (d *DlibRecognizer) DetectFaces(ctx context.Context, img *Image, tier Tier) ([]Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var faces []face.Face
	var err error
	if tier == TierAccurate {
		faces, err = d.rec.RecognizeCNN(img.JPEG)
	} else {
		faces, err = d.rec.Recognize(img.JPEG)
	}
	if err != nil {
		return nil, fmt.Errorf("dlib %s detection: %w", tier, err)
	}

	if len(d.recent) >= recentLimit {
		d.recent = make(map[[sha256.Size]byte][]face.Face)
	}
	d.recent[sha256.Sum256(img.JPEG)] = faces

	boxes := make([]Box, len(faces))
	for i, f := range faces {
		boxes[i] = BoxFromRect(f.Rectangle)
	}
	return boxes, nil
}

// ExtractEmbeddings returns the descriptors found by the last detection of img.
func (d *DlibRecognizer) ExtractEmbeddings(ctx context.Context, img *Image, boxes []Box) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	faces, ok := d.recent[sha256.Sum256(img.JPEG)]
	d.mu.Unlock()
	if !ok {
		if _, err := d.DetectFaces(ctx, img, TierFast); err != nil {
			return nil, err
		}
		d.mu.Lock()
		faces = d.recent[sha256.Sum256(img.JPEG)]
		d.mu.Unlock()
	}

	embeddings := make([][]float32, len(boxes))
	for i, b := range boxes {
		for _, f := range faces {
			if BoxFromRect(f.Rectangle) == b {
				desc := f.Descriptor
				embeddings[i] = append([]float32(nil), desc[:]...)
				break
			}
		}
		if embeddings[i] == nil {
			return nil, fmt.Errorf("no descriptor for face at %v", b.Rect())
		}
	}
	return embeddings, nil
}

// Close releases the dlib models.
func (d *DlibRecognizer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.Close()
	return nil
}
