// Package vision wraps the face detection and embedding primitive used by
// enrollment and verification.
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Tier selects the face detector.
type Tier int

const (
	// TierFast is the cheap detector (HOG), tried first.
	TierFast Tier = iota
	// TierAccurate is the slow detector (CNN), used when TierFast finds nothing.
	TierAccurate
)

// String returns the model name the face service expects.
func (t Tier) String() string {
	switch t {
	case TierFast:
		return "hog"
	case TierAccurate:
		return "cnn"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Box is a detected face in pixel coordinates of the working image.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// BoxFromRect converts an image.Rectangle.
func BoxFromRect(r image.Rectangle) Box {
	return Box{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Image is a decoded photo normalised to the working resolution.
type Image struct {
	Pixels *image.RGBA
	JPEG   []byte // Pixels encoded as JPEG, for primitives that take bytes
}

// Primitive detects faces and computes one embedding per face.
type Primitive interface {
	DetectFaces(ctx context.Context, img *Image, tier Tier) ([]Box, error)
	ExtractEmbeddings(ctx context.Context, img *Image, boxes []Box) ([][]float32, error)
}

var (
	// ErrUndecodable is returned by Preprocess for data that is not an image.
	ErrUndecodable = errors.New("image cannot be decoded")
	// ErrNoFace is returned by FirstEmbedding when neither tier finds a face.
	ErrNoFace = errors.New("no face detected")
)

// Detect runs the fast detector and retries with the accurate one when the
// fast detector finds no face.
func Detect(ctx context.Context, p Primitive, img *Image) ([]Box, error) {
	boxes, err := p.DetectFaces(ctx, img, TierFast)
	if err != nil {
		return nil, fmt.Errorf("detect faces (%s): %w", TierFast, err)
	}
	if len(boxes) > 0 {
		return boxes, nil
	}

	boxes, err = p.DetectFaces(ctx, img, TierAccurate)
	if err != nil {
		return nil, fmt.Errorf("detect faces (%s): %w", TierAccurate, err)
	}
	return boxes, nil
}

// FirstEmbedding returns the embedding of the first detected face.
// Other faces in the image are ignored.
func FirstEmbedding(ctx context.Context, p Primitive, img *Image) ([]float32, error) {
	boxes, err := Detect(ctx, p, img)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, ErrNoFace
	}

	embeddings, err := p.ExtractEmbeddings(ctx, img, boxes[:1])
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, ErrNoFace
	}
	return embeddings[0], nil
}
