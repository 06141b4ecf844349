// Package visiontest provides a deterministic vision.Primitive for tests.
//
// Test images are solid-colour PNGs; the fake recognises a photo by its
// average colour and answers with whatever was registered for that colour.
package visiontest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"

	"github.com/kozaktomas/face-registry/internal/vision"
)

// colorTolerance is the per-channel slack when matching a registered colour.
const colorTolerance = 6

// Face describes how the fake reacts to one colour.
type Face struct {
	// FastFaces and AccurateFaces are the number of faces each tier reports.
	FastFaces     int
	AccurateFaces int
	// Embedding is returned for the first face.
	Embedding []float32
}

// Fake is an in-memory vision.Primitive.
type Fake struct {
	mu    sync.Mutex
	faces map[color.RGBA]Face

	// Error injection
	DetectError  error
	ExtractError error

	// Call counters
	DetectCalls  map[vision.Tier]int
	ExtractCalls int
}

// NewFake creates an empty fake. Unregistered colours have no faces.
func NewFake() *Fake {
	return &Fake{
		faces:       make(map[color.RGBA]Face),
		DetectCalls: make(map[vision.Tier]int),
	}
}

// Register associates a colour with a face behaviour.
func (f *Fake) Register(c color.RGBA, face Face) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faces[c] = face
}

// Person registers c as a photo with one face found by the fast detector.
func (f *Fake) Person(c color.RGBA, embedding ...float32) {
	f.Register(c, Face{FastFaces: 1, AccurateFaces: 1, Embedding: embedding})
}

// Calls returns the number of DetectFaces calls for tier.
func (f *Fake) Calls(tier vision.Tier) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DetectCalls[tier]
}

func (f *Fake) lookup(img *vision.Image) (Face, bool) {
	avg := averageColor(img.Pixels)
	for c, face := range f.faces {
		if near(c.R, avg.R) && near(c.G, avg.G) && near(c.B, avg.B) {
			return face, true
		}
	}
	return Face{}, false
}

// DetectFaces reports the registered number of faces for the tier.
func (f *Fake) DetectFaces(ctx context.Context, img *vision.Image, tier vision.Tier) ([]vision.Box, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DetectCalls[tier]++
	if f.DetectError != nil {
		return nil, f.DetectError
	}

	face, ok := f.lookup(img)
	if !ok {
		return nil, nil
	}
	n := face.FastFaces
	if tier == vision.TierAccurate {
		n = face.AccurateFaces
	}
	boxes := make([]vision.Box, n)
	for i := range boxes {
		boxes[i] = vision.Box{Top: 0, Left: i, Right: i + 1, Bottom: 1}
	}
	return boxes, nil
}

// ExtractEmbeddings returns the registered embedding for the first box and
// a shifted copy for the others.
func (f *Fake) ExtractEmbeddings(ctx context.Context, img *vision.Image, boxes []vision.Box) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExtractCalls++
	if f.ExtractError != nil {
		return nil, f.ExtractError
	}

	face, _ := f.lookup(img)
	out := make([][]float32, len(boxes))
	for i := range boxes {
		e := append([]float32(nil), face.Embedding...)
		for j := range e {
			e[j] += float32(i)
		}
		out[i] = e
	}
	return out, nil
}

// SolidPNG returns a w x h PNG filled with c.
func SolidPNG(c color.RGBA, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Photo is SolidPNG at a typical camera aspect ratio.
func Photo(c color.RGBA) []byte {
	return SolidPNG(c, 64, 48)
}

func averageColor(img *image.RGBA) color.RGBA {
	if img == nil {
		return color.RGBA{}
	}
	b := img.Bounds()
	var r, g, bl, n uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			r += uint64(c.R)
			g += uint64(c.G)
			bl += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return color.RGBA{}
	}
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: 255}
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -colorTolerance && d <= colorTolerance
}

var _ vision.Primitive = (*Fake)(nil)
