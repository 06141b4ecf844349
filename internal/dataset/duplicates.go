package dataset

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"

	"golang.org/x/image/draw"
)

// Near-duplicate thresholds. Two images match when their difference hashes
// are within maxHashDistance bits and their mean luma is within maxLumaDelta.
const (
	maxHashDistance = 4
	maxLumaDelta    = 8.0
)

// signature is a perceptual fingerprint of one image.
type signature struct {
	dhash uint64
	luma  float64
}

// fingerprint computes the signature of encoded image data.
func fingerprint(data []byte) (signature, bool) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return signature{}, false
	}

	// 9 columns give 8 horizontal differences per row.
	small := image.NewRGBA(image.Rect(0, 0, 9, 8))
	draw.BiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Over, nil)

	var gray [9][8]float64
	var total float64
	for x := range 9 {
		for y := range 8 {
			r, g, b, _ := small.At(x, y).RGBA()
			// ITU-R BT.601 luma.
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			total += gray[x][y]
		}
	}

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return signature{dhash: hash, luma: total / 72}, true
}

func (s signature) similar(o signature) bool {
	if bits.OnesCount64(s.dhash^o.dhash) > maxHashDistance {
		return false
	}
	d := s.luma - o.luma
	return d <= maxLumaDelta && d >= -maxLumaDelta
}

// findDuplicates returns pairs of sources whose images look the same.
// Undecodable images are ignored; the enroller reports them.
func findDuplicates(sources []string, data [][]byte) [][2]string {
	type entry struct {
		source string
		sig    signature
	}
	seen := make([]entry, 0, len(data))
	var pairs [][2]string
	for i, d := range data {
		sig, ok := fingerprint(d)
		if !ok {
			continue
		}
		for _, e := range seen {
			if e.sig.similar(sig) {
				pairs = append(pairs, [2]string{e.source, sources[i]})
			}
		}
		seen = append(seen, entry{source: sources[i], sig: sig})
	}
	return pairs
}
