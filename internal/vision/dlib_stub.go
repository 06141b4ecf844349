//go:build !dlib || !cgo

package vision

import (
	"context"
	"errors"
)

var errDlibUnavailable = errors.New("dlib vision backend not available: build with -tags=dlib and CGO_ENABLED=1")

// DlibRecognizer is a stub when built without the dlib tag (see dlib.go).
type DlibRecognizer struct{}

// NewDlibRecognizer returns an error because dlib is not compiled in.
func NewDlibRecognizer(_ string) (*DlibRecognizer, error) {
	return nil, errDlibUnavailable
}

// DetectFaces is not implemented without dlib.
func (d *DlibRecognizer) DetectFaces(context.Context, *Image, Tier) ([]Box, error) {
	return nil, errDlibUnavailable
}

// ExtractEmbeddings is not implemented without dlib.
func (d *DlibRecognizer) ExtractEmbeddings(context.Context, *Image, []Box) ([][]float32, error) {
	return nil, errDlibUnavailable
}

// Close is a no-op.
func (d *DlibRecognizer) Close() error { return nil }
