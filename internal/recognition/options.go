// Package recognition is the identity matching engine: enrollment with
// centroid averaging and verification against the embedding cache.
package recognition

import (
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/vision"
	"go.uber.org/zap"
)

// UnknownName is reported when a query matches no identity.
const UnknownName = "Unknown"

// Options are shared by the Enroller and the Verifier. Zero values fall
// back to defaults.
type Options struct {
	// Width and Height are the working resolution for every image.
	Width, Height int
	// Tolerance is the maximum matching distance.
	Tolerance float64
	// Workers bounds per-request image parallelism during enrollment.
	Workers int
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics metrics.Recorder
}

// OptionsFromConfig maps the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Width:     cfg.Image.Width,
		Height:    cfg.Image.Height,
		Tolerance: cfg.Match.Tolerance,
		Workers:   cfg.Enroll.Workers,
	}
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = vision.DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = vision.DefaultHeight
	}
	if o.Tolerance <= 0 {
		o.Tolerance = matcher.DefaultTolerance
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = logging.OrNop(o.Logger)
	o.Metrics = metrics.OrNoop(o.Metrics)
	return o
}

// Image is one input photo.
type Image struct {
	// Source identifies the image in the stored record, e.g. a file name.
	// A random identifier is assigned when empty.
	Source string
	Data   []byte
}

func sourceOf(img Image) string {
	if img.Source != "" {
		return img.Source
	}
	return "upload-" + uuid.NewString()
}

// Identity is an enrolled person without the embedding.
type Identity struct {
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Affiliation  string    `json:"affiliation"`
	ImageSources []string  `json:"image_sources"`
	ImageCount   int       `json:"image_count"`
	UpdatedAt    time.Time `json:"updated_at"`
	Dimensions   int       `json:"dimensions"`
}

func identityFrom(s *database.StoredIdentity) *Identity {
	return &Identity{
		Name:         s.Name,
		Description:  s.Description,
		Affiliation:  s.Affiliation,
		ImageSources: s.ImageSources,
		ImageCount:   s.ImageCount,
		UpdatedAt:    s.UpdatedAt,
		Dimensions:   len(s.Embedding),
	}
}
