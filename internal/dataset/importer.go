package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Enroller is the part of recognition.Enroller the importer needs.
type Enroller interface {
	Enroll(ctx context.Context, req recognition.EnrollRequest) (*recognition.Identity, error)
}

// Status is the result of importing one folder.
type Status string

const (
	StatusEnrolled  Status = "enrolled"
	StatusNoFace    Status = "no_face"
	StatusNoImages  Status = "no_images"
	StatusUnmapped  Status = "unmapped"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Outcome reports what happened to one folder.
type Outcome struct {
	Folder     string
	Name       string
	Status     Status
	ImagesSeen int
	ImagesUsed int
	// Duplicates are pairs of images in the folder that look the same.
	// They are still enrolled; the pairs are reported so the dataset can
	// be cleaned up.
	Duplicates [][2]string
	Err        error
}

// Summary aggregates the outcomes of a run.
type Summary struct {
	Outcomes []Outcome
	Enrolled int
	Skipped  int
	Failed   int
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case StatusEnrolled:
		s.Enrolled++
	case StatusFailed, StatusNoFace:
		s.Failed++
	default:
		s.Skipped++
	}
}

// Options configure an Importer.
type Options struct {
	// DeriveNames enrolls folders missing from the manifest under their
	// title-cased folder name instead of skipping them.
	DeriveNames bool
	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
	Logger   *zap.Logger
}

// Importer enrolls dataset folders.
type Importer struct {
	root     string
	enroller Enroller
	opts     Options
	logger   *zap.Logger
}

// NewImporter creates an importer for the dataset at root.
func NewImporter(root string, enroller Enroller, opts Options) *Importer {
	return &Importer{
		root:     root,
		enroller: enroller,
		opts:     opts,
		logger:   logging.OrNop(opts.Logger),
	}
}

// Root returns the dataset directory.
func (im *Importer) Root() string {
	return im.root
}

func (im *Importer) manifest() (*Manifest, error) {
	return LoadManifest(filepath.Join(im.root, ManifestFile))
}

// Run imports every folder of the dataset. Folder failures are reported in
// the summary; only an unreadable dataset or manifest fails the run.
func (im *Importer) Run(ctx context.Context) (*Summary, error) {
	manifest, err := im.manifest()
	if err != nil {
		return nil, err
	}
	folders, err := Scan(im.root)
	if err != nil {
		return nil, err
	}
	im.logger.Info("importing dataset",
		zap.String("root", im.root),
		zap.Int("folders", len(folders)),
		zap.Int("manifest_entries", manifest.Len()))

	var bar *progressbar.ProgressBar
	if im.opts.Progress != nil {
		bar = progressbar.NewOptions(len(folders),
			progressbar.OptionSetWriter(im.opts.Progress),
			progressbar.OptionSetDescription("Enrolling identities"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("folders"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	summary := &Summary{}
	for _, f := range folders {
		if ctx.Err() != nil {
			summary.add(Outcome{Folder: f.Key, Status: StatusCancelled, Err: ctx.Err()})
			continue
		}
		summary.add(im.importFolder(ctx, f, manifest))
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	im.logger.Info("dataset import finished",
		zap.Int("enrolled", summary.Enrolled),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// ImportFolder imports the single folder dir, re-reading the manifest.
func (im *Importer) ImportFolder(ctx context.Context, dir string) (Outcome, error) {
	manifest, err := im.manifest()
	if err != nil {
		return Outcome{}, err
	}
	f, err := ScanFolder(dir)
	if err != nil {
		return Outcome{}, err
	}
	return im.importFolder(ctx, f, manifest), nil
}

func (im *Importer) importFolder(ctx context.Context, f Folder, manifest *Manifest) Outcome {
	out := Outcome{Folder: f.Key, ImagesSeen: len(f.Images)}

	person, ok := manifest.Lookup(f.Key)
	if !ok && !im.opts.DeriveNames {
		out.Status = StatusUnmapped
		im.logger.Info("no manifest entry, skipping folder", zap.String("folder", f.Key))
		return out
	}
	if !ok {
		person = Person{Name: DeriveName(f.Key)}
	}
	out.Name = person.Name

	if len(f.Images) == 0 {
		out.Status = StatusNoImages
		return out
	}

	images := make([]recognition.Image, 0, len(f.Images))
	sources := make([]string, 0, len(f.Images))
	contents := make([][]byte, 0, len(f.Images))
	for _, path := range f.Images {
		data, err := os.ReadFile(path)
		if err != nil {
			im.logger.Warn("skipping unreadable image", zap.String("path", path), zap.Error(err))
			continue
		}
		src := im.source(path)
		images = append(images, recognition.Image{Source: src, Data: data})
		sources = append(sources, src)
		contents = append(contents, data)
	}

	out.Duplicates = findDuplicates(sources, contents)
	for _, pair := range out.Duplicates {
		im.logger.Warn("near-duplicate images in folder",
			zap.String("folder", f.Key),
			zap.String("first", pair[0]),
			zap.String("second", pair[1]))
	}

	identity, err := im.enroller.Enroll(ctx, recognition.EnrollRequest{
		Name:        person.Name,
		Description: person.Description,
		Affiliation: person.Affiliation,
		Images:      images,
	})
	switch {
	case errors.Is(err, recognition.ErrNoFaceDetected):
		out.Status = StatusNoFace
		out.Err = err
		im.logger.Warn("no valid face in folder", zap.String("folder", f.Key))
	case err != nil:
		out.Status = StatusFailed
		out.Err = fmt.Errorf("enrolling %s: %w", person.Name, err)
		im.logger.Error("enrolling folder failed", zap.String("folder", f.Key), zap.Error(err))
	default:
		out.Status = StatusEnrolled
		out.ImagesUsed = identity.ImageCount
	}
	return out
}

// source is the image path relative to the dataset root.
func (im *Importer) source(path string) string {
	if rel, err := filepath.Rel(im.root, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}
