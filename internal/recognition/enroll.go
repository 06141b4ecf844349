package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/vision"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EnrollRequest creates or replaces an identity.
type EnrollRequest struct {
	Name        string
	Description string
	Affiliation string
	Images      []Image
}

// EditRequest changes an existing identity. NewName defaults to OldName.
// Images, when non-empty, replace the embedding if at least one of them
// contains a face.
type EditRequest struct {
	OldName     string
	NewName     string
	Description string
	Affiliation string
	Images      []Image
}

// EditResult reports what an edit changed.
type EditResult struct {
	Identity *Identity `json:"identity"`
	// EmbeddingReplaced is false for metadata-only edits, including edits
	// whose images contained no face.
	EmbeddingReplaced bool `json:"embedding_replaced"`
}

// Enroller writes identities to the store.
type Enroller struct {
	store  database.IdentityWriter
	vision vision.Primitive
	opts   Options
}

// NewEnroller creates an enrollment engine.
func NewEnroller(store database.IdentityWriter, primitive vision.Primitive, opts Options) *Enroller {
	return &Enroller{store: store, vision: primitive, opts: opts.withDefaults()}
}

// centroid is the result of embedding a batch of images.
type centroid struct {
	embedding []float32
	sources   []string
}

// embedImages computes the first-face embedding of every image in parallel
// and averages them. Images without a face, and images that cannot be
// decoded, are skipped. A vision failure aborts the whole batch.
func (e *Enroller) embedImages(ctx context.Context, images []Image) (*centroid, error) {
	embeddings := make([][]float32, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, img := range images {
		g.Go(func() error {
			source := sourceOf(img)
			images[i].Source = source

			prepared, err := vision.Preprocess(img.Data, e.opts.Width, e.opts.Height)
			if err != nil {
				e.opts.Logger.Warn("skipping undecodable image", zap.String("source", source), zap.Error(err))
				return nil
			}
			embedding, err := vision.FirstEmbedding(gctx, e.vision, prepared)
			if errors.Is(err, vision.ErrNoFace) {
				e.opts.Logger.Debug("no face in image", zap.String("source", source))
				return nil
			}
			if err != nil {
				return fmt.Errorf("image %s: %w", source, err)
			}
			embeddings[i] = embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var used [][]float32
	var sources []string
	for i, emb := range embeddings {
		if emb == nil {
			continue
		}
		used = append(used, emb)
		sources = append(sources, images[i].Source)
	}
	if len(used) == 0 {
		return nil, ErrNoFaceDetected
	}

	mean, err := matcher.Centroid(used)
	if err != nil {
		return nil, fmt.Errorf("averaging embeddings: %w", err)
	}
	return &centroid{embedding: mean, sources: sources}, nil
}

// normalizeName is applied to every name the engine receives, so a name
// that enrolled also finds, edits and deletes the record.
func normalizeName(name string) string {
	return strings.TrimSpace(name)
}

// Enroll embeds every image, averages the embeddings of those containing a
// face and stores the result under req.Name, replacing any existing record.
func (e *Enroller) Enroll(ctx context.Context, req EnrollRequest) (*Identity, error) {
	name := normalizeName(req.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if len(req.Images) == 0 {
		e.opts.Metrics.RecordWrite("enroll", metrics.OutcomeNoFace, 0)
		return nil, ErrEmptyInput
	}

	images := append([]Image(nil), req.Images...)
	c, err := e.embedImages(ctx, images)
	if err != nil {
		if errors.Is(err, ErrNoFaceDetected) {
			e.opts.Metrics.RecordWrite("enroll", metrics.OutcomeNoFace, 0)
		} else {
			e.opts.Metrics.RecordWrite("enroll", metrics.OutcomeError, 0)
		}
		return nil, err
	}

	record := database.StoredIdentity{
		Name:         name,
		Embedding:    c.embedding,
		Description:  req.Description,
		Affiliation:  req.Affiliation,
		ImageSources: c.sources,
		ImageCount:   len(c.sources),
		UpdatedAt:    database.Day(e.opts.Now()),
	}
	if err := e.store.Upsert(ctx, record); err != nil {
		e.opts.Metrics.RecordWrite("enroll", metrics.OutcomeError, 0)
		return nil, storeError(err)
	}

	e.opts.Metrics.RecordWrite("enroll", metrics.OutcomeStored, record.ImageCount)
	e.opts.Logger.Info("identity enrolled",
		zap.String("name", name),
		zap.Int("images", len(req.Images)),
		zap.Int("used", record.ImageCount))
	return identityFrom(&record), nil
}

// Edit updates metadata and optionally the embedding of req.OldName.
func (e *Enroller) Edit(ctx context.Context, req EditRequest) (*EditResult, error) {
	oldName := normalizeName(req.OldName)
	newName := normalizeName(req.NewName)
	if newName == "" {
		newName = oldName
	}
	if oldName == "" {
		return nil, ErrInvalidName
	}

	current, err := e.store.Get(ctx, oldName)
	if err != nil {
		e.opts.Metrics.RecordWrite("edit", metrics.OutcomeError, 0)
		return nil, storeError(err)
	}
	if current == nil {
		e.opts.Metrics.RecordWrite("edit", metrics.OutcomeNotFound, 0)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}

	upd := database.IdentityUpdate{
		Name:        newName,
		Description: req.Description,
		Affiliation: req.Affiliation,
		UpdatedAt:   database.Day(e.opts.Now()),
	}

	if len(req.Images) > 0 {
		images := append([]Image(nil), req.Images...)
		c, err := e.embedImages(ctx, images)
		switch {
		case errors.Is(err, ErrNoFaceDetected):
			e.opts.Logger.Info("edit images contained no face, keeping embedding", zap.String("name", oldName))
		case err != nil:
			e.opts.Metrics.RecordWrite("edit", metrics.OutcomeError, 0)
			return nil, err
		default:
			upd.Embedding = &database.EmbeddingUpdate{Embedding: c.embedding, ImageSources: c.sources}
		}
	}

	found, err := e.store.Update(ctx, oldName, upd)
	if errors.Is(err, database.ErrConflict) {
		e.opts.Metrics.RecordWrite("edit", metrics.OutcomeConflict, 0)
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, newName)
	}
	if err != nil {
		e.opts.Metrics.RecordWrite("edit", metrics.OutcomeError, 0)
		return nil, storeError(err)
	}
	if !found {
		e.opts.Metrics.RecordWrite("edit", metrics.OutcomeNotFound, 0)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}

	updated := upd.Apply(*current)
	used := 0
	if upd.Embedding != nil {
		used = updated.ImageCount
	}
	e.opts.Metrics.RecordWrite("edit", metrics.OutcomeStored, used)
	e.opts.Logger.Info("identity edited",
		zap.String("name", oldName),
		zap.String("new_name", newName),
		zap.Bool("embedding_replaced", upd.Embedding != nil))

	return &EditResult{Identity: identityFrom(&updated), EmbeddingReplaced: upd.Embedding != nil}, nil
}

// Delete removes the identity called name.
func (e *Enroller) Delete(ctx context.Context, name string) error {
	name = normalizeName(name)
	found, err := e.store.Delete(ctx, name)
	if err != nil {
		e.opts.Metrics.RecordWrite("delete", metrics.OutcomeError, 0)
		return storeError(err)
	}
	if !found {
		e.opts.Metrics.RecordWrite("delete", metrics.OutcomeNotFound, 0)
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e.opts.Metrics.RecordWrite("delete", metrics.OutcomeStored, 0)
	e.opts.Logger.Info("identity deleted", zap.String("name", name))
	return nil
}

// Get reads one identity straight from the store.
func (e *Enroller) Get(ctx context.Context, name string) (*Identity, error) {
	name = normalizeName(name)
	s, err := e.store.Get(ctx, name)
	if err != nil {
		return nil, storeError(err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return identityFrom(s), nil
}

// List reads every identity straight from the store, in store order.
func (e *Enroller) List(ctx context.Context) ([]Identity, error) {
	all, err := e.store.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]Identity, len(all))
	for i := range all {
		out[i] = *identityFrom(&all[i])
	}
	return out, nil
}
