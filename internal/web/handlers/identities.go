package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"go.uber.org/zap"
)

// IdentitiesHandler serves enrollment, edits and lookups.
type IdentitiesHandler struct {
	config   *config.Config
	enroller *recognition.Enroller
	verifier *recognition.Verifier
	logger   *zap.Logger
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(cfg *config.Config, enroller *recognition.Enroller, verifier *recognition.Verifier, logger *zap.Logger) *IdentitiesHandler {
	return &IdentitiesHandler{
		config:   cfg,
		enroller: enroller,
		verifier: verifier,
		logger:   logging.OrNop(logger),
	}
}

// IdentityResponse represents an enrolled identity in API responses
type IdentityResponse struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Affiliation  string   `json:"affiliation"`
	ImageSources []string `json:"image_sources"`
	ImageCount   int      `json:"image_count"`
	UpdatedAt    string   `json:"updated_at"`
	Dimensions   int      `json:"dimensions"`
}

func identityToResponse(i *recognition.Identity) IdentityResponse {
	sources := i.ImageSources
	if sources == nil {
		sources = []string{}
	}
	return IdentityResponse{
		Name:         i.Name,
		Description:  i.Description,
		Affiliation:  i.Affiliation,
		ImageSources: sources,
		ImageCount:   i.ImageCount,
		UpdatedAt:    i.UpdatedAt.Format("2006-01-02"),
		Dimensions:   i.Dimensions,
	}
}

// ListResponse is returned by GET /identities.
type ListResponse struct {
	Names      []string           `json:"names"`
	Count      int                `json:"count"`
	Identities []IdentityResponse `json:"identities,omitempty"`
}

// List returns the names known to the verification cache. With
// ?details=true it reads full records straight from the store instead.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("details") == "true" {
		all, err := h.enroller.List(r.Context())
		if err != nil {
			respondEngineError(w, r, h.logger, "identities.list", err)
			return
		}
		resp := ListResponse{
			Names:      make([]string, len(all)),
			Count:      len(all),
			Identities: make([]IdentityResponse, len(all)),
		}
		for i := range all {
			resp.Names[i] = all[i].Name
			resp.Identities[i] = identityToResponse(&all[i])
		}
		respondJSON(w, http.StatusOK, resp)
		return
	}

	names, err := h.verifier.Names(r.Context())
	if err != nil {
		respondEngineError(w, r, h.logger, "identities.list", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, ListResponse{Names: names, Count: len(names)})
}

// Get returns a single identity from the store.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	identity, err := h.enroller.Get(r.Context(), name)
	if err != nil {
		respondEngineError(w, r, h.logger, "identities.get", err)
		return
	}
	respondJSON(w, http.StatusOK, identityToResponse(identity))
}

// Enroll creates or replaces an identity from uploaded images.
// Form fields: name, description, affiliation, images (repeated files).
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r, h.config.API.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	images, err := readImages(r, "images")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := h.enroller.Enroll(r.Context(), recognition.EnrollRequest{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Affiliation: r.FormValue("affiliation"),
		Images:      images,
	})
	if err != nil {
		h.logger.Info("enroll rejected",
			zap.String("name", sanitizeForLog(r.FormValue("name"))),
			zap.Int("images", len(images)),
			zap.Error(err))
		respondEngineError(w, r, h.logger, "identities.enroll", err)
		return
	}
	respondJSON(w, http.StatusCreated, identityToResponse(identity))
}

// EditResponse is returned by PUT /identities/{name}.
type EditResponse struct {
	Identity          IdentityResponse `json:"identity"`
	EmbeddingReplaced bool             `json:"embedding_replaced"`
}

// Edit updates an identity. Form fields: new_name, description,
// affiliation, images. Omitted description or affiliation fields keep the
// current values; omitted images keep the current embedding.
func (h *IdentitiesHandler) Edit(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := parseForm(r, h.config.API.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	images, err := readImages(r, "images")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := recognition.EditRequest{
		OldName: name,
		NewName: r.FormValue("new_name"),
		Images:  images,
	}

	description, hasDescription := formValue(r, "description")
	affiliation, hasAffiliation := formValue(r, "affiliation")
	if !hasDescription || !hasAffiliation {
		current, err := h.enroller.Get(r.Context(), name)
		if err != nil {
			respondEngineError(w, r, h.logger, "identities.edit", err)
			return
		}
		if !hasDescription {
			description = current.Description
		}
		if !hasAffiliation {
			affiliation = current.Affiliation
		}
	}
	req.Description = description
	req.Affiliation = affiliation

	result, err := h.enroller.Edit(r.Context(), req)
	if err != nil {
		respondEngineError(w, r, h.logger, "identities.edit", err)
		return
	}
	respondJSON(w, http.StatusOK, EditResponse{
		Identity:          identityToResponse(result.Identity),
		EmbeddingReplaced: result.EmbeddingReplaced,
	})
}

// Delete removes an identity.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.enroller.Delete(r.Context(), name); err != nil {
		respondEngineError(w, r, h.logger, "identities.delete", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": name})
}
