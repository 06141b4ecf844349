package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"go.uber.org/zap"
)

// VerifyHandler matches uploaded query images.
type VerifyHandler struct {
	config   *config.Config
	verifier *recognition.Verifier
	logger   *zap.Logger
}

// NewVerifyHandler creates a new verify handler.
func NewVerifyHandler(cfg *config.Config, verifier *recognition.Verifier, logger *zap.Logger) *VerifyHandler {
	return &VerifyHandler{config: cfg, verifier: verifier, logger: logging.OrNop(logger)}
}

// VerifyResponse is the outcome of POST /verify. Distance is null when no
// enrolled embedding could be compared. Stale is true when the identity
// store could not be read and an older cache snapshot answered.
type VerifyResponse struct {
	Matched     bool     `json:"matched"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Affiliation string   `json:"affiliation,omitempty"`
	Distance    *float64 `json:"distance"`
	Tolerance   float64  `json:"tolerance"`
	Stale       bool     `json:"stale"`
}

// Verify handles a multipart upload with the query under "file".
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r, h.config.API.MaxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	images, err := readImages(r, "file")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(images) == 0 {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}

	result, err := h.verifier.Verify(r.Context(), images[0].Data)
	if err != nil {
		respondEngineError(w, r, h.logger, "verify", err)
		return
	}

	respondJSON(w, http.StatusOK, VerifyResponse{
		Matched:     result.Matched,
		Name:        result.Name,
		Description: result.Description,
		Affiliation: result.Affiliation,
		Distance:    result.Distance,
		Tolerance:   h.verifier.Tolerance(),
		Stale:       result.Stale,
	})
}

// CacheStatus reports the age of the verification cache.
func (h *VerifyHandler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	age, ok := h.verifier.CacheAge()
	resp := map[string]any{"populated": ok}
	if ok {
		resp["age_seconds"] = age.Seconds()
	}
	respondJSON(w, http.StatusOK, resp)
}
