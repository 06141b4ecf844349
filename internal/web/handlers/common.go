// Package handlers implements the HTTP endpoints of the identity registry.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"go.uber.org/zap"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recognition.ErrInvalidName),
		errors.Is(err, recognition.ErrInvalidImage),
		errors.Is(err, recognition.ErrNoFaceDetected):
		return http.StatusBadRequest
	case errors.Is(err, recognition.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, recognition.ErrNameTaken):
		return http.StatusConflict
	case errors.Is(err, recognition.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondEngineError reports an engine error. Client errors echo the
// message; server errors are logged and answered with a generic one.
func respondEngineError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, operation string, err error) {
	status := statusFor(err)
	if status < http.StatusInternalServerError {
		respondError(w, status, err.Error())
		return
	}

	requestID := chiMiddleware.GetReqID(r.Context())
	logging.WithOperation(logger, operation, requestID).
		Error("request failed", zap.Error(logging.NewOperationError(operation, requestID, err)))

	if status == http.StatusServiceUnavailable {
		respondError(w, status, recognition.ErrStoreUnavailable.Error())
		return
	}
	respondError(w, status, "internal error")
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
