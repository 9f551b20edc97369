package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// unavailableMessage is the only thing a prober learns about a dead link
const unavailableMessage = "share link is not available"

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeError maps a service error onto an HTTP status. Unknown, revoked,
// expired and exhausted shares all answer the same 404.
func writeError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch {
	case domain.IsUnavailableShare(err):
		writeErrorMessage(w, http.StatusNotFound, unavailableMessage)
	case errors.Is(err, domain.ErrPermissionDenied):
		writeErrorMessage(w, http.StatusForbidden, "share does not allow this access")
	case domain.IsForbidden(err):
		writeErrorMessage(w, http.StatusForbidden, "forbidden")
	case domain.IsNotFound(err):
		writeErrorMessage(w, http.StatusNotFound, err.Error())
	case domain.IsValidation(err):
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyExists):
		writeErrorMessage(w, http.StatusConflict, "conflicting update, please retry")
	case domain.IsRetryable(err):
		retryAfter, _ := domain.GetRetryAfter(err)
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		writeErrorMessage(w, http.StatusServiceUnavailable, "temporarily unavailable")
		logger.Warn("transient failure", zap.Error(err))
	default:
		logger.Error("request failed", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeDenial answers a refused share access
func writeDenial(w http.ResponseWriter, reason domain.DenialReason) {
	if reason == domain.DenialPermissionDenied {
		writeErrorMessage(w, http.StatusForbidden, "share does not allow this access")
		return
	}
	writeErrorMessage(w, http.StatusNotFound, unavailableMessage)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", "malformed JSON: "+err.Error())
	}
	return nil
}
