// Package handlers provides the REST handlers of the desktop server.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// writeError maps the error code to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrSyncInProgress:
		status = http.StatusConflict
	case apperrors.ErrAuthFailed, apperrors.ErrSyncAuthFailed:
		status = http.StatusUnauthorized
	case apperrors.ErrNetwork, apperrors.ErrRemote:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		logging.Error("Request failed", err)
	}
	writeJSON(w, status, ErrorResponse{Code: string(code), Message: apperrors.MessageOf(err)})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "Invalid request body", err)
	}
	return nil
}
