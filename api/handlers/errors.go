package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ruteri/tee-secret-management/api"
	"github.com/ruteri/tee-secret-management/interfaces"
)

// StatusCode maps a domain error to the HTTP status answered for it.
func StatusCode(err error) int {
	var (
		fingerprintErr *interfaces.InvalidFingerprintError
		assemblyErr    *interfaces.SessionAssemblyError
		backendErr     *interfaces.BackendProvisioningError
	)
	switch {
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &backendErr):
		return http.StatusBadGateway
	case errors.As(err, &fingerprintErr), errors.As(err, &assemblyErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := StatusCode(err)

	var message string
	switch status {
	case http.StatusUnauthorized:
		message = "unauthorized"
	case http.StatusNotFound:
		message = "not found"
	case http.StatusInternalServerError:
		log.Error("Request failed", "err", err)
		message = "internal error"
	default:
		message = err.Error()
	}
	writeJSON(w, log, status, api.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Failed to encode response", "err", err)
	}
}

func badRequest(w http.ResponseWriter, log *slog.Logger, message string) {
	writeJSON(w, log, http.StatusBadRequest, api.ErrorResponse{Error: message})
}
