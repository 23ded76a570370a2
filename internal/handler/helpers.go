package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/repository"
	"github.com/casedesk/messaging/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps the core's error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is a storage failure and stays generic.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		logger.Errorf("storage error: %v", err)
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}
