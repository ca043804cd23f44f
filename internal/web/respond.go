// internal/web/respond.go
package web

import (
	"bookshare/internal/apierror"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDetail answers in the backend's own error shape.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *apierror.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"detail": ve.Reason,
			"field":  ve.Field,
		})
		return
	}

	var rf *apierror.RequestFailure
	if errors.As(err, &rf) {
		if rf.StatusCode >= http.StatusInternalServerError {
			logger.Warn("backend error", "status", rf.StatusCode, "error", err)
			writeDetail(w, http.StatusBadGateway, rf.Info.Message)
			return
		}
		writeDetail(w, rf.StatusCode, rf.Info.Message)
		return
	}

	if errors.Is(err, apierror.ErrTransport) {
		logger.Warn("backend unreachable", "error", err)
		writeDetail(w, http.StatusBadGateway, apierror.GenericReason)
		return
	}

	logger.Error("request failed", "error", err)
	writeDetail(w, http.StatusInternalServerError, "internal error")
}
