package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/logging"
)

// writeJSON encodes body as the JSON response with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError maps err onto an HTTP status and writes a JSON error body.
// Internal failures are logged in full but reported generically.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context())

	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout:
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
		msg = "internal error"
	case status >= http.StatusInternalServerError:
		log.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	default:
		log.Info("request rejected", slog.Int("status", status), slog.Any("error", err))
	}

	writeJSON(w, r, status, errorResponse{Error: msg})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}
