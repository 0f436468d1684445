package handler

// RESPONSE HELPERS:
// Every error response has the same shape:
//
//	{"error": "not_found", "message": "movie not found with id abc123"}
//
// "error" is a closed set of machine-readable kinds (apperror.Kind), so
// clients branch on it and only ever show "message" to people. Validation
// errors add "field" naming the offending input.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sakif/moviecatalog/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   apperror.Kind `json:"error"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`
}

// MessageResponse is the body of operations with nothing else to return.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	case apperror.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		// upstream_unavailable and internal_error
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to a status code and the standard body.
//
// Only *apperror.AppError messages reach the client. Anything else is an
// internal error whose text may contain SQL or file paths, so the client
// gets a generic message and the details go to the log.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := apperror.KindOf(err)
	resp := ErrorResponse{Error: kind, Message: "An internal error occurred"}

	var appErr *apperror.AppError
	if kind != apperror.KindInternal && errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	}

	if kind == apperror.KindInternal || kind == apperror.KindUpstream {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, statusFor(kind), resp)
}

// ErrorWriter returns writeError bound to logger, for middleware that has to
// answer with the standard error body.
func ErrorWriter(logger *slog.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, logger, err)
	}
}

// decodeJSON reads a JSON body into dst. A malformed body is a validation error.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("", "request body must be valid JSON")
	}
	return nil
}
