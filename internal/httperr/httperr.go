// Package httperr owns the JSON error body every endpoint returns:
//
//	{"error": "not_found", "message": "post not found with id 12", "field": "id"}
//
// and the single mapping from apperror kinds to HTTP status codes.
//
// WHY A SEPARATE PACKAGE?
// Handlers are not the only code that rejects requests. The auth middleware
// (401) and the rate limiter (429) write errors too, and neither may import
// the handler package: handler already imports auth, so the reverse import
// would be a cycle. Keeping the body and the mapping here means the error
// shape lives in exactly one place.
package httperr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/cocktail-club/internal/apperror"
)

// GenericFailure is the only message a client sees for unexpected errors.
const GenericFailure = "operation failed, please try again"

type Response struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, when known
}

// Write sends body with status as JSON.
func Write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// Status maps err to a status code and response body.
//
// ERROR MAPPING:
//
//	ErrUnauthenticated → 401 "unauthenticated"   (missing/expired/bad token)
//	ErrInvalidSession  → 401 "invalid_session"   (logged out or superseded)
//	ErrForbidden       → 403 "forbidden"
//	ErrNotFound        → 404 "not_found"
//	ErrConflict        → 409 "conflict"
//	ErrValidation      → 400 "validation_error"
//	anything else      → 500 "internal_error" with GenericFailure
//
// The bool is false for errors that are not an *apperror.AppError; their
// text must never reach the client.
func Status(err error) (int, Response, bool) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, Response{Error: "internal_error", Message: GenericFailure}, false
	}

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, apperror.ErrUnauthenticated):
		status, kind = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrInvalidSession):
		status, kind = http.StatusUnauthorized, "invalid_session"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	}
	return status, Response{Error: kind, Message: appErr.Message, Field: appErr.Field}, true
}

// WriteError writes err as Status maps it. Unexpected errors are logged with
// the method, path and chi request id; a nil logger means slog.Default().
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, body, known := Status(err)
	if !known {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
	Write(w, status, body)
}
