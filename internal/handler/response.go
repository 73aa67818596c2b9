// Package handler turns HTTP requests into service calls and service
// results into JSON (or redirects, for OAuth).
//
// HANDLER RESPONSIBILITIES:
// A handler does exactly four things:
//  1. Read input: path params (chi.URLParam), query strings, JSON bodies,
//     cookies, and the caller's identity from the request context.
//  2. Call one service method.
//  3. Map the result to a status code and JSON body.
//  4. Map errors through writeError.
//
// Validation rules, ownership checks and transactions live in the service
// and repository layers. A handler never opens the database.
//
// CONSISTENT ERROR FORMAT:
// Every error response has the same shape:
//
//	{"error": "not_found", "message": "post not found with id 12"}
//
// so the frontend can branch on "error" without parsing messages.
//
// WHY MAP ERRORS HERE AND NOT IN THE SERVICE?
// Services return apperror values that know nothing about HTTP; the same
// EdgeService backs cmd/recount, which has no status codes at all. Only the
// edge of the program that speaks HTTP translates.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/httperr"
)

// maxBodyBytes caps request bodies; the largest legitimate one is a post.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply; see package httperr.
type ErrorResponse = httperr.Response

// okResponse is the body of endpoints that only acknowledge.
var okResponse = map[string]bool{"ok": true}

// writeJSON sends data as JSON with status.
//
// HEADER ORDER MATTERS:
// Headers must be set before WriteHeader; anything set afterwards is
// silently ignored because the status line and headers are already sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its status code. Anything that is not an
// *apperror.AppError is a 500 with a generic message; the real error is
// logged with the request id and never sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	httperr.WriteError(w, r, logger, err)
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("body", "request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		default:
			return apperror.ValidationFailed("body", "request body is not valid JSON")
		}
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a positive integer")
	}
	return id, nil
}

// queryInt reads an integer query parameter, falling back to def when it is
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
