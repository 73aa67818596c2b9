package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/httperr"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		wantField  string
	}{
		{"unauthenticated", apperror.Unauthenticated("token expired"), http.StatusUnauthorized, "unauthenticated", ""},
		{"invalid session", apperror.InvalidSession(), http.StatusUnauthorized, "invalid_session", ""},
		{"forbidden", apperror.Forbidden("not yours"), http.StatusForbidden, "forbidden", ""},
		{"not found", apperror.NotFound("post", "9"), http.StatusNotFound, "not_found", ""},
		{"conflict", apperror.Conflict("email", "email is already in use"), http.StatusConflict, "conflict", "email"},
		{"validation", apperror.ValidationFailed("title", "title is required"), http.StatusBadRequest, "validation_error", "title"},
		{"wrapped app error", fmt.Errorf("creating post: %w", apperror.NotFound("user", "3")), http.StatusNotFound, "not_found", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			writeError(rr, req, slog.New(slog.NewTextHandler(io.Discard, nil)), tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantKind, body.Error)
			assert.Equal(t, tt.wantField, body.Field)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/posts/1/like", nil)

	writeError(rr, req, logger, errors.New("pq: deadlock detected"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "deadlock")
	assert.Contains(t, rr.Body.String(), httperr.GenericFailure)
	assert.Contains(t, logs.String(), "deadlock detected")
	assert.Contains(t, logs.String(), "/posts/1/like")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Title string `json:"title"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"Negroni"}`))
		require.NoError(t, decodeJSON(httptest.NewRecorder(), req, &dst))
		assert.Equal(t, "Negroni", dst.Title)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		err := decodeJSON(httptest.NewRecorder(), req, &dst)
		assert.ErrorIs(t, err, apperror.ErrValidation)
		assert.ErrorContains(t, err, "required")
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
		err := decodeJSON(httptest.NewRecorder(), req, &dst)
		assert.ErrorContains(t, err, "not valid JSON")
	})

	t.Run("too large", func(t *testing.T) {
		big := `{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
		err := decodeJSON(httptest.NewRecorder(), req, &dst)
		assert.ErrorContains(t, err, "too large")
	})
}

func TestPathIDAndQueryInt(t *testing.T) {
	var gotID int64
	var gotErr error
	var gotLimit int

	r := chi.NewRouter()
	r.Get("/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotID, gotErr = pathID(r, "id")
		gotLimit = queryInt(r, "limit", 10)
	})

	serve := func(target string) {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	serve("/posts/42?limit=3")
	require.NoError(t, gotErr)
	assert.Equal(t, int64(42), gotID)
	assert.Equal(t, 3, gotLimit)

	serve("/posts/0?limit=abc")
	assert.ErrorIs(t, gotErr, apperror.ErrValidation)
	assert.Equal(t, 10, gotLimit)

	serve("/posts/-5")
	assert.ErrorIs(t, gotErr, apperror.ErrValidation)

	serve("/posts/x")
	assert.ErrorIs(t, gotErr, apperror.ErrValidation)
}
