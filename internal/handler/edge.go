package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/service"
)

// EdgeHandler serves like and bookmark toggles. The same three handlers
// back every kind:
//
//	POST   /posts/{id}/like       → {liked: true,  like_count}
//	DELETE /posts/{id}/like       → {liked: false, like_count}
//	GET    /posts/{id}/like       → {liked, like_count}   (anonymous allowed)
//	...    /bars/{id}/bookmark    → {bookmarked, bookmark_count}
type EdgeHandler struct {
	edges  *service.EdgeService
	logger *slog.Logger
}

func NewEdgeHandler(edges *service.EdgeService, logger *slog.Logger) *EdgeHandler {
	return &EdgeHandler{edges: edges, logger: logger}
}

type likeResponse struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

type bookmarkResponse struct {
	Bookmarked    bool  `json:"bookmarked"`
	BookmarkCount int64 `json:"bookmark_count"`
}

func edgeBody(kind model.EdgeKind, st model.EdgeStatus) any {
	if kind == model.BarBookmark {
		return bookmarkResponse{Bookmarked: st.Mine, BookmarkCount: st.Total}
	}
	return likeResponse{Liked: st.Mine, LikeCount: st.Total}
}

type edgeOp func(ctx context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error)

// Add and Remove must sit behind auth.RequireAuth.
func (h *EdgeHandler) Add(kind model.EdgeKind) http.HandlerFunc {
	return h.mutate(kind, h.edges.Add)
}

func (h *EdgeHandler) Remove(kind model.EdgeKind) http.HandlerFunc {
	return h.mutate(kind, h.edges.Remove)
}

func (h *EdgeHandler) mutate(kind model.EdgeKind, op edgeOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeError(w, r, h.logger, apperror.Unauthenticated("valid authentication required"))
			return
		}
		entityID, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		st, err := op(r.Context(), kind, userID, entityID)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, edgeBody(kind, st))
	}
}

// Status works for anonymous callers (behind auth.OptionalAuth); they always
// see mine=false and cost a single query.
func (h *EdgeHandler) Status(kind model.EdgeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, err := pathID(r, "id")
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}

		var userID *int64
		if id, ok := auth.UserIDFromContext(r.Context()); ok {
			userID = &id
		}

		st, err := h.edges.Status(r.Context(), kind, userID, entityID)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, edgeBody(kind, st))
	}
}
