package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/service"
)

// PostHandler serves the community board.
type PostHandler struct {
	posts  *service.PostService
	logger *slog.Logger
}

func NewPostHandler(posts *service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

type postListResponse struct {
	Items []model.Post `json:"items"`
	Meta  service.Page `json:"meta"`
}

type postResponse struct {
	Post *model.Post `json:"post"`
}

type commentListResponse struct {
	Comments []model.Comment `json:"comments"`
}

type commentResponse struct {
	Comment *model.Comment `json:"comment"`
}

// HandleList: GET /posts?page=&limit=&keyword=
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	posts, page, err := h.posts.List(r.Context(),
		r.URL.Query().Get("keyword"),
		queryInt(r, "page", 1),
		queryInt(r, "limit", service.DefaultPageLimit),
	)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, postListResponse{Items: posts, Meta: page})
}

// HandleLatest: GET /posts/latest?limit=
func (h *PostHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.Latest(r.Context(), queryInt(r, "limit", service.DefaultLatestLimit))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": posts})
}

func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	post, err := h.posts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, postResponse{Post: post})
}

func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.PostInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	post, err := h.posts.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, postResponse{Post: post})
}

func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.posts.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (h *PostHandler) HandleComments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	comments, err := h.posts.Comments(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, commentListResponse{Comments: comments})
}

func (h *PostHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	postID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var in service.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.posts.AddComment(r.Context(), userID, postID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentResponse{Comment: c})
}

func (h *PostHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.posts.DeleteComment(r.Context(), userID, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}
