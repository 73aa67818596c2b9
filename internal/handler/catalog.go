package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/service"
)

// CatalogHandler serves cocktails, cities and bars.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

type totalMeta struct {
	Total int `json:"total"`
}

func (h *CatalogHandler) HandleCocktails(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Cocktails(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "meta": totalMeta{Total: len(items)}})
}

// HandleCocktail: GET /cocktails/{id}, where id is numeric or a slug.
func (h *CatalogHandler) HandleCocktail(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.Cocktail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CatalogHandler) HandleCities(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Cities(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandleBars: GET /bars?city=
func (h *CatalogHandler) HandleBars(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Bars(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "meta": totalMeta{Total: len(items)}})
}

// HandleHotBars: GET /bars/hot?limit=
func (h *CatalogHandler) HandleHotBars(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.HotBars(r.Context(), queryInt(r, "limit", service.DefaultHotBars))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandleMyBars: GET /bars/mine?page=&limit= (auth)
func (h *CatalogHandler) HandleMyBars(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	items, page, err := h.catalog.BookmarkedBars(r.Context(), userID,
		queryInt(r, "page", 1),
		queryInt(r, "limit", service.DefaultPageLimit),
	)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "meta": page})
}
