package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

const (
	DefaultHotBars = 10
	MaxHotBars     = 50
)

// CatalogService serves the read-only cocktail, city and bar directory.
type CatalogService struct {
	repo   repository.CatalogRepository
	logger *slog.Logger
}

func NewCatalogService(repo repository.CatalogRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) Cocktails(ctx context.Context) ([]model.Cocktail, error) {
	return s.repo.ListCocktails(ctx)
}

// Cocktail looks a cocktail up by numeric id, or by slug otherwise.
func (s *CatalogService) Cocktail(ctx context.Context, idOrSlug string) (*model.Cocktail, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return nil, apperror.ValidationFailed("id", "cocktail id or slug is required")
	}
	if id, err := strconv.ParseInt(idOrSlug, 10, 64); err == nil {
		return s.repo.GetCocktail(ctx, id)
	}
	return s.repo.GetCocktailBySlug(ctx, strings.ToLower(idOrSlug))
}

func (s *CatalogService) Cities(ctx context.Context) ([]model.City, error) {
	return s.repo.ListCities(ctx)
}

// Bars lists bars, optionally only those in city.
func (s *CatalogService) Bars(ctx context.Context, city string) ([]model.Bar, error) {
	return s.repo.ListBars(ctx, strings.TrimSpace(city))
}

// HotBars returns the most bookmarked bars.
func (s *CatalogService) HotBars(ctx context.Context, limit int) ([]model.Bar, error) {
	if limit <= 0 {
		limit = DefaultHotBars
	}
	if limit > MaxHotBars {
		limit = MaxHotBars
	}
	return s.repo.HotBars(ctx, limit)
}

// BookmarkedBars pages through the bars userID bookmarked, newest first.
func (s *CatalogService) BookmarkedBars(ctx context.Context, userID int64, page, limit int) ([]model.BookmarkedBar, Page, error) {
	page, limit = clampPage(page, limit)
	bars, total, err := s.repo.BookmarkedBars(ctx, userID, repository.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, Page{}, err
	}
	return bars, newPage(total, page, limit), nil
}
