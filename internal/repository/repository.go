// Package repository declares the storage contracts the services depend on.
// The sqldb subpackage implements all of them on database/sql.
package repository

import (
	"context"

	"github.com/sakif/cocktail-club/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// PostFilter narrows ListPosts. An empty Keyword matches every post.
type PostFilter struct {
	Keyword string
	ListOptions
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByLoginID(ctx context.Context, loginID string) (*model.User, error)

	// SetRefreshToken overwrites the stored refresh credential; "" clears it.
	SetRefreshToken(ctx context.Context, userID int64, token string) error
	// GetRefreshToken returns "" when the user has no active session.
	GetRefreshToken(ctx context.Context, userID int64) (string, error)
}

type OAuthRepository interface {
	// LinkIdentity resolves a provider identity to a local user inside one
	// transaction, creating the user and/or the link as needed.
	LinkIdentity(ctx context.Context, profile *model.OAuthProfile) (*model.User, error)
	GetLink(ctx context.Context, provider, providerUserID string) (*model.OAuthLink, error)
}

type EdgeRepository interface {
	AddEdge(ctx context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error)
	RemoveEdge(ctx context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error)
	// EdgeStatus reports the entity counter; a nil userID skips the ownership lookup.
	EdgeStatus(ctx context.Context, kind model.EdgeKind, userID *int64, entityID int64) (model.EdgeStatus, error)
	// Recount rewrites every counter of kind that disagrees with its edge rows
	// and returns how many entities were corrected.
	Recount(ctx context.Context, kind model.EdgeKind) (int64, error)
}

type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id int64) (*model.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]model.Post, int64, error)
	LatestPosts(ctx context.Context, limit int) ([]model.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	GetComment(ctx context.Context, id int64) (*model.Comment, error)
	ListComments(ctx context.Context, postID int64) ([]model.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
}

type CatalogRepository interface {
	ListCocktails(ctx context.Context) ([]model.Cocktail, error)
	GetCocktail(ctx context.Context, id int64) (*model.Cocktail, error)
	GetCocktailBySlug(ctx context.Context, slug string) (*model.Cocktail, error)
	ListCities(ctx context.Context) ([]model.City, error)
	ListBars(ctx context.Context, city string) ([]model.Bar, error)
	HotBars(ctx context.Context, limit int) ([]model.Bar, error)
	BookmarkedBars(ctx context.Context, userID int64, opts ListOptions) ([]model.BookmarkedBar, int64, error)
}
