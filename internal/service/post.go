package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

const (
	DefaultLatestLimit = 5
	MaxLatestLimit     = 20
)

type PostInput struct {
	Title string   `json:"title" validate:"required,max=200"`
	Body  string   `json:"body" validate:"required,max=20000"`
	Tags  []string `json:"tags" validate:"max=10,dive,required,max=50"`
}

type CommentInput struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// PostService manages the community board: posts and their comments.
// Only a post's or comment's author may delete it.
type PostService struct {
	posts    repository.PostRepository
	comments repository.CommentRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewPostService(posts repository.PostRepository, comments repository.CommentRepository, logger *slog.Logger) *PostService {
	return &PostService{
		posts:    posts,
		comments: comments,
		validate: newValidator(),
		logger:   logger,
	}
}

func (s *PostService) Create(ctx context.Context, userID int64, in PostInput) (*model.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	in.Tags = normalizeTags(in.Tags)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	post := &model.Post{
		UserID: userID,
		Title:  in.Title,
		Body:   in.Body,
		Tags:   in.Tags,
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("post created",
		slog.Int64("postID", post.ID),
		slog.Int64("userID", userID),
	)
	return post, nil
}

func (s *PostService) Get(ctx context.Context, id int64) (*model.Post, error) {
	if id <= 0 {
		return nil, apperror.NotFound("post", strconv.FormatInt(id, 10))
	}
	return s.posts.GetPost(ctx, id)
}

// List pages through posts newest first. keyword, when set, matches the
// title, body or any tag, case-insensitively.
func (s *PostService) List(ctx context.Context, keyword string, page, limit int) ([]model.Post, Page, error) {
	page, limit = clampPage(page, limit)

	posts, total, err := s.posts.ListPosts(ctx, repository.PostFilter{
		Keyword: strings.TrimSpace(keyword),
		ListOptions: repository.ListOptions{
			Limit:  limit,
			Offset: (page - 1) * limit,
		},
	})
	if err != nil {
		return nil, Page{}, err
	}
	return posts, newPage(total, page, limit), nil
}

func (s *PostService) Latest(ctx context.Context, limit int) ([]model.Post, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	if limit > MaxLatestLimit {
		limit = MaxLatestLimit
	}
	return s.posts.LatestPosts(ctx, limit)
}

// Delete removes a post together with its comments and likes.
func (s *PostService) Delete(ctx context.Context, userID, postID int64) error {
	post, err := s.Get(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return apperror.Forbidden("only the author can delete this post")
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return err
	}
	s.logger.Info("post deleted", slog.Int64("postID", postID), slog.Int64("userID", userID))
	return nil
}

func (s *PostService) Comments(ctx context.Context, postID int64) ([]model.Comment, error) {
	if _, err := s.Get(ctx, postID); err != nil {
		return nil, err
	}
	return s.comments.ListComments(ctx, postID)
}

func (s *PostService) AddComment(ctx context.Context, userID, postID int64, in CommentInput) (*model.Comment, error) {
	in.Body = strings.TrimSpace(in.Body)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	c := &model.Comment{PostID: postID, UserID: userID, Body: in.Body}
	if err := s.comments.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostService) DeleteComment(ctx context.Context, userID, commentID int64) error {
	c, err := s.comments.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return apperror.Forbidden("only the author can delete this comment")
	}
	return s.comments.DeleteComment(ctx, commentID)
}

// normalizeTags trims, drops empties and removes duplicates, keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
