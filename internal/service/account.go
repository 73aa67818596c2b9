package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

// SignupInput is the signup form. Birthday accepts YYYYMMDD or YYYY-MM-DD.
type SignupInput struct {
	LoginID  string `json:"login_id" validate:"required,loginid"`
	Password string `json:"password" validate:"required,password,max=72"`
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Birthday string `json:"birthday" validate:"required"`
	Phone    string `json:"phone" validate:"required,digits,min=9,max=15"`
}

type AccountService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewAccountService(users repository.UserRepository, passwords *auth.PasswordService, logger *slog.Logger) *AccountService {
	return &AccountService{
		users:     users,
		passwords: passwords,
		validate:  newValidator(),
		logger:    logger,
	}
}

// Signup creates a password account. Duplicate login id, email or phone
// surface as a Conflict naming the field.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	in.LoginID = strings.TrimSpace(in.LoginID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.NewReplacer("-", "", " ", "").Replace(in.Phone)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	birthday, err := normalizeBirthday(in.Birthday)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	user := &model.User{
		LoginID:      in.LoginID,
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Birthday:     birthday,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up",
		slog.Int64("userID", user.ID),
		slog.String("loginID", user.LoginID),
	)
	return user, nil
}

// Me loads the caller's own account.
func (s *AccountService) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// normalizeBirthday accepts YYYYMMDD or YYYY-MM-DD and returns YYYY-MM-DD.
// Dates in the future are rejected.
func normalizeBirthday(s string) (string, error) {
	s = strings.TrimSpace(s)
	layout := "20060102"
	if strings.Contains(s, "-") {
		layout = time.DateOnly
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", apperror.ValidationFailed("birthday", "birthday must be a valid date in YYYYMMDD form")
	}
	if t.After(time.Now()) {
		return "", apperror.ValidationFailed("birthday", "birthday cannot be in the future")
	}
	return t.Format(time.DateOnly), nil
}
