// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services take repository interfaces, never a concrete database type, so
// tests drive them with in-memory fakes (see fakes_test.go) and cmd/recount
// can reuse them without HTTP. Every error a service returns is either an
// *apperror.AppError or a wrapped internal failure the handler reports as 500.
package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/cocktail-club/internal/apperror"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100

	// MaxPage keeps (page-1)*limit far from overflow; Postgres rejects a
	// negative OFFSET.
	MaxPage = 100_000
)

// Page is pagination metadata returned next to a list.
type Page struct {
	Total     int64 `json:"total"`
	Page      int   `json:"page"`
	Limit     int   `json:"limit"`
	PageCount int   `json:"pageCount"`
	HasPrev   bool  `json:"hasPrev"`
	HasNext   bool  `json:"hasNext"`
}

// clampPage normalizes 1-based page and limit query values.
func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func newPage(total int64, page, limit int) Page {
	pageCount := int((total + int64(limit) - 1) / int64(limit))
	return Page{
		Total:     total,
		Page:      page,
		Limit:     limit,
		PageCount: pageCount,
		HasPrev:   page > 1,
		HasNext:   page < pageCount,
	}
}

var (
	loginIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_]{4,20}$`)
	digitsPattern   = regexp.MustCompile(`^[0-9]+$`)
	passwordLetter  = regexp.MustCompile(`[A-Za-z]`)
	passwordDigit   = regexp.MustCompile(`[0-9]`)
	passwordSpecial = regexp.MustCompile(`[!@#$%^&*]`)
)

// newValidator returns a validator that reports json field names and knows
// the account rules: "loginid", "password" and "digits".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("loginid", func(fl validator.FieldLevel) bool {
		return loginIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) >= 8 && passwordLetter.MatchString(s) &&
			passwordDigit.MatchString(s) && passwordSpecial.MatchString(s)
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return digitsPattern.MatchString(fl.Field().String())
	})
	return v
}

// validationError turns the first validator failure into a field-level
// ValidationFailed. Non-validator errors pass through.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s can have at most %s entries", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		return "email is not a valid address"
	case "loginid":
		return "login_id must be 4-20 letters, digits or underscores"
	case "password":
		return "password must be at least 8 characters with a letter, a digit and one of !@#$%^&*"
	case "digits":
		return fmt.Sprintf("%s must contain digits only", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}
