package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

// Catalog data (cocktails, cities, bars) is curated out of band; the
// application only reads it and moves its counters.

var _ repository.CatalogRepository = (*DB)(nil)

const cocktailColumns = `id, slug, name, description, recipe, image_url, like_count`

func (db *DB) ListCocktails(ctx context.Context) ([]model.Cocktail, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+cocktailColumns+` FROM cocktails ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing cocktails: %w", err)
	}
	defer rows.Close()

	cocktails := []model.Cocktail{}
	for rows.Next() {
		var c model.Cocktail
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.Description, &c.Recipe, &c.ImageURL, &c.LikeCount); err != nil {
			return nil, fmt.Errorf("sqldb: scanning cocktail: %w", err)
		}
		cocktails = append(cocktails, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating cocktails: %w", err)
	}
	return cocktails, nil
}

func (db *DB) GetCocktail(ctx context.Context, id int64) (*model.Cocktail, error) {
	return db.getCocktail(ctx, `id = ?`, id, strconv.FormatInt(id, 10))
}

func (db *DB) GetCocktailBySlug(ctx context.Context, slug string) (*model.Cocktail, error) {
	return db.getCocktail(ctx, `slug = ?`, slug, slug)
}

func (db *DB) getCocktail(ctx context.Context, cond string, arg any, label string) (*model.Cocktail, error) {
	var c model.Cocktail
	err := db.conn.QueryRowContext(ctx, db.q(`SELECT `+cocktailColumns+` FROM cocktails WHERE `+cond), arg).
		Scan(&c.ID, &c.Slug, &c.Name, &c.Description, &c.Recipe, &c.ImageURL, &c.LikeCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("cocktail", label)
		}
		return nil, fmt.Errorf("sqldb: getting cocktail %s: %w", label, err)
	}
	return &c, nil
}

func (db *DB) ListCities(ctx context.Context) ([]model.City, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, image FROM cities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing cities: %w", err)
	}
	defer rows.Close()

	cities := []model.City{}
	for rows.Next() {
		var c model.City
		if err := rows.Scan(&c.ID, &c.Name, &c.Image); err != nil {
			return nil, fmt.Errorf("sqldb: scanning city: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating cities: %w", err)
	}
	return cities, nil
}

const barSelect = `SELECT b.id, b.city_id, c.name, b.name, b.lat, b.lng, b.address, b.phone, b.website, b.description, b.bookmark_count
	FROM bars b JOIN cities c ON c.id = b.city_id`

// ListBars returns the bars of one city, or every bar when city is empty.
func (db *DB) ListBars(ctx context.Context, city string) ([]model.Bar, error) {
	query, args := barSelect+` ORDER BY b.id`, []any(nil)
	if city != "" {
		query, args = barSelect+` WHERE c.name = ? ORDER BY b.id`, []any{city}
	}
	rows, err := db.conn.QueryContext(ctx, db.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing bars: %w", err)
	}
	return scanBars(rows)
}

// HotBars returns the most bookmarked bars.
func (db *DB) HotBars(ctx context.Context, limit int) ([]model.Bar, error) {
	rows, err := db.conn.QueryContext(ctx, db.q(
		barSelect+` ORDER BY b.bookmark_count DESC, b.id ASC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing hot bars: %w", err)
	}
	return scanBars(rows)
}

// BookmarkedBars returns one page of the bars userID bookmarked, newest
// bookmark first, and the user's total number of bookmarks.
func (db *DB) BookmarkedBars(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.BookmarkedBar, int64, error) {
	var total int64
	err := db.conn.QueryRowContext(ctx, db.q(
		`SELECT COUNT(*) FROM bar_bookmarks WHERE user_id = ?`), userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqldb: counting bookmarks of user %d: %w", userID, err)
	}

	rows, err := db.conn.QueryContext(ctx, db.q(
		`SELECT bb.created_at, b.id, b.city_id, c.name, b.name, b.lat, b.lng, b.address, b.phone, b.website, b.description, b.bookmark_count
		 FROM bar_bookmarks bb
		 JOIN bars b ON b.id = bb.bar_id
		 JOIN cities c ON c.id = b.city_id
		 WHERE bb.user_id = ?
		 ORDER BY bb.created_at DESC, bb.bar_id DESC
		 LIMIT ? OFFSET ?`),
		userID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqldb: listing bookmarks of user %d: %w", userID, err)
	}
	defer rows.Close()

	out := []model.BookmarkedBar{}
	for rows.Next() {
		var bb model.BookmarkedBar
		b := &bb.Bar
		if err := rows.Scan(&bb.BookmarkedAt, &b.ID, &b.CityID, &b.City, &b.Name, &b.Lat, &b.Lng,
			&b.Address, &b.Phone, &b.Website, &b.Description, &b.BookmarkCount); err != nil {
			return nil, 0, fmt.Errorf("sqldb: scanning bookmark: %w", err)
		}
		out = append(out, bb)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqldb: iterating bookmarks: %w", err)
	}
	return out, total, nil
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()

	bars := []model.Bar{}
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.ID, &b.CityID, &b.City, &b.Name, &b.Lat, &b.Lng,
			&b.Address, &b.Phone, &b.Website, &b.Description, &b.BookmarkCount); err != nil {
			return nil, fmt.Errorf("sqldb: scanning bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating bars: %w", err)
	}
	return bars, nil
}
