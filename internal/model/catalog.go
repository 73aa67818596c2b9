package model

import "time"

type Cocktail struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Recipe      string `json:"recipe,omitempty"`
	ImageURL    string `json:"image,omitempty"`
	LikeCount   int64  `json:"like_count"`
}

type City struct {
	ID    int64  `json:"id"`
	Name  string `json:"city"`
	Image string `json:"image,omitempty"`
}

// Bar is a venue in the bar directory. Lat/Lng are WGS84 degrees.
type Bar struct {
	ID            int64   `json:"id"`
	CityID        int64   `json:"city_id"`
	City          string  `json:"city,omitempty"`
	Name          string  `json:"name"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	Address       string  `json:"address,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Website       string  `json:"website,omitempty"`
	Description   string  `json:"desc,omitempty"`
	BookmarkCount int64   `json:"bookmark_count"`
}

// BookmarkedBar is one row of a user's bookmark list.
type BookmarkedBar struct {
	BookmarkedAt time.Time `json:"bookmarked_at"`
	Bar          Bar       `json:"bar"`
}
