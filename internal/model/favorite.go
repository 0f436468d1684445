package model

import "time"

// FavoriteMovie is a movie as listed in a user's favorites, newest first.
// The favorite itself is a (user, movie) pair; the pair is unique.
type FavoriteMovie struct {
	Movie
	FavoritedAt time.Time `json:"favoritedAt"`
}
