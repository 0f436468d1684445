package model

import "time"

// Movie is one entry of a user's personal collection.
//
// Optional metadata is stored as plain strings and "" means absent. Year and
// Runtime stay textual because the lookup service reports values like
// "2010–2014" and "148 min".
//
// IsFavorite is NOT a stored column. It is computed per request from the
// favorites join table for whichever user is viewing the movie.
type Movie struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Year        string    `json:"year,omitempty"`
	Genre       string    `json:"genre,omitempty"`
	Runtime     string    `json:"runtime,omitempty"`
	Director    string    `json:"director,omitempty"`
	ExternalID  string    `json:"externalId,omitempty"`
	Poster      string    `json:"poster,omitempty"`      // remote poster URL from the lookup service
	PosterLocal string    `json:"posterLocal,omitempty"` // uploaded poster, e.g. /uploads/posters/x.jpg
	IsFavorite  bool      `json:"isFavorite"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PosterURL returns the poster a client should display: the uploaded file
// when there is one, otherwise the remote URL.
func (m *Movie) PosterURL() string {
	if m.PosterLocal != "" {
		return m.PosterLocal
	}
	return m.Poster
}
