package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/sakif/moviecatalog/internal/model"
)

// ErrNotLoggedIn is returned by State operations that need a user.
var ErrNotLoggedIn = errors.New("client: not logged in")

// Session is the logged-in user as the client remembers it.
type Session struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token,omitempty"`
}

// State is the application state of an interactive client: who is logged
// in, the movie list, the last search, and a favorite map keyed by movie id.
//
// The server is the source of truth for favorites. ToggleFavorite updates
// the map optimistically and rolls back if the server call fails, so the
// map can be briefly ahead of the server but never stays wrong. Refresh
// and SyncFavorites replace it wholesale with the server's view.
//
// A State is owned by one goroutine; it is not safe for concurrent use.
type State struct {
	api *API

	User          *Session
	Message       string // last login message, e.g. "User created successfully"
	Movies        []model.Movie
	SearchResults []model.SearchResult
	Favorites     map[string]bool
	Loading       bool
	Err           error
}

func NewState(api *API) *State {
	return &State{api: api, Favorites: map[string]bool{}}
}

// track sets Loading for the duration of a call and records its error.
func (s *State) track(err *error) func() {
	s.Loading = true
	s.Err = nil
	return func() {
		s.Loading = false
		s.Err = *err
	}
}

func (s *State) userID() (string, error) {
	if s.User == nil {
		return "", ErrNotLoggedIn
	}
	return s.User.ID, nil
}

// Login finds or creates the user and makes them current. Any previous
// user's data is dropped first.
func (s *State) Login(ctx context.Context, username string) (err error) {
	defer s.track(&err)()

	res, err := s.api.Login(ctx, username)
	if err != nil {
		return err
	}

	if s.User != nil && s.User.ID != res.ID {
		s.Logout()
	}
	s.User = &Session{ID: res.ID, Username: res.Username, Token: res.Token}
	s.Message = res.Message
	s.api.SetToken(res.Token)
	return nil
}

// Logout forgets the user, their favorites and their movie list.
func (s *State) Logout() {
	s.User = nil
	s.Message = ""
	s.Favorites = map[string]bool{}
	s.Movies = nil
	s.SearchResults = nil
	s.Err = nil
	s.api.SetToken("")
}

// Refresh reloads the current user's movies and rebuilds Favorites from them.
func (s *State) Refresh(ctx context.Context) (err error) {
	defer s.track(&err)()

	userID, err := s.userID()
	if err != nil {
		return err
	}
	movies, err := s.api.ListMovies(ctx, userID)
	if err != nil {
		return err
	}

	s.Movies = movies
	s.Favorites = make(map[string]bool, len(movies))
	for _, m := range movies {
		if m.IsFavorite {
			s.Favorites[m.ID] = true
		}
	}
	return nil
}

// Search runs a lookup. Each result says whether the user already saved it.
func (s *State) Search(ctx context.Context, title string) (err error) {
	defer s.track(&err)()

	var userID string
	if s.User != nil {
		userID = s.User.ID
	}
	results, err := s.api.Search(ctx, title, userID)
	if err != nil {
		return err
	}
	s.SearchResults = results
	return nil
}

// AddFromSearch saves the i-th search result to the user's collection.
func (s *State) AddFromSearch(ctx context.Context, i int) (movie *model.Movie, err error) {
	defer s.track(&err)()

	userID, err := s.userID()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s.SearchResults) {
		return nil, fmt.Errorf("client: no search result %d", i+1)
	}

	movie, err = s.api.CreateMovie(ctx, FromSearch(s.SearchResults[i], userID))
	if err != nil {
		return nil, err
	}
	s.Movies = append([]model.Movie{*movie}, s.Movies...)
	s.SearchResults[i].IsAdded = true
	return movie, nil
}

// ToggleFavorite flips a favorite. The local state changes first and is
// restored if the server rejects the change; on success it adopts the
// server's answer.
func (s *State) ToggleFavorite(ctx context.Context, movieID string) (state bool, err error) {
	defer s.track(&err)()

	userID, err := s.userID()
	if err != nil {
		return false, err
	}

	prev := s.Favorites[movieID]
	s.setFavorite(movieID, !prev)

	state, err = s.api.ToggleFavorite(ctx, movieID, userID)
	if err != nil {
		s.setFavorite(movieID, prev)
		return prev, err
	}
	s.setFavorite(movieID, state)
	return state, nil
}

func (s *State) setFavorite(movieID string, favorite bool) {
	if favorite {
		s.Favorites[movieID] = true
	} else {
		delete(s.Favorites, movieID)
	}
	for i := range s.Movies {
		if s.Movies[i].ID == movieID {
			s.Movies[i].IsFavorite = favorite
		}
	}
}

// Delete removes a movie on the server and then locally.
func (s *State) Delete(ctx context.Context, movieID string) (err error) {
	defer s.track(&err)()

	if err := s.api.DeleteMovie(ctx, movieID); err != nil {
		return err
	}

	i := slices.IndexFunc(s.Movies, func(m model.Movie) bool { return m.ID == movieID })
	if i >= 0 {
		removed := s.Movies[i]
		s.Movies = slices.Delete(s.Movies, i, i+1)
		for j := range s.SearchResults {
			r := &s.SearchResults[j]
			if removed.ExternalID != "" && r.ExternalID == removed.ExternalID {
				r.IsAdded = false
			}
		}
	}
	delete(s.Favorites, movieID)
	return nil
}

// SyncFavorites replaces the favorite map with the server's list.
func (s *State) SyncFavorites(ctx context.Context) (err error) {
	defer s.track(&err)()

	userID, err := s.userID()
	if err != nil {
		return err
	}
	favs, err := s.api.ListFavorites(ctx, userID)
	if err != nil {
		return err
	}

	s.Favorites = make(map[string]bool, len(favs))
	for _, f := range favs {
		s.Favorites[f.ID] = true
	}
	for i := range s.Movies {
		s.Movies[i].IsFavorite = s.Favorites[s.Movies[i].ID]
	}
	return nil
}

// persisted is what Save writes: the session and the favorite map. Movie
// lists are always reloaded from the server.
type persisted struct {
	User      *Session        `json:"user,omitempty"`
	Favorites map[string]bool `json:"favorites"`
}

// Save writes the session and favorites as JSON.
func (s *State) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(persisted{User: s.User, Favorites: s.Favorites}); err != nil {
		return fmt.Errorf("client: saving state: %w", err)
	}
	return nil
}

// Load restores what Save wrote and re-arms the API token.
func (s *State) Load(r io.Reader) error {
	var p persisted
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return fmt.Errorf("client: loading state: %w", err)
	}
	s.User = p.User
	s.Favorites = p.Favorites
	if s.Favorites == nil {
		s.Favorites = map[string]bool{}
	}
	if s.User != nil {
		s.api.SetToken(s.User.Token)
	}
	return nil
}
