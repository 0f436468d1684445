package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/service"
)

// FavoriteHandler serves the favorite routes. Wherever a user is named, an
// id and a username are both accepted.
type FavoriteHandler struct {
	favorites *service.FavoriteService
	movies    *service.MovieService
	users     *service.UserService
	logger    *slog.Logger
}

func NewFavoriteHandler(
	favorites *service.FavoriteService,
	movies *service.MovieService,
	users *service.UserService,
	logger *slog.Logger,
) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites, movies: movies, users: users, logger: logger}
}

type favoriteResponse struct {
	IsFavorite bool `json:"isFavorite"`
}

type toggleRequest struct {
	MovieID flexString `json:"movieId"`
	UserID  flexString `json:"userId"`
}

// HandleToggle flips a favorite.
//
// HTTP: POST /api/movies/favorites/toggle
// Body: {"movieId": "...", "userId": "..."}  →  {"isFavorite": bool}
func (h *FavoriteHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	state, err := h.toggle(r, string(req.MovieID), string(req.UserID))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteResponse{IsFavorite: state})
}

// HandleCheck reports a favorite.
//
// HTTP: GET /api/movies/favorites/check?movieId=&userId=
func (h *FavoriteHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	ref := actingUser(ctx, q.Get("userId"))
	if ref == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("userId", "userId is required"))
		return
	}
	userID, err := resolveUser(ctx, h.users, ref)
	if isNotFound(err) {
		writeJSON(w, http.StatusOK, favoriteResponse{IsFavorite: false})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	fav, err := h.favorites.Check(ctx, q.Get("movieId"), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteResponse{IsFavorite: fav})
}

// HandleList returns a user's favorite movies, most recent first.
//
// HTTP: GET /api/movies/favorites/{userId}
func (h *FavoriteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := resolveUser(ctx, h.users, chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	favorites, err := h.favorites.ListForUser(ctx, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, favorites)
}

// patchRequest covers both historical PATCH shapes:
//
//	{"isFavorite": true, "userId": "..."}  sets the flag
//	{"username": "neo"}                   toggles it
type patchRequest struct {
	IsFavorite      *bool      `json:"isFavorite"`
	IsFavoriteSnake *bool      `json:"is_favorite"`
	UserID          flexString `json:"userId"`
	UserIDSnake     flexString `json:"user_id"`
	Username        string     `json:"username"`
}

// HandlePatch sets or toggles a favorite and returns the movie as the
// acting user now sees it.
//
// HTTP: PATCH /api/movies/{id}/favorite
func (h *FavoriteHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	movieID := chi.URLParam(r, "id")

	var req patchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ref := actingUser(ctx, string(req.UserID), string(req.UserIDSnake), req.Username)
	if ref == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("userId", "userId or username is required"))
		return
	}
	userID, err := resolveUser(ctx, h.users, ref)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	desired := req.IsFavorite
	if desired == nil {
		desired = req.IsFavoriteSnake
	}
	if desired != nil {
		err = h.favorites.Set(ctx, movieID, userID, *desired)
	} else {
		_, err = h.favorites.Toggle(ctx, movieID, userID)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	movie, err := h.movies.GetByID(ctx, movieID, userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

func (h *FavoriteHandler) toggle(r *http.Request, movieID, userRef string) (bool, error) {
	ctx := r.Context()
	ref := actingUser(ctx, userRef)
	if ref == "" {
		return false, apperror.ValidationFailed("userId", "userId is required")
	}
	userID, err := resolveUser(ctx, h.users, ref)
	if err != nil {
		return false, err
	}
	return h.favorites.Toggle(ctx, movieID, userID)
}
