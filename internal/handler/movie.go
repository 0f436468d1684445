package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/poster"
	"github.com/sakif/moviecatalog/internal/repository"
	"github.com/sakif/moviecatalog/internal/service"
)

// PosterSaver stores an uploaded image and returns its public path.
type PosterSaver interface {
	Save(r io.Reader) (string, error)
	MaxBytes() int64
}

// MovieHandler serves /api/movies.
type MovieHandler struct {
	movies  *service.MovieService
	search  *service.SearchService
	users   *service.UserService
	posters PosterSaver
	logger  *slog.Logger
}

func NewMovieHandler(
	movies *service.MovieService,
	search *service.SearchService,
	users *service.UserService,
	posters PosterSaver,
	logger *slog.Logger,
) *MovieHandler {
	return &MovieHandler{movies: movies, search: search, users: users, posters: posters, logger: logger}
}

// movieRequest is the create/update body. Both camelCase and the legacy
// snake_case names are accepted.
type movieRequest struct {
	UserID          flexString `json:"userId"`
	UserIDSnake     flexString `json:"user_id"`
	Title           string     `json:"title"`
	Year            flexString `json:"year"`
	Genre           string     `json:"genre"`
	Runtime         string     `json:"runtime"`
	Director        string     `json:"director"`
	ExternalID      string     `json:"externalId"`
	ExternalIDSnake string     `json:"external_id"`
	Poster          string     `json:"poster"`
	PosterURL       string     `json:"posterUrl"`
	PosterURLSnake  string     `json:"poster_url"`
}

func (m movieRequest) input() service.MovieInput {
	return service.MovieInput{
		UserID:     first(string(m.UserID), string(m.UserIDSnake)),
		Title:      m.Title,
		Year:       string(m.Year),
		Genre:      m.Genre,
		Runtime:    m.Runtime,
		Director:   m.Director,
		ExternalID: first(m.ExternalID, m.ExternalIDSnake),
		Poster:     first(m.Poster, m.PosterURL, m.PosterURLSnake),
	}
}

// HandleList returns movies newest first.
//
// HTTP: GET /api/movies?userId=<id or username>
//
// With userId only that user's movies are listed and isFavorite reflects
// their favorites. Without it every movie is listed and isFavorite follows
// the session user, if any.
func (h *MovieHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, err := resolveUser(ctx, h.users, first(r.URL.Query().Get("userId"), r.URL.Query().Get("user_id")))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	viewer, err := resolveUser(ctx, h.users, actingUser(ctx, owner))
	if err != nil && !isNotFound(err) {
		writeError(w, r, h.logger, err)
		return
	}

	movies, err := h.movies.List(ctx, repository.MovieFilter{UserID: owner, ViewerID: viewer})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

// HandleSearch queries the lookup service.
//
// HTTP: GET /api/movies/search?title=<q>&userId=<id>
// Each result carries isAdded for the given (or session) user.
func (h *MovieHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	viewer, err := resolveUser(ctx, h.users, actingUser(ctx, q.Get("userId"), q.Get("user_id")))
	if err != nil && !isNotFound(err) {
		writeError(w, r, h.logger, err)
		return
	}

	results, err := h.search.Search(ctx, q.Get("title"), viewer)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// HandleCheckExists answers {"exists": bool}.
//
// HTTP: GET /api/movies/check-exists?title=<t>&userId=<id>
func (h *MovieHandler) HandleCheckExists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	userID, err := resolveUser(ctx, h.users, first(q.Get("userId"), q.Get("user_id")))
	if isNotFound(err) {
		// An unknown user has nothing saved.
		writeJSON(w, http.StatusOK, map[string]bool{"exists": false})
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	exists, err := h.movies.Exists(ctx, q.Get("title"), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// HandleGetByID returns one movie.
//
// HTTP: GET /api/movies/{id}?userId=<viewer>
func (h *MovieHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	viewer, err := resolveUser(ctx, h.users, actingUser(ctx, r.URL.Query().Get("userId")))
	if err != nil && !isNotFound(err) {
		writeError(w, r, h.logger, err)
		return
	}

	movie, err := h.movies.GetByID(ctx, chi.URLParam(r, "id"), viewer)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

// HandleCreate saves a movie.
//
// HTTP: POST /api/movies
// Body: JSON, or multipart/form-data with an optional "poster" image.
func (h *MovieHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, posterPath, err := h.parseMovieRequest(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// A bad body is rejected before the user is looked up.
	in, err := h.movies.Validate(req.input())
	if err != nil {
		h.movies.RemovePoster(posterPath)
		writeError(w, r, h.logger, err)
		return
	}
	in.UserID, err = resolveUser(ctx, h.users, actingUser(ctx, in.UserID))
	if err != nil {
		h.movies.RemovePoster(posterPath)
		writeError(w, r, h.logger, err)
		return
	}

	movie, err := h.movies.Create(ctx, in, posterPath)
	if err != nil {
		h.movies.RemovePoster(posterPath)
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, movie)
}

// HandleUpdate edits a movie. A new poster replaces the old one.
//
// HTTP: PUT /api/movies/{id}
func (h *MovieHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	req, posterPath, err := h.parseMovieRequest(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var newPoster *string
	if posterPath != "" {
		newPoster = &posterPath
	}

	movie, err := h.movies.Update(r.Context(), chi.URLParam(r, "id"), req.input(), newPoster)
	if err != nil {
		h.movies.RemovePoster(posterPath)
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, movie)
}

// HandleDelete removes a movie.
//
// HTTP: DELETE /api/movies/{id}
// A missing movie is 404, never a success.
func (h *MovieHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.movies.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Movie deleted successfully"})
}

// parseMovieRequest decodes JSON or multipart bodies. For multipart, an
// attached poster is stored and its public path returned; the caller must
// remove it if the request then fails.
func (h *MovieHandler) parseMovieRequest(w http.ResponseWriter, r *http.Request) (movieRequest, string, error) {
	var req movieRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return req, "", decodeJSON(r, &req)
	}

	// Room for the form fields on top of the image itself.
	limit := h.posters.MaxBytes() + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return req, "", apperror.ValidationFailed(poster.FormField, "upload is too large")
		}
		return req, "", apperror.ValidationFailed("", "invalid multipart form")
	}

	form := r.MultipartForm.Value
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := form[k]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
				return v[0]
			}
		}
		return ""
	}
	req = movieRequest{
		UserID:     flexString(get("userId", "user_id")),
		Title:      get("title"),
		Year:       flexString(get("year")),
		Genre:      get("genre"),
		Runtime:    get("runtime"),
		Director:   get("director"),
		ExternalID: get("externalId", "external_id"),
		Poster:     get("poster", "posterUrl", "poster_url"),
	}

	file, _, err := r.FormFile(poster.FormField)
	if errors.Is(err, http.ErrMissingFile) {
		return req, "", nil
	}
	if err != nil {
		return req, "", apperror.ValidationFailed(poster.FormField, "could not read poster upload")
	}
	defer file.Close()

	path, err := h.posters.Save(file)
	if err != nil {
		return req, "", err
	}
	return req, path, nil
}
