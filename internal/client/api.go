// Package client is the typed Go client of the movie catalog API, plus an
// explicit application State built on top of it for interactive front ends
// such as cmd/moviectl.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/moviecatalog/internal/model"
)

// DefaultTimeout bounds every request, including reading the response.
const DefaultTimeout = 10 * time.Second

// KindTimeout is the Error.Kind of a request that hit the client timeout.
// Every other kind comes from the server's "error" field.
const KindTimeout = "timeout"

// Error is a failed API call. Kind is machine readable ("not_found",
// "validation_error", ...) and Message is fit for people.
type Error struct {
	Status  int
	Kind    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind string) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// API talks to one server. It is safe for concurrent use, except SetToken
// which must not race with requests.
type API struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   string
}

type Option func(*API)

func WithTimeout(d time.Duration) Option   { return func(a *API) { a.timeout = d } }
func WithHTTPClient(c *http.Client) Option { return func(a *API) { a.http = c } }
func WithToken(token string) Option        { return func(a *API) { a.token = token } }

func New(baseURL string, opts ...Option) *API {
	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetToken sets the bearer token sent with every request; "" sends none.
func (a *API) SetToken(token string) { a.token = token }

// LoginResult is the POST /api/users response.
type LoginResult struct {
	model.User
	IsNew   bool   `json:"isNew"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// MovieRequest is the body of create and update calls.
type MovieRequest struct {
	UserID     string `json:"userId,omitempty"`
	Title      string `json:"title"`
	Year       string `json:"year,omitempty"`
	Genre      string `json:"genre,omitempty"`
	Runtime    string `json:"runtime,omitempty"`
	Director   string `json:"director,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	Poster     string `json:"poster,omitempty"`
}

// FromSearch prepares a create request for a lookup result.
func FromSearch(r model.SearchResult, userID string) MovieRequest {
	return MovieRequest{
		UserID:     userID,
		Title:      r.Title,
		Year:       r.Year,
		Genre:      r.Genre,
		Runtime:    r.Runtime,
		Director:   r.Director,
		ExternalID: r.ExternalID,
		Poster:     r.Poster,
	}
}

// Login never sends the current token, so an expired session can always
// log in again.
func (a *API) Login(ctx context.Context, username string) (*LoginResult, error) {
	anon := *a
	anon.token = ""
	var out LoginResult
	err := anon.doJSON(ctx, http.MethodPost, "/api/users", nil, map[string]string{"username": username}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMovies lists userID's movies, or every movie when userID is "".
func (a *API) ListMovies(ctx context.Context, userID string) ([]model.Movie, error) {
	var out []model.Movie
	err := a.doJSON(ctx, http.MethodGet, "/api/movies", query("userId", userID), nil, &out)
	return out, err
}

func (a *API) GetMovie(ctx context.Context, id, viewerID string) (*model.Movie, error) {
	var out model.Movie
	if err := a.doJSON(ctx, http.MethodGet, "/api/movies/"+url.PathEscape(id), query("userId", viewerID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) Search(ctx context.Context, title, userID string) ([]model.SearchResult, error) {
	var out []model.SearchResult
	err := a.doJSON(ctx, http.MethodGet, "/api/movies/search", query("title", title, "userId", userID), nil, &out)
	return out, err
}

func (a *API) CheckExists(ctx context.Context, title, userID string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := a.doJSON(ctx, http.MethodGet, "/api/movies/check-exists", query("title", title, "userId", userID), nil, &out)
	return out.Exists, err
}

func (a *API) CreateMovie(ctx context.Context, in MovieRequest) (*model.Movie, error) {
	var out model.Movie
	if err := a.doJSON(ctx, http.MethodPost, "/api/movies", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMovieWithPoster uploads an image alongside the movie fields.
func (a *API) CreateMovieWithPoster(ctx context.Context, in MovieRequest, filename string, image io.Reader) (*model.Movie, error) {
	return a.sendMultipart(ctx, http.MethodPost, "/api/movies", in, filename, image)
}

func (a *API) UpdateMovie(ctx context.Context, id string, in MovieRequest) (*model.Movie, error) {
	var out model.Movie
	if err := a.doJSON(ctx, http.MethodPut, "/api/movies/"+url.PathEscape(id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateMovieWithPoster replaces the movie's fields and its uploaded poster.
func (a *API) UpdateMovieWithPoster(ctx context.Context, id string, in MovieRequest, filename string, image io.Reader) (*model.Movie, error) {
	return a.sendMultipart(ctx, http.MethodPut, "/api/movies/"+url.PathEscape(id), in, filename, image)
}

func (a *API) DeleteMovie(ctx context.Context, id string) error {
	return a.doJSON(ctx, http.MethodDelete, "/api/movies/"+url.PathEscape(id), nil, nil, nil)
}

// ToggleFavorite flips the favorite and returns the new state.
func (a *API) ToggleFavorite(ctx context.Context, movieID, userID string) (bool, error) {
	var out struct {
		IsFavorite bool `json:"isFavorite"`
	}
	body := map[string]string{"movieId": movieID, "userId": userID}
	err := a.doJSON(ctx, http.MethodPost, "/api/movies/favorites/toggle", nil, body, &out)
	return out.IsFavorite, err
}

// SetFavorite sets the favorite to an explicit state and returns the movie
// as userID sees it.
func (a *API) SetFavorite(ctx context.Context, movieID, userID string, favorite bool) (*model.Movie, error) {
	var out model.Movie
	body := map[string]any{"isFavorite": favorite, "userId": userID}
	if err := a.doJSON(ctx, http.MethodPatch, "/api/movies/"+url.PathEscape(movieID)+"/favorite", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) CheckFavorite(ctx context.Context, movieID, userID string) (bool, error) {
	var out struct {
		IsFavorite bool `json:"isFavorite"`
	}
	err := a.doJSON(ctx, http.MethodGet, "/api/movies/favorites/check", query("movieId", movieID, "userId", userID), nil, &out)
	return out.IsFavorite, err
}

func (a *API) ListFavorites(ctx context.Context, userID string) ([]model.FavoriteMovie, error) {
	var out []model.FavoriteMovie
	err := a.doJSON(ctx, http.MethodGet, "/api/movies/favorites/"+url.PathEscape(userID), nil, nil, &out)
	return out, err
}

// query builds url.Values from key, value pairs, skipping empty values.
func query(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	return q
}

func (a *API) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	return a.do(ctx, method, path, q, body, "application/json", out)
}

func (a *API) sendMultipart(ctx context.Context, method, path string, in MovieRequest, filename string, image io.Reader) (*model.Movie, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"userId", in.UserID},
		{"title", in.Title},
		{"year", in.Year},
		{"genre", in.Genre},
		{"runtime", in.Runtime},
		{"director", in.Director},
		{"externalId", in.ExternalID},
		{"posterUrl", in.Poster},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("client: encoding form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("poster", filename)
	if err != nil {
		return nil, fmt.Errorf("client: encoding form: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("client: reading poster: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("client: encoding form: %w", err)
	}

	var out model.Movie
	if err := a.do(ctx, method, path, nil, &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do runs one request under the client timeout. Non-2xx responses become
// *Error; so does hitting the timeout.
func (a *API) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	u := a.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return a.transportError(ctx, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return a.transportError(ctx, method, path, err)
		}
		return fmt.Errorf("client: decoding %s %s: %w", method, path, err)
	}
	return nil
}

func (a *API) transportError(ctx context.Context, method, path string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{
			Status:  http.StatusRequestTimeout,
			Kind:    KindTimeout,
			Message: fmt.Sprintf("%s %s timed out after %s", method, path, a.timeout),
		}
	}
	return fmt.Errorf("client: %s %s: %w", method, path, err)
}

func decodeError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		e.Kind, e.Message, e.Field = body.Error, body.Message, body.Field
		return e
	}

	e.Kind = "http_" + strconv.Itoa(resp.StatusCode)
	e.Message = strings.TrimSpace(string(raw))
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
