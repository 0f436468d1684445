package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sakif/moviecatalog/internal/config"
	"github.com/sakif/moviecatalog/internal/handler"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// omdbStub mimics the two OMDb calls the server makes and counts searches.
type omdbStub struct {
	*httptest.Server
	searches atomic.Int32
}

func newOMDbStub(t *testing.T) *omdbStub {
	t.Helper()
	stub := &omdbStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case q.Get("s") != "":
			stub.searches.Add(1)
			io.WriteString(w, `{"Search":[
				{"Title":"The Matrix","Year":"1999","imdbID":"tt0133093","Type":"movie","Poster":"https://img/matrix.jpg"},
				{"Title":"The Matrix Reloaded","Year":"2003","imdbID":"tt0234215","Type":"movie","Poster":"N/A"}
			],"totalResults":"2","Response":"True"}`)
		case q.Get("i") == "tt0133093":
			io.WriteString(w, `{"Title":"The Matrix","Year":"1999","Runtime":"136 min","Genre":"Action, Sci-Fi",
				"Director":"Lana Wachowski, Lilly Wachowski","Poster":"https://img/matrix.jpg","imdbID":"tt0133093","Response":"True"}`)
		case q.Get("i") == "tt0234215":
			io.WriteString(w, `{"Title":"The Matrix Reloaded","Year":"2003","Runtime":"138 min","Genre":"Action, Sci-Fi",
				"Director":"N/A","Poster":"N/A","imdbID":"tt0234215","Response":"True"}`)
		default:
			io.WriteString(w, `{"Response":"False","Error":"Incorrect IMDb ID."}`)
		}
	}))
	t.Cleanup(stub.Close)
	return stub
}

func testConfig(t *testing.T, omdbURL string) *config.Config {
	return &config.Config{
		Env:            "development",
		Port:           "0",
		DBDriver:       config.DriverSQLite,
		DBPath:         ":memory:",
		OMDbAPIKey:     "test-key",
		OMDbBaseURL:    omdbURL,
		OMDbTimeout:    2 * time.Second,
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 1 << 20,
		SearchCacheTTL: time.Minute,
		CORSOrigins:    []string{"*"},
	}
}

type client struct {
	t    *testing.T
	base string
}

func startServer(t *testing.T, cfg *config.Config) *client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := server.New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &client{t: t, base: ts.URL}
}

// do sends a request and decodes a JSON response into out when non-nil.
func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestMatrixScenario(t *testing.T) {
	stub := newOMDbStub(t)
	c := startServer(t, testConfig(t, stub.URL))

	var user struct {
		ID    string `json:"id"`
		IsNew bool   `json:"isNew"`
	}
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/users", map[string]string{"username": "neo"}, &user))
	require.True(t, user.IsNew)

	var results []model.SearchResult
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/movies/search?title=Matrix&userId="+user.ID, nil, &results))
	require.Len(t, results, 2)
	assert.Equal(t, "The Matrix", results[0].Title)
	assert.Equal(t, "136 min", results[0].Runtime)
	assert.False(t, results[0].IsAdded)

	pick := results[0]
	var created model.Movie
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/movies", map[string]string{
		"userId":     user.ID,
		"title":      pick.Title,
		"year":       pick.Year,
		"genre":      pick.Genre,
		"runtime":    pick.Runtime,
		"director":   pick.Director,
		"externalId": pick.ExternalID,
		"poster":     pick.Poster,
	}, &created))
	assert.Equal(t, "tt0133093", created.ExternalID)

	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/movies/search?title=Matrix&userId=neo", nil, &results))
	assert.True(t, results[0].IsAdded)
	assert.False(t, results[1].IsAdded)

	var exists map[string]bool
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/movies/check-exists?title=the%20matrix&userId="+user.ID, nil, &exists))
	assert.True(t, exists["exists"])

	var patched model.Movie
	require.Equal(t, http.StatusOK, c.do(http.MethodPatch, "/api/movies/"+created.ID+"/favorite", map[string]string{"username": "neo"}, &patched))
	assert.True(t, patched.IsFavorite)

	var favs []model.FavoriteMovie
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/movies/favorites/"+user.ID, nil, &favs))
	require.Len(t, favs, 1)
	assert.Equal(t, created.ID, favs[0].ID)

	var toggled struct {
		IsFavorite bool `json:"isFavorite"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/movies/favorites/toggle", map[string]string{"movieId": created.ID, "userId": user.ID}, &toggled))
	assert.False(t, toggled.IsFavorite)

	require.Equal(t, http.StatusOK, c.do(http.MethodDelete, "/api/movies/"+created.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodDelete, "/api/movies/"+created.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/movies/"+created.ID, nil, nil))

	var list []model.Movie
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/movies?userId="+user.ID, nil, &list))
	assert.Empty(t, list)
}

func TestPosterUploadIsServed(t *testing.T) {
	stub := newOMDbStub(t)
	c := startServer(t, testConfig(t, stub.URL))

	var user model.User
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/users", map[string]string{"username": "ripley"}, &user))

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 4, 4))))
	want := img.Bytes()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("user_id", user.ID))
	require.NoError(t, mw.WriteField("title", "Alien"))
	require.NoError(t, mw.WriteField("year", "1979"))
	part, err := mw.CreateFormFile("poster", "alien.png")
	require.NoError(t, err)
	_, err = part.Write(want)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(c.base+"/api/movies", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created model.Movie
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.True(t, strings.HasPrefix(created.PosterLocal, "/uploads/posters/"), created.PosterLocal)

	got, err := http.Get(c.base + created.PosterLocal)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "image/png", got.Header.Get("Content-Type"))

	served, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, want, served)

	for _, dir := range []string{"/uploads/", "/uploads/posters/", "/uploads/posters"} {
		resp, err := http.Get(c.base + dir)
		require.NoError(t, err)
		listing, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, dir)
		assert.NotContains(t, string(listing), "movie-poster-", dir)
	}
}

func TestSearchIsCachedInRedis(t *testing.T) {
	stub := newOMDbStub(t)
	mr := miniredis.RunT(t)

	cfg := testConfig(t, stub.URL)
	cfg.RedisAddr = mr.Addr()
	c := startServer(t, cfg)

	for n := 0; n < 3; n++ {
		var results []model.SearchResult
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/movies/search?title=Matrix", nil, &results))
		require.Len(t, results, 2)
	}
	assert.Equal(t, int32(1), stub.searches.Load())
	assert.NotEmpty(t, mr.Keys())
}

func TestSearchWithoutAPIKey(t *testing.T) {
	stub := newOMDbStub(t)
	cfg := testConfig(t, stub.URL)
	cfg.OMDbAPIKey = ""
	c := startServer(t, cfg)

	var body struct {
		Error string `json:"error"`
	}
	assert.Equal(t, http.StatusInternalServerError, c.do(http.MethodGet, "/api/movies/search?title=Matrix", nil, &body))
	assert.Equal(t, "upstream_unavailable", body.Error)
	assert.Equal(t, int32(0), stub.searches.Load())
}

func TestSessionToken(t *testing.T) {
	stub := newOMDbStub(t)
	cfg := testConfig(t, stub.URL)
	cfg.JWTSecret = "a-test-secret-of-some-length"
	c := startServer(t, cfg)

	var user struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/users", map[string]string{"username": "neo"}, &user))
	require.NotEmpty(t, user.Token)

	// No userId in the body: the bearer token identifies the owner.
	b, _ := json.Marshal(map[string]string{"title": "Heat"})
	req, err := http.NewRequest(http.MethodPost, c.base+"/api/movies", bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+user.Token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var m model.Movie
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, user.ID, m.UserID)

	// A bearer token that does not verify is refused rather than ignored.
	req, err = http.NewRequest(http.MethodGet, c.base+"/api/movies", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	bad, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, bad.StatusCode)

	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(bad.Body).Decode(&body))
	assert.Equal(t, "unauthorized", string(body.Error))
}

func TestHealthz(t *testing.T) {
	stub := newOMDbStub(t)
	c := startServer(t, testConfig(t, stub.URL))

	var body map[string]string
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/healthz", nil, &body))
	assert.Equal(t, "ok", body["status"])
}
