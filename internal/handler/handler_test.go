package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/events"
	"github.com/sakif/moviecatalog/internal/handler"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/poster"
	"github.com/sakif/moviecatalog/internal/repository/sqlite"
	"github.com/sakif/moviecatalog/internal/service"
	"github.com/stretchr/testify/require"
)

// stubLookup serves a fixed result set and never calls out.
type stubLookup struct {
	results []model.SearchResult
}

func (s *stubLookup) Search(_ context.Context, _ string) ([]model.SearchResult, error) {
	return s.results, nil
}

func (s *stubLookup) Details(_ context.Context, id string) (*model.SearchResult, error) {
	for _, r := range s.results {
		if r.ExternalID == id {
			return &r, nil
		}
	}
	return nil, apperror.NotFound("title", id)
}

type testEnv struct {
	db        *sqlite.DB
	users     *service.UserService
	movies    *service.MovieService
	favorites *service.FavoriteService
	movieH    *handler.MovieHandler
	favH      *handler.FavoriteHandler
	userH     *handler.UserHandler
	posters   *poster.DiskStore
	lookup    *stubLookup
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	posters, err := poster.NewDiskStore(t.TempDir(), poster.DefaultMaxBytes)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pub := events.NopPublisher{}
	stub := &stubLookup{}

	users := service.NewUserService(db.Users(), nil, logger)
	movies := service.NewMovieService(db.Movies(), db.Users(), posters, pub, logger)
	favorites := service.NewFavoriteService(db.Favorites(), pub, logger)
	search := service.NewSearchService(stub, db.Movies(), 2, logger)

	return &testEnv{
		db:        db,
		users:     users,
		movies:    movies,
		favorites: favorites,
		movieH:    handler.NewMovieHandler(movies, search, users, posters, logger),
		favH:      handler.NewFavoriteHandler(favorites, movies, users, logger),
		userH:     handler.NewUserHandler(users, false, logger),
		posters:   posters,
		lookup:    stub,
	}
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	t.Helper()
	u, _, err := e.users.FindOrCreate(context.Background(), name)
	require.NoError(t, err)
	return u
}

func (e *testEnv) movie(t *testing.T, userID, title string) *model.Movie {
	t.Helper()
	m, err := e.movies.Create(context.Background(), service.MovieInput{UserID: userID, Title: title, Year: "1999"}, "")
	require.NoError(t, err)
	return m
}

// jsonRequest builds a request with a JSON body and optional chi URL params
// given as key, value pairs.
func jsonRequest(method, target string, body any, params ...string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return withParams(req, params...)
}

func withParams(req *http.Request, params ...string) *http.Request {
	if len(params) == 0 {
		return req
	}
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}
