package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/sakif/moviecatalog/internal/config"
	"github.com/sakif/moviecatalog/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startAPI(t *testing.T) string {
	t.Helper()
	omdb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("s") != "" {
			io.WriteString(w, `{"Search":[{"Title":"Alien","Year":"1979","imdbID":"tt0078748","Poster":"N/A"}],"Response":"True"}`)
			return
		}
		io.WriteString(w, `{"Title":"Alien","Year":"1979","Runtime":"117 min","Director":"Ridley Scott","imdbID":"tt0078748","Response":"True"}`)
	}))
	t.Cleanup(omdb.Close)

	cfg := &config.Config{
		Env:            "development",
		DBDriver:       config.DriverSQLite,
		DBPath:         ":memory:",
		OMDbAPIKey:     "k",
		OMDbBaseURL:    omdb.URL,
		OMDbTimeout:    time.Second,
		UploadDir:      t.TempDir(),
		MaxUploadBytes: 1 << 20,
	}
	s, err := server.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	api := httptest.NewServer(s.Handler())
	t.Cleanup(api.Close)
	return api.URL
}

func run(t *testing.T, base, statePath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(append([]string{"--server", base, "--state", statePath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestMoviectl(t *testing.T) {
	base := startAPI(t)
	statePath := filepath.Join(t.TempDir(), "moviectl.json")

	_, err := run(t, base, statePath, "list")
	require.ErrorContains(t, err, "not logged in")

	out, err := run(t, base, statePath, "login", "ripley")
	require.NoError(t, err)
	assert.Contains(t, out, "User created successfully")

	out, err = run(t, base, statePath, "search", "alien")
	require.NoError(t, err)
	assert.Regexp(t, `1\s+Alien\s+1979\s+117 min`, out)

	out, err = run(t, base, statePath, "add", "1")
	require.NoError(t, err)
	m := regexp.MustCompile(`as (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	movieID := m[1]

	_, err = run(t, base, statePath, "add", "1")
	assert.Error(t, err, "already saved")

	out, err = run(t, base, statePath, "fav", movieID)
	require.NoError(t, err)
	assert.Contains(t, out, "★ favorite")

	out, err = run(t, base, statePath, "list", "--favorites")
	require.NoError(t, err)
	assert.Contains(t, out, movieID)
	assert.Contains(t, out, "Ridley Scott")

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	var f stateFile
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Contains(t, string(f.State), movieID)

	out, err = run(t, base, statePath, "rm", movieID)
	require.NoError(t, err)
	assert.Contains(t, out, "Movie deleted")

	out, err = run(t, base, statePath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No movies yet")

	_, err = run(t, base, statePath, "logout")
	require.NoError(t, err)
	_, err = run(t, base, statePath, "list")
	assert.ErrorContains(t, err, "not logged in")
}
