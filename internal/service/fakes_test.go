package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/events"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

// =========================================================================
// IN-MEMORY FAKES
// =========================================================================
//
// Hand-written fakes of the repository interfaces. They hold data in maps
// guarded by one mutex so the concurrency tests can hammer them.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu        sync.Mutex
	nextID    int
	users     map[string]*model.User
	movies    map[string]*model.Movie
	favorites map[[2]string]time.Time // {userID, movieID}

	findSavedCalls int
	failWith       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]*model.User{},
		movies:    map[string]*model.Movie{},
		favorites: map[[2]string]time.Time{},
	}
}

func (s *fakeStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

// ----- users -----

type fakeUserRepo struct{ *fakeStore }

func (r fakeUserRepo) FindOrCreate(_ context.Context, username string) (*model.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, false, r.failWith
	}
	for _, u := range r.users {
		if u.Username == username {
			c := *u
			return &c, false, nil
		}
	}
	u := &model.User{ID: r.id("user"), Username: username, CreatedAt: time.Now()}
	r.users[u.ID] = u
	c := *u
	return &c, true, nil
}

func (r fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (r fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, apperror.NotFoundMessage("user not found")
}

// ----- movies -----

type fakeMovieRepo struct{ *fakeStore }

func (r fakeMovieRepo) Create(_ context.Context, m *model.Movie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	m.ID = r.id("movie")
	m.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	m.UpdatedAt = m.CreatedAt
	c := *m
	r.movies[m.ID] = &c
	return nil
}

func (r fakeMovieRepo) withFavorite(m *model.Movie, viewerID string) model.Movie {
	c := *m
	_, c.IsFavorite = r.favorites[[2]string{viewerID, m.ID}]
	return c
}

func (r fakeMovieRepo) GetByID(_ context.Context, id, viewerID string) (*model.Movie, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.movies[id]
	if !ok {
		return nil, apperror.NotFound("movie", id)
	}
	c := r.withFavorite(m, viewerID)
	return &c, nil
}

func (r fakeMovieRepo) List(_ context.Context, f repository.MovieFilter) ([]model.Movie, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Movie, 0)
	for _, m := range r.movies {
		if f.UserID == "" || m.UserID == f.UserID {
			out = append(out, r.withFavorite(m, f.ViewerID))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r fakeMovieRepo) Update(_ context.Context, m *model.Movie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.movies[m.ID]; !ok {
		return apperror.NotFound("movie", m.ID)
	}
	c := *m
	r.movies[m.ID] = &c
	return nil
}

func (r fakeMovieRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.movies[id]; !ok {
		return apperror.NotFound("movie", id)
	}
	delete(r.movies, id)
	for k := range r.favorites {
		if k[1] == id {
			delete(r.favorites, k)
		}
	}
	return nil
}

func (r fakeMovieRepo) ExistsByTitle(_ context.Context, title, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movies {
		if repository.TitleKey(m.Title) == repository.TitleKey(title) && (userID == "" || m.UserID == userID) {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeMovieRepo) FindSaved(_ context.Context, userID string, titles, ids []string) ([]repository.SavedKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findSavedCalls++
	want := map[string]bool{}
	for _, t := range titles {
		want["t:"+repository.TitleKey(t)] = true
	}
	for _, id := range ids {
		want["i:"+id] = true
	}
	var out []repository.SavedKey
	for _, m := range r.movies {
		if userID != "" && m.UserID != userID {
			continue
		}
		key := repository.TitleKey(m.Title)
		if want["t:"+key] || (m.ExternalID != "" && want["i:"+m.ExternalID]) {
			out = append(out, repository.SavedKey{TitleKey: key, Year: m.Year, ExternalID: m.ExternalID})
		}
	}
	return out, nil
}

// ----- favorites -----

type fakeFavoriteRepo struct{ *fakeStore }

func (r fakeFavoriteRepo) check(userID, movieID string) error {
	if _, ok := r.movies[movieID]; !ok {
		return apperror.NotFound("movie", movieID)
	}
	if _, ok := r.users[userID]; !ok {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func (r fakeFavoriteRepo) IsFavorite(_ context.Context, userID, movieID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.favorites[[2]string{userID, movieID}]
	return ok, nil
}

func (r fakeFavoriteRepo) Toggle(_ context.Context, userID, movieID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(userID, movieID); err != nil {
		return false, err
	}
	k := [2]string{userID, movieID}
	if _, ok := r.favorites[k]; ok {
		delete(r.favorites, k)
		return false, nil
	}
	r.favorites[k] = time.Now()
	return true, nil
}

func (r fakeFavoriteRepo) Set(_ context.Context, userID, movieID string, fav bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(userID, movieID); err != nil {
		return err
	}
	k := [2]string{userID, movieID}
	if fav {
		if _, ok := r.favorites[k]; !ok {
			r.favorites[k] = time.Now()
		}
	} else {
		delete(r.favorites, k)
	}
	return nil
}

func (r fakeFavoriteRepo) ListByUser(_ context.Context, userID string) ([]model.FavoriteMovie, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.FavoriteMovie, 0)
	for k, at := range r.favorites {
		if k[0] != userID {
			continue
		}
		m := *r.movies[k[1]]
		m.IsFavorite = true
		out = append(out, model.FavoriteMovie{Movie: m, FavoritedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FavoritedAt.After(out[j].FavoritedAt) })
	return out, nil
}

// ----- collaborators -----

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fakePosters struct {
	removed []string
}

func (f *fakePosters) Remove(path string) error {
	f.removed = append(f.removed, path)
	return nil
}
