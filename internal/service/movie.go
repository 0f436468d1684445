package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/events"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

const (
	MaxTitleLength    = 200
	MaxGenreLength    = 100
	MaxDirectorLength = 100
	MaxRuntimeLength  = 50
	MinYear           = 1900
)

// yearPattern accepts "1999" and the series ranges the lookup service
// reports ("2010–2014", "2019–"). Only the leading year is range-checked.
var yearPattern = regexp.MustCompile(`^(\d{4})(?:\s*[-–]\s*(?:\d{4})?)?$`)

// MovieInput is the editable part of a movie.
type MovieInput struct {
	UserID     string
	Title      string
	Year       string
	Genre      string
	Runtime    string
	Director   string
	ExternalID string
	Poster     string // remote poster URL
}

// PosterStore removes a stored poster by its public path.
type PosterStore interface {
	Remove(publicPath string) error
}

type MovieService struct {
	movies  repository.MovieRepository
	users   repository.UserRepository
	posters PosterStore
	events  events.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewMovieService(
	movies repository.MovieRepository,
	users repository.UserRepository,
	posters PosterStore,
	publisher events.Publisher,
	logger *slog.Logger,
) *MovieService {
	return &MovieService{
		movies:  movies,
		users:   users,
		posters: posters,
		events:  publisher,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *MovieService) List(ctx context.Context, filter repository.MovieFilter) ([]model.Movie, error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	filter.ViewerID = strings.TrimSpace(filter.ViewerID)

	movies, err := s.movies.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list movies", "error", err)
		return nil, fmt.Errorf("listing movies: %w", err)
	}
	return movies, nil
}

func (s *MovieService) GetByID(ctx context.Context, id, viewerID string) (*model.Movie, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	return s.movies.GetByID(ctx, id, strings.TrimSpace(viewerID))
}

// Create validates in and saves a new movie for in.UserID. posterLocal is
// the public path of an already stored upload, or "".
//
// The same user cannot save the same title (case-insensitive) for the same
// year twice.
func (s *MovieService) Create(ctx context.Context, in MovieInput, posterLocal string) (*model.Movie, error) {
	in, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	userID, err := requireID("userId", in.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	saved, err := s.movies.FindSaved(ctx, userID, []string{in.Title}, nil)
	if err != nil {
		return nil, fmt.Errorf("checking duplicates: %w", err)
	}
	key := repository.TitleKey(in.Title)
	for _, k := range saved {
		if k.TitleKey == key && k.Year == in.Year {
			return nil, apperror.Conflict(
				fmt.Sprintf("%q (%s) is already in your collection", in.Title, in.Year))
		}
	}

	movie := &model.Movie{
		UserID:      userID,
		Title:       in.Title,
		Year:        in.Year,
		Genre:       in.Genre,
		Runtime:     in.Runtime,
		Director:    in.Director,
		ExternalID:  in.ExternalID,
		Poster:      in.Poster,
		PosterLocal: posterLocal,
	}
	if err := s.movies.Create(ctx, movie); err != nil {
		s.logger.Error("failed to create movie", "title", in.Title, "error", err)
		return nil, fmt.Errorf("creating movie: %w", err)
	}

	s.logger.Info("movie created", "id", movie.ID, "user_id", userID, "title", movie.Title)
	publish(ctx, s.events, s.logger, events.Event{
		Type: events.MovieCreated, MovieID: movie.ID, UserID: userID, Title: movie.Title,
	})
	return movie, nil
}

// Update replaces title, year, genre, runtime and director. The local
// poster changes only when posterLocal is non-nil; the replaced file is
// deleted once the row is saved.
func (s *MovieService) Update(ctx context.Context, id string, in MovieInput, posterLocal *string) (*model.Movie, error) {
	id, err := requireID("id", id)
	if err != nil {
		return nil, err
	}
	in, err = s.validate(in)
	if err != nil {
		return nil, err
	}

	movie, err := s.movies.GetByID(ctx, id, "")
	if err != nil {
		return nil, err
	}

	oldPoster := movie.PosterLocal
	movie.Title = in.Title
	movie.Year = in.Year
	movie.Genre = in.Genre
	movie.Runtime = in.Runtime
	movie.Director = in.Director
	if in.Poster != "" {
		movie.Poster = in.Poster
	}
	if posterLocal != nil {
		movie.PosterLocal = *posterLocal
	}

	if err := s.movies.Update(ctx, movie); err != nil {
		return nil, fmt.Errorf("updating movie: %w", err)
	}

	if posterLocal != nil && oldPoster != "" && oldPoster != movie.PosterLocal {
		s.removePoster(oldPoster)
	}

	s.logger.Info("movie updated", "id", movie.ID)
	publish(ctx, s.events, s.logger, events.Event{
		Type: events.MovieUpdated, MovieID: movie.ID, UserID: movie.UserID, Title: movie.Title,
	})
	return movie, nil
}

// Delete removes the movie, its favorites and its uploaded poster.
func (s *MovieService) Delete(ctx context.Context, id string) error {
	id, err := requireID("id", id)
	if err != nil {
		return err
	}

	movie, err := s.movies.GetByID(ctx, id, "")
	if err != nil {
		return err
	}
	if err := s.movies.Delete(ctx, id); err != nil {
		return err
	}

	s.removePoster(movie.PosterLocal)

	s.logger.Info("movie deleted", "id", id)
	publish(ctx, s.events, s.logger, events.Event{
		Type: events.MovieDeleted, MovieID: id, UserID: movie.UserID, Title: movie.Title,
	})
	return nil
}

// Exists reports whether title is saved, by userID when non-empty.
func (s *MovieService) Exists(ctx context.Context, title, userID string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, apperror.ValidationFailed("title", "title is required")
	}
	return s.movies.ExistsByTitle(ctx, title, strings.TrimSpace(userID))
}

// RemovePoster discards an upload whose movie was never saved.
func (s *MovieService) RemovePoster(publicPath string) {
	s.removePoster(publicPath)
}

func (s *MovieService) removePoster(publicPath string) {
	if publicPath == "" || s.posters == nil {
		return
	}
	if err := s.posters.Remove(publicPath); err != nil {
		s.logger.Warn("failed to remove poster", "path", publicPath, "error", err)
	}
}

// Validate trims every field of in and checks it without touching storage.
// Create and Update apply the same rules.
func (s *MovieService) Validate(in MovieInput) (MovieInput, error) {
	return s.validate(in)
}

// validate trims every field and enforces length and year rules.
func (s *MovieService) validate(in MovieInput) (MovieInput, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Title = strings.TrimSpace(in.Title)
	in.Year = strings.TrimSpace(in.Year)
	in.Genre = strings.TrimSpace(in.Genre)
	in.Runtime = strings.TrimSpace(in.Runtime)
	in.Director = strings.TrimSpace(in.Director)
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Poster = strings.TrimSpace(in.Poster)

	if in.Title == "" {
		return in, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return in, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}

	if in.Year != "" {
		m := yearPattern.FindStringSubmatch(in.Year)
		if m == nil {
			return in, apperror.ValidationFailed("year", "year must be a four-digit year")
		}
		year, _ := strconv.Atoi(m[1])
		maxYear := s.now().Year() + 1
		if year < MinYear || year > maxYear {
			return in, apperror.ValidationFailed("year",
				fmt.Sprintf("year must be between %d and %d", MinYear, maxYear))
		}
	}

	limits := []struct {
		field, value string
		max          int
	}{
		{"genre", in.Genre, MaxGenreLength},
		{"director", in.Director, MaxDirectorLength},
		{"runtime", in.Runtime, MaxRuntimeLength},
	}
	for _, l := range limits {
		if utf8.RuneCountInString(l.value) > l.max {
			return in, apperror.ValidationFailed(l.field,
				fmt.Sprintf("%s must be %d characters or less", l.field, l.max))
		}
	}

	return in, nil
}
