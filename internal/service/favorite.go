package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/moviecatalog/internal/events"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

// FavoriteService manages per-user favorite marks.
type FavoriteService struct {
	repo   repository.FavoriteRepository
	events events.Publisher
	logger *slog.Logger
}

func NewFavoriteService(repo repository.FavoriteRepository, publisher events.Publisher, logger *slog.Logger) *FavoriteService {
	return &FavoriteService{repo: repo, events: publisher, logger: logger}
}

func (s *FavoriteService) Check(ctx context.Context, movieID, userID string) (bool, error) {
	movieID, userID, err := pairIDs(movieID, userID)
	if err != nil {
		return false, err
	}
	return s.repo.IsFavorite(ctx, userID, movieID)
}

// Toggle flips the mark and returns the new state. Each call flips exactly
// once, even when calls for the same pair race.
func (s *FavoriteService) Toggle(ctx context.Context, movieID, userID string) (bool, error) {
	movieID, userID, err := pairIDs(movieID, userID)
	if err != nil {
		return false, err
	}

	state, err := s.repo.Toggle(ctx, userID, movieID)
	if err != nil {
		return false, fmt.Errorf("toggling favorite: %w", err)
	}

	s.logger.Info("favorite toggled", "movie_id", movieID, "user_id", userID, "is_favorite", state)
	s.emit(ctx, movieID, userID, state)
	return state, nil
}

// Set forces the mark to favorite. Setting the current value is a no-op.
func (s *FavoriteService) Set(ctx context.Context, movieID, userID string, favorite bool) error {
	movieID, userID, err := pairIDs(movieID, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Set(ctx, userID, movieID, favorite); err != nil {
		return fmt.Errorf("setting favorite: %w", err)
	}
	s.emit(ctx, movieID, userID, favorite)
	return nil
}

// ListForUser returns the user's favorites, most recently marked first.
func (s *FavoriteService) ListForUser(ctx context.Context, userID string) ([]model.FavoriteMovie, error) {
	userID, err := requireID("userId", userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *FavoriteService) emit(ctx context.Context, movieID, userID string, state bool) {
	publish(ctx, s.events, s.logger, events.Event{
		Type: events.FavoriteToggled, MovieID: movieID, UserID: userID, IsFavorite: &state,
	})
}

func pairIDs(movieID, userID string) (string, string, error) {
	movieID, err := requireID("movieId", movieID)
	if err != nil {
		return "", "", err
	}
	userID, err = requireID("userId", userID)
	if err != nil {
		return "", "", err
	}
	return movieID, userID, nil
}
