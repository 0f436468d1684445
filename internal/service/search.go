package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/lookup"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

// SearchService runs lookups and marks results the viewer already saved.
type SearchService struct {
	lookup      lookup.Client
	movies      repository.MovieRepository
	concurrency int
	logger      *slog.Logger
}

func NewSearchService(client lookup.Client, movies repository.MovieRepository, concurrency int, logger *slog.Logger) *SearchService {
	return &SearchService{lookup: client, movies: movies, concurrency: concurrency, logger: logger}
}

// Search looks title up with details and sets IsAdded on every result the
// user has saved (any user when userID is ""). Annotation costs one query
// no matter how many results there are.
func (s *SearchService) Search(ctx context.Context, title, userID string) ([]model.SearchResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}

	results, err := lookup.SearchWithDetails(ctx, s.lookup, title, s.concurrency)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindUpstream {
			s.logger.Error("movie lookup failed", "title", title, "error", err)
		}
		return nil, err
	}

	titles := make([]string, 0, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		titles = append(titles, r.Title)
		if r.ExternalID != "" {
			ids = append(ids, r.ExternalID)
		}
	}

	saved, err := s.movies.FindSaved(ctx, strings.TrimSpace(userID), titles, ids)
	if err != nil {
		return nil, fmt.Errorf("annotating search results: %w", err)
	}

	for i := range results {
		results[i].IsAdded = matchesSaved(results[i], saved)
	}
	return results, nil
}

// matchesSaved reports whether r is one of the saved movies. External ids
// decide when both sides carry one. Otherwise titles must match, and years
// too when both are known, mirroring the duplicate rule in MovieService.Create.
func matchesSaved(r model.SearchResult, saved []repository.SavedKey) bool {
	key := repository.TitleKey(r.Title)
	for _, k := range saved {
		if r.ExternalID != "" && k.ExternalID != "" {
			if r.ExternalID == k.ExternalID {
				return true
			}
			continue
		}
		if k.TitleKey != key {
			continue
		}
		if r.Year == "" || k.Year == "" || r.Year == k.Year {
			return true
		}
	}
	return false
}
