// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services take repository interfaces, never a concrete store, so the same
// code runs on SQLite, Postgres, or the in-memory fakes used in tests.
// Errors returned from here are apperror values; callers map them to
// transport status codes.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/events"
)

// publish sends e and logs (never returns) a failure.
func publish(ctx context.Context, p events.Publisher, logger *slog.Logger, e events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("event publish failed", "type", e.Type, "movie_id", e.MovieID, "error", err)
	}
}

// requireID trims id and rejects an empty value as a validation error on field.
func requireID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	return id, nil
}
