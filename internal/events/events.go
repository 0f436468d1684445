// Package events publishes catalog changes for downstream consumers
// (recommendation jobs, audit logs). Publishing is best effort: callers log
// failures and carry on.
package events

import (
	"context"
	"time"
)

type Type string

const (
	MovieCreated    Type = "movie.created"
	MovieUpdated    Type = "movie.updated"
	MovieDeleted    Type = "movie.deleted"
	FavoriteToggled Type = "favorite.toggled"
)

// Event is the JSON message body.
type Event struct {
	Type       Type      `json:"type"`
	MovieID    string    `json:"movieId"`
	UserID     string    `json:"userId,omitempty"`
	Title      string    `json:"title,omitempty"`
	IsFavorite *bool     `json:"isFavorite,omitempty"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
