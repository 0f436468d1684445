// Package lookup talks to the external movie database (OMDb).
//
// Errors follow the apperror taxonomy: "no such movie" answers become
// apperror.ErrNotFound, everything else that goes wrong upstream becomes
// apperror.ErrUpstream.
package lookup

import (
	"context"

	"github.com/sakif/moviecatalog/internal/model"
)

// Client is the lookup collaborator used by the search service.
type Client interface {
	// Search returns candidates in the upstream ranking order. Only
	// ExternalID, Title, Year and Poster are filled in.
	Search(ctx context.Context, title string) ([]model.SearchResult, error)
	// Details returns the full record for one external id.
	Details(ctx context.Context, externalID string) (*model.SearchResult, error)
}
