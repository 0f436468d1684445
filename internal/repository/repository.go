// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/moviecatalog/internal/model"
)

// MovieFilter narrows a movie listing.
//
// UserID limits the list to one owner ("" lists every movie).
// ViewerID decides whose favorites populate Movie.IsFavorite ("" leaves it false).
type MovieFilter struct {
	UserID   string
	ViewerID string
}

// SavedKey identifies a saved movie for search-result annotation.
type SavedKey struct {
	TitleKey   string // normalised title, see TitleKey
	Year       string
	ExternalID string
}

type MovieRepository interface {
	Create(ctx context.Context, movie *model.Movie) error
	GetByID(ctx context.Context, id, viewerID string) (*model.Movie, error)
	List(ctx context.Context, filter MovieFilter) ([]model.Movie, error)
	Update(ctx context.Context, movie *model.Movie) error
	Delete(ctx context.Context, id string) error
	ExistsByTitle(ctx context.Context, title, userID string) (bool, error)
	// FindSaved returns, in one query, the saved movies of userID whose title
	// is in titles or whose external id is in externalIDs.
	FindSaved(ctx context.Context, userID string, titles, externalIDs []string) ([]SavedKey, error)
}

type UserRepository interface {
	// FindOrCreate returns the user with the given username, inserting it
	// first if needed. created reports whether this call inserted the row.
	FindOrCreate(ctx context.Context, username string) (user *model.User, created bool, err error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

type FavoriteRepository interface {
	IsFavorite(ctx context.Context, userID, movieID string) (bool, error)
	// Toggle flips the pair atomically and returns the new state.
	Toggle(ctx context.Context, userID, movieID string) (bool, error)
	Set(ctx context.Context, userID, movieID string, favorite bool) error
	ListByUser(ctx context.Context, userID string) ([]model.FavoriteMovie, error)
}

// Store bundles the repositories of one database.
type Store interface {
	Movies() MovieRepository
	Users() UserRepository
	Favorites() FavoriteRepository
	Ping(ctx context.Context) error
	Close() error
}
