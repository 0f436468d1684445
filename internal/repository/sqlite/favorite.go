package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

var _ repository.FavoriteRepository = (*FavoriteDB)(nil)

// FavoriteDB stores (user, movie) favorite pairs. A pair is a favorite
// exactly when its row exists.
type FavoriteDB struct {
	conn *sql.DB
}

// IsFavorite reports whether the pair exists.
func (r *FavoriteDB) IsFavorite(ctx context.Context, userID, movieID string) (bool, error) {
	var fav bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = ? AND movie_id = ?)`,
		userID,
		movieID,
	).Scan(&fav)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking favorite: %w", err)
	}
	return fav, nil
}

// Toggle flips the pair inside one transaction and returns the new state.
//
// The delete-then-insert order means the decision is made by the statement
// that changes the row, not by an earlier read. With the pool pinned to one
// connection, two toggles cannot interleave.
func (r *FavoriteDB) Toggle(ctx context.Context, userID, movieID string) (bool, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: beginning toggle: %w", err)
	}
	defer tx.Rollback()

	if err := ensurePair(ctx, tx, userID, movieID); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND movie_id = ?`,
		userID, movieID,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: removing favorite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	favorite := n == 0
	if favorite {
		if err := insertFavorite(ctx, tx, userID, movieID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: committing toggle: %w", err)
	}
	return favorite, nil
}

// Set makes the pair's state equal to favorite. Setting the current state is a no-op.
func (r *FavoriteDB) Set(ctx context.Context, userID, movieID string, favorite bool) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning set favorite: %w", err)
	}
	defer tx.Rollback()

	if err := ensurePair(ctx, tx, userID, movieID); err != nil {
		return err
	}

	if favorite {
		err = insertFavorite(ctx, tx, userID, movieID)
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM favorites WHERE user_id = ? AND movie_id = ?`,
			userID, movieID,
		)
		if err != nil {
			err = fmt.Errorf("sqlite: removing favorite: %w", err)
		}
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing set favorite: %w", err)
	}
	return nil
}

// ListByUser returns the user's favorite movies, most recently favorited first.
func (r *FavoriteDB) ListByUser(ctx context.Context, userID string) ([]model.FavoriteMovie, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+movieColumns+`, f.created_at
		 FROM favorites f
		 JOIN movies m ON m.id = f.movie_id
		 WHERE f.user_id = ?
		 ORDER BY f.created_at DESC, m.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing favorites: %w", err)
	}
	defer rows.Close()

	favorites := make([]model.FavoriteMovie, 0)
	for rows.Next() {
		var fm model.FavoriteMovie
		err := rows.Scan(
			&fm.ID, &fm.UserID, &fm.Title, &fm.Year, &fm.Genre, &fm.Runtime, &fm.Director,
			&fm.ExternalID, &fm.Poster, &fm.PosterLocal, &fm.CreatedAt, &fm.UpdatedAt,
			&fm.IsFavorite, &fm.FavoritedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning favorite row: %w", err)
		}
		favorites = append(favorites, fm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating favorite rows: %w", err)
	}

	return favorites, nil
}

// ensurePair turns a missing movie or user into NotFound before the foreign
// key would turn it into an opaque constraint error.
func ensurePair(ctx context.Context, tx *sql.Tx, userID, movieID string) error {
	var ok bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM movies WHERE id = ?)`, movieID,
	).Scan(&ok); err != nil {
		return fmt.Errorf("sqlite: checking movie: %w", err)
	}
	if !ok {
		return apperror.NotFound("movie", movieID)
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID,
	).Scan(&ok); err != nil {
		return fmt.Errorf("sqlite: checking user: %w", err)
	}
	if !ok {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func insertFavorite(ctx context.Context, tx *sql.Tx, userID, movieID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO favorites (user_id, movie_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, movie_id) DO NOTHING`,
		userID, movieID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding favorite: %w", err)
	}
	return nil
}
