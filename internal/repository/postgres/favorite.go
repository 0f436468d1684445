package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

var _ repository.FavoriteRepository = (*FavoriteDB)(nil)

type FavoriteDB struct {
	conn *sql.DB
}

func (r *FavoriteDB) IsFavorite(ctx context.Context, userID, movieID string) (bool, error) {
	var fav bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND movie_id = $2)`,
		userID, movieID,
	).Scan(&fav)
	if err != nil {
		return false, fmt.Errorf("postgres: checking favorite: %w", err)
	}
	return fav, nil
}

// Toggle locks the movie row so concurrent toggles of the same movie queue
// up behind each other, then flips the pair with delete-or-insert.
func (r *FavoriteDB) Toggle(ctx context.Context, userID, movieID string) (bool, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("postgres: beginning toggle: %w", err)
	}
	defer tx.Rollback()

	if err := lockPair(ctx, tx, userID, movieID); err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND movie_id = $2`, userID, movieID)
	if err != nil {
		return false, fmt.Errorf("postgres: removing favorite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: checking rows affected: %w", err)
	}

	favorite := n == 0
	if favorite {
		if err := insertFavorite(ctx, tx, userID, movieID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("postgres: committing toggle: %w", err)
	}
	return favorite, nil
}

func (r *FavoriteDB) Set(ctx context.Context, userID, movieID string, favorite bool) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: beginning set favorite: %w", err)
	}
	defer tx.Rollback()

	if err := lockPair(ctx, tx, userID, movieID); err != nil {
		return err
	}

	if favorite {
		if err := insertFavorite(ctx, tx, userID, movieID); err != nil {
			return err
		}
	} else if _, err := tx.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND movie_id = $2`, userID, movieID); err != nil {
		return fmt.Errorf("postgres: removing favorite: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: committing set favorite: %w", err)
	}
	return nil
}

func (r *FavoriteDB) ListByUser(ctx context.Context, userID string) ([]model.FavoriteMovie, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+movieColumns+`, f.created_at
		 FROM favorites f
		 JOIN movies m ON m.id = f.movie_id
		 WHERE f.user_id = $1
		 ORDER BY f.created_at DESC, m.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing favorites: %w", err)
	}
	defer rows.Close()

	favorites := make([]model.FavoriteMovie, 0)
	for rows.Next() {
		var fm model.FavoriteMovie
		if err := scanMovie(rows, &fm.Movie, &fm.FavoritedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning favorite row: %w", err)
		}
		favorites = append(favorites, fm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating favorite rows: %w", err)
	}
	return favorites, nil
}

// lockPair takes FOR UPDATE on the movie row and checks the user exists.
func lockPair(ctx context.Context, tx *sql.Tx, userID, movieID string) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM movies WHERE id = $1 FOR UPDATE`, movieID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("movie", movieID)
	}
	if err != nil {
		return fmt.Errorf("postgres: locking movie: %w", err)
	}

	var ok bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&ok); err != nil {
		return fmt.Errorf("postgres: checking user: %w", err)
	}
	if !ok {
		return apperror.NotFound("user", userID)
	}
	return nil
}

func insertFavorite(ctx context.Context, tx *sql.Tx, userID, movieID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO favorites (user_id, movie_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, movie_id) DO NOTHING`,
		userID, movieID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: adding favorite: %w", err)
	}
	return nil
}
