package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

var _ repository.MovieRepository = (*MovieDB)(nil)

type MovieDB struct {
	conn *sql.DB
}

const movieColumns = `m.id, m.user_id, m.title, m.year, m.genre, m.runtime, m.director,
	m.external_id, m.poster, m.poster_local, m.created_at, m.updated_at,
	f.user_id IS NOT NULL`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(s rowScanner, m *model.Movie, extra ...any) error {
	dest := []any{
		&m.ID, &m.UserID, &m.Title, &m.Year, &m.Genre, &m.Runtime, &m.Director,
		&m.ExternalID, &m.Poster, &m.PosterLocal, &m.CreatedAt, &m.UpdatedAt,
		&m.IsFavorite,
	}
	return s.Scan(append(dest, extra...)...)
}

func (r *MovieDB) Create(ctx context.Context, movie *model.Movie) error {
	movie.ID = xid.New().String()
	now := time.Now().UTC()
	movie.CreatedAt = now
	movie.UpdatedAt = now
	movie.IsFavorite = false

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO movies (id, user_id, title, title_key, year, genre, runtime, director,
		                     external_id, poster, poster_local, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		movie.ID, movie.UserID, movie.Title, repository.TitleKey(movie.Title),
		movie.Year, movie.Genre, movie.Runtime, movie.Director,
		movie.ExternalID, movie.Poster, movie.PosterLocal,
		movie.CreatedAt, movie.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating movie: %w", err)
	}
	return nil
}

func (r *MovieDB) GetByID(ctx context.Context, id, viewerID string) (*model.Movie, error) {
	var movie model.Movie
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+movieColumns+`
		 FROM movies m
		 LEFT JOIN favorites f ON f.movie_id = m.id AND f.user_id = $1
		 WHERE m.id = $2`,
		viewerID, id,
	)
	if err := scanMovie(row, &movie); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("movie", id)
		}
		return nil, fmt.Errorf("postgres: getting movie %s: %w", id, err)
	}
	return &movie, nil
}

func (r *MovieDB) List(ctx context.Context, filter repository.MovieFilter) ([]model.Movie, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+movieColumns+`
		 FROM movies m
		 LEFT JOIN favorites f ON f.movie_id = m.id AND f.user_id = $1
		 WHERE ($2::text = '' OR m.user_id = $2)
		 ORDER BY m.created_at DESC, m.id DESC`,
		filter.ViewerID, filter.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing movies: %w", err)
	}
	defer rows.Close()

	movies := make([]model.Movie, 0)
	for rows.Next() {
		var m model.Movie
		if err := scanMovie(rows, &m); err != nil {
			return nil, fmt.Errorf("postgres: scanning movie row: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating movie rows: %w", err)
	}
	return movies, nil
}

func (r *MovieDB) Update(ctx context.Context, movie *model.Movie) error {
	movie.UpdatedAt = time.Now().UTC()
	result, err := r.conn.ExecContext(ctx,
		`UPDATE movies
		 SET title = $1, title_key = $2, year = $3, genre = $4, runtime = $5, director = $6,
		     poster = $7, poster_local = $8, updated_at = $9
		 WHERE id = $10`,
		movie.Title, repository.TitleKey(movie.Title), movie.Year, movie.Genre,
		movie.Runtime, movie.Director, movie.Poster, movie.PosterLocal,
		movie.UpdatedAt, movie.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating movie %s: %w", movie.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("movie", movie.ID)
	}
	return nil
}

func (r *MovieDB) Delete(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting movie %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("movie", id)
	}
	return nil
}

func (r *MovieDB) ExistsByTitle(ctx context.Context, title, userID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM movies
			WHERE title_key = $1 AND ($2::text = '' OR user_id = $2)
		 )`,
		repository.TitleKey(title), userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking movie exists: %w", err)
	}
	return exists, nil
}

func (r *MovieDB) FindSaved(ctx context.Context, userID string, titles, externalIDs []string) ([]repository.SavedKey, error) {
	args := []any{userID}
	var conds []string

	if len(titles) > 0 {
		conds = append(conds, "title_key IN ("+placeholders(len(args)+1, len(titles))+")")
		for _, t := range titles {
			args = append(args, repository.TitleKey(t))
		}
	}
	if len(externalIDs) > 0 {
		conds = append(conds, "(external_id <> '' AND external_id IN ("+placeholders(len(args)+1, len(externalIDs))+"))")
		for _, id := range externalIDs {
			args = append(args, id)
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}

	rows, err := r.conn.QueryContext(ctx,
		`SELECT title_key, year, external_id FROM movies
		 WHERE ($1::text = '' OR user_id = $1) AND (`+strings.Join(conds, " OR ")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: finding saved movies: %w", err)
	}
	defer rows.Close()

	var keys []repository.SavedKey
	for rows.Next() {
		var k repository.SavedKey
		if err := rows.Scan(&k.TitleKey, &k.Year, &k.ExternalID); err != nil {
			return nil, fmt.Errorf("postgres: scanning saved movie: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating saved movies: %w", err)
	}
	return keys, nil
}
