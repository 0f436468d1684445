package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

var _ repository.MovieRepository = (*MovieDB)(nil)

// MovieDB handles movie persistence. It shares the connection pool with DB.
type MovieDB struct {
	conn *sql.DB
}

// movieColumns is the SELECT list shared by every movie query. The last
// column is the viewer's favorite flag, so queries using it must LEFT JOIN
// favorites as f.
const movieColumns = `m.id, m.user_id, m.title, m.year, m.genre, m.runtime, m.director,
	m.external_id, m.poster, m.poster_local, m.created_at, m.updated_at,
	f.user_id IS NOT NULL`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(s rowScanner, m *model.Movie) error {
	return s.Scan(
		&m.ID,
		&m.UserID,
		&m.Title,
		&m.Year,
		&m.Genre,
		&m.Runtime,
		&m.Director,
		&m.ExternalID,
		&m.Poster,
		&m.PosterLocal,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.IsFavorite,
	)
}

// Create inserts a new movie. ID and timestamps are filled in on the
// caller's struct. A user_id that does not exist fails the foreign key.
func (r *MovieDB) Create(ctx context.Context, movie *model.Movie) error {
	movie.ID = xid.New().String()

	now := time.Now().UTC()
	movie.CreatedAt = now
	movie.UpdatedAt = now
	movie.IsFavorite = false

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO movies (id, user_id, title, title_key, year, genre, runtime, director,
		                     external_id, poster, poster_local, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		movie.ID,
		movie.UserID,
		movie.Title,
		repository.TitleKey(movie.Title),
		movie.Year,
		movie.Genre,
		movie.Runtime,
		movie.Director,
		movie.ExternalID,
		movie.Poster,
		movie.PosterLocal,
		movie.CreatedAt,
		movie.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating movie: %w", err)
	}

	return nil
}

// GetByID retrieves one movie. viewerID decides IsFavorite.
func (r *MovieDB) GetByID(ctx context.Context, id, viewerID string) (*model.Movie, error) {
	var movie model.Movie

	row := r.conn.QueryRowContext(ctx,
		`SELECT `+movieColumns+`
		 FROM movies m
		 LEFT JOIN favorites f ON f.movie_id = m.id AND f.user_id = ?
		 WHERE m.id = ?`,
		viewerID,
		id,
	)
	if err := scanMovie(row, &movie); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("movie", id)
		}
		return nil, fmt.Errorf("sqlite: getting movie %s: %w", id, err)
	}

	return &movie, nil
}

// List returns movies newest first. The id tiebreak keeps the order stable
// for rows created within the same clock tick.
func (r *MovieDB) List(ctx context.Context, filter repository.MovieFilter) ([]model.Movie, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+movieColumns+`
		 FROM movies m
		 LEFT JOIN favorites f ON f.movie_id = m.id AND f.user_id = ?
		 WHERE (? = '' OR m.user_id = ?)
		 ORDER BY m.created_at DESC, m.id DESC`,
		filter.ViewerID,
		filter.UserID,
		filter.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing movies: %w", err)
	}
	defer rows.Close()

	movies := make([]model.Movie, 0)
	for rows.Next() {
		var m model.Movie
		if err := scanMovie(rows, &m); err != nil {
			return nil, fmt.Errorf("sqlite: scanning movie row: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating movie rows: %w", err)
	}

	return movies, nil
}

// Update overwrites the editable fields of an existing movie. Ownership,
// external id and created_at never change.
func (r *MovieDB) Update(ctx context.Context, movie *model.Movie) error {
	movie.UpdatedAt = time.Now().UTC()

	result, err := r.conn.ExecContext(ctx,
		`UPDATE movies
		 SET title = ?, title_key = ?, year = ?, genre = ?, runtime = ?, director = ?,
		     poster = ?, poster_local = ?, updated_at = ?
		 WHERE id = ?`,
		movie.Title,
		repository.TitleKey(movie.Title),
		movie.Year,
		movie.Genre,
		movie.Runtime,
		movie.Director,
		movie.Poster,
		movie.PosterLocal,
		movie.UpdatedAt,
		movie.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating movie %s: %w", movie.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("movie", movie.ID)
	}

	return nil
}

// Delete removes a movie. Its favorites go with it (ON DELETE CASCADE).
func (r *MovieDB) Delete(ctx context.Context, id string) error {
	result, err := r.conn.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting movie %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("movie", id)
	}

	return nil
}

// ExistsByTitle reports whether a movie with this title (case-insensitive)
// is saved, by userID when given or by anyone otherwise.
func (r *MovieDB) ExistsByTitle(ctx context.Context, title, userID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM movies
			WHERE title_key = ? AND (? = '' OR user_id = ?)
		 )`,
		repository.TitleKey(title),
		userID,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking movie exists: %w", err)
	}
	return exists, nil
}

// FindSaved runs one query for a whole page of search results.
func (r *MovieDB) FindSaved(ctx context.Context, userID string, titles, externalIDs []string) ([]repository.SavedKey, error) {
	var conds []string
	var args []any

	if len(titles) > 0 {
		conds = append(conds, "title_key IN ("+placeholders(len(titles))+")")
		for _, t := range titles {
			args = append(args, repository.TitleKey(t))
		}
	}
	if len(externalIDs) > 0 {
		conds = append(conds, "(external_id <> '' AND external_id IN ("+placeholders(len(externalIDs))+"))")
		for _, id := range externalIDs {
			args = append(args, id)
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}

	args = append(args, userID, userID)
	query := `SELECT title_key, year, external_id FROM movies
		WHERE (` + strings.Join(conds, " OR ") + `) AND (? = '' OR user_id = ?)`

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding saved movies: %w", err)
	}
	defer rows.Close()

	var keys []repository.SavedKey
	for rows.Next() {
		var k repository.SavedKey
		if err := rows.Scan(&k.TitleKey, &k.Year, &k.ExternalID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning saved movie: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating saved movies: %w", err)
	}

	return keys, nil
}
