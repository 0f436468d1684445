// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the server builds
// without a C toolchain and tests can use ":memory:" databases.
//
// CONNECTION POOL:
// database/sql hands out pooled connections, but every SQLite connection to
// ":memory:" is a separate database, and concurrent writers on a file
// database fight over the write lock. We pin the pool to ONE connection.
// That also serialises multi-statement transactions such as the favorite
// toggle, which is exactly the guarantee we want from this backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/moviecatalog/internal/repository"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out the per-table repositories.
type DB struct {
	conn      *sql.DB
	movies    *MovieDB
	users     *UserDB
	favorites *FavoriteDB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/movies.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}
	db.movies = &MovieDB{conn: conn}
	db.users = &UserDB{conn: conn}
	db.favorites = &FavoriteDB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Movies() repository.MovieRepository       { return db.movies }
func (db *DB) Users() repository.UserRepository         { return db.users }
func (db *DB) Favorites() repository.FavoriteRepository { return db.favorites }

// Ping checks the connection is still usable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it idempotent.
//
// There is deliberately no movies.is_favorite column: favorites live only in
// the favorites table and the flag is computed per viewer at query time.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			username   TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS movies (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title        TEXT NOT NULL,
			title_key    TEXT NOT NULL,
			year         TEXT NOT NULL DEFAULT '',
			genre        TEXT NOT NULL DEFAULT '',
			runtime      TEXT NOT NULL DEFAULT '',
			director     TEXT NOT NULL DEFAULT '',
			external_id  TEXT NOT NULL DEFAULT '',
			poster       TEXT NOT NULL DEFAULT '',
			poster_local TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_movies_user_title ON movies(user_id, title_key);
		CREATE INDEX IF NOT EXISTS idx_movies_user_external ON movies(user_id, external_id);
		CREATE INDEX IF NOT EXISTS idx_movies_created_at ON movies(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating movies table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS favorites (
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			movie_id   TEXT NOT NULL REFERENCES movies(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, movie_id)
		);
		CREATE INDEX IF NOT EXISTS idx_favorites_movie ON favorites(movie_id);
	`)
	if err != nil {
		return fmt.Errorf("creating favorites table: %w", err)
	}

	return nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
