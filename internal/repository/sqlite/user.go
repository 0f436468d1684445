package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB handles user persistence. It shares the connection pool with DB.
type UserDB struct {
	conn *sql.DB
}

// FindOrCreate inserts the username unless it already exists, then reads the
// row back. The UNIQUE constraint decides races: of several concurrent calls
// exactly one sees RowsAffected == 1.
func (u *UserDB) FindOrCreate(ctx context.Context, username string) (*model.User, bool, error) {
	result, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		xid.New().String(),
		username,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: inserting user: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	user, err := u.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	return user, n == 1, nil
}

// GetByID retrieves a user by internal ID.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, `WHERE id = ?`, id, "id")
}

// GetByUsername retrieves a user by username (exact match).
func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getOne(ctx, `WHERE username = ?`, username, "username")
}

func (u *UserDB) getOne(ctx context.Context, where string, arg any, label string) (*model.User, error) {
	var user model.User
	err := u.conn.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFoundMessage(fmt.Sprintf("user not found with %s %v", label, arg))
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", label, err)
	}
	return &user, nil
}
