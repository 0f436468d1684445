package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

type UserDB struct {
	conn *sql.DB
}

// FindOrCreate relies on the UNIQUE(username) index to settle concurrent
// first logins: only one INSERT reports a row.
func (u *UserDB) FindOrCreate(ctx context.Context, username string) (*model.User, bool, error) {
	result, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO NOTHING`,
		xid.New().String(), username, time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: inserting user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("postgres: checking rows affected: %w", err)
	}

	user, err := u.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	return user, n == 1, nil
}

func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, `WHERE id = $1`, id, "id")
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getOne(ctx, `WHERE username = $1`, username, "username")
}

func (u *UserDB) getOne(ctx context.Context, where, arg, label string) (*model.User, error) {
	var user model.User
	err := u.conn.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users `+where, arg,
	).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage(fmt.Sprintf("user not found with %s %s", label, arg))
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", label, err)
	}
	return &user, nil
}
