package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/repository"
)

const MaxUsernameLength = 50

// TokenIssuer mints a session token for a user id. *auth.TokenService
// satisfies it.
type TokenIssuer interface {
	Generate(userID string) (string, error)
}

// UserService implements username-based identity: the first time a name is
// used the account is created, afterwards the same account is returned.
type UserService struct {
	repo   repository.UserRepository
	tokens TokenIssuer // nil when sessions are disabled
	logger *slog.Logger
}

func NewUserService(repo repository.UserRepository, tokens TokenIssuer, logger *slog.Logger) *UserService {
	return &UserService{repo: repo, tokens: tokens, logger: logger}
}

// FindOrCreate returns the user for username and whether this call created
// it. The name is trimmed; matching is otherwise exact.
func (s *UserService) FindOrCreate(ctx context.Context, username string) (*model.User, bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, false, apperror.ValidationFailed("username", "username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return nil, false, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d characters or less", MaxUsernameLength))
	}

	user, created, err := s.repo.FindOrCreate(ctx, username)
	if err != nil {
		s.logger.Error("failed to find or create user", "username", username, "error", err)
		return nil, false, fmt.Errorf("finding or creating user: %w", err)
	}

	if created {
		s.logger.Info("user created", "id", user.ID, "username", user.Username)
	}
	return user, created, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	id, err := requireID("userId", id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// Resolve accepts either a user id or a username. Older clients send the
// username where an id is expected.
func (s *UserService) Resolve(ctx context.Context, idOrUsername string) (*model.User, error) {
	key, err := requireID("userId", idOrUsername)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(ctx, key)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	return s.repo.GetByUsername(ctx, key)
}

// IssueToken returns a session token, or "" when sessions are disabled.
func (s *UserService) IssueToken(user *model.User) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}
