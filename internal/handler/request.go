package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/sakif/moviecatalog/internal/auth"
	"github.com/sakif/moviecatalog/internal/service"
)

// flexString accepts a JSON string or number. Older clients send numeric
// ids and years.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// first returns the first non-blank value.
func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// actingUser is the explicit user reference from the request, falling back
// to the session token's user.
func actingUser(ctx context.Context, explicit ...string) string {
	if v := first(explicit...); v != "" {
		return v
	}
	id, _ := auth.UserIDFromContext(ctx)
	return id
}

// resolveUser turns an id-or-username into a user id. "" stays "".
func resolveUser(ctx context.Context, users *service.UserService, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	u, err := users.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}
