package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakif/moviecatalog/internal/auth"
	"github.com/sakif/moviecatalog/internal/handler"
	"github.com/sakif/moviecatalog/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userBody struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsNew    bool   `json:"isNew"`
	Message  string `json:"message"`
	Token    string `json:"token"`
}

func TestUserHandler_HandleCreate(t *testing.T) {
	env := newTestEnv(t)

	create := func(body any) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		env.userH.HandleCreate(rr, jsonRequest(http.MethodPost, "/api/users", body))
		return rr
	}

	rr := create(map[string]string{"username": "neo"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	first := decode[userBody](t, rr)
	assert.True(t, first.IsNew)
	assert.Equal(t, "User created successfully", first.Message)
	assert.Equal(t, "neo", first.Username)
	assert.Empty(t, first.Token)
	assert.Empty(t, rr.Result().Cookies())

	rr = create(map[string]string{"username": "  neo "})
	require.Equal(t, http.StatusCreated, rr.Code)
	again := decode[userBody](t, rr)
	assert.False(t, again.IsNew)
	assert.Equal(t, "User already exists", again.Message)
	assert.Equal(t, first.ID, again.ID)

	tests := []struct {
		name string
		body any
	}{
		{"blank", map[string]string{"username": "   "}},
		{"missing", map[string]string{}},
		{"malformed", `{"username":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := create(tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestUserHandler_HandleCreate_IssuesToken(t *testing.T) {
	env := newTestEnv(t)
	tokens, err := auth.NewTokenService("a-test-secret-of-some-length")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewUserHandler(service.NewUserService(env.db.Users(), tokens, logger), true, logger)

	rr := httptest.NewRecorder()
	h.HandleCreate(rr, jsonRequest(http.MethodPost, "/api/users", map[string]string{"username": "neo"}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decode[userBody](t, rr)
	require.NotEmpty(t, body.Token)

	userID, err := tokens.Validate(body.Token)
	require.NoError(t, err)
	assert.Equal(t, body.ID, userID)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Equal(t, body.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
}
