package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/moviecatalog/internal/auth"
	"github.com/sakif/moviecatalog/internal/model"
	"github.com/sakif/moviecatalog/internal/service"
)

type UserHandler struct {
	users        *service.UserService
	secureCookie bool
	logger       *slog.Logger
}

// NewUserHandler creates a UserHandler. secureCookie marks the session
// cookie Secure; turn it off for plain-HTTP development.
func NewUserHandler(users *service.UserService, secureCookie bool, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, secureCookie: secureCookie, logger: logger}
}

type createUserRequest struct {
	Username string `json:"username"`
}

type userResponse struct {
	model.User
	IsNew   bool   `json:"isNew"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// HandleCreate finds or creates a user by username.
//
// HTTP: POST /api/users  {"username": "neo"}
// Always 201; isNew tells whether the account was just created. When
// sessions are enabled the token is returned and also set as a cookie.
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, isNew, err := h.users.FindOrCreate(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	token, err := h.users.IssueToken(user)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if token != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    token,
			Path:     "/",
			Expires:  time.Now().Add(auth.DefaultTTL),
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}

	msg := "User already exists"
	if isNew {
		msg = "User created successfully"
	}
	writeJSON(w, http.StatusCreated, userResponse{User: *user, IsNew: isNew, Message: msg, Token: token})
}
