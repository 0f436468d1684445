package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sakif/moviecatalog/internal/apperror"
	"github.com/stretchr/testify/assert"
)

// echoUser writes the context user id, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if id, ok := UserIDFromContext(r.Context()); ok {
		w.Write([]byte(id))
		return
	}
	w.Write([]byte("anonymous"))
})

// rejectWith401 stands in for the handler package's error writer.
func rejectWith401(w http.ResponseWriter, _ *http.Request, err error) {
	if apperror.KindOf(err) != apperror.KindUnauthorized {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(err.Error()))
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate("user-42")
	h := OptionalAuth(ts, rejectWith401)(echoUser)

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		want       string
	}{
		{"no token", func(r *http.Request) {}, http.StatusOK, "anonymous"},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, "user-42"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusOK, "user-42"},
		{"bad bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, "invalid or expired session token"},
		{"bad cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "stale"}) }, http.StatusOK, "anonymous"},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, http.StatusOK, "anonymous"},
		{"other scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") }, http.StatusOK, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserIDFromContext(WithUserID(req.Context(), ""))
	assert.False(t, ok)
}
