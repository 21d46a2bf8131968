package handler_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/everypoll/internal/auth"
	"github.com/sakif/everypoll/internal/handler"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository/sqlite"
	"github.com/sakif/everypoll/internal/service"
)

type authEnv struct {
	h      *handler.AuthHandler
	tokens *auth.TokenService
	svc    *service.AuthService
}

func newAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)

	svc := service.NewAuthService(db.Users(), db.Sessions(), tokens, logger)
	google := auth.NewGoogleProvider("client-id", "client-secret", "http://localhost:8080/api/auth/google-callback")

	return &authEnv{
		h:      handler.NewAuthHandler(svc, google, tokens, logger),
		tokens: tokens,
		svc:    svc,
	}
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestAuthHandler_HandleMe(t *testing.T) {
	env := newAuthEnv(t)

	// First contact: a new anonymous user, a session cookie, 201.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rr := httptest.NewRecorder()
	env.h.HandleMe(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	cookie := sessionCookie(t, rr)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	var body struct {
		User model.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.NotEmpty(t, body.User.ID)
	assert.Nil(t, body.User.Email)

	// Second call with the cookie: same user, 200, no new cookie.
	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	env.h.HandleMe(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Result().Cookies())

	var again struct {
		User model.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&again))
	assert.Equal(t, body.User.ID, again.User.ID)
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	env := newAuthEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	rr := httptest.NewRecorder()
	env.h.HandleLogin(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))

	authURL, err := url.Parse(body.URL)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", authURL.Host)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	// The state token's nonce is mirrored in the cookie.
	nonce, redirect, err := env.tokens.ValidateState(state)
	require.NoError(t, err)
	assert.Equal(t, "/", redirect)

	var nonceCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.StateCookie {
			nonceCookie = c
		}
	}
	require.NotNil(t, nonceCookie, "nonce cookie missing")
	assert.Equal(t, nonce, nonceCookie.Value)
}

func TestAuthHandler_HandleLogin_RejectsForeignRedirect(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		want     string
	}{
		{"absolute URL", "https://evil.example/phish", "/"},
		{"protocol-relative", "//evil.example", "/"},
		{"local path kept", "/poll/abc", "/poll/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAuthEnv(t)

			body := strings.NewReader(`{"redirect":` + strconv.Quote(tt.redirect) + `}`)
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
			rr := httptest.NewRecorder()
			env.h.HandleLogin(rr, req)
			require.Equal(t, http.StatusOK, rr.Code)

			var res struct {
				URL string `json:"url"`
			}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
			authURL, err := url.Parse(res.URL)
			require.NoError(t, err)

			_, redirect, err := env.tokens.ValidateState(authURL.Query().Get("state"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, redirect)
		})
	}
}

func TestAuthHandler_HandleCallback_ErrorPaths(t *testing.T) {
	wantRedirectError := func(t *testing.T, rr *httptest.ResponseRecorder, code string) {
		t.Helper()
		require.Equal(t, http.StatusSeeOther, rr.Code)
		loc, err := url.Parse(rr.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, code, loc.Query().Get("error"))
	}

	t.Run("provider reported error", func(t *testing.T) {
		env := newAuthEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/api/auth/google-callback?error=access_denied", nil)
		rr := httptest.NewRecorder()
		env.h.HandleCallback(rr, req)
		wantRedirectError(t, rr, "google_auth_failed")
	})

	t.Run("missing code and state", func(t *testing.T) {
		env := newAuthEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/api/auth/google-callback", nil)
		rr := httptest.NewRecorder()
		env.h.HandleCallback(rr, req)
		wantRedirectError(t, rr, "invalid_callback")
	})

	t.Run("garbage state token", func(t *testing.T) {
		env := newAuthEnv(t)
		req := httptest.NewRequest(http.MethodGet, "/api/auth/google-callback?code=x&state=garbage", nil)
		rr := httptest.NewRecorder()
		env.h.HandleCallback(rr, req)
		wantRedirectError(t, rr, "invalid_state")
	})

	t.Run("nonce cookie mismatch", func(t *testing.T) {
		env := newAuthEnv(t)
		state, _, err := env.tokens.GenerateState("/")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/google-callback?code=x&state="+url.QueryEscape(state), nil)
		req.AddCookie(&http.Cookie{Name: auth.StateCookie, Value: "wrong-nonce"})
		rr := httptest.NewRecorder()
		env.h.HandleCallback(rr, req)
		wantRedirectError(t, rr, "invalid_state")
	})

	t.Run("no session cookie", func(t *testing.T) {
		env := newAuthEnv(t)
		state, nonce, err := env.tokens.GenerateState("/")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/google-callback?code=x&state="+url.QueryEscape(state), nil)
		req.AddCookie(&http.Cookie{Name: auth.StateCookie, Value: nonce})
		rr := httptest.NewRecorder()
		env.h.HandleCallback(rr, req)
		wantRedirectError(t, rr, "no_session")
	})
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	env := newAuthEnv(t)

	// Establish a session first.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rr := httptest.NewRecorder()
	env.h.HandleMe(rr, req)
	cookie := sessionCookie(t, rr)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	env.h.HandleLogout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	cleared := sessionCookie(t, rr)
	assert.Less(t, cleared.MaxAge, 0, "cookie should be expired")

	// The old cookie no longer resolves to a user.
	_, err := env.svc.UserIDForToken(req.Context(), cookie.Value)
	assert.Error(t, err)

	// Logging out again with the dead cookie is still a 200.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	env.h.HandleLogout(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
