package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/auth"
	"github.com/sakif/everypoll/internal/service"
)

// AuthHandler manages sessions and the Google OAuth linking flow.
//
//   - HandleMe       → resolve (or create) the session user
//   - HandleLogin    → hand the client Google's authorization URL
//   - HandleCallback → receive the code, link the verified identity
//   - HandleLogout   → destroy the session, clear the cookie
type AuthHandler struct {
	authSvc *service.AuthService
	google  *auth.GoogleProvider
	tokens  *auth.TokenService
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(
	authSvc *service.AuthService,
	google *auth.GoogleProvider,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authSvc: authSvc,
		google:  google,
		tokens:  tokens,
		logger:  logger,
	}
}

// HandleMe resolves the session cookie to a user, creating an anonymous
// user and session on first contact.
//
// HTTP: GET /api/auth/me
// 201 with the new user when a session was created, 200 otherwise. This is
// the ONLY route that creates users; everything else just requires one.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	var cookieValue string
	if c, err := r.Cookie(auth.SessionCookie); err == nil {
		cookieValue = c.Value
	}

	res, err := h.authSvc.Resolve(r.Context(), cookieValue)
	if err != nil {
		h.logger.Error("session resolution failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		auth.SetSessionCookie(w, res.Token)
		status = http.StatusCreated
	}

	writeJSON(w, status, map[string]any{"user": res.User})
}

// LoginRequest is the optional body of POST /api/auth/login.
type LoginRequest struct {
	Redirect string `json:"redirect"` // where to land after Google, default "/"
}

// HandleLogin returns Google's authorization URL.
//
// HTTP: POST /api/auth/login → {"url": "https://accounts.google.com/..."}
//
// The state parameter is a signed token carrying a CSRF nonce and the
// post-login redirect target; the nonce is mirrored in a short-lived cookie
// so the callback can check that the browser finishing the flow is the one
// that started it.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	// An empty body is fine — redirect just defaults.
	_ = json.NewDecoder(r.Body).Decode(&req)

	state, nonce, err := h.tokens.GenerateState(safeRedirect(req.Redirect))
	if err != nil {
		h.logger.Error("state generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.StateCookie,
		Value:    nonce,
		Path:     "/",
		MaxAge:   int(auth.StateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"url": h.google.AuthURL(state)})
}

// HandleCallback completes the Google linking flow.
//
// HTTP: GET /api/auth/google-callback?code=xxx&state=yyy
//
// This is a browser navigation, not an API call, so failures redirect with
// ?error=<code> instead of returning JSON — the frontend reads the query
// parameter and shows a message. A raw 5xx never reaches the browser here.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// Google reports user denial and its own failures via ?error.
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("google callback: provider error", slog.String("error", errParam))
		h.redirectError(w, r, "/", "google_auth_failed")
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		h.redirectError(w, r, "/", "invalid_callback")
		return
	}

	nonce, redirect, err := h.tokens.ValidateState(state)
	if err != nil {
		h.logger.Warn("google callback: bad state", slog.String("error", err.Error()))
		h.redirectError(w, r, "/", "invalid_state")
		return
	}
	redirect = safeRedirect(redirect)

	// The nonce cookie binds the callback to the browser that started the
	// flow. It is single-use: clear it no matter what happens next.
	nonceCookie, err := r.Cookie(auth.StateCookie)
	http.SetCookie(w, &http.Cookie{Name: auth.StateCookie, Value: "", Path: "/", MaxAge: -1})
	if err != nil || nonceCookie.Value != nonce {
		h.logger.Warn("google callback: state nonce mismatch")
		h.redirectError(w, r, redirect, "invalid_state")
		return
	}

	// The user being linked is whoever owns the current session.
	sessCookie, err := r.Cookie(auth.SessionCookie)
	if err != nil {
		h.redirectError(w, r, redirect, "no_session")
		return
	}
	sess, err := h.authSvc.SessionForToken(r.Context(), sessCookie.Value)
	if err != nil {
		h.redirectError(w, r, redirect, "no_session")
		return
	}

	oauthToken, err := h.google.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("google callback: code exchange failed", slog.String("error", err.Error()))
		h.redirectError(w, r, redirect, "google_auth_failed")
		return
	}

	gUser, err := h.google.FetchUser(r.Context(), oauthToken)
	if err != nil {
		h.logger.Error("google callback: userinfo failed", slog.String("error", err.Error()))
		h.redirectError(w, r, redirect, "google_user_info_failed")
		return
	}

	if _, err := h.authSvc.LinkGoogle(r.Context(), sess.UserID, gUser.Email, gUser.Name); err != nil {
		switch {
		case errors.Is(err, apperror.ErrConflict):
			h.redirectError(w, r, redirect, "email_in_use")
		case errors.Is(err, apperror.ErrNotFound):
			h.redirectError(w, r, redirect, "user_not_found")
		default:
			h.logger.Error("google callback: linking failed", slog.String("error", err.Error()))
			h.redirectError(w, r, redirect, "google_callback_failed")
		}
		return
	}

	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// HandleLogout destroys the session and clears the cookie.
//
// HTTP: POST /api/auth/logout
// POST, not GET: logout changes state, and GETs get pre-fetched.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.SessionCookie); err == nil && c.Value != "" {
		if err := h.authSvc.Logout(r.Context(), c.Value); err != nil &&
			!errors.Is(err, apperror.ErrUnauthorized) {
			// Destroy failed server-side: the session is still whole, so
			// keep the cookie too and report the failure.
			h.logger.Error("logout failed", slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
	}

	auth.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, target, code string) {
	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("error", code)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// safeRedirect restricts post-login redirects to local paths. Anything else
// (absolute URLs, protocol-relative //host tricks) becomes "/", closing the
// open-redirect hole.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return "/"
	}
	return target
}
