// Package service contains the business logic layer of the application.
//
// The layering follows the usual three-tier shape:
//
//	Handler (HTTP)       → parses requests, writes responses
//	Service (this layer) → validates, enforces rules, orchestrates
//	Repository (data)    → reads/writes the SQLite store
//
// Services accept repository interfaces, not concrete types, so tests swap
// in in-memory fakes and the HTTP layer never touches SQL.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/everypoll/internal/apperror"
	"github.com/sakif/everypoll/internal/auth"
	"github.com/sakif/everypoll/internal/model"
	"github.com/sakif/everypoll/internal/repository"
)

// AuthService is the identity and session resolver: it maps session cookies
// to users, creates anonymous users on first contact, links Google
// identities, and destroys sessions on logout.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *auth.TokenService
	logger   *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		logger:   logger,
	}
}

// ResolveResult is returned by Resolve. Token is only set when a new session
// was issued (Created true) — an existing live session keeps its cookie.
type ResolveResult struct {
	User    *model.User
	Session *model.Session
	Token   string
	Created bool
}

// Resolve maps a session cookie value to a User, creating an anonymous user
// and a fresh session when no live session exists.
//
// The fall-through order matters: a bad signature, a missing session row, an
// expired session, or a session whose user row is gone are all treated the
// same way — "no session" — and end in creation. This is what makes the
// operation idempotent per live session: as long as the session stays valid,
// every call lands on the same user, and a broken link anywhere starts a
// clean anonymous identity rather than failing the request.
func (s *AuthService) Resolve(ctx context.Context, cookieValue string) (*ResolveResult, error) {
	if cookieValue != "" {
		if res, ok := s.resolveExisting(ctx, cookieValue); ok {
			return res, nil
		}
	}

	// No live session — create an anonymous user and bind a new session to it.
	user := &model.User{} // email and name stay NULL until linked
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating anonymous user: %w", err)
	}

	sess, err := s.sessions.Create(ctx, user.ID, auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	token, err := s.tokens.GenerateSession(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	s.logger.Info("anonymous user created",
		slog.String("userID", user.ID),
		slog.String("sessionID", sess.ID),
	)

	return &ResolveResult{User: user, Session: sess, Token: token, Created: true}, nil
}

// resolveExisting tries to walk cookie → session → user. Any break in the
// chain returns ok=false so Resolve falls through to creation.
func (s *AuthService) resolveExisting(ctx context.Context, cookieValue string) (*ResolveResult, bool) {
	sessionID, err := s.tokens.ValidateSession(cookieValue)
	if err != nil {
		return nil, false
	}

	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil || sess.Expired(time.Now()) {
		return nil, false
	}

	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		// Session points at a deleted user — treat as no session.
		return nil, false
	}

	return &ResolveResult{User: user, Session: sess}, true
}

// UserIDForToken resolves a session cookie value to a user ID without ever
// creating anything. This is the auth.Identity implementation the middleware
// uses on protected routes.
func (s *AuthService) UserIDForToken(ctx context.Context, tokenStr string) (string, error) {
	res, ok := s.resolveExisting(ctx, tokenStr)
	if !ok {
		return "", apperror.Unauthorized("no resolvable session")
	}
	return res.User.ID, nil
}

// SessionForToken returns the live session behind a cookie value, for
// operations that act on the session itself (logout, linking).
func (s *AuthService) SessionForToken(ctx context.Context, tokenStr string) (*model.Session, error) {
	res, ok := s.resolveExisting(ctx, tokenStr)
	if !ok {
		return nil, apperror.Unauthorized("no resolvable session")
	}
	return res.Session, nil
}

// LinkGoogle attaches a verified Google identity (email + display name) to
// the session's user, in place — the user keeps their ID and with it all
// their polls and votes.
//
// EMAIL COLLISION POLICY: if another user already owns the email, the link
// is rejected with a Conflict. Merging would have to reconcile two vote
// histories against the one-vote-per-poll rule, and reassigning would
// silently strip another account of its identity; rejecting loses nothing.
// Linking the same email to the same user again is a no-op refresh.
func (s *AuthService) LinkGoogle(ctx context.Context, userID, email, name string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.ValidationFailed("email", "a verified email is required")
	}

	if owner, err := s.users.GetByEmail(ctx, email); err == nil && owner.ID != userID {
		return nil, apperror.Conflict("user", "email is already linked to another account")
	} else if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("checking email owner: %w", err)
	}

	user, err := s.users.SetIdentity(ctx, userID, email, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}

	s.logger.Info("google identity linked",
		slog.String("userID", user.ID),
		slog.String("email", email),
	)
	return user, nil
}

// Logout destroys the session behind the cookie value. The session row
// delete is atomic, so a failed logout leaves the session fully intact
// rather than half-destroyed.
func (s *AuthService) Logout(ctx context.Context, cookieValue string) error {
	sessionID, err := s.tokens.ValidateSession(cookieValue)
	if err != nil {
		return apperror.Unauthorized("no resolvable session")
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Already gone — logout is idempotent.
			return nil
		}
		return fmt.Errorf("destroying session %s: %w", sessionID, err)
	}

	s.logger.Info("session destroyed", slog.String("sessionID", sessionID))
	return nil
}
