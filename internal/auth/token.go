// Package auth provides the session cookie signer, the Google OAuth provider,
// and the request middleware that resolve a browser to a user.
//
// THE IDENTITY MODEL:
// Sessions are server-side rows in the sessions table. The browser holds only
// a signed token whose subject is the session ID — the signature keeps the
// cookie opaque and tamper-proof, while the server-side row stays the source
// of truth. Deleting the row kills the session even if the cookie is replayed
// within its TTL, which a purely stateless JWT could never do.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// SessionTTL is the fixed session lifetime from issuance. The same value
	// is baked into the token expiry and the sessions row, and whichever
	// runs out first wins.
	SessionTTL = 30 * 24 * time.Hour

	// StateTTL bounds the OAuth round trip: long enough for a consent
	// screen, short enough to limit replay.
	StateTTL = 10 * time.Minute

	issuer = "everypoll"
)

// TokenService signs and verifies the tokens EveryPoll hands to browsers:
// session cookies and OAuth state. Both are HS256 JWTs under one secret.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: SESSION_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// sessionClaims carries the session ID in the standard "sub" claim.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// stateClaims is the OAuth state payload: a single-use nonce (checked against
// a cookie on callback, which is the CSRF binding) and the post-login
// redirect target.
type stateClaims struct {
	Nonce    string `json:"nonce"`
	Redirect string `json:"redirect"`
	jwt.RegisteredClaims
}

// GenerateSession signs a session cookie value for the given session ID.
func (s *TokenService) GenerateSession(sessionID string) (string, error) {
	now := time.Now()
	c := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session token: %w", err)
	}
	return signed, nil
}

// ValidateSession parses and verifies a session cookie value, returning the
// session ID. The caller still has to look the session up — a valid
// signature only proves we minted the token, not that the session lives.
func (s *TokenService) ValidateSession(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		s.keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: session token expired")
		}
		return "", fmt.Errorf("auth: invalid session token: %w", err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || c.Subject == "" {
		return "", fmt.Errorf("auth: invalid session token claims")
	}
	return c.Subject, nil
}

// GenerateState signs an OAuth state token carrying the redirect target.
// Returns the token and the embedded nonce; the handler stores the nonce in
// a short-lived cookie so the callback can prove the browser that finishes
// the flow is the one that started it.
func (s *TokenService) GenerateState(redirect string) (token, nonce string, err error) {
	now := time.Now()
	nonce = uuid.NewString()
	c := stateClaims{
		Nonce:    nonce,
		Redirect: redirect,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
			Issuer:    issuer,
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: signing state token: %w", err)
	}
	return token, nonce, nil
}

// ValidateState parses and verifies an OAuth state token.
func (s *TokenService) ValidateState(tokenStr string) (nonce, redirect string, err error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&stateClaims{},
		s.keyFunc,
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", "", fmt.Errorf("auth: invalid state token: %w", err)
	}

	c, ok := token.Claims.(*stateClaims)
	if !ok || !token.Valid || c.Nonce == "" {
		return "", "", fmt.Errorf("auth: invalid state token claims")
	}
	return c.Nonce, c.Redirect, nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}
