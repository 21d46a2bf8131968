package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleUser is the portion of Google's userinfo response we care about.
// Google returns a larger object — we only unmarshal the fields we need.
type GoogleUser struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization Code flow.
//
// The flow, end to end:
//  1. POST /api/auth/login returns Google's authorization URL (with our state).
//  2. The user approves on Google's consent screen.
//  3. Google redirects to our callback with a short-lived code.
//  4. ExchangeCode trades the code for an access token (server-to-server,
//     using the client secret — the token never touches the browser).
//  5. FetchUser calls the userinfo endpoint for a verified email + name.
//
// The provider only verifies identity; what to do with the email (linking it
// to the session's user) is the AuthService's business.
type GoogleProvider struct {
	config *oauth2.Config
}

// NewGoogleProvider creates a GoogleProvider with the given credentials.
//
// ClientID/ClientSecret come from a Google Cloud OAuth client registration;
// callbackURL must match an authorized redirect URI there exactly.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

// AuthURL returns the URL to redirect the user to for authorization.
// The state round-trips through Google untouched and is verified on callback.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode trades the authorization code for an access token
// (server-to-server; the client secret never leaves this process).
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}
	return oauthToken, nil
}

// FetchUser retrieves the verified Google profile for an access token.
// Returns an error if the email is absent or unverified — an unverified
// address must never be linked to an account.
func (p *GoogleProvider) FetchUser(ctx context.Context, oauthToken *oauth2.Token) (*GoogleUser, error) {
	// oauth2.Config.Client returns an *http.Client that adds the
	// Authorization header to every request.
	client := p.config.Client(ctx, oauthToken)

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo API returned status %d", resp.StatusCode)
	}

	var gUser GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&gUser); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo response: %w", err)
	}

	if gUser.Email == "" {
		return nil, fmt.Errorf("auth: Google returned no email address")
	}
	if !gUser.VerifiedEmail {
		return nil, fmt.Errorf("auth: Google email %s is not verified", gUser.Email)
	}

	return &gUser, nil
}
