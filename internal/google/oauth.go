// Package google wraps the Gmail and Calendar REST APIs behind an OAuth2
// refresh token.
package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// DefaultBaseURL serves both the Gmail and Calendar APIs.
const DefaultBaseURL = "https://www.googleapis.com"

// Scopes requested during login.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.compose",
	"https://www.googleapis.com/auth/calendar.events",
}

// ErrNoRefreshToken is returned when an exchange yields no refresh token,
// usually because consent was not forced.
var ErrNoRefreshToken = errors.New("no refresh token in response; revoke access and log in again")

// Credentials identify the OAuth client.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both client id and secret are set.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// OAuthConfig builds the oauth2 config for redirectURL.
func OAuthConfig(c Credentials, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoints.Google,
	}
}

// AuthURL returns the consent page URL. Offline access with forced consent
// makes Google return a refresh token on every exchange.
func AuthURL(cfg *oauth2.Config, state string) string {
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a refresh token.
func Exchange(ctx context.Context, cfg *oauth2.Config, code string) (string, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchanging code: %w", err)
	}
	if tok.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}
	return tok.RefreshToken, nil
}

// NewState returns a random state value for the consent round trip.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HTTPClient returns a client that authorizes requests with access tokens
// minted from refreshToken.
func HTTPClient(ctx context.Context, c Credentials, refreshToken string) *http.Client {
	ts := OAuthConfig(c, "").TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return oauth2.NewClient(ctx, ts)
}

// Service bundles the mail and calendar clients.
type Service struct {
	Mail     *Mail
	Calendar *Calendar
}

// New creates a Service authorized by refreshToken.
func New(ctx context.Context, c Credentials, refreshToken string) *Service {
	return NewWithClient(HTTPClient(ctx, c, refreshToken), DefaultBaseURL)
}

// NewWithClient creates a Service over an already authorized client.
func NewWithClient(hc *http.Client, baseURL string) *Service {
	return &Service{
		Mail:     &Mail{httpClient: hc, baseURL: baseURL},
		Calendar: &Calendar{httpClient: hc, baseURL: baseURL},
	}
}
