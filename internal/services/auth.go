package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
	"golang.org/x/oauth2"
)

// AuthError wraps a failure in the OAuth flow with the step that produced it.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Authenticator drives the Spotify authorization code flow with PKCE.
//
// When a client secret is configured the token endpoint is called as a
// confidential client (credentials in the Authorization header); without one
// it runs as a public PKCE client and sends the client id in the form body.
type Authenticator struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewAuthenticator creates an [Authenticator] from the configured Spotify
// credentials.
func NewAuthenticator(creds shared.SpotifyConfig) (*Authenticator, error) {
	if creds.ClientID == "" || creds.RedirectURI == "" {
		return nil, &AuthError{Op: "configure", Err: shared.ErrMissingCredentials}
	}

	authStyle := oauth2.AuthStyleInParams
	if creds.ClientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       strings.Fields(creds.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:   spotifyAuthURL,
			TokenURL:  spotifyTokenURL,
			AuthStyle: authStyle,
		},
	}

	return &Authenticator{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// GenerateVerifier returns a fresh PKCE code verifier.
func (a *Authenticator) GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateState returns a random state token for CSRF binding.
func (a *Authenticator) GenerateState() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

// AuthorizationURL builds the consent page URL carrying the state token and
// the S256 challenge derived from the verifier. The consent dialog is always
// shown so a relink lands on the expected account.
func (a *Authenticator) AuthorizationURL(state, verifier string) string {
	return a.config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("show_dialog", "true"))
}

// Exchange redeems an authorization code for a token set. The verifier must
// be the one whose challenge was sent with the authorization request.
func (a *Authenticator) Exchange(ctx context.Context, code, verifier string) (*models.SpotifyTokens, error) {
	token, err := a.config.Exchange(a.withClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &AuthError{Op: "exchange", Err: errors.Join(shared.ErrExchangeFailed, err)}
	}

	tokens := tokensFromOAuth(token)
	if tokens.Scope == "" {
		tokens.Scope = strings.Join(a.config.Scopes, " ")
	}
	return tokens, nil
}

// Refresh obtains a fresh access token from a refresh token.
//
// The provider may omit the refresh token from the response; the prior one
// stays valid then and is carried into the returned record. A rejected grant
// is classified as revocation so callers can purge credentials and prompt for
// relinking.
func (a *Authenticator) Refresh(ctx context.Context, tokens *models.SpotifyTokens) (*models.SpotifyTokens, error) {
	if tokens.RefreshToken == "" {
		return nil, &AuthError{Op: "refresh", Err: errors.Join(shared.ErrReauthRequired, shared.ErrNoRefreshToken)}
	}

	source := a.config.TokenSource(a.withClient(ctx), &oauth2.Token{RefreshToken: tokens.RefreshToken})
	refreshed, err := source.Token()
	if err != nil {
		if isRevokedGrant(err) {
			return nil, &AuthError{Op: "refresh", Err: errors.Join(shared.ErrReauthRequired, shared.ErrTokenRevoked, err)}
		}
		return nil, &AuthError{Op: "refresh", Err: err}
	}

	next := tokensFromOAuth(refreshed)
	next.UserID = tokens.UserID
	if next.RefreshToken == "" {
		next.RefreshToken = tokens.RefreshToken
	}
	if next.Scope == "" {
		next.Scope = tokens.Scope
	}

	return next, nil
}

// isRevokedGrant reports whether a token endpoint rejection means the grant
// was revoked by the user. Only the invalid_grant code paired with a
// description naming revocation counts; a plain invalid grant is a transient
// rejection and must not purge stored credentials.
func isRevokedGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.ErrorCode != "invalid_grant" {
		return false
	}
	return strings.Contains(strings.ToLower(retrieveErr.ErrorDescription), "revoked")
}

// ShouldRefresh reports whether the access token is expired or within the
// refresh skew of expiring.
func ShouldRefresh(tokens *models.SpotifyTokens, now time.Time) bool {
	return !now.Add(refreshSkew * time.Second).Before(tokens.ExpiresAt)
}

func tokensFromOAuth(token *oauth2.Token) *models.SpotifyTokens {
	scope, _ := token.Extra("scope").(string)

	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &models.SpotifyTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        scope,
		TokenType:    tokenType,
		ExpiresAt:    token.Expiry,
	}
}

// withClient pins token endpoint calls to the authenticator's bounded-timeout
// HTTP client.
func (a *Authenticator) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
