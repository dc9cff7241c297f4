package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
)

func testSpotifyConfig() shared.SpotifyConfig {
	return shared.SpotifyConfig{
		ClientID:    "test_client_id",
		RedirectURI: "http://localhost:3000/spotify/callback",
		Scopes:      "user-read-playback-state playlist-modify-private",
	}
}

func TestNewAuthenticator(t *testing.T) {
	t.Run("public client without secret", func(t *testing.T) {
		auth, err := NewAuthenticator(testSpotifyConfig())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if auth == nil {
			t.Fatal("expected authenticator to be created")
		}
	})

	t.Run("missing client id", func(t *testing.T) {
		cfg := testSpotifyConfig()
		cfg.ClientID = ""

		_, err := NewAuthenticator(cfg)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("missing redirect uri", func(t *testing.T) {
		cfg := testSpotifyConfig()
		cfg.RedirectURI = ""

		if _, err := NewAuthenticator(cfg); err == nil {
			t.Error("expected error for missing redirect uri")
		}
	})
}

func TestAuthorizationURL(t *testing.T) {
	auth, err := NewAuthenticator(testSpotifyConfig())
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	verifier := auth.GenerateVerifier()
	state := auth.GenerateState()

	authURL, err := url.Parse(auth.AuthorizationURL(state, verifier))
	if err != nil {
		t.Fatalf("failed to parse authorization URL: %v", err)
	}

	query := authURL.Query()
	checks := map[string]string{
		"client_id":             "test_client_id",
		"state":                 state,
		"code_challenge_method": "S256",
		"response_type":         "code",
		"redirect_uri":          "http://localhost:3000/spotify/callback",
		"show_dialog":           "true",
	}
	for key, want := range checks {
		if got := query.Get(key); got != want {
			t.Errorf("expected %s=%q, got %q", key, want, got)
		}
	}

	if query.Get("code_challenge") == "" {
		t.Error("expected a code challenge")
	}
	if query.Get("code_challenge") == verifier {
		t.Error("challenge must not be the raw verifier")
	}
	if !strings.Contains(query.Get("scope"), "playlist-modify-private") {
		t.Errorf("expected scope to carry playlist-modify-private, got %q", query.Get("scope"))
	}
}

func TestGenerateState(t *testing.T) {
	auth, err := NewAuthenticator(testSpotifyConfig())
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	a, b := auth.GenerateState(), auth.GenerateState()
	if a == b {
		t.Error("state tokens should be unique")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestShouldRefresh(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"fresh token", now.Add(time.Hour), false},
		{"inside the skew window", now.Add(60 * time.Second), true},
		{"already expired", now.Add(-time.Minute), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := &models.SpotifyTokens{ExpiresAt: tc.expiresAt}
			if got := ShouldRefresh(tokens, now); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

// tokenEndpoint spins up a stub token server and points the authenticator's
// endpoint at it.
func tokenEndpoint(t *testing.T, auth *Authenticator, status int, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	auth.config.Endpoint.TokenURL = srv.URL
	return srv
}

func TestExchange(t *testing.T) {
	auth, err := NewAuthenticator(testSpotifyConfig())
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	t.Run("successful exchange", func(t *testing.T) {
		tokenEndpoint(t, auth, http.StatusOK, `{
			"access_token": "access-1",
			"refresh_token": "refresh-1",
			"token_type": "Bearer",
			"scope": "user-read-playback-state",
			"expires_in": 3600
		}`)

		tokens, err := auth.Exchange(context.Background(), "code", "verifier")
		if err != nil {
			t.Fatalf("exchange failed: %v", err)
		}

		if tokens.AccessToken != "access-1" || tokens.RefreshToken != "refresh-1" {
			t.Errorf("unexpected tokens: %+v", tokens)
		}
		if tokens.Scope != "user-read-playback-state" {
			t.Errorf("unexpected scope: %q", tokens.Scope)
		}
		if !tokens.ExpiresAt.After(time.Now()) {
			t.Error("expected a future expiry")
		}
	})

	t.Run("rejected code", func(t *testing.T) {
		tokenEndpoint(t, auth, http.StatusBadRequest, `{"error": "invalid_grant"}`)

		_, err := auth.Exchange(context.Background(), "bad-code", "verifier")
		if !errors.Is(err, shared.ErrExchangeFailed) {
			t.Errorf("expected ErrExchangeFailed, got %v", err)
		}

		var authErr *AuthError
		if !errors.As(err, &authErr) || authErr.Op != "exchange" {
			t.Errorf("expected AuthError for exchange, got %v", err)
		}
	})
}

func TestRefresh(t *testing.T) {
	auth, err := NewAuthenticator(testSpotifyConfig())
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	stored := &models.SpotifyTokens{
		UserID:       "user-1",
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Scope:        "user-read-playback-state",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}

	t.Run("retains refresh token when response omits it", func(t *testing.T) {
		tokenEndpoint(t, auth, http.StatusOK, `{
			"access_token": "access-2",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)

		refreshed, err := auth.Refresh(context.Background(), stored)
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}

		if refreshed.AccessToken != "access-2" {
			t.Errorf("expected access-2, got %q", refreshed.AccessToken)
		}
		if refreshed.RefreshToken != "refresh-1" {
			t.Errorf("prior refresh token should be retained, got %q", refreshed.RefreshToken)
		}
		if refreshed.UserID != "user-1" {
			t.Errorf("user binding should be retained, got %q", refreshed.UserID)
		}
		if refreshed.Scope != "user-read-playback-state" {
			t.Errorf("scope should be retained, got %q", refreshed.Scope)
		}
	})

	t.Run("classifies invalid_grant as revocation", func(t *testing.T) {
		tokenEndpoint(t, auth, http.StatusBadRequest, `{"error": "invalid_grant", "error_description": "Refresh token revoked"}`)

		_, err := auth.Refresh(context.Background(), stored)
		if !errors.Is(err, shared.ErrTokenRevoked) {
			t.Errorf("expected ErrTokenRevoked, got %v", err)
		}
		if !errors.Is(err, shared.ErrReauthRequired) {
			t.Errorf("revocation should require relinking, got %v", err)
		}
	})

	t.Run("plain invalid_grant is not revocation", func(t *testing.T) {
		tokenEndpoint(t, auth, http.StatusBadRequest, `{"error": "invalid_grant", "error_description": "Invalid refresh token"}`)

		_, err := auth.Refresh(context.Background(), stored)
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.Is(err, shared.ErrTokenRevoked) {
			t.Error("invalid_grant without a revoked description must not purge credentials")
		}
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Errorf("expected an AuthError, got %v", err)
		}
	})

	t.Run("server failure is not revocation", func(t *testing.T) {
		tokenEndpoint(t, auth, http.StatusInternalServerError, `{}`)

		_, err := auth.Refresh(context.Background(), stored)
		if err == nil {
			t.Fatal("expected error")
		}
		if errors.Is(err, shared.ErrTokenRevoked) {
			t.Error("5xx must not be classified as revocation")
		}
	})

	t.Run("missing refresh token", func(t *testing.T) {
		_, err := auth.Refresh(context.Background(), &models.SpotifyTokens{UserID: "user-1"})
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})
}
