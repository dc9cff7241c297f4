package server

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mixbot/internal/repositories"
	"github.com/desertthunder/mixbot/internal/services"
	"github.com/desertthunder/mixbot/internal/shared"
	"github.com/desertthunder/mixbot/internal/tasks"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func setupAuthHandler(t *testing.T) (*AuthHandler, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)

	auth, err := services.NewAuthenticator(shared.SpotifyConfig{
		ClientID:    "test_client_id",
		RedirectURI: "http://localhost:3000/spotify/callback",
		Scopes:      "playlist-modify-private",
	})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	engine := tasks.NewMixEngine(tasks.MixEngineDeps{
		Users:  repositories.NewUserRepository(db),
		Tokens: repositories.NewTokenRepository(db),
		States: repositories.NewAuthStateRepository(db),
		Limits: repositories.NewRateLimitRepository(db, 20, 30*time.Second, time.Minute),
		Auth:   auth,
		Cache:  services.NewMemoryTokenCache(),
	})

	return NewAuthHandler(engine, nil), db
}

func TestBasicRouter(t *testing.T) {
	t.Run("method filtering", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("middleware wraps handlers", func(t *testing.T) {
		var order []string
		router := NewBasicRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, "first")
				next.ServeHTTP(w, r)
			})
		})
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, "second")
				next.ServeHTTP(w, r)
			})
		})
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected middleware order: %v", order)
		}
	})
}

func TestHealthHandler(t *testing.T) {
	db := setupTestDB(t)
	handler := NewHealthHandler(db)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestAuthHandler(t *testing.T) {
	t.Run("login redirects to the consent page", func(t *testing.T) {
		handler, _ := setupAuthHandler(t)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/login?telegram_id=4242&username=listener", nil))

		if rec.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", rec.Code)
		}
		location := rec.Header().Get("Location")
		if !strings.Contains(location, "accounts.spotify.com/authorize") {
			t.Errorf("unexpected redirect target: %s", location)
		}
		if !strings.Contains(location, "code_challenge=") {
			t.Errorf("redirect missing PKCE challenge: %s", location)
		}
	})

	t.Run("login requires a telegram id", func(t *testing.T) {
		handler, _ := setupAuthHandler(t)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/login", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("callback rejects an unknown state", func(t *testing.T) {
		handler, _ := setupAuthHandler(t)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/callback?state=bogus&code=abc", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Link Expired") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("callback surfaces provider denial", func(t *testing.T) {
		handler, _ := setupAuthHandler(t)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spotify/callback?error=access_denied", nil))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "access_denied") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})
}
