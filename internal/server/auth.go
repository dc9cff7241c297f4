package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
	"github.com/desertthunder/mixbot/internal/tasks"
)

// AuthHandler serves the Spotify account linking endpoints.
//
// /spotify/login starts a flow for a Telegram user and redirects to the
// consent page; /spotify/callback receives the provider redirect and
// completes the link.
type AuthHandler struct {
	engine *tasks.MixEngine
	logger *log.Logger
}

// NewAuthHandler creates an [AuthHandler] over the mix engine.
func NewAuthHandler(engine *tasks.MixEngine, logger *log.Logger) *AuthHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &AuthHandler{engine: engine, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/spotify/login", "/spotify/callback"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/spotify/login":
		h.login(w, r)
	case "/spotify/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

// login starts a linking flow for the Telegram user in the query string and
// redirects to the consent page.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(r.URL.Query().Get("telegram_id"), 10, 64)
	if err != nil || telegramID == 0 {
		http.Error(w, "Missing or invalid telegram_id", http.StatusBadRequest)
		return
	}

	profile := models.UserProfile{
		TelegramID: telegramID,
		Username:   r.URL.Query().Get("username"),
		FirstName:  r.URL.Query().Get("first_name"),
	}

	authURL, err := h.engine.StartAuthorization(profile)
	if err != nil {
		h.logger.Error("failed to start authorization", "telegram_id", telegramID, "error", err)
		http.Error(w, "Failed to start authorization", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// callback completes the flow from the provider redirect.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Warn("authorization denied", "error", errParam)
		writePage(w, http.StatusBadRequest, "Authorization Failed", "Spotify reported: "+errParam)
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		writePage(w, http.StatusBadRequest, "Authorization Failed", "Missing state or code parameter.")
		return
	}

	user, err := h.engine.CompleteAuthorization(r.Context(), state, code)
	switch {
	case errors.Is(err, shared.ErrStateNotFound):
		writePage(w, http.StatusBadRequest, "Link Expired", "This authorization link was already used or has expired. Start again from the bot.")
		return
	case err != nil:
		h.logger.Error("failed to complete authorization", "error", err)
		writePage(w, http.StatusInternalServerError, "Authorization Failed", "Something went wrong while linking your account. Try again from the bot.")
		return
	}

	h.logger.Info("account linked", "user", user.ID)
	writePage(w, http.StatusOK, "Account Linked", "Your Spotify account is connected. You can close this window and return to Telegram.")
}

// writePage renders a minimal self-contained status page.
func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(status)
	fmt.Fprintf(w, `
<!DOCTYPE html>
<html>
<head>
    <title>%s</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`, title, title, message)
}
