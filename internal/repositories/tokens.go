package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
)

// TokenRepository persists Spotify credentials, one row per linked user.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Save writes the token record in a single upsert statement so a concurrent
// save for the same user can never interleave between a read and a write.
//
// An empty RefreshToken on a refresh response means the provider retained the
// prior grant; callers preserve the stored refresh token before saving, so the
// row always overwrites whole.
func (r *TokenRepository) Save(tokens *models.SpotifyTokens) error {
	query := `
		INSERT INTO spotify_tokens (user_id, access_token, refresh_token, scope, token_type, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			scope = excluded.scope,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	var refresh any
	if tokens.RefreshToken != "" {
		refresh = tokens.RefreshToken
	}

	_, err := r.db.Exec(query, tokens.UserID, tokens.AccessToken, refresh, tokens.Scope, tokens.TokenType, tokens.ExpiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	return nil
}

// Load retrieves the token record for a user id, returning
// [shared.ErrNotAuthorized] when no Spotify account is linked.
func (r *TokenRepository) Load(userID string) (*models.SpotifyTokens, error) {
	query := `
		SELECT user_id, access_token, refresh_token, scope, token_type, expires_at
		FROM spotify_tokens
		WHERE user_id = ?
	`
	return r.scanTokens(r.db.QueryRow(query, userID))
}

// LoadByTelegramID retrieves the token record for a Telegram account id.
func (r *TokenRepository) LoadByTelegramID(telegramID int64) (*models.SpotifyTokens, error) {
	query := `
		SELECT t.user_id, t.access_token, t.refresh_token, t.scope, t.token_type, t.expires_at
		FROM spotify_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE u.telegram_id = ?
	`
	return r.scanTokens(r.db.QueryRow(query, telegramID))
}

// Delete removes the token record for a user. Deleting an absent row is not
// an error; revocation cleanup may race with the user unlinking.
func (r *TokenRepository) Delete(userID string) error {
	if _, err := r.db.Exec(`DELETE FROM spotify_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

func (r *TokenRepository) scanTokens(row *sql.Row) (*models.SpotifyTokens, error) {
	var (
		tokens    models.SpotifyTokens
		refresh   sql.NullString
		expiresAt int64
	)

	err := row.Scan(&tokens.UserID, &tokens.AccessToken, &refresh, &tokens.Scope, &tokens.TokenType, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, shared.ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}

	tokens.RefreshToken = refresh.String
	tokens.ExpiresAt = time.Unix(expiresAt, 0)

	return &tokens, nil
}
