package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
	"github.com/mattn/go-sqlite3"
)

// AuthStateRepository persists pending OAuth authorization states.
//
// Rows are single use. Consume deletes on read so a replayed callback with a
// captured state token finds nothing.
type AuthStateRepository struct {
	db *sql.DB
}

// NewAuthStateRepository creates a new [AuthStateRepository] with the given database connection
func NewAuthStateRepository(db *sql.DB) *AuthStateRepository {
	return &AuthStateRepository{db: db}
}

// Insert stores a pending state record, returning [shared.ErrStateCollision]
// when the state token already exists so the caller can regenerate.
func (r *AuthStateRepository) Insert(state *models.AuthState) error {
	var userID any
	if state.UserID != "" {
		userID = state.UserID
	}

	query := `
		INSERT INTO auth_states (state, user_id, code_verifier, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, state.State, userID, state.CodeVerifier, time.Now().Unix())
	if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.Code == sqlite3.ErrConstraint {
		return shared.ErrStateCollision
	}
	if err != nil {
		return fmt.Errorf("failed to insert auth state: %w", err)
	}

	return nil
}

// Consume atomically retrieves and deletes the record for a state token,
// returning [shared.ErrStateNotFound] for unknown or already used tokens.
func (r *AuthStateRepository) Consume(state string) (*models.AuthState, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		record models.AuthState
		userID sql.NullString
	)

	query := `SELECT state, user_id, code_verifier FROM auth_states WHERE state = ?`
	err = tx.QueryRow(query, state).Scan(&record.State, &userID, &record.CodeVerifier)
	if err == sql.ErrNoRows {
		return nil, shared.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query auth state: %w", err)
	}
	record.UserID = userID.String

	if _, err := tx.Exec(`DELETE FROM auth_states WHERE state = ?`, state); err != nil {
		return nil, fmt.Errorf("failed to consume auth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit auth state consumption: %w", err)
	}

	return &record, nil
}

// DeleteExpired removes pending states older than maxAge and reports how many
// rows were cleared.
func (r *AuthStateRepository) DeleteExpired(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := r.db.Exec(`DELETE FROM auth_states WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired auth states: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}
