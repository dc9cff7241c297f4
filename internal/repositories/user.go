package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mixbot/internal/models"
	"github.com/desertthunder/mixbot/internal/shared"
)

// UserRepository persists [models.User] rows keyed by internal uuid with a
// unique index on the Telegram account id.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Ensure upserts a user record for the given Telegram profile and returns the
// stored row. Profile attributes are refreshed on every call so the stored
// username tracks renames.
func (r *UserRepository) Ensure(profile models.UserProfile) (*models.User, error) {
	if existing, err := r.GetByTelegramID(profile.TelegramID); err == nil {
		now := time.Now()
		query := `
			UPDATE users
			SET username = ?, first_name = ?, last_name = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := r.db.Exec(query, profile.Username, profile.FirstName, profile.LastName, now, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to update user profile: %w", err)
		}
		existing.Username = profile.Username
		existing.FirstName = profile.FirstName
		existing.LastName = profile.LastName
		existing.UpdatedAt = now
		return existing, nil
	}

	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	user := &models.User{
		ID:         shared.GenerateID(),
		Sequence:   sequence,
		TelegramID: profile.TelegramID,
		Username:   profile.Username,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO users (id, sequence, telegram_id, username, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, user.ID, user.Sequence, user.TelegramID, user.Username, user.FirstName, user.LastName, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return user, nil
}

// Get retrieves a user by internal id
func (r *UserRepository) Get(id string) (*models.User, error) {
	query := `
		SELECT id, sequence, telegram_id, username, first_name, last_name, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	return r.scanUser(r.db.QueryRow(query, id), id)
}

// GetByTelegramID retrieves a user by Telegram account id
func (r *UserRepository) GetByTelegramID(telegramID int64) (*models.User, error) {
	query := `
		SELECT id, sequence, telegram_id, username, first_name, last_name, created_at, updated_at
		FROM users
		WHERE telegram_id = ?
	`
	return r.scanUser(r.db.QueryRow(query, telegramID), fmt.Sprintf("telegram:%d", telegramID))
}

func (r *UserRepository) scanUser(row *sql.Row, ref string) (*models.User, error) {
	var (
		user     models.User
		username sql.NullString
		first    sql.NullString
		last     sql.NullString
	)

	err := row.Scan(&user.ID, &user.Sequence, &user.TelegramID, &username, &first, &last, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user.Username = username.String
	user.FirstName = first.String
	user.LastName = last.String

	return &user, nil
}
