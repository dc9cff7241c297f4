package repositories

import (
	"database/sql"
	"fmt"
	"time"
)

// Denial reasons reported by [RateLimitRepository.Check].
const (
	DenyDailyLimit = "daily_limit"
	DenyCooldown   = "cooldown"
	DenyProcessing = "processing"
)

// CheckResult is the outcome of a rate limit check for one user.
type CheckResult struct {
	Allowed     bool
	Reason      string
	RequestDate string
	RetryAfter  time.Duration
}

// RateLimitRepository enforces the per-user mix quota: a daily request cap, a
// cooldown between consecutive requests, and a processing guard that rejects
// overlapping requests while one is in flight.
//
// The day window is computed in UTC so every user rolls over at the same
// instant regardless of client locale.
type RateLimitRepository struct {
	db            *sql.DB
	dailyLimit    int
	cooldown      time.Duration
	processingTTL time.Duration
}

// NewRateLimitRepository creates a new [RateLimitRepository] with the given
// database connection and quota parameters.
func NewRateLimitRepository(db *sql.DB, dailyLimit int, cooldown, processingTTL time.Duration) *RateLimitRepository {
	return &RateLimitRepository{db: db, dailyLimit: dailyLimit, cooldown: cooldown, processingTTL: processingTTL}
}

// RequestDate returns the UTC day key for the given instant.
func RequestDate(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// Admit runs the check-increment-mark sequence inside one immediate-lock
// transaction. When the request is allowed, the counter is incremented and the
// processing guard armed before returning; when denied, nothing changes.
func (r *RateLimitRepository) Admit(userID string, now time.Time) (CheckResult, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := r.Check(tx, userID, now)
	if err != nil {
		return CheckResult{}, err
	}
	if !result.Allowed {
		return result, nil
	}

	if err := r.Increment(tx, userID, now); err != nil {
		return CheckResult{}, err
	}
	if err := r.MarkProcessing(tx, userID, now); err != nil {
		return CheckResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return CheckResult{}, fmt.Errorf("failed to commit rate limit admission: %w", err)
	}

	return result, nil
}

// Check evaluates the quota for a user. An expired processing guard, left by
// a crash that never reached ClearProcessing, is removed from the row before
// the remaining quotas are evaluated.
func (r *RateLimitRepository) Check(q querier, userID string, now time.Time) (CheckResult, error) {
	date := RequestDate(now)
	result := CheckResult{RequestDate: date}

	var (
		count           int
		lastRequestAt   sql.NullInt64
		processingUntil sql.NullInt64
	)

	query := `
		SELECT request_count, last_request_at, processing_until
		FROM mix_rate_limits
		WHERE user_id = ? AND request_date = ?
	`
	err := q.QueryRow(query, userID, date).Scan(&count, &lastRequestAt, &processingUntil)
	if err == sql.ErrNoRows {
		result.Allowed = true
		return result, nil
	}
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to query rate limit: %w", err)
	}

	if processingUntil.Valid {
		if processingUntil.Int64 > now.Unix() {
			result.Reason = DenyProcessing
			result.RetryAfter = time.Duration(processingUntil.Int64-now.Unix()) * time.Second
			return result, nil
		}
		clear := `UPDATE mix_rate_limits SET processing_until = NULL WHERE user_id = ? AND request_date = ?`
		if _, err := q.Exec(clear, userID, date); err != nil {
			return CheckResult{}, fmt.Errorf("failed to clear stale processing guard: %w", err)
		}
	}

	if count >= r.dailyLimit {
		result.Reason = DenyDailyLimit
		return result, nil
	}

	if lastRequestAt.Valid {
		elapsed := now.Sub(time.Unix(lastRequestAt.Int64, 0))
		if elapsed < r.cooldown {
			result.Reason = DenyCooldown
			result.RetryAfter = r.cooldown - elapsed
			return result, nil
		}
	}

	result.Allowed = true
	return result, nil
}

// Increment records one admitted request against the user's day window.
func (r *RateLimitRepository) Increment(q querier, userID string, now time.Time) error {
	query := `
		INSERT INTO mix_rate_limits (user_id, request_date, request_count, last_request_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, request_date) DO UPDATE SET
			request_count = request_count + 1,
			last_request_at = excluded.last_request_at
	`
	if _, err := q.Exec(query, userID, RequestDate(now), now.Unix()); err != nil {
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return nil
}

// MarkProcessing arms the in-flight guard until the processing TTL elapses.
func (r *RateLimitRepository) MarkProcessing(q querier, userID string, now time.Time) error {
	until := now.Add(r.processingTTL).Unix()
	query := `
		INSERT INTO mix_rate_limits (user_id, request_date, request_count, processing_until)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(user_id, request_date) DO UPDATE SET
			processing_until = excluded.processing_until
	`
	if _, err := q.Exec(query, userID, RequestDate(now), until); err != nil {
		return fmt.Errorf("failed to mark processing: %w", err)
	}
	return nil
}

// ClearProcessing drops the in-flight guard for a user across all day windows.
// Clearing a guard that was never set is a no-op.
func (r *RateLimitRepository) ClearProcessing(userID string) error {
	if _, err := r.db.Exec(`UPDATE mix_rate_limits SET processing_until = NULL WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear processing: %w", err)
	}
	return nil
}
