// Package ratelimit throttles clients that keep presenting bad admin tokens.
package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrTooManyFailures = errors.New("too many failed authentication attempts, please try again later")

// DB is the subset of *sqlx.DB the limiter uses.
type DB interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type RateLimiter struct {
	db     DB
	window time.Duration
	limit  int
	now    func() time.Time
}

// New allows limit failures per client address within window.
func New(db DB, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{db: db, window: window, limit: limit, now: time.Now}
}

// Check fails with ErrTooManyFailures once ip has used up its failures.
func (r *RateLimiter) Check(ctx context.Context, ip string) error {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM auth_failures
		WHERE ip_address = $1 AND created_at > $2`,
		ip, r.now().Add(-r.window),
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check auth rate limit: %w", err)
	}

	if count >= r.limit {
		return ErrTooManyFailures
	}
	return nil
}

func (r *RateLimiter) RecordFailure(ctx context.Context, ip string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_failures (ip_address, created_at)
		VALUES ($1, $2)`,
		ip, r.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record auth failure: %w", err)
	}
	return nil
}

// CleanupOldAttempts drops failures older than the window.
func (r *RateLimiter) CleanupOldAttempts(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_failures
		WHERE created_at < $1`,
		r.now().Add(-r.window),
	)
	if err != nil {
		return fmt.Errorf("failed to cleanup old attempts: %w", err)
	}
	return nil
}
