// Package audit keeps a Postgres trail of log subscription lifecycle events.
// Only who subscribed to what is stored, never the log records themselves.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperboria-dev/cjdns/internal/logging"
)

const (
	ActionSubscribed   = "subscribed"
	ActionUnsubscribed = "unsubscribed"
)

// Event is one row of the trail.
type Event struct {
	ID        int64     `db:"id" json:"id"`
	StreamID  string    `db:"stream_id" json:"streamId"`
	Action    string    `db:"action" json:"action"`
	Level     string    `db:"level" json:"level"`
	File      string    `db:"file" json:"file,omitempty"`
	Line      int       `db:"line" json:"line,omitempty"`
	TxID      string    `db:"txid" json:"txid"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// DB is the subset of *sqlx.DB the recorder uses.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Recorder writes lifecycle events. It implements logging.Observer.
type Recorder struct {
	db      DB
	timeout time.Duration
	logger  *slog.Logger
}

func NewRecorder(db DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		db:      db,
		timeout: 5 * time.Second,
		logger:  logger.With("component", "audit"),
	}
}

func (r *Recorder) Subscribed(info logging.SubscriptionInfo) {
	r.record(ActionSubscribed, info)
}

func (r *Recorder) Unsubscribed(info logging.SubscriptionInfo) {
	r.record(ActionUnsubscribed, info)
}

func (r *Recorder) record(action string, info logging.SubscriptionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.Insert(ctx, action, info); err != nil {
		r.logger.Warn("failed to record subscription event",
			"action", action,
			"stream_id", info.StreamID.String(),
			"error", err,
		)
	}
}

// Insert stores one event.
func (r *Recorder) Insert(ctx context.Context, action string, info logging.SubscriptionInfo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_events (stream_id, action, level, file, line, txid)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		info.StreamID.String(), action, info.Level.String(), info.File, info.Line, info.TxID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	events := []Event{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT id, stream_id, action, level, file, line, txid, created_at
		FROM subscription_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription events: %w", err)
	}
	return events, nil
}
