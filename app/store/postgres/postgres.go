// Package postgres persists user sets in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/gatekeeper/app/store"
	"github.com/m3rciful/gatekeeper/core/logger"
)

const (
	// TablePending holds users awaiting verification.
	TablePending = "pending_verifications"
	// TableUsage holds users who used the daily feature.
	TableUsage = "feature_usage"
)

// Set is a user set backed by a single table with a user_id primary key.
type Set struct {
	db    *sqlx.DB
	table string
}

// NewPending returns the pending verification set.
func NewPending(db *sqlx.DB) *Set {
	return &Set{db: db, table: TablePending}
}

// NewUsage returns the feature usage set.
func NewUsage(db *sqlx.DB) *Set {
	return &Set{db: db, table: TableUsage}
}

func (s *Set) Add(ctx context.Context, userID int64) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return false, s.fail(ctx, "insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail(ctx, "insert", err)
	}
	s.trace(ctx, "insert", start, n)
	return n == 1, nil
}

func (s *Set) Remove(ctx context.Context, userID int64) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE user_id = $1`, userID)
	if err != nil {
		return false, s.fail(ctx, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.fail(ctx, "delete", err)
	}
	s.trace(ctx, "delete", start, n)
	return n > 0, nil
}

func (s *Set) Contains(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM `+s.table+` WHERE user_id = $1)`, userID)
	if err != nil {
		return false, s.fail(ctx, "select", err)
	}
	return exists, nil
}

func (s *Set) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+s.table); err != nil {
		return 0, s.fail(ctx, "count", err)
	}
	return n, nil
}

func (s *Set) MarkUsed(ctx context.Context, userID int64) (bool, error) {
	return s.Add(ctx, userID)
}

func (s *Set) Used(ctx context.Context, userID int64) (bool, error) {
	return s.Contains(ctx, userID)
}

func (s *Set) fail(ctx context.Context, op string, err error) error {
	logger.Error(ctx, logger.CompDB, "db.query",
		slog.String("status", "fail"),
		slog.String("op", op),
		slog.String("table", s.table),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("%s %s: %w", op, s.table, err)
}

func (s *Set) trace(ctx context.Context, op string, start time.Time, rows int64) {
	if !logger.SampleDebug(ctx, "db.query."+op) {
		return
	}
	logger.Debug(ctx, logger.CompDB, "db.query",
		slog.String("status", "ok"),
		slog.String("op", op),
		slog.String("table", s.table),
		slog.Int64("rows", rows),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
}

var (
	_ store.PendingStore = (*Set)(nil)
	_ store.UsageStore   = (*Set)(nil)
)
