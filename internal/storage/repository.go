package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"refdesk/internal/core"

	_ "modernc.org/sqlite"
)

// incrementRetries bounds the read-modify-write retry loop. SQLite allows a
// single writer at a time, so concurrent increments from other connections
// surface as busy errors that are safe to retry.
const incrementRetries = 5

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// The busy timeout must ride on the DSN so every pooled connection
	// gets it; a plain Exec'd PRAGMA only reaches one connection.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %v", core.ErrStoreUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", core.ErrStoreUnavailable, err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Increment implements tally.Incrementer. The first increment of a day
// creates the row stamped with creation time and actor; later increments
// add 1 to the named category and restamp update time, actor and version.
// The whole read-modify-write runs in one transaction, retried a bounded
// number of times on lock contention.
func (r *SQLiteRepository) Increment(ctx context.Context, day core.Day, categoryID, actor string) (core.DailyTally, error) {
	if err := day.Validate(); err != nil {
		return core.DailyTally{}, err
	}
	if !core.IsCategoryID(categoryID) {
		return core.DailyTally{}, fmt.Errorf("%w: %q", core.ErrUnknownCategory, categoryID)
	}

	var lastErr error
	for attempt := 0; attempt < incrementRetries; attempt++ {
		tally, err := r.incrementOnce(ctx, day, categoryID, actor)
		if err == nil {
			slog.InfoContext(ctx, "Tally incremented",
				"day", day,
				"category", categoryID,
				"count", tally.Count(categoryID),
				"version", tally.Version)
			return tally, nil
		}
		if !isBusy(err) {
			return core.DailyTally{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return core.DailyTally{}, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 25 * time.Millisecond):
		}
	}

	return core.DailyTally{}, fmt.Errorf("%w: increment %s/%s after %d attempts: %v",
		core.ErrTransactionConflict, day, categoryID, incrementRetries, lastErr)
}

func (r *SQLiteRepository) incrementOnce(ctx context.Context, day core.Day, categoryID, actor string) (core.DailyTally, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.DailyTally{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_tallies (day, created_at, updated_at, updated_by, version, sync_status)
		VALUES (?, ?, ?, ?, 0, 'pending')
		ON CONFLICT(day) DO NOTHING`,
		day.String(), now, now, actor)
	if err != nil {
		return core.DailyTally{}, fmt.Errorf("ensure day row: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE daily_tallies
		SET updated_at = ?, updated_by = ?, version = version + 1, sync_status = 'pending'
		WHERE day = ?`,
		now, actor, day.String())
	if err != nil {
		return core.DailyTally{}, fmt.Errorf("stamp day row: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tally_counts (day, category, count)
		VALUES (?, ?, 1)
		ON CONFLICT(day, category) DO UPDATE SET count = count + 1`,
		day.String(), categoryID)
	if err != nil {
		return core.DailyTally{}, fmt.Errorf("increment count: %w", err)
	}

	tally, ok, err := readDay(ctx, tx, day)
	if err != nil {
		return core.DailyTally{}, err
	}
	if !ok {
		return core.DailyTally{}, fmt.Errorf("day row vanished inside transaction: %s", day)
	}

	if err := tx.Commit(); err != nil {
		return core.DailyTally{}, fmt.Errorf("commit: %w", err)
	}
	return tally, nil
}

// GetDay implements tally.DayReader.
func (r *SQLiteRepository) GetDay(ctx context.Context, day core.Day) (core.DailyTally, bool, error) {
	return readDay(ctx, r.db, day)
}

// ListRecentDays implements tally.WeekReader: the n most recently dated
// tallies, re-sorted ascending. The day key is authoritative for recency.
func (r *SQLiteRepository) ListRecentDays(ctx context.Context, n int) ([]core.DailyTally, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day FROM (
			SELECT day FROM daily_tallies ORDER BY day DESC LIMIT ?
		) ORDER BY day ASC`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent days: %w", err)
	}
	defer rows.Close()

	var keys []core.Day
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		keys = append(keys, core.Day(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent days: %w", err)
	}

	tallies := make([]core.DailyTally, 0, len(keys))
	for _, d := range keys {
		t, ok, err := readDay(ctx, r.db, d)
		if err != nil {
			return nil, err
		}
		if ok {
			tallies = append(tallies, t)
		}
	}
	return tallies, nil
}

// ListPendingDays returns days whose mirror is outstanding, oldest first.
func (r *SQLiteRepository) ListPendingDays(ctx context.Context, limit int) ([]core.Day, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day FROM daily_tallies
		WHERE sync_status IN ('pending', 'error')
		ORDER BY day ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending days: %w", err)
	}
	defer rows.Close()

	var days []core.Day
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan pending day: %w", err)
		}
		days = append(days, core.Day(d))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending days: %w", err)
	}
	return days, nil
}

// MarkSynced records a successful mirror of the given version. A day that
// was incremented again while mirroring stays pending.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, day core.Day, version int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE daily_tallies SET sync_status = 'synced'
		WHERE day = ? AND version = ?`,
		day.String(), version)
	if err != nil {
		return fmt.Errorf("mark day synced: %w", err)
	}
	slog.InfoContext(ctx, "Day marked as synced", "day", day, "version", version)
	return nil
}

// MarkSyncError flags a day whose mirror failed so the periodic sweep
// retries it.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, day core.Day) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE daily_tallies SET sync_status = 'error' WHERE day = ?`,
		day.String())
	if err != nil {
		return fmt.Errorf("mark day sync error: %w", err)
	}
	slog.WarnContext(ctx, "Day marked with sync error", "day", day)
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readDay(ctx context.Context, q querier, day core.Day) (core.DailyTally, bool, error) {
	tally := core.EmptyTally(day)

	err := q.QueryRowContext(ctx, `
		SELECT created_at, updated_at, updated_by, version
		FROM daily_tallies WHERE day = ?`,
		day.String()).Scan(&tally.CreatedAt, &tally.UpdatedAt, &tally.UpdatedBy, &tally.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return tally, false, nil
	}
	if err != nil {
		return core.DailyTally{}, false, fmt.Errorf("read day %s: %w", day, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT category, count FROM tally_counts WHERE day = ?`,
		day.String())
	if err != nil {
		return core.DailyTally{}, false, fmt.Errorf("read counts for %s: %w", day, err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return core.DailyTally{}, false, fmt.Errorf("scan count: %w", err)
		}
		tally.Counts[category] = count
	}
	if err := rows.Err(); err != nil {
		return core.DailyTally{}, false, fmt.Errorf("iterate counts: %w", err)
	}

	return tally, true, nil
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
