// Package audit persists one row per tool invocation: which tool, in which
// session, how it ended and how long it took. Arguments and results are
// never stored.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"modbot/internal/domain"
)

// SQLiteStore implements domain.AuditStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.AuditStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, rec domain.InvocationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations (session_id, tool, state, reached, error_kind, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Tool, string(rec.State), string(rec.Reached),
		rec.ErrorKind, rec.Error, rec.DurationMs, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.InvocationRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, tool, state, reached, error_kind, error, duration_ms, created_at
		 FROM invocations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.InvocationRecord
	for rows.Next() {
		var (
			rec            domain.InvocationRecord
			state, reached string
			createdMs      int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Tool, &state, &reached,
			&rec.ErrorKind, &rec.Error, &rec.DurationMs, &createdMs); err != nil {
			return nil, err
		}
		rec.State = domain.InvocationState(state)
		rec.Reached = domain.InvocationState(reached)
		rec.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary aggregates calls, failures and mean duration per tool, busiest
// tool first.
func (s *SQLiteStore) Summary(ctx context.Context) ([]domain.ToolUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool,
		        COUNT(*),
		        SUM(CASE WHEN state = ? THEN 1 ELSE 0 END),
		        CAST(AVG(duration_ms) AS INTEGER)
		 FROM invocations GROUP BY tool ORDER BY COUNT(*) DESC, tool ASC`,
		string(domain.StateFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ToolUsage
	for rows.Next() {
		var u domain.ToolUsage
		if err := rows.Scan(&u.Tool, &u.Calls, &u.Failures, &u.AvgMillis); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Prune deletes records older than retention and returns how many were
// removed. A zero retention keeps everything.
func (s *SQLiteStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM invocations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned audit records", "count", n)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
