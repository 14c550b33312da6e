package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"eventbell/internal/event"
	logx "eventbell/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	loc *time.Location
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.SQLite.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; runs are sequential anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, loc: cfg.Location, log: log}

	if cfg.SQLite.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.SQLite.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const selectEvents = `SELECT id, title, scheduled_at, notify_before_minutes, notified FROM events`

func (s *sqliteStore) QueryRange(ctx context.Context, q RangeQuery) ([]event.Record, error) {
	where := []string{"notified = ?"}
	args := []any{boolInt(q.Notified)}
	if q.Start != nil {
		where = append(where, "scheduled_at >= ?")
		args = append(args, q.Start.Unix())
	}
	if q.End != nil {
		where = append(where, "scheduled_at < ?")
		args = append(args, q.End.Unix())
	}
	return s.query(ctx, selectEvents+" WHERE "+strings.Join(where, " AND ")+" ORDER BY scheduled_at ASC, id ASC", args...)
}

func (s *sqliteStore) QueryUnnotifiedBefore(ctx context.Context, t time.Time) ([]event.Record, error) {
	return s.query(ctx, selectEvents+" WHERE notified = 0 AND scheduled_at < ? ORDER BY scheduled_at ASC, id ASC", t.Unix())
}

func (s *sqliteStore) SetNotified(ctx context.Context, id string, v bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE events SET notified = ? WHERE id = ?`, boolInt(v), id)
	if err != nil {
		return fmt.Errorf("%w: event %s: %w", ErrUpdate, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: event %s not found", ErrUpdate, id)
	}
	return nil
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]event.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer rows.Close()

	var out []event.Record
	for rows.Next() {
		var (
			id       string
			title    sql.NullString
			at       sql.NullInt64
			before   sql.NullInt64
			notified int64
		)
		if err := rows.Scan(&id, &title, &at, &before, &notified); err != nil {
			return nil, fmt.Errorf("%w: scan: %w", ErrQuery, err)
		}
		out = append(out, s.decodeRow(id, title, at, before, notified))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return out, nil
}

func (s *sqliteStore) decodeRow(id string, title sql.NullString, at, before sql.NullInt64, notified int64) event.Record {
	if !at.Valid {
		return event.Malformed(id, "missing scheduled_at")
	}
	ev := event.Event{
		ID:          id,
		Title:       strings.TrimSpace(title.String),
		ScheduledAt: time.Unix(at.Int64, 0).In(s.loc),
		Notified:    notified != 0,
	}
	if before.Valid && before.Int64 >= 0 {
		ev.NotifyBefore = event.Minutes(int(before.Int64))
	}
	return event.OK(ev)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
