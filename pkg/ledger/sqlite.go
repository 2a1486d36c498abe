package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	platform      TEXT NOT NULL,
	post_id       TEXT NOT NULL,
	post_url      TEXT NOT NULL,
	reply_content TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	UNIQUE(platform, post_id)
);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(platform, created_at);
`

const (
	defaultBusyTimeout = 10 * time.Second
	maxRetries         = 3
)

// SQLite is a Ledger backed by a SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// SQLiteOption configures a SQLite ledger.
type SQLiteOption func(*sqliteConfig)

type sqliteConfig struct {
	busyTimeout time.Duration
	now         func() time.Time
}

// WithBusyTimeout sets how long a connection waits on a locked database
// before reporting SQLITE_BUSY. Default: 10s.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(c *sqliteConfig) { c.busyTimeout = d }
}

// WithClock sets the time source for records without a CreatedAt.
func WithClock(now func() time.Time) SQLiteOption {
	return func(c *sqliteConfig) { c.now = now }
}

// OpenSQLite opens (creating when missing) the ledger at path with WAL
// journaling and a busy timeout applied to every pooled connection.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLite, error) {
	cfg := sqliteConfig{busyTimeout: defaultBusyTimeout, now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: mkdir: %w", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, cfg.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: journal mode: %w", ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: schema: %w", ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}

	return &SQLite{db: db, now: cfg.now}, nil
}

// dsn builds a connection string whose pragmas apply to each new connection.
func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLite) HasInteracted(ctx context.Context, platform, postID string) (bool, error) {
	var exists int
	err := retry(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM interactions WHERE platform = ? AND post_id = ?)`,
			platform, postID).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("%w: lookup %s/%s: %w", ErrUnavailable, platform, postID, err)
	}
	return exists == 1, nil
}

func (s *SQLite) Record(ctx context.Context, rec Record) (bool, error) {
	if err := rec.validate(); err != nil {
		return false, err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	var affected int64
	err := retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO interactions (platform, post_id, post_url, reply_content, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(platform, post_id) DO NOTHING`,
			rec.Platform, rec.PostID, rec.PostURL, rec.Reply, created.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: record %s/%s: %w", ErrUnavailable, rec.Platform, rec.PostID, err)
	}
	return affected == 1, nil
}

func (s *SQLite) List(ctx context.Context, platform string, limit int) ([]Record, error) {
	query := `SELECT platform, post_id, post_url, reply_content, created_at FROM interactions`
	var args []any
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var out []Record
	err := retry(ctx, func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var rec Record
			var created string
			if err := rows.Scan(&rec.Platform, &rec.PostID, &rec.PostURL, &rec.Reply, &created); err != nil {
				return err
			}
			rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
			if err != nil {
				return fmt.Errorf("parse created_at %q: %w", created, err)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list: %w", ErrUnavailable, err)
	}
	return out, nil
}

func (s *SQLite) Count(ctx context.Context, platform string) (int, error) {
	query := `SELECT COUNT(*) FROM interactions`
	var args []any
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}

	var n int
	err := retry(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrUnavailable, err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// retry runs fn, retrying up to 3 times with 100/200/300 ms backoff while
// the database reports busy.
func retry(ctx context.Context, fn func() error) error {
	var err error
	for i := range maxRetries {
		err = fn()
		if err == nil || !isBusy(err) || i == maxRetries-1 {
			return err
		}
		timer := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

var _ Ledger = (*SQLite)(nil)
