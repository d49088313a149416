package subscriptions

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/resq-app/resq-backend/internal/logging"

	// sqlite driver
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

const sqliteSchema = `CREATE TABLE IF NOT EXISTS push_subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	p256dh TEXT NOT NULL,
	auth TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(user_id, endpoint)
);`

const sqliteUpsert = `INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, enabled, created_at, updated_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(user_id, endpoint) DO UPDATE SET
	p256dh = excluded.p256dh,
	auth = excluded.auth,
	updated_at = excluded.updated_at
RETURNING user_id, endpoint, p256dh, auth, enabled, created_at, updated_at`

const sqliteColumns = `user_id, endpoint, p256dh, auth, enabled, created_at, updated_at`

// SQLite stores subscriptions in a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the schema. ":memory:" keeps
// everything in memory.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	logger := logging.FromContext(ctx).Named("subscriptions.OpenSQLite")

	dsn := memoryPath
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Debugf("Opened subscription store at %v", path)

	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Subscribe upserts the (userID, endpoint) record.
func (s *SQLite) Subscribe(ctx context.Context, userID, endpoint string, keys Keys) (*Subscription, error) {
	if err := checkKey(userID, endpoint); err != nil {
		return nil, err
	}
	if err := checkKeys(keys); err != nil {
		return nil, err
	}

	ts := timeNow().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(ctx, sqliteUpsert, userID, endpoint, keys.P256dh, keys.Auth, ts, ts)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes the record.
func (s *SQLite) Unsubscribe(ctx context.Context, userID, endpoint string) (bool, error) {
	if err := checkKey(userID, endpoint); err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?`, userID, endpoint)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return affected(res)
}

// SetEnabled toggles one or all of the user's records.
func (s *SQLite) SetEnabled(ctx context.Context, userID, endpoint string, enabled bool) (bool, error) {
	if err := checkUser(userID); err != nil {
		return false, err
	}

	ts := timeNow().Format(time.RFC3339Nano)

	var (
		res sql.Result
		err error
	)
	if endpoint == AllEndpoints {
		res, err = s.db.ExecContext(ctx,
			`UPDATE push_subscriptions SET enabled = ?, updated_at = ? WHERE user_id = ?`,
			enabled, ts, userID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE push_subscriptions SET enabled = ?, updated_at = ? WHERE user_id = ? AND endpoint = ?`,
			enabled, ts, userID, endpoint)
	}
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	return affected(res)
}

// ListEnabled returns the user's enabled records.
func (s *SQLite) ListEnabled(ctx context.Context, userID string) ([]Subscription, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM push_subscriptions WHERE user_id = ? AND enabled = 1 ORDER BY endpoint`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row scanner) (*Subscription, error) {
	var (
		sub                  Subscription
		createdAt, updatedAt string
	)
	if err := row.Scan(&sub.UserID, &sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &sub.Enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if sub.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sub.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &sub, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
