// Package sqlite provides SQLite-based persistent storage for the
// progression engine. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// FileName is the database file created inside the data dir.
const FileName = "progression.db"

// DB wraps a SQLite connection with WAL mode and migrations.
// It implements domain.Store.
type DB struct {
	db *sql.DB
}

var _ domain.Store = (*DB)(nil)

// Open creates or opens the SQLite database at dir/progression.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, FileName)
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return domain.StoreError("sqlite.ping", d.db.PingContext(ctx))
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Append-only activity ledger. seq orders entries sharing a timestamp.
		`CREATE TABLE IF NOT EXISTS ledger (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			user_id         TEXT NOT NULL,
			kind            TEXT NOT NULL,
			points          INTEGER NOT NULL CHECK (points >= 0),
			score           INTEGER CHECK (score BETWEEN 0 AND 100),
			description     TEXT NOT NULL DEFAULT '',
			occurred_at     INTEGER NOT NULL,
			idempotency_key TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger(user_id, occurred_at, seq)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_idem
			ON ledger(user_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,

		// Derived per-user record, written by compare-and-swap on version.
		`CREATE TABLE IF NOT EXISTS user_progress (
			user_id     TEXT PRIMARY KEY,
			total_xp    INTEGER NOT NULL CHECK (total_xp >= 0),
			level       INTEGER NOT NULL CHECK (level >= 1),
			version     INTEGER NOT NULL,
			applied_seq INTEGER NOT NULL DEFAULT 0,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_xp ON user_progress(total_xp DESC, user_id)`,

		// One row per (user, achievement), ever.
		`CREATE TABLE IF NOT EXISTS unlocked_achievements (
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			xp_reward      INTEGER NOT NULL,
			unlocked_at    INTEGER NOT NULL,
			PRIMARY KEY (user_id, achievement_id)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			shown      BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user ON notifications(user_id, shown, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// affected returns the rows touched by r, wrapping a driver failure.
func affected(op string, r sql.Result) (int64, error) {
	n, err := r.RowsAffected()
	if err != nil {
		return 0, domain.StoreError(op, err)
	}
	return n, nil
}
