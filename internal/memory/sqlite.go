package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// SQLiteStore is a Store backed by a local SQLite database, so history
// survives process restarts.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// cap is the number of messages kept per session.
	cap int
}

// DefaultDBPath returns the default path for the conversation history database.
// It resolves to ~/.ragbot/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("memory: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".ragbot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("memory: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// OpenSQLite opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests. A
// non-positive capacity uses DefaultCap.
func OpenSQLite(path string, capacity int) (*SQLiteStore, error) {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	// One connection: a single writer, and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, cap: capacity}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session     TEXT    NOT NULL,
    role        TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content     TEXT    NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_messages_session_id
    ON messages (session, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("memory: migrate: %w", err)
	}
	return nil
}

// Append inserts msgs and deletes everything but the newest cap rows for
// the session inside one transaction.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, msgs ...Message) (err error) {
	if sessionID == "" {
		return apperr.Validation("memory: session id is required")
	}
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Dependency("memory: begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insert = `INSERT INTO messages (session, role, content, created_at) VALUES (?, ?, ?, ?)`
	for _, m := range stamp(msgs, time.Now()) {
		if _, err = tx.ExecContext(ctx, insert, sessionID, string(m.Role), m.Content, m.CreatedAt.UnixMilli()); err != nil {
			return apperr.Dependency("memory: append", err)
		}
	}

	const trim = `
DELETE FROM messages
WHERE  session = ?
AND    id NOT IN (
    SELECT id FROM messages WHERE session = ? ORDER BY id DESC LIMIT ?
)`
	if _, err = tx.ExecContext(ctx, trim, sessionID, sessionID, s.cap); err != nil {
		return apperr.Dependency("memory: trim", err)
	}

	if err = tx.Commit(); err != nil {
		return apperr.Dependency("memory: commit", err)
	}
	return nil
}

// History returns the session's messages oldest-first.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]Message, error) {
	if sessionID == "" {
		return nil, apperr.Validation("memory: session id is required")
	}

	const q = `SELECT role, content, created_at FROM messages WHERE session = ? ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, apperr.Dependency("memory: history", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, s.cap)
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, apperr.Dependency("memory: history scan", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Dependency("memory: history rows", err)
	}
	return msgs, nil
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("memory: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("memory: close: %w", err)
	}
	return nil
}
