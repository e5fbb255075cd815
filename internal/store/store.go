// Package store provides a SQLite-backed conversation history store. Each
// conversation keeps the user's prior query turns so follow-up questions can
// be decontextualized against them. Turns are persisted across server
// restarts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Turn is a single query turn in a conversation.
type Turn struct {
	// Query is the user's query text for this turn.
	Query string
	// Site is the site scope the query was asked against.
	Site string
	// CreatedAt is when the turn was persisted.
	CreatedAt time.Time
}

// TurnStore persists and retrieves query turns keyed by conversation ID.
// Implementations must be safe for concurrent use.
type TurnStore interface {
	// Append persists a single query turn for the given conversation.
	Append(ctx context.Context, conversationID, site, queryText string) error
	// Recent returns the most recent n turns for the conversation, ordered
	// oldest-first so they can feed decontextualization directly.
	// If fewer than n turns exist, all are returned.
	Recent(ctx context.Context, conversationID string, n int) ([]Turn, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a TurnStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the conversation history
// database. It resolves to ~/.askweb/history.db, creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".askweb")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL,
    site            TEXT    NOT NULL DEFAULT '',
    query           TEXT    NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation_created
    ON turns (conversation_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single query turn for the given conversation.
func (s *SQLiteStore) Append(ctx context.Context, conversationID, site, queryText string) error {
	const q = `INSERT INTO turns (conversation_id, site, query, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, conversationID, site, queryText, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n turns for the conversation, ordered
// oldest-first. Uses a subquery to select the tail then re-order for injection.
func (s *SQLiteStore) Recent(ctx context.Context, conversationID string, n int) ([]Turn, error) {
	const q = `
SELECT query, site, created_at FROM (
    SELECT id, query, site, created_at
    FROM   turns
    WHERE  conversation_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var ts int64
		if err := rows.Scan(&t.Query, &t.Site, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		t.CreatedAt = time.Unix(ts, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return turns, nil
}

// Queries returns just the query text of the most recent n turns,
// oldest-first, ready to use as a query's prior-turn list.
func (s *SQLiteStore) Queries(ctx context.Context, conversationID string, n int) ([]string, error) {
	turns, err := s.Recent(ctx, conversationID, n)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Query
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
