package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// SQLiteStore implements Store on a single SQLite file. Useful for a single
// instance that should keep its cache across restarts without running a server.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and ensures the table exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent lookups
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createEntriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Get implements Store.Get. Expired rows read as a miss and are left for Purge.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: sqlite get: %v", ErrUnavailable, err)
	}
	if s.now().UnixMilli() >= expiresAt {
		return "", false, nil
	}
	return value, true, nil
}

// Set implements Store.Set.
func (s *SQLiteStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, s.now().Add(ttl).UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("%w: sqlite set: %v", ErrUnavailable, err)
	}
	return nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite purge: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
