package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// BuildSQLiteDSN turns a file path into a modernc DSN with the pragmas the
// server relies on. Values that already look like a DSN are returned as is.
func BuildSQLiteDSN(path string, busyTimeout time.Duration) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("sqlite path required")
	}
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sqlite path: %w", err)
	}
	busy := int(busyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", abs, busy), nil
}

// OpenSQLite opens the database and pings it. The pool is capped at one
// connection: SQLite has a single writer and the task workers write
// concurrently.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*sql.DB, error) {
	dsn, err := BuildSQLiteDSN(path, busyTimeout)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// IsUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
