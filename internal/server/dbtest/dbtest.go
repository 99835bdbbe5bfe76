// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/server/migrations"
	"github.com/pressly/goose/v3"
)

// Open returns a fresh file-backed database in t.TempDir with every
// migration applied. It is closed on test cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := dbx.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ips.db"), time.Second)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatalf("goose dialect: %v", err)
	}
	if err := goose.UpContext(context.Background(), db, "."); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// InsertUser adds a user row and returns its id.
func InsertUser(t testing.TB, db *sql.DB, username string) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		`INSERT INTO users (username, email, password) VALUES (?, ?, ?) RETURNING id`,
		username, username+"@example.com", "x",
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}
