// Package repomanager provides a concrete RepositoryManager for SQLite,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/migrations"
	"github.com/ipsvault/ips/internal/server/repositories/checkresults"
	"github.com/ipsvault/ips/internal/server/repositories/refreshtokens"
	"github.com/ipsvault/ips/internal/server/repositories/resources"
	"github.com/ipsvault/ips/internal/server/repositories/tasks"
	"github.com/ipsvault/ips/internal/server/repositories/users"
	"github.com/pressly/goose/v3"
)

// SQLiteRepositoryManager vends SQLite-backed repository implementations
// and exposes a schema migration hook.
type SQLiteRepositoryManager struct {
	logger logging.Logger
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewSQLiteRepository(db)
}

// RefreshTokens returns a refreshtokens.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewSQLiteRepository(db)
}

// Resources returns a resources.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) Resources(db dbx.DBTX) resources.Repository {
	return resources.NewSQLiteRepository(db)
}

// Tasks returns a tasks.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) Tasks(db dbx.DBTX) tasks.Repository {
	return tasks.NewSQLiteRepository(db)
}

// CheckResults returns a checkresults.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) CheckResults(db dbx.DBTX) checkresults.Repository {
	return checkresults.NewSQLiteRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(&gooseLogger{ctx: ctx, l: m.logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewSQLiteRepositoryManager constructs a SQLite-backed RepositoryManager.
func NewSQLiteRepositoryManager(logger logging.Logger) (RepositoryManager, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SQLiteRepositoryManager{logger: logger.With("module", "migrations")}, nil
}

// gooseLogger routes goose output into the structured logger.
type gooseLogger struct {
	ctx context.Context
	l   logging.Logger
}

func (g *gooseLogger) Printf(format string, v ...interface{}) {
	g.l.Info(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g *gooseLogger) Fatalf(format string, v ...interface{}) {
	g.l.Error(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}
