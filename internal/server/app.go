// Package server initializes and runs the ips application server.
// It opens the database, applies migrations, selects the blob backend,
// wires the services and serves the REST API until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/httpapi"
	"github.com/ipsvault/ips/internal/server/report"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
	"github.com/ipsvault/ips/internal/server/services"
	"github.com/ipsvault/ips/internal/server/storage"
)

const (
	busyTimeout          = 5 * time.Second
	tokenCleanupInterval = time.Hour
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blob        storage.Blob
	reports     *report.Cache
}

// NewApp opens the database, runs migrations and prepares storage.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel)

	db, err := dbx.OpenSQLite(ctx, c.DatabaseDSN, busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewSQLiteRepositoryManager(logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("repository manager init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	blob, err := storage.New(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	reports, err := report.NewCache(c.ReportDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("report dir init error: %w", err)
	}

	return &App{config: c, logger: logger, db: db, repomanager: rm, blob: blob, reports: reports}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc, tasks *services.TaskService) {
	s := httpapi.NewHTTPServer(app.config, app.logger,
		services.NewUserService(app.db, app.repomanager, app.config),
		services.NewResourceService(app.db, app.repomanager, app.blob, app.config, app.logger),
		tasks,
		services.NewCheckService(app.db, app.repomanager, app.blob, app.config, app.logger),
		services.NewReportService(app.db, app.repomanager, app.reports, app.config),
	)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// cleanupTokens drops expired refresh tokens periodically.
func (app *App) cleanupTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := app.repomanager.RefreshTokens(app.db).DeleteExpired(ctx, now.UTC())
			if err != nil {
				app.logger.Warn(ctx, "refresh token cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Debug(ctx, "expired refresh tokens removed", "count", n)
			}
		}
	}
}

// Run serves until a signal arrives or the server fails, then waits for
// background scans and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	gin.SetMode(gin.ReleaseMode)
	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	tasks := services.NewTaskService(ctx, app.db, app.repomanager, app.blob, app.config, app.logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc, tasks)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.cleanupTokens(ctx)
	}()

	wg.Wait()
	tasks.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.WithoutCancel(ctx), "db close error", "error", err)
	}
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
}
