// Package httpapi exposes the ips services over a JSON REST API built on gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/services"
	"github.com/rs/cors"
)

const shutdownTimeout = 10 * time.Second

type HTTPServer struct {
	address   string
	cfg       *config.Config
	users     *services.UserService
	resources *services.ResourceService
	tasks     *services.TaskService
	checks    *services.CheckService
	reports   *services.ReportService
	logger    logging.Logger
}

func NewHTTPServer(cfg *config.Config, l logging.Logger, us *services.UserService, rs *services.ResourceService,
	ts *services.TaskService, cs *services.CheckService, reps *services.ReportService) *HTTPServer {
	return &HTTPServer{
		address:   cfg.HTTPAddr,
		cfg:       cfg,
		users:     us,
		resources: rs,
		tasks:     ts,
		checks:    cs,
		reports:   reps,
		logger:    l.With("module", "http_server"),
	}
}

// Handler builds the router wrapped in the CORS policy.
func (s *HTTPServer) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog())
	router.MaxMultipartMemory = 32 << 20

	api := router.Group("/api")
	{
		api.POST("/register", s.register)
		api.POST("/login", s.login)
		api.POST("/token/refresh", s.refreshToken)

		api.GET("/resources/summary", s.resourceSummary)
		api.GET("/resources/:id/content", s.resourceContent)
		api.GET("/resources/:id/download", s.resourceDownload)
		api.GET("/report/:id", s.downloadReport)

		api.POST("/compare/code", s.compareCode)
		api.POST("/compare/images", s.limitBody(), s.compareImages)

		authed := api.Group("", s.requireAuth())
		authed.POST("/upload", s.limitBody(), s.uploadResource)
		authed.POST("/assets/create", s.limitBody(), s.createAsset)
		authed.GET("/resources", s.listResources)
		authed.GET("/resources/:id", s.resourceDetail)
		authed.DELETE("/resources/:id", s.deleteResource)
		authed.POST("/resources/:id/certify", s.certifyResource)

		authed.POST("/upload-zip", s.limitBody(), s.uploadZip)
		authed.GET("/tasks/:taskId", s.getTask)
		authed.GET("/users/:userId/tasks", s.listUserTasks)

		authed.POST("/check-external-url", s.checkExternalURL)
		authed.POST("/generate-report", s.generateReport)
	}
	router.GET("/verify/:certificateNo", s.verifyCertificate)

	// serve the built front end for unmatched routes
	if st, err := os.Stat(s.cfg.StaticDir); err == nil && st.IsDir() {
		router.Use(static.Serve("/", static.LocalFile(s.cfg.StaticDir, true)))
	}

	return cors.New(s.corsOptions()).Handler(router)
}

func (s *HTTPServer) corsOptions() cors.Options {
	origins := []string{s.cfg.CORSOrigin}
	if s.cfg.CORSOrigin == "" {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: s.cfg.CORSOrigin != "" && s.cfg.CORSOrigin != "*",
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
