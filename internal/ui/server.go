// Package ui serves the workbench over HTTP: a JSON API over the session
// engine and a datastar SSE stream of session snapshots.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/workbench/internal/project"
	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	"github.com/leapstack-labs/workbench/internal/ui/router"
)

// Server is the UI server.
type Server struct {
	sessions *common.Sessions
	project  *project.Project
	port     int
	watch    bool
	logger   *slog.Logger
}

// Config holds configuration for the UI server.
type Config struct {
	Sessions *common.Sessions
	// Project is watched for file changes when Watch is set.
	Project *project.Project
	Port    int
	Watch   bool
	Logger  *slog.Logger
}

// NewCookieStore creates the cookie store holding workspace identities.
// secure must be false when the server speaks plain HTTP, otherwise clients
// never send the cookie back.
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(86400 * 30) // 30 days
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// NewServer creates a new UI server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		sessions: cfg.Sessions,
		project:  cfg.Project,
		port:     cfg.Port,
		watch:    cfg.Watch && cfg.Project != nil,
		logger:   logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
		middleware.Compress(5, "application/json", "text/html", "text/css"),
	)
	if err := router.SetupRoutes(r, s.sessions, s.logger); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}
	return r, nil
}

// Serve starts the UI server and blocks until the context is cancelled.
// Sessions are flushed in the background and once more on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting UI server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		return s.sessions.Run(egctx)
	})

	if s.watch {
		eg.Go(func() error {
			return s.project.Watch(egctx, project.DefaultDebounce, func(paths []string) {
				s.onFilesChanged(egctx, paths)
			})
		})
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down UI server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// onFilesChanged refreshes the catalog of every open session and pings all
// SSE clients so file trees and completions are re-read.
func (s *Server) onFilesChanged(ctx context.Context, paths []string) {
	s.logger.Debug("project files changed", "count", len(paths))
	for _, m := range s.sessions.All() {
		if _, err := m.RefreshMetadata(ctx); err != nil {
			s.logger.Warn("failed to refresh metadata", "workspace_id", m.WorkspaceID(), "error", err)
		}
	}
	s.sessions.Notifier().Broadcast("")
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
