// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: the whole dependency chain — store →
// repositories → services → handlers — is wired here, in one place, and
// main.go just calls New and Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/everypoll/internal/auth"
	"github.com/sakif/everypoll/internal/handler"
	"github.com/sakif/everypoll/internal/middleware"
	sqliteRepo "github.com/sakif/everypoll/internal/repository/sqlite"
	"github.com/sakif/everypoll/internal/service"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port               int
	DBPath             string
	StaticDir          string // React bundle; skipped when empty
	SessionSecret      string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
}

// Server owns the router, the database connection and the config. The DB is
// closed during graceful shutdown in Start.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server: opens the database (running migrations), wires the
// services and handlers, and mounts the routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	// Expired sessions are rejected at read time anyway; this just keeps
	// the table from growing forever.
	if n, err := db.Sessions().DeleteExpired(context.Background(), time.Now()); err != nil {
		logger.Warn("expired session cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("expired sessions removed", slog.Int64("count", n))
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                      → liveness probe
//	GET  /api/auth/me                  → resolve-or-create session user
//	POST /api/auth/login               → Google authorization URL
//	GET  /api/auth/google-callback     → OAuth callback (browser navigation)
//	POST /api/auth/logout              → destroy session
//	GET  /api/feed                     → paginated feed        (auth)
//	GET  /api/feed/mine                → authored polls        (auth)
//	GET  /api/feed/voted               → voted polls           (auth)
//	POST /api/poll                     → create poll           (auth)
//	GET  /api/poll/{id}                → result view + chain   (auth)
//	POST /api/poll/{id}/vote           → cast vote             (auth)
//	GET  /api/poll/{id}/search         → cross-ref candidates  (auth)
//	/*                                 → static SPA bundle (if configured)
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.SessionSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	google := auth.NewGoogleProvider(
		s.config.GoogleClientID,
		s.config.GoogleClientSecret,
		s.config.GoogleCallbackURL,
	)

	authSvc := service.NewAuthService(s.db.Users(), s.db.Sessions(), tokens, s.logger)
	pollSvc := service.NewPollService(s.db.Polls(), s.db.Votes(), s.logger)
	resultSvc := service.NewResultService(s.db.Polls(), s.db.Votes(), s.db, s.logger)

	authHandler := handler.NewAuthHandler(authSvc, google, tokens, s.logger)
	pollHandler := handler.NewPollHandler(pollSvc, resultSvc, s.logger)
	feedHandler := handler.NewFeedHandler(pollSvc, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.router.Route("/api", func(r chi.Router) {
		// Session endpoints resolve the cookie themselves: /me is the one
		// place a session gets created, so it can't sit behind RequireUser.
		r.Get("/auth/me", authHandler.HandleMe)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Get("/auth/google-callback", authHandler.HandleCallback)
		r.Post("/auth/logout", authHandler.HandleLogout)

		// Everything else needs a resolved session user.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(authSvc))

			r.Get("/feed", feedHandler.HandleFeed)
			r.Get("/feed/mine", feedHandler.HandleMine)
			r.Get("/feed/voted", feedHandler.HandleVoted)

			r.Post("/poll", pollHandler.HandleCreate)
			r.Get("/poll/{id}", pollHandler.HandleGet)
			r.Post("/poll/{id}/vote", pollHandler.HandleVote)
			r.Get("/poll/{id}/search", pollHandler.HandleSearch)
		})
	})

	// Serve the frontend bundle when configured; API-only deployments run
	// without it.
	if s.config.StaticDir != "" {
		fileServer := http.FileServer(http.Dir(s.config.StaticDir))
		s.router.Handle("/*", fileServer)
	}

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests (30s),
// close the database (flushes the WAL, releases the file lock).
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
