// Package server wires the application together and runs the HTTP server.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  └─ sqlite.DB (CredentialStore, health.Checker)
//	       ├─ service.AuthService ─ handler.AuthHandler
//	       └─ health.Service ────── handler.HealthHandler
//
// Every dependency is built here and nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/luciOnel/PCSHOP/internal/auth"
	"github.com/luciOnel/PCSHOP/internal/config"
	"github.com/luciOnel/PCSHOP/internal/handler"
	"github.com/luciOnel/PCSHOP/internal/health"
	"github.com/luciOnel/PCSHOP/internal/middleware"
	sqliteRepo "github.com/luciOnel/PCSHOP/internal/repository/sqlite"
	"github.com/luciOnel/PCSHOP/internal/service"
)

// Server owns the router and the database. Close (or Run) releases the database.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database, applies migrations and builds the routes.
//
// IMPORT ALIAS: repository/sqlite is imported as sqliteRepo so it does not
// read like the driver package.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDir(cfg.Database.Path); err != nil {
		return nil, err
	}

	db, err := sqliteRepo.New(ctx, sqliteRepo.Options{
		Path:         cfg.Database.Path,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
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

	return s, nil
}

// ensureDir creates the directory holding the database file.
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	return nil
}

// setupRoutes mounts middleware and handlers.
//
// ROUTES:
//
//	POST /api/register  → create an account
//	POST /api/login     → check credentials, audited
//	GET  /api/health    → liveness
//	GET  /api/ready     → readiness (pings the database)
//	GET  /*             → storefront static files, index.html fallback
//
// MIDDLEWARE ORDER: RequestID and RealIP first so the logger sees both,
// Recoverer inside the logger so a recovered panic is logged as a 500,
// CORS last so preflight requests are still logged.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(s.config.HTTP.CORSOrigins))

	passwords, err := auth.NewPasswordService(s.config.Auth.BcryptCost)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(s.db, passwords, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	healthHandler := handler.NewHealthHandler(health.NewService(s.db))

	s.router.Route("/api", func(r chi.Router) {
		r.NotFound(handler.NotFound)
		r.MethodNotAllowed(handler.MethodNotAllowed)

		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/health", healthHandler.HandleHealth)
		r.Get("/ready", healthHandler.HandleReady)
	})

	storefront, err := handler.NewStorefrontHandler(s.config.Storefront.StaticDir, s.logger)
	if err != nil {
		return fmt.Errorf("creating storefront handler: %w", err)
	}
	if storefront != nil {
		s.router.Handle("/*", storefront)
	} else {
		s.router.NotFound(handler.NotFound)
	}

	return nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start listens on the configured port until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		s.db.Close()
		return fmt.Errorf("listening on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is done, then shuts down gracefully:
//  1. stop accepting connections
//  2. wait up to http.shutdownTimeout for in-flight requests
//  3. close the database
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.db.Close()

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("database", s.config.Database.Path),
		)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
