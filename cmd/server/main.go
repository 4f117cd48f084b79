package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/liamcoop/cstt/internal/config"
	"github.com/liamcoop/cstt/internal/logger"
	"github.com/liamcoop/cstt/project"
	"github.com/liamcoop/cstt/testdata"
	_ "github.com/lib/pq"
)

type Server struct {
	db       *sql.DB
	manager  *project.Manager
	router   *chi.Mux
	validate *validator.Validate
	metrics  *metrics
	tokens   []string
}

// NewServer creates a server backed by PostgreSQL when cfg names a database
// and by memory otherwise
func NewServer(cfg config.Config) (*Server, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, test data is kept in memory only")
		return NewServerWithManager(project.NewInMemoryManager(cacheConfig(cfg)), nil, cfg), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewServerWithDB(db, cfg)
}

// NewServerWithDB creates a server over an open database and loads every
// project's catalog
func NewServerWithDB(db *sql.DB, cfg config.Config) (*Server, error) {
	manager := project.NewPostgresManager(db, cacheConfig(cfg))

	logger.Info("Loading projects from database...")
	if err := manager.LoadAll(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}

	return NewServerWithManager(manager, db, cfg), nil
}

// NewServerWithManager creates a server over manager. db may be nil.
func NewServerWithManager(manager *project.Manager, db *sql.DB, cfg config.Config) *Server {
	s := &Server{
		db:       db,
		manager:  manager,
		validate: newValidator(),
		metrics:  newMetrics(),
		tokens:   cfg.APITokens,
	}
	s.setupRoutes()
	return s
}

func cacheConfig(cfg config.Config) testdata.CacheConfig {
	return testdata.CacheConfig{TTL: cfg.CacheTTL}
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.metrics.instrument)

	r.Get("/api/v1/health", s.handleHealth)
	r.Method(http.MethodGet, "/api/v1/metrics", s.metrics.handler())

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.tokens))

		r.Post("/api/v1/format", s.handleFormat)

		r.Route("/api/v1/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)

			r.Route("/{projectId}/test-cases", func(r chi.Router) {
				r.Get("/", s.handleListTestCases)
				r.Post("/", s.handleCreateTestCase)
				r.Get("/{testCaseId}", s.handleGetTestCase)
				r.Put("/{testCaseId}", s.handleUpdateTestCase)
				r.Delete("/{testCaseId}", s.handleDeleteTestCase)
			})

			r.Route("/{projectId}/test-data", func(r chi.Router) {
				r.Get("/", s.handleListTestData)
				r.Post("/", s.handleCreateTestData)
				r.Post("/generate", s.handleGenerate)
				r.Get("/{testDataId}", s.handleGetTestData)
				r.Put("/{testDataId}", s.handleUpdateTestData)
				r.Delete("/{testDataId}", s.handleDeleteTestData)
				r.Get("/{testDataId}/download", s.handleDownload)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "auth", len(cfg.APITokens) > 0)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}

	logger.Info("Server stopped")
}
