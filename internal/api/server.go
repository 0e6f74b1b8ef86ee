// Package api exposes the tutoring platform over HTTP.
//
// Routes:
//
//	POST /api/knowledge-bases                 create a knowledge base
//	GET  /api/knowledge-bases                 list knowledge bases
//	GET  /api/knowledge-bases/{id}            get one knowledge base
//	POST /api/knowledge-bases/{id}/content    ingest a document
//	POST /api/search                          similarity search
//	POST /api/sessions                        start a tutoring session
//	GET  /api/sessions/{id}                   get session with history
//	POST /api/sessions/{id}/end               end a session
//	POST /api/sessions/{id}/query             ask within a session
//	POST /api/sessions/{id}/feedback          rate a response
//	POST /api/chunks/{id}/validations         record a validation (educator)
//	GET  /api/chunks/{id}/validations         validation history
//	POST /api/learning-paths                  plan a learning path
//	GET  /api/recommendations                 recommend review content
//	GET  /health, GET /ready, GET /metrics
//
// All /api routes require a Bearer token; validation recording additionally
// requires the educator role.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/learnpath"
	"github.com/rgknow/edurag/internal/tutor"
	"github.com/rgknow/edurag/internal/validation"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against Slowloris-style clients.
	ReadHeaderTimeout = 10 * time.Second

	ReadTimeout  = 30 * time.Second
	WriteTimeout = 120 * time.Second
	IdleTimeout  = 120 * time.Second
)

// Server routes HTTP requests to the domain services.
type Server struct {
	mux *http.ServeMux

	knowledge   *knowledge.Service
	manager     *tutor.Manager
	responder   *tutor.Responder
	validator   *validation.Validator
	paths       *learnpath.Engine
	recommender *learnpath.Recommender

	jwtSecret []byte
	logger    *slog.Logger
	ready     func(context.Context) error
}

// Config carries the server's dependencies.
type Config struct {
	Knowledge   *knowledge.Service
	Manager     *tutor.Manager
	Responder   *tutor.Responder
	Validator   *validation.Validator
	Paths       *learnpath.Engine
	Recommender *learnpath.Recommender

	JWTSecret []byte
	Logger    *slog.Logger

	// Ready reports backing-store health for the readiness probe; nil
	// means always ready.
	Ready func(context.Context) error
}

// NewServer registers all routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:         http.NewServeMux(),
		knowledge:   cfg.Knowledge,
		manager:     cfg.Manager,
		responder:   cfg.Responder,
		validator:   cfg.Validator,
		paths:       cfg.Paths,
		recommender: cfg.Recommender,
		jwtSecret:   cfg.JWTSecret,
		logger:      logger,
		ready:       cfg.Ready,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	api := http.NewServeMux()
	api.HandleFunc("POST /api/knowledge-bases", s.handleCreateKnowledgeBase)
	api.HandleFunc("GET /api/knowledge-bases", s.handleListKnowledgeBases)
	api.HandleFunc("GET /api/knowledge-bases/{id}", s.handleGetKnowledgeBase)
	api.HandleFunc("POST /api/knowledge-bases/{id}/content", s.handleProcessContent)
	api.HandleFunc("POST /api/search", s.handleSearch)

	api.HandleFunc("POST /api/sessions", s.handleStartSession)
	api.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	api.HandleFunc("POST /api/sessions/{id}/end", s.handleEndSession)
	api.HandleFunc("POST /api/sessions/{id}/query", s.handleQuery)
	api.HandleFunc("POST /api/sessions/{id}/feedback", s.handleFeedback)

	api.HandleFunc("POST /api/chunks/{id}/validations", requireEducator(s.handleValidate))
	api.HandleFunc("GET /api/chunks/{id}/validations", s.handleValidationHistory)

	api.HandleFunc("POST /api/learning-paths", s.handleLearningPath)
	api.HandleFunc("GET /api/recommendations", s.handleRecommend)

	s.mux.Handle("/api/", authMiddleware(s.jwtSecret)(api))
}

// Handler returns the full middleware stack:
// recovery -> logging -> metrics -> routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		metricsMiddleware,
	)
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
