package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/internal/browser"
	"github.com/kestrelsec/agentgate/internal/config"
	"github.com/kestrelsec/agentgate/internal/llmclient"
	"github.com/kestrelsec/agentgate/internal/registry"
	"github.com/kestrelsec/agentgate/internal/service"
	"github.com/kestrelsec/agentgate/internal/store"
	"github.com/kestrelsec/agentgate/internal/worker"
)

// Server hosts the HTTP API and owns the long-lived services behind it.
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	dbPool     *pgxpool.Pool
	dispatcher *worker.Dispatcher
	browserMgr *browser.Manager
	httpServer *http.Server
	handlers   *Handlers
}

// New wires the server from configuration: registries, the interpreter's LLM
// handle, the background dispatcher and, when a database URL is set, the
// execution store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	reg := registry.Default()

	client, err := llmclient.NewClient(ctx, config.ProviderOpenAI, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build interpreter LLM client: %w", err)
	}
	interpreter := service.NewInterpreter(client, logger)
	resolver := service.NewConditionResolver(client, logger)

	dispatcher := worker.NewDispatcher(cfg.Queue, logger)
	browserMgr := browser.NewManager(cfg.Browser, logger)

	var pool *pgxpool.Pool
	var execStore ExecutionStore
	var recorder service.ExecutionRecorder
	if cfg.Database.URL == "" {
		logger.Warn("Database URL (AGENTGATE_DATABASE_URL) is not set. Proceeding without execution persistence.")
	} else {
		pool, err = pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		st, err := store.New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		execStore = st
		recorder = st
		logger.Info("Execution store connected.")
	}

	executor := service.NewExecutor(reg, browserMgr, resolver, recorder, logger)
	handlers := NewHandlers(logger, reg, interpreter, executor, dispatcher, execStore, cfg.Frameworks.Dir)

	return &Server{
		cfg:        cfg,
		logger:     logger,
		dbPool:     pool,
		dispatcher: dispatcher,
		browserMgr: browserMgr,
		handlers:   handlers,
	}, nil
}

// Router builds the chi routing stack.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	r.Use(corsMiddleware)

	s.handlers.RegisterRoutes(r)
	return r
}

// Start runs the HTTP listener until SIGINT/SIGTERM, then shuts down
// gracefully: listener first, then the dispatcher drain, then the database.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Router(),
	}

	s.logger.Info("HTTP server starting", zap.String("address", s.cfg.Server.ListenAddr))

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.RequestTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}

		s.dispatcher.Stop()
		s.browserMgr.Shutdown()

		if s.dbPool != nil {
			s.logger.Info("Closing database connections...")
			s.dbPool.Close()
		}

		close(idleConnsClosed)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server ListenAndServe error", zap.Error(err))
		s.dispatcher.Stop()
		s.browserMgr.Shutdown()
		if s.dbPool != nil {
			s.dbPool.Close()
		}
		return err
	}

	<-idleConnsClosed
	s.logger.Info("Server stopped.")
	return nil
}

// corsMiddleware allows cross-origin access for local tooling.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
