// Package server is the REST facade over the sixfold services: ontology
// CRUD, auth, payments, Shopify webhooks and sync, and job queue
// introspection.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sixfold/sixfold/auth"
	"github.com/sixfold/sixfold/config"
	"github.com/sixfold/sixfold/errors"
	"github.com/sixfold/sixfold/jobs"
	"github.com/sixfold/sixfold/ontology"
	"github.com/sixfold/sixfold/payments"
	"github.com/sixfold/sixfold/shopify"
)

// Server wires the services behind one HTTP listener and owns the
// background worker pool's lifecycle.
type Server struct {
	cfg    *config.Config
	db     *sql.DB
	logger *zap.SugaredLogger

	ontology    *ontology.Service
	authSvc     *auth.Service
	authMW      *auth.Middleware
	daemon      *jobs.WorkerPool
	payments    *payments.Service
	shopifyWH   *shopify.WebhookProcessor
	shopifySync *shopify.SyncService

	mux        *http.ServeMux
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New assembles the server from configuration. Optional integrations
// (embeddings, email) degrade to disabled when unconfigured.
func New(cfg *config.Config, db *sql.DB, logger *zap.SugaredLogger) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var embedder ontology.Embedder
	if cfg.Embeddings.Enabled && cfg.Embeddings.APIKey != "" {
		embedder = ontology.NewOpenAIEmbedder(cfg.Embeddings.APIKey, cfg.Embeddings.BaseURL, cfg.Embeddings.Model)
	}
	ontologySvc := ontology.NewService(db, embedder, logger)

	jwtManager, err := auth.NewJWTManager(&cfg.Auth)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to initialize JWT manager")
	}
	var mailer auth.Mailer
	if cfg.Email.ResendAPIKey != "" {
		mailer = auth.NewResendMailer(cfg.Email.ResendAPIKey, cfg.Email.From)
	}
	authSvc := auth.NewService(auth.NewStore(db), jwtManager, mailer, &cfg.Auth, logger)

	poolCfg := jobs.DefaultWorkerPoolConfig()
	if cfg.Jobs.Workers > 0 {
		poolCfg.Workers = cfg.Jobs.Workers
	}
	if cfg.Jobs.PollSeconds > 0 {
		poolCfg.PollInterval = time.Duration(cfg.Jobs.PollSeconds) * time.Second
	}
	if cfg.Jobs.MaxAttempts > 0 {
		poolCfg.MaxAttempts = cfg.Jobs.MaxAttempts
	}
	if cfg.Jobs.RetainDays > 0 {
		poolCfg.Retention = time.Duration(cfg.Jobs.RetainDays) * 24 * time.Hour
	}
	daemon := jobs.NewWorkerPool(ctx, db, poolCfg, logger)

	shopifyClient := shopify.NewClient(&cfg.Shopify, logger)
	syncSvc := shopify.NewSyncService(db, shopifyClient, ontologySvc, cfg.Shopify.ShopDomain, cfg.Shopify.PageSize, logger)
	syncSvc.RegisterHandlers(daemon.Registry())

	verifier := shopify.NewWebhookVerifier(cfg.Shopify.WebhookSecret)
	webhookProc := shopify.NewWebhookProcessor(db, daemon.Queue(), verifier, logger)

	s := &Server{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		ontology:    ontologySvc,
		authSvc:     authSvc,
		authMW:      auth.NewMiddleware(authSvc, logger),
		daemon:      daemon,
		payments:    payments.NewService(db, &cfg.Stripe, ontologySvc, logger),
		shopifyWH:   webhookProc,
		shopifySync: syncSvc,
		ctx:         ctx,
		cancel:      cancel,
	}
	s.mux = http.NewServeMux()
	s.setupRoutes()

	return s, nil
}

// Start binds the listener and runs the worker pool. Blocks until the
// listener fails or Stop is called.
func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port == 0 {
		port = config.DefaultServerPort
	}

	s.daemon.Start()
	go s.sessionCleanupLoop()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	s.logger.Infow("Server listening", "port", port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "HTTP server failed")
	}
	return nil
}

// sessionCleanupLoop periodically removes expired sessions until the
// server is stopped
func (s *Server) sessionCleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.authSvc.CleanupExpiredSessions(s.ctx)
			if err != nil {
				s.logger.Warnw("Failed to cleanup expired sessions", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Debugw("Removed expired sessions", "count", removed)
			}
		}
	}
}

// Stop drains in-flight requests and stops the worker pool
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Server shutting down")

	var shutdownErr error
	if s.httpServer != nil {
		shutdownErr = s.httpServer.Shutdown(ctx)
	}

	s.daemon.Stop()
	s.cancel()

	return shutdownErr
}

// Handler exposes the route table for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}
