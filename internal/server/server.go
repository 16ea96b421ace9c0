package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mategroup/sso/config"
	"github.com/mategroup/sso/internal/auth"
	"github.com/mategroup/sso/internal/db"
	"github.com/mategroup/sso/internal/events"
	"github.com/mategroup/sso/internal/handlers"
	"github.com/mategroup/sso/internal/mq"
	"github.com/mategroup/sso/internal/reporting"
	"github.com/mategroup/sso/internal/services"
	"github.com/mategroup/sso/internal/session"
	"github.com/mategroup/sso/internal/storage"
	"github.com/mategroup/sso/internal/store"
	"github.com/mategroup/sso/internal/turnstile"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	mq         *mq.MQ
	reporter   *reporting.Reporter
	logger     *slog.Logger
}

// Dependencies are the collaborators the router is built from.
type Dependencies struct {
	DB        handlers.Pinger
	Users     services.UserRepository
	Blobs     services.BlobStore
	Broker    events.Broker
	Challenge services.ChallengeVerifier
	Reporter  *reporting.Reporter
}

// New opens the database, object storage and message queue, then wires the router.
func New(ctx context.Context, cfg config.Config, reporter *reporting.Reporter, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = reporting.Disabled()
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	logger.Info("database connected")

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure bucket %s: %w", blobs.Bucket(), err)
	}
	logger.Info("object storage ready", "backend", cfg.Storage.Backend, "bucket", blobs.Bucket())

	deps := Dependencies{
		DB:        dbConn,
		Users:     store.NewUserRepository(dbConn),
		Blobs:     blobs,
		Challenge: turnstile.NewVerifier(cfg.Turnstile),
		Reporter:  reporter,
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	switch {
	case errors.Is(err, mq.ErrDisabled):
		logger.Info("MQ_BACKEND not set, account events disabled")
	case err != nil:
		_ = dbConn.Close()
		return nil, fmt.Errorf("open message queue: %w", err)
	default:
		deps.Broker = queue
		logger.Info("message queue connected", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}

	router, err := NewRouter(cfg, deps, logger)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		mq:         queue,
		reporter:   reporter,
		logger:     logger,
	}, nil
}

// NewRouter builds the middleware chain and mounts every route.
func NewRouter(cfg config.Config, deps Dependencies, logger *slog.Logger) (*chi.Mux, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reporter := deps.Reporter
	if reporter == nil {
		reporter = reporting.Disabled()
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger)
	if err != nil {
		return nil, err
	}

	var publisher services.EventPublisher
	if deps.Broker != nil {
		publisher = events.NewPublisher(deps.Broker, cfg.MQ.Channel, logger)
	}

	avatarService := services.NewAvatarService(deps.Users, deps.Blobs, reporter, logger)
	accountService := services.NewAccountService(services.AccountDeps{
		Users:     deps.Users,
		Hasher:    auth.NewPasswordHasher(),
		Tokens:    issuer,
		Challenge: deps.Challenge,
		Events:    publisher,
		Avatars:   avatarService,
		Reporter:  reporter,
		Logger:    logger,
	})

	transport := session.NewTransport(cfg.IsProduction(), cfg.HTTP.CookieDomainStrategy)
	redirects := session.NewRedirectPolicy(cfg.HTTP.AllowedRedirects)

	authHandler := handlers.NewAuthHandler(accountService, transport, redirects, logger)
	storageHandler := handlers.NewStorageHandler(avatarService, logger)
	healthHandler := handlers.NewHealthHandler(deps.DB, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		middleware.Recoverer,
		reporter.Middleware,
	)
	router.Use(secureHeaders()...)
	router.Use(
		corsHandler(cfg.HTTP),
		rateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow),
		middleware.Timeout(60*time.Second),
	)
	router.Route("/health", func(r chi.Router) {
		handlers.HealthRouter(r, healthHandler)
	})
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, issuer)
	})
	router.Route("/storage", func(r chi.Router) {
		handlers.StorageRouter(r, storageHandler, issuer)
	})

	return router, nil
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("SSO server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the queue and the database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if cerr := s.mq.Close(); cerr != nil {
			s.logger.Warn("close message queue", "error", cerr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	s.reporter.Flush()
	return err
}
