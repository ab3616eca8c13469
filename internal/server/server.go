package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fitgoals/apiserver/config"
	"github.com/fitgoals/apiserver/internal/auth"
	"github.com/fitgoals/apiserver/internal/db"
	"github.com/fitgoals/apiserver/internal/handlers"
	"github.com/fitgoals/apiserver/internal/logging"
	"github.com/fitgoals/apiserver/internal/mq"
	"github.com/fitgoals/apiserver/internal/services"
	"github.com/fitgoals/apiserver/internal/storage"
	"github.com/fitgoals/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and the backends it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	broker     *mq.MQ
	logger     *slog.Logger
}

// Dependencies are the collaborators the router is built from.
type Dependencies struct {
	UserService *services.UserService
	GoalService *services.GoalService
	Tokens      handlers.TokenVerifier
	Metrics     *handlers.Metrics
	Logger      *slog.Logger
}

// New connects to the configured backends and constructs a Server.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := logging.New(cfg.LogLevel)

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	tokens, err := auth.NewTokenManager(jwtSecret, auth.DefaultTokenTTL)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	broker, err := mq.FromConfig(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init mq: %w", err)
	}

	objects, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = broker.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	userRepo := store.NewUserRepository(dbConn)
	goalRepo := store.NewGoalRepository(dbConn)

	var goalOpts []services.GoalServiceOption
	if broker != nil {
		goalOpts = append(goalOpts, services.WithGoalEvents(services.NewGoalEvents(broker, cfg.MQ.GoalTopic, logger)))
		logger.Info("goal events enabled", "backend", broker.Backend(), "topic", cfg.MQ.GoalTopic)
	}
	if objects != nil {
		goalOpts = append(goalOpts, services.WithExportStore(objects))
		logger.Info("goal exports enabled", "bucket", objects.Bucket())
	}

	userService := services.NewUserService(userRepo, auth.NewPasswordHasher(auth.DefaultPasswordCost), tokens, logger)
	goalService := services.NewGoalService(goalRepo, logger, goalOpts...)

	router := NewRouter(Dependencies{
		UserService: userService,
		GoalService: goalService,
		Tokens:      tokens,
		Metrics:     handlers.NewMetrics(),
		Logger:      logger,
	})

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
		broker:     broker,
		logger:     logger,
	}, nil
}

// NewRouter builds the HTTP routes over the given dependencies.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authMiddleware := handlers.RequireAuth(deps.Tokens, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger, deps.Metrics),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.UserService, authMiddleware, logger)
	})
	router.Route("/goals", func(r chi.Router) {
		handlers.GoalRouter(r, deps.GoalService, authMiddleware, logger)
	})

	return router
}

// Start runs the HTTP server. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases backend connections.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		if closeErr := s.broker.Close(); closeErr != nil {
			s.logger.Warn("close mq", "error", closeErr)
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
