// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/betguard/betguard/internal/classifier"
	"github.com/betguard/betguard/internal/config"
	"github.com/betguard/betguard/internal/features"
	"github.com/betguard/betguard/internal/health"
	"github.com/betguard/betguard/internal/history"
	"github.com/betguard/betguard/internal/ingest"
	"github.com/betguard/betguard/internal/intervention"
	"github.com/betguard/betguard/internal/logging"
	"github.com/betguard/betguard/internal/metrics"
	"github.com/betguard/betguard/internal/ratelimit"
	"github.com/betguard/betguard/internal/realtime"
	"github.com/betguard/betguard/internal/security"
	"github.com/betguard/betguard/internal/transaction"
	"github.com/betguard/betguard/internal/validation"
	"github.com/betguard/betguard/internal/whitelist"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	txs           transaction.Store
	interventions intervention.Store
	whitelist     whitelist.Store
	profiles      history.Store
	aggregator    *history.Aggregator
	worker        *history.Worker
	extractor     *features.Extractor
	model         *classifier.Handle
	notifier      *intervention.Notifier
	hub           *realtime.Hub
	ingestHandler *ingest.Handler
	rateLimiter   *ratelimit.Limiter
	healthReg     *health.Registry
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Retrain serialization
	training atomic.Bool

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	s.healthy.Store(true)

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	lex, err := features.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant lexicon: %w", err)
	}
	s.extractor = features.NewExtractor(lex)

	s.healthReg = health.NewRegistry()

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		txStore := transaction.NewPostgresStore(db)
		if err := txStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate transaction store", "error", err)
		}
		s.txs = txStore

		ivnStore := intervention.NewPostgresStore(db)
		if err := ivnStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate intervention store", "error", err)
		}
		s.interventions = ivnStore

		wlStore := whitelist.NewPostgresStore(db)
		if err := wlStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate whitelist store", "error", err)
		}
		s.whitelist = wlStore

		profileStore := history.NewPostgresStore(db)
		if err := profileStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate history store", "error", err)
		}
		s.profiles = profileStore

		s.healthReg.Register("database", health.Database(db))
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.txs = transaction.NewMemoryStore()
		s.interventions = intervention.NewMemoryStore()
		s.whitelist = whitelist.NewMemoryStore()
		s.profiles = history.NewMemoryStore()
	}

	s.aggregator = history.NewAggregator(s.txs, s.profiles, lex, s.logger)
	s.worker = history.NewWorker(s.txs, s.profiles, s.aggregator, s.logger)

	// Classifier: a missing or corrupt artifact degrades to an untrained
	// fallback so the service still answers.
	s.model = classifier.NewHandle(s.logger)
	if err := s.model.Load(cfg.ModelPath); err != nil {
		s.logger.Warn("model load failed, serving fallback",
			"path", cfg.ModelPath, "error", err)
	}
	s.healthReg.Register("model", s.modelChecker())

	if cfg.NotifyURL != "" {
		if cfg.IsProduction() {
			if err := security.ValidateEndpointURL(cfg.NotifyURL); err != nil {
				return nil, fmt.Errorf("unsafe NOTIFY_URL: %w", err)
			}
		}
		s.notifier = intervention.NewNotifier(cfg.NotifyURL, cfg.NotifySecret, s.logger)
		s.logger.Info("guardian notification enabled")
	}

	s.hub = realtime.NewHub(s.logger)

	checker := whitelist.NewChecker(s.whitelist, s.logger)
	svc := ingest.NewService(s.txs, s.interventions, checker, s.aggregator,
		s.extractor, s.model, s.notifier, s.hub, cfg.AlertThreshold, s.logger)
	s.ingestHandler = ingest.NewHandler(svc, cfg.WebhookSecret, cfg.HandlerTimeout, s.logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.router.HandleMethodNotAllowed = true

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) modelChecker() health.Checker {
	return func(ctx context.Context) health.Status {
		info := s.model.Info()
		if info.State != classifier.StateReady {
			return health.Status{Name: "model", Healthy: false, Detail: string(info.State)}
		}
		if !info.Trained {
			return health.Status{Name: "model", Healthy: true, Detail: "untrained fallback"}
		}
		return health.Status{Name: "model", Healthy: true, Detail: info.Version}
	}
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS for the operator dashboard
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithEventID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// adminMiddleware gates mutating operator endpoints behind X-Admin-Secret.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin API is not configured",
			})
			return
		}
		if !adminSecretEqual(c.GetHeader("X-Admin-Secret"), s.cfg.AdminSecret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or invalid admin secret",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.infoHandler)

	// Webhook ingest is deliberately outside the rate limiter: a connector
	// burst must never drop transactions.
	s.ingestHandler.RegisterRoutes(s.router)

	// WebSocket for the real-time operator stream
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group, rate limited
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	v1 := s.router.Group("/v1")
	v1.Use(s.rateLimiter.Middleware())

	whitelist.NewHandler(s.whitelist).RegisterRoutes(v1)

	v1.GET("/transactions", s.listTransactions)
	v1.GET("/transactions/:id", s.getTransaction)
	v1.GET("/interventions", s.listInterventions)
	v1.GET("/model", s.modelInfoHandler)
	v1.GET("/stream/stats", s.streamStatsHandler)

	users := v1.Group("/users/:userID")
	users.Use(validation.UserParamMiddleware())
	{
		users.GET("/alerts", s.listUserAlerts)
		users.GET("/profile", s.getProfile)
		users.PUT("/profile", s.putProfile)
	}

	admin := v1.Group("")
	admin.Use(s.adminMiddleware())
	{
		admin.POST("/model/retrain", s.retrainHandler)
	}
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "BetGuard",
		"description": "Real-time gambling transaction detection and intervention",
		"version":     "0.1.0",
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	go s.worker.Start(runCtx)

	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub, baseline worker)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.worker != nil {
		s.worker.Stop()
		s.logger.Info("baseline worker stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
