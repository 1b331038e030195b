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
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/merakimarket/meraki/internal/auth"
	"github.com/merakimarket/meraki/internal/catalog"
	"github.com/merakimarket/meraki/internal/circuitbreaker"
	"github.com/merakimarket/meraki/internal/config"
	"github.com/merakimarket/meraki/internal/conversation"
	"github.com/merakimarket/meraki/internal/deposits"
	"github.com/merakimarket/meraki/internal/escrow"
	"github.com/merakimarket/meraki/internal/health"
	"github.com/merakimarket/meraki/internal/idgen"
	"github.com/merakimarket/meraki/internal/ledger"
	"github.com/merakimarket/meraki/internal/logging"
	"github.com/merakimarket/meraki/internal/metrics"
	"github.com/merakimarket/meraki/internal/money"
	"github.com/merakimarket/meraki/internal/purchase"
	"github.com/merakimarket/meraki/internal/ratelimit"
	"github.com/merakimarket/meraki/internal/realtime"
	"github.com/merakimarket/meraki/internal/security"
	"github.com/merakimarket/meraki/internal/trade"
	"github.com/merakimarket/meraki/internal/traces"
	"github.com/merakimarket/meraki/internal/reconciliation"
	"github.com/merakimarket/meraki/internal/transactions"
	"github.com/merakimarket/meraki/internal/validation"
	"github.com/merakimarket/meraki/migrations"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	catalog      *catalog.Service
	ledger       *ledger.Ledger
	escrow       *escrow.Service
	transactions *transactions.Service
	conversation *conversation.Service
	trade        *trade.Service
	tradeTimer   *trade.Timer
	purchase     *purchase.Service
	deposits     *deposits.Service

	reconciler     *reconciliation.Service
	reconcileTimer *reconciliation.Timer

	realtimeHub *realtime.Hub
	health      *health.Registry
	rateLimiter *ratelimit.Limiter

	db        *sql.DB  // nil if using in-memory
	catalogDB *sqlx.DB // SQLite catalog, nil unless SQLitePath is set

	router          *gin.Engine
	httpSrv         *http.Server
	logger          *slog.Logger
	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run
	shutdownTracing func(context.Context) error

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

// stores groups the persistence backends for one storage mode.
type stores struct {
	catalog      catalog.Store
	ledger       ledger.Store
	escrow       escrow.Store
	transactions transactions.Store
	conversation conversation.Store
	trade        trade.Store
	deposits     deposits.Store
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewWithFile(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	}

	ctx := context.Background()

	feeRate, err := money.ParseFeeRate(cfg.PlatformFeeRate)
	if err != nil {
		return nil, fmt.Errorf("invalid platform fee rate: %w", err)
	}

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.shutdownTracing = shutdownTracing

	st, err := s.openStores(ctx)
	if err != nil {
		return nil, err
	}

	s.health = health.NewRegistry()
	if s.db != nil {
		s.health.Register(health.PingChecker("postgres", s.db))
	}
	if s.catalogDB != nil {
		s.health.Register(health.PingChecker("catalog", s.catalogDB))
	}

	s.realtimeHub = realtime.NewHub(s.logger)

	// Domain services, bottom-up
	s.catalog = catalog.NewService(st.catalog)
	s.ledger = ledger.New(st.ledger)
	s.escrow = escrow.NewService(st.escrow, s.ledger.ForEscrow(cfg.PlatformAccountID), feeRate).
		WithLogger(s.logger)
	s.transactions = transactions.NewService(st.transactions).
		WithLogger(s.logger).
		WithNotifier(&transactionPublisher{hub: s.realtimeHub})
	s.conversation = conversation.NewService(st.conversation, s.realtimeHub).
		WithLogger(s.logger)
	s.trade = trade.NewService(st.trade, s.catalog, s.escrow, s.transactions, s.conversation).
		WithLogger(s.logger).
		WithPublisher(s.realtimeHub).
		WithOfferTTL(cfg.OfferTTL)
	s.purchase = purchase.NewService(s.catalog, s.escrow, s.transactions).
		WithLogger(s.logger).
		WithOfferSweeper(s.trade)

	s.deposits = deposits.NewService(st.deposits, s.ledger).WithLogger(s.logger)
	if cfg.StripeSecretKey != "" {
		s.deposits.WithProvider(deposits.Guard(
			deposits.NewStripeProvider(cfg.StripeSecretKey),
			circuitbreaker.New(5, 30*time.Second),
			"stripe",
		))
		s.logger.Info("card deposits enabled", "webhook", cfg.StripeWebhookSecret != "")
	}

	if cfg.OfferTTL > 0 {
		s.tradeTimer = trade.NewTimer(s.trade, s.logger)
		s.health.Register(health.RunningChecker("offer_timer", s.tradeTimer.Running))
		s.logger.Info("trade offer expiry enabled", "ttl", cfg.OfferTTL.String())
	}

	s.reconciler = reconciliation.NewService(s.ledger, s.escrow, s.logger)
	if cfg.ReconcileInterval > 0 {
		s.reconcileTimer = reconciliation.NewTimer(s.reconciler, cfg.ReconcileInterval, s.logger)
		s.health.Register(health.RunningChecker("reconciliation", s.reconcileTimer.Running))
	}

	s.logger.Info("marketplace configured",
		"fee_rate", feeRate.Percent(),
		"platform_account", cfg.PlatformAccountID,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// openStores picks PostgreSQL when DATABASE_URL is set, otherwise in-memory
// stores with an optional SQLite-backed catalog.
func (s *Server) openStores(ctx context.Context) (*stores, error) {
	if s.cfg.DatabaseURL == "" {
		st := &stores{
			catalog:      catalog.NewMemoryStore(),
			ledger:       ledger.NewMemoryStore(),
			escrow:       escrow.NewMemoryStore(),
			transactions: transactions.NewMemoryStore(),
			conversation: conversation.NewMemoryStore(),
			trade:        trade.NewMemoryStore(),
			deposits:     deposits.NewMemoryStore(),
		}
		if s.cfg.SQLitePath != "" {
			cdb, err := catalog.OpenSQLite(s.cfg.SQLitePath)
			if err != nil {
				return nil, fmt.Errorf("failed to open catalog database: %w", err)
			}
			s.catalogDB = cdb
			st.catalog = catalog.NewSQLStore(cdb)
			s.logger.Info("using SQLite catalog", "path", s.cfg.SQLitePath)
		}
		s.logger.Warn("using in-memory storage; balances and trades are lost on restart")
		return st, nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	applied, err := migrations.Up(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.db = db
	s.logger.Info("using PostgreSQL storage",
		"url", maskDSN(s.cfg.DatabaseURL),
		"migrations_applied", applied,
	)

	return &stores{
		catalog:      catalog.NewSQLStore(sqlx.NewDb(db, "postgres")),
		ledger:       ledger.NewPostgresStore(db),
		escrow:       escrow.NewPostgresStore(db),
		transactions: transactions.NewPostgresStore(db),
		conversation: conversation.NewPostgresStore(db),
		trade:        trade.NewPostgresStore(db),
		deposits:     deposits.NewPostgresStore(db),
	}, nil
}

// maskDSN hides password in connection string for logging
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
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())

	// Identity before rate limiting so signed-in users get their own bucket.
	s.router.Use(auth.Middleware())

	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
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

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.health.Handler())
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", auth.RequireAuth(), func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request, auth.UserID(c))
	})

	catalogHandler := catalog.NewHandler(s.catalog)
	ledgerHandler := ledger.NewHandler(s.ledger)
	escrowHandler := escrow.NewHandler(s.escrow).WithReleaseListener(s.purchase)
	txHandler := transactions.NewHandler(s.transactions)
	convHandler := conversation.NewHandler(s.conversation)
	tradeHandler := trade.NewHandler(s.trade)
	purchaseHandler := purchase.NewHandler(s.purchase)
	depositHandler := deposits.NewHandler(s.deposits, s.cfg.StripeWebhookSecret)

	api := s.router.Group("/api")
	{
		catalogHandler.RegisterRoutes(api)
		depositHandler.RegisterRoutes(api)
	}

	protected := s.router.Group("/api")
	protected.Use(auth.RequireAuth())
	{
		catalogHandler.RegisterProtectedRoutes(protected)
		ledgerHandler.RegisterProtectedRoutes(protected)
		escrowHandler.RegisterProtectedRoutes(protected)
		txHandler.RegisterProtectedRoutes(protected)
		convHandler.RegisterProtectedRoutes(protected)
		tradeHandler.RegisterProtectedRoutes(protected)
		purchaseHandler.RegisterProtectedRoutes(protected)
		depositHandler.RegisterProtectedRoutes(protected)
	}

	admin := s.router.Group("/api")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))
	{
		escrowHandler.RegisterAdminRoutes(admin)
		depositHandler.RegisterAdminRoutes(admin)
		reconciliation.NewHandler(s.reconciler).RegisterAdminRoutes(admin)
	}
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

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
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
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if s.tradeTimer != nil {
		go s.tradeTimer.Start(runCtx)
	}

	if s.reconcileTimer != nil {
		go s.reconcileTimer.Start(runCtx)
	}

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

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

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.close(ctx)
	s.logger.Info("server stopped")
	return nil
}

// close releases background workers and connections. Safe without Run.
func (s *Server) close(ctx context.Context) {
	if s.tradeTimer != nil {
		s.tradeTimer.Stop()
		s.logger.Info("trade offer timer stopped")
	}

	if s.reconcileTimer != nil {
		s.reconcileTimer.Stop()
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	if s.catalogDB != nil {
		if err := s.catalogDB.Close(); err != nil {
			s.logger.Error("catalog database close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// transactionPublisher pushes transaction status changes to both parties.
type transactionPublisher struct {
	hub realtime.Publisher
}

func (p *transactionPublisher) TransactionUpdated(_ context.Context, t *transactions.Transaction) {
	snapshot := *t
	snapshot.Timeline = append([]transactions.Event(nil), t.Timeline...)
	p.hub.Publish(realtime.EventTransactionUpdated, &snapshot, t.BuyerID, t.SellerID)
}
