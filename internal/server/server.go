// Package server is the simulator's operational HTTP surface: metrics,
// health and read-only views of the latest run and stored features.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/drivesim/internal/features"
	"github.com/mbd888/drivesim/internal/featurestore"
	"github.com/mbd888/drivesim/internal/health"
	"github.com/mbd888/drivesim/internal/idgen"
	"github.com/mbd888/drivesim/internal/logging"
	"github.com/mbd888/drivesim/internal/metrics"
	"github.com/mbd888/drivesim/internal/pipeline"
)

// Server serves /metrics, /health and the /v1 run views.
type Server struct {
	logger  *slog.Logger
	health  *health.Registry
	store   featurestore.Store // optional
	router  *gin.Engine
	httpSrv *http.Server

	mu      sync.RWMutex
	current string // run in progress, if any
	latest  *pipeline.Summary
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHealth sets the health registry served on /health.
func WithHealth(r *health.Registry) Option {
	return func(s *Server) { s.health = r }
}

// WithStore enables the /v1/drivers feature views.
func WithStore(store featurestore.Store) Option {
	return func(s *Server) { s.store = store }
}

// New builds the router. It does not listen until Run.
func New(opts ...Option) *Server {
	s := &Server{
		logger: slog.Default(),
		health: health.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Run tracking
// -----------------------------------------------------------------------------

// RunStarted marks runID as in progress.
func (s *Server) RunStarted(runID string) {
	s.mu.Lock()
	s.current = runID
	s.mu.Unlock()
}

// RunFinished publishes the summary of a completed or canceled run.
func (s *Server) RunFinished(sum *pipeline.Summary) {
	s.mu.Lock()
	s.current = ""
	s.latest = sum
	s.mu.Unlock()
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
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}
		ctx := logging.WithLogger(c.Request.Context(), s.logger.With("request_id", requestID))
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

		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			logger.Error("request completed", attrs...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		default:
			// Scrapes and health checks are frequent.
			logger.Debug("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.GET("/runs/latest", s.latestRunHandler)
	v1.GET("/drivers/:id/features", s.driverFeaturesHandler)
	v1.GET("/drivers/:id/features/:month", s.driverMonthHandler)
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string          `json:"status"`
	Checks    []health.Status `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	for _, ch := range checks {
		if ch.Degraded {
			status = "degraded"
		}
	}
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) latestRunHandler(c *gin.Context) {
	s.mu.RLock()
	current, latest := s.current, s.latest
	s.mu.RUnlock()

	if latest == nil {
		if current != "" {
			c.JSON(http.StatusAccepted, gin.H{"run_id": current, "status": "running"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no run has finished"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": runStatus(latest), "in_progress": current, "summary": latest})
}

func runStatus(sum *pipeline.Summary) string {
	switch {
	case sum.Canceled:
		return "canceled"
	case sum.DriversFailed > 0:
		return "partial"
	default:
		return "completed"
	}
}

func (s *Server) driverFeaturesHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no_store", "message": "no feature store configured"})
		return
	}
	recs, err := s.store.ListByDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	if len(recs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "driver has no stored months"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver_id": c.Param("id"), "months": recs})
}

func (s *Server) driverMonthHandler(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "no_store", "message": "no feature store configured"})
		return
	}
	month := c.Param("month")
	if _, err := time.Parse(features.MonthLayout, month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_month", "message": "month must be YYYY-MM"})
		return
	}
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"), month)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, featurestore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	logging.L(c.Request.Context()).Error("feature store read failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "store_error"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", ln.Addr().String())
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("ops server shutdown error", "error", err)
		return err
	}
	s.logger.Info("ops server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
