// Package httpapi serves on-demand runs, stored results, health and metrics
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/Sternrassler/eld-analysis/pkg/metrics"
	"github.com/Sternrassler/eld-analysis/pkg/orchestrator"
	"github.com/Sternrassler/eld-analysis/pkg/roster"
	"github.com/Sternrassler/eld-analysis/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eld_http_requests_total",
	Help: "HTTP API requests by route and status code",
}, []string{"route", "code"})

const requestIDHeader = "X-Request-ID"

// Runner runs one tenant. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, tenant string) (*analysis.BatchResult, error)
}

// ResultReader reads stored results. *store.RedisStore implements it.
type ResultReader interface {
	Latest(ctx context.Context, tenant string) (*store.Record, error)
}

// HealthCheck reports a dependency's health. A nil error is healthy.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the API serves. Results may be nil when no
// store is configured.
type Deps struct {
	Runner  Runner
	Results ResultReader
	Checks  map[string]HealthCheck
	Version string
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	router  *gin.Engine
	started time.Time
	logger  zerolog.Logger
}

// New builds the router.
func New(deps Deps, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		deps:    deps,
		router:  gin.New(),
		started: time.Now(),
		logger:  logger.With().Str("component", "http-api").Logger(),
	}

	s.router.Use(gin.Recovery(), s.requestLogger())
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.POST("/origins/:tenant/runs", s.runTenant)
	s.router.GET("/origins/:tenant/latest", s.latest)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info().Msg("HTTP API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) fail(c *gin.Context, code int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{
		Error:     err.Error(),
		RequestID: c.GetString("request_id"),
	})
}

func (s *Server) health(c *gin.Context) {
	status := "healthy"
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(c.Request.Context()); err != nil {
			status = "unhealthy"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"service": "eld-analysis",
		"version": s.deps.Version,
		"uptime":  time.Since(s.started).Truncate(time.Second).String(),
		"checks":  checks,
	})
}

func (s *Server) runTenant(c *gin.Context) {
	tenant := c.Param("tenant")

	result, err := s.deps.Runner.Run(c.Request.Context(), tenant)
	switch {
	case errors.Is(err, roster.ErrTenantNotFound):
		s.fail(c, http.StatusNotFound, err)
		return
	case errors.Is(err, orchestrator.ErrNoUsableResult):
		s.fail(c, http.StatusBadGateway, err)
		return
	case err != nil:
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) latest(c *gin.Context) {
	if s.deps.Results == nil {
		s.fail(c, http.StatusServiceUnavailable, errors.New("result store not configured"))
		return
	}

	rec, err := s.deps.Results.Latest(c.Request.Context(), c.Param("tenant"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.fail(c, http.StatusNotFound, err)
		return
	case err != nil:
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// requestLogger tags each request with an id and logs it once on completion.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()

		event := s.logger.Info()
		if len(c.Errors) > 0 {
			event = s.logger.Warn().Str("errors", c.Errors.String())
		}
		if route == "/health" || route == "/metrics" {
			event = s.logger.Debug()
		}
		event.
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status_code", code).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
