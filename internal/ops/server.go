// Package ops exposes the operational API: probes, Prometheus metrics, and a
// read-only status surface for the session monitor and rate limiter.
package ops

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/svcdesk/helpdesk-bot/internal/auth"
	"github.com/svcdesk/helpdesk-bot/internal/health"
	"github.com/svcdesk/helpdesk-bot/internal/metrics"
	"github.com/svcdesk/helpdesk-bot/internal/ratelimit"
	"github.com/svcdesk/helpdesk-bot/internal/session"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// ProblemDetail is the RFC 7807 error body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
}

// Server is the ops API Fiber application.
type Server struct {
	app        *fiber.App
	listenAddr string
	logger     zerolog.Logger

	monitor *session.Monitor
	limiter *ratelimit.Limiter
	auth    *auth.Service
	checker *health.Checker
	metrics *metrics.Metrics

	startTime time.Time
}

// NewServer creates and configures the ops API server.
func NewServer(listenAddr string, monitor *session.Monitor, limiter *ratelimit.Limiter,
	authSvc *auth.Service, checker *health.Checker, m *metrics.Metrics,
	logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:        app,
		listenAddr: listenAddr,
		logger:     logger.With().Str("component", "ops").Logger(),
		monitor:    monitor,
		limiter:    limiter,
		auth:       authSvc,
		checker:    checker,
		metrics:    m,
		startTime:  time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		// Skip noisy probe logging
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("request_id", c.Locals("request_id").(string)).
			Msg("ops api request")
		return c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", adaptor.HTTPHandlerFunc(health.LivenessHandler()))
	s.app.Get("/readyz", adaptor.HTTPHandlerFunc(s.checker.ReadinessHandler()))
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	v1 := s.app.Group("/api/v1")
	v1.Get("/status", s.handleStatus)
	v1.Get("/sessions", s.handleSessions)
}

type statusResponse struct {
	Version        string         `json:"version"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	Sessions       session.Status `json:"sessions"`
	ActiveSessions int            `json:"active_sessions"`
	RateLimited    int            `json:"rate_limited_users"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(statusResponse{
		Version:        Version,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		Sessions:       s.monitor.Status(),
		ActiveSessions: s.auth.SessionCount(),
		RateLimited:    s.limiter.TrackedUsers(),
	})
}

type sessionsResponse struct {
	Tracked int  `json:"tracked"`
	Warned  int  `json:"warned"`
	Running bool `json:"monitor_running"`
}

func (s *Server) handleSessions(c *fiber.Ctx) error {
	st := s.monitor.Status()
	return c.JSON(sessionsResponse{
		Tracked: st.Tracked,
		Warned:  st.Warned,
		Running: st.Running,
	})
}

// Start starts the server. Blocks until Shutdown is called.
func (s *Server) Start() error {
	addr := s.listenAddr
	if addr == "" {
		addr = ":8090"
	}
	s.logger.Info().Str("addr", addr).Msg("ops API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("ops API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
