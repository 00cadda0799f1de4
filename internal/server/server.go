package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
	"github.com/vyrodovalexey/vaultbackend/internal/health"
	"github.com/vyrodovalexey/vaultbackend/internal/observability"
)

// ginModeOnce keeps gin.SetMode from racing across servers.
var ginModeOnce sync.Once

// ErrServerRunning is returned by Start on a running server.
var ErrServerRunning = errors.New("server already running")

// Server is the HTTP entry point. The Vault routes are mounted under the base
// path and can be swapped while serving.
type Server struct {
	config   config.ServerConfig
	engine   *gin.Engine
	logger   observability.Logger
	metrics  *observability.Metrics
	health   *health.Handler
	tracer   trace.TracerProvider
	limiter  *RateLimiter
	basePath string

	metricsPath string
	backend     atomic.Pointer[http.Handler]

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records request metrics and serves the registry on path.
func WithMetrics(metrics *observability.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = metrics
		s.metricsPath = path
	}
}

// WithHealth serves the probe endpoints of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithTracerProvider sets the provider for server spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracer = tp
	}
}

// New creates a server for cfg. Nothing listens until Start.
func New(cfg config.ServerConfig, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})

	s := &Server{
		config:   cfg,
		basePath: "/" + strings.Trim(cfg.BasePath, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.NopLogger()
	}
	s.logger = s.logger.With(observability.String("component", "server"))
	if s.health == nil {
		s.health = health.NewHandler(s.logger)
	}
	s.limiter = rateLimitFromConfig(cfg.RateLimit, s.logger)

	s.engine = s.buildEngine()
	return s
}

func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.HandleMethodNotAllowed = false

	quiet := []string{"/health", "/healthz", "/livez", "/readyz", "/ready"}
	if s.metricsPath != "" {
		quiet = append(quiet, s.metricsPath)
	}

	engine.Use(RequestID(), Logging(s.logger, quiet...))
	if s.metrics != nil {
		engine.Use(observability.MetricsMiddleware(s.metrics))
	}
	engine.Use(Tracing(s.tracer, quiet...), Recovery(s.logger))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": health.StatusOK})
	})
	s.health.RegisterRoutes(engine)

	if s.metrics != nil && s.metricsPath != "" {
		engine.GET(s.metricsPath, gin.WrapH(s.metrics.Handler()))
	}

	var backend []gin.HandlerFunc
	if s.limiter != nil {
		backend = append(backend, RateLimit(s.limiter))
	}
	if s.basePath == "/" {
		// gin marks unmatched requests 404 before NoRoute handlers run.
		engine.NoRoute(append(backend, func(c *gin.Context) {
			c.Status(http.StatusOK)
			s.serveBackend(c.Writer, c.Request)
		})...)
	} else {
		mounted := http.StripPrefix(s.basePath, http.HandlerFunc(s.serveBackend))
		engine.Any(s.basePath+"/*rest", append(backend, gin.WrapH(mounted))...)
	}

	return engine
}

func (s *Server) serveBackend(w http.ResponseWriter, r *http.Request) {
	h := s.backend.Load()
	if h == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"name":"NotFoundError","message":"vault backend is not initialized"}}`))
		return
	}
	(*h).ServeHTTP(w, r)
}

// SetBackend replaces the handler mounted under the base path. In-flight
// requests finish on the handler they started with.
func (s *Server) SetBackend(h http.Handler) {
	if h == nil {
		s.backend.Store(nil)
		return
	}
	s.backend.Store(&h)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// BasePath returns the mount point of the Vault routes.
func (s *Server) BasePath() string {
	return s.basePath
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens and serves until Stop. It returns nil after a graceful stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return ErrServerRunning
	}

	addr := net.JoinHostPort(s.config.Address, fmt.Sprintf("%d", s.config.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadTimeout:       time.Duration(s.config.ReadTimeout),
		ReadHeaderTimeout: time.Duration(s.config.ReadTimeout),
		WriteTimeout:      time.Duration(s.config.WriteTimeout),
		IdleTimeout:       time.Duration(s.config.IdleTimeout),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.String("basePath", s.basePath),
	)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully, waiting for in-flight requests until
// ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("stopping HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}
