package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"insight/internal/dataset"
	"insight/internal/log"
	"insight/internal/metrics"
	"insight/internal/middleware/ratelimit"
	"insight/internal/middleware/security"
	"insight/internal/middleware/trace"
	appweb "insight/web"
)

// SnapshotStore is the dataset the dashboard reads and refreshes.
type SnapshotStore interface {
	Snapshot() (*dataset.Snapshot, error)
	Ready() bool
	Refresh(ctx context.Context) (*dataset.Snapshot, error)
}

// RefreshPublisher hands refreshes to a worker instead of running them in
// the request.
type RefreshPublisher interface {
	PublishRefreshRequest(ctx context.Context, requestID, reason string) error
}

// Config holds the server settings taken from the application config.
type Config struct {
	Addr           string
	RoutePrefix    string
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	http.Server
	prefix    string
	templates *template.Template
	store     SnapshotStore
	publisher RefreshPublisher
	metrics   *metrics.Metrics
	logger    *log.Logger
	exports   *log.StructuredLogger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	started   time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithPublisher makes POST refresh enqueue a request for the worker.
func WithPublisher(p RefreshPublisher) Option { return func(s *Server) { s.publisher = p } }

// WithMetrics records request and export metrics on m and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option { return func(s *Server) { s.logger = l } }

func NewServer(cfg Config, store SnapshotStore, opts ...Option) (*Server, error) {
	s := &Server{
		prefix:  normalizePrefix(cfg.RoutePrefix),
		store:   store,
		started: time.Now(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.NewDefault()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.exports = log.NewStructuredLogger(s.logger)

	tmpl, err := template.New("").ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.templates = tmpl

	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	s.detector = security.NewDetector(s.logger, s.metrics.Suspicious)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(trace.NewMiddleware(s.detector.ClientIP, s.logger).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static assets: %v", err))
	}

	dashboard := func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ClientIP, s.handleRateLimited))

		r.Get("/", s.handleDashboard)
		r.With(security.StaticAssetMiddleware(3600)).
			Handle("/static/*", http.StripPrefix(s.prefix+"/static/", http.FileServer(http.FS(static))))

		r.Route("/api", func(r chi.Router) {
			r.Get("/options", s.handleOptions)
			r.Get("/view", s.handleView)
			r.Get("/table", s.handleTable)
			r.Get("/chart", s.handleChart)
		})

		r.Get("/export.csv", s.handleExportCSV)
		r.Get("/export.xlsx", s.handleExportXLSX)
		r.Post("/refresh", s.handleRefresh)
	}

	if s.prefix == "" {
		r.Group(dashboard)
	} else {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, s.prefix+"/", http.StatusFound)
		})
		r.Route(s.prefix, dashboard)
	}
	return r
}

// Shutdown stops the rate limiter and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

// ListenAndServe treats a graceful shutdown as success.
func (s *Server) ListenAndServe() error {
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizePrefix(p string) string {
	p = "/" + strings.Trim(p, "/")
	if p == "/" {
		return ""
	}
	return p
}
