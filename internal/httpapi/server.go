// Package httpapi exposes the render service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MimeLyc/timeline-renderer/internal/config"
	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/MimeLyc/timeline-renderer/internal/storage"
)

const (
	SecretHeader          = "X-Render-Secret"
	defaultMaxBodyBytes   = 10 << 20
	defaultMaxUploadBytes = 512 << 20
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type Server struct {
	queue    *jobs.Queue
	layout   storage.Layout
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier

	secret         string
	rateRPS        float64
	rateBurst      int
	sweepCron      func() string
	maxUploadBytes int64
	streamInterval time.Duration

	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithRenderSecret gates POST /render and the /api/ endpoints on the
// X-Render-Secret header. An empty secret leaves them open.
func WithRenderSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

// WithRateLimit limits /render and /upload; rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// WithSweepSchedule reports the eviction cron expression in /health.
func WithSweepSchedule(expr func() string) Option {
	return func(s *Server) {
		s.sweepCron = expr
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func withStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		s.streamInterval = d
	}
}

func NewServer(queue *jobs.Queue, layout storage.Layout, opts ...Option) *Server {
	s := &Server{
		queue:          queue,
		layout:         layout,
		maxUploadBytes: defaultMaxUploadBytes,
		streamInterval: time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()

	traced := otelhttp.NewHandler(loggingMiddleware(s.mux), "timeline-renderer",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	s.handler = recoveryMiddleware(metricsMiddleware(traced))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	limited := func(h http.HandlerFunc) http.Handler {
		return rateLimitMiddleware(s.rateRPS, s.rateBurst, h)
	}

	s.mux.Handle("/render", limited(s.handleRender))
	s.mux.HandleFunc("/status/", s.handleStatus)
	s.mux.Handle("/upload", limited(s.handleUpload))
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle(storage.UploadsPrefix, staticFiles(storage.UploadsPrefix, s.layout.Uploads()))
	s.mux.Handle(storage.RendersPrefix, staticFiles(storage.RendersPrefix, s.layout.Renders()))
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.Handle("/api/jobs", s.requireSecret(s.handleJobs))
	s.mux.Handle("/api/jobs/stream", s.requireSecret(s.handleJobStream))
	s.mux.Handle("/api/settings", s.requireSecret(s.handleSettings))
}

func (s *Server) requireSecret(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

// staticFiles serves files by name under prefix. Directory listings are not
// exposed.
func staticFiles(prefix, dir string) http.Handler {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		name := strings.TrimPrefix(r.URL.Path, prefix)
		if name == "" || strings.HasSuffix(name, "/") || strings.Contains(name, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
