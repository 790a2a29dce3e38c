package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/StarfishJ/SceneSound/internal/core/ports"
	"github.com/StarfishJ/SceneSound/internal/core/services"
)

// Analyzer runs the analyze pipeline. *services.Orchestrator satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, in services.AnalyzeInput) (services.Result, error)
}

// Options configures the HTTP boundary. Zero fields take defaults.
type Options struct {
	CORSOrigins []string
	// RateLimit is the number of /api requests allowed per client IP per
	// minute; 0 disables limiting.
	RateLimit      int
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

const (
	defaultMaxBodyBytes   = 8 << 20
	defaultRequestTimeout = 2 * time.Minute
)

// Handler manages the HTTP interface for our application.
type Handler struct {
	svc      Analyzer
	tokens   ports.TokenSource
	analyses ports.AnalysisLog // nil when storage is disabled
	sessions *services.SessionTracker
	validate *validator.Validate
	opts     Options
	router   chi.Router
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(svc Analyzer, tokens ports.TokenSource, analyses ports.AnalysisLog, sessions *services.SessionTracker, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if sessions == nil {
		sessions = services.NewSessionTracker()
	}

	h := &Handler{
		svc:      svc,
		tokens:   tokens,
		analyses: analyses,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
		router:   chi.NewRouter(),
	}

	h.routes()

	return h
}

// ServeHTTP satisfies the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	r := h.router

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", sessionHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         86400,
	}))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(h.opts.RateLimit))
		r.Use(chimiddleware.RequestSize(h.opts.MaxBodyBytes))

		r.Post("/analyze", h.Analyze)
		r.Get("/spotify-token", h.SpotifyToken)
		r.Get("/analyses", h.RecentAnalyses)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorWithCode(w, http.StatusNotFound, "Not found.", "NOT_FOUND")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorWithCode(w, http.StatusMethodNotAllowed, "Method not allowed.", "METHOD_NOT_ALLOWED")
	})
}

// HealthCheck is a simple endpoint to verify the API is running.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "SceneSound is live"})
}
