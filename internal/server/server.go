// Package server provides the catalog HTTP server.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/emmamdp/rickandmorty/internal/catalog"
	"github.com/emmamdp/rickandmorty/internal/config"
	"github.com/emmamdp/rickandmorty/internal/feed"
	"github.com/emmamdp/rickandmorty/internal/metrics"
	"github.com/emmamdp/rickandmorty/internal/model"
	"github.com/emmamdp/rickandmorty/internal/reconciler"
)

const (
	maxBodyBytes = 1 << 20
	loadTimeout  = 60 * time.Second
)

// Catalog is the use-case surface served over HTTP.
type Catalog interface {
	ListCharacters(ctx context.Context, filter *model.Filter, offset, limit int) (catalog.ListResult, error)
	GetCharacter(ctx context.Context, id int) (model.Character, error)
	Search(ctx context.Context, filter model.Filter, page int) (model.Page, error)
	FeedStatus() feed.Status
	Refresh(ctx context.Context) (reconciler.Result, error)
	Append(ctx context.Context) (reconciler.Result, error)
	Prepend(ctx context.Context) (reconciler.Result, error)
	Retry(ctx context.Context) (reconciler.Result, error)
	ClearFilter(ctx context.Context) (bool, error)
	Ready(ctx context.Context) error
}

// Server wraps HTTP routes and dependencies.
type Server struct {
	catalog     Catalog
	cfg         config.Config
	version     string
	commit      string
	buildDate   string
	openapiSpec []byte
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	router      chi.Router
}

// Option configures server construction.
type Option func(*Server)

// WithOpenAPISpec sets the embedded OpenAPI bytes.
func WithOpenAPISpec(spec []byte) Option {
	return func(s *Server) {
		s.openapiSpec = spec
	}
}

// WithMetrics enables HTTP instrumentation and the /metrics endpoint.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the access logger. Defaults to the global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New constructs a catalog API server.
func New(cat Catalog, cfg config.Config, version, commit, buildDate string, opts ...Option) *Server {
	s := &Server{
		catalog:   cat,
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the configured router.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.logger.With().Str("component", "http").Logger()))
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.MetricsEnabled {
		r.Use(s.metrics.Middleware)
	}
	r.Use(secureHeaders)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondProblem(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondProblem(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Group(func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)
		r.Get("/version", s.handleVersion)
		if s.cfg.MetricsEnabled {
			r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
		}
		r.Get("/api/openapi.yaml", s.handleOpenAPI)
	})

	r.Route("/catalog/v1", func(r chi.Router) {
		r.Get("/characters", s.handleListCharacters)
		r.Get("/characters/{id}", s.handleGetCharacter)
		r.Get("/search", s.handleSearch)

		r.Get("/feed", s.handleFeedStatus)
		r.Post("/feed/refresh", s.handleFeedLoad(model.LoadRefresh))
		r.Post("/feed/append", s.handleFeedLoad(model.LoadAppend))
		r.Post("/feed/prepend", s.handleFeedLoad(model.LoadPrepend))
		r.Post("/feed/retry", s.handleFeedRetry)
		r.Delete("/feed/filter", s.handleClearFilter)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(next)
}

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
