package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/geojson"
)

// CollectionBuilder produces the district FeatureCollection.
type CollectionBuilder interface {
	Build(ctx context.Context, kreisIDs []int64) (geojson.FeatureCollection, error)
}

// Options configures the server.
type Options struct {
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server exposes health, readiness, metrics and the district GeoJSON.
type Server struct {
	httpServer *http.Server
	builder    CollectionBuilder
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /kreise.geojson routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, builder CollectionBuilder, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		builder: builder,
		logger:  logger,
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         600,
	}))

	router.Get("/healthz", sharedobs.LivenessHandler())
	router.Get("/readyz", sharedobs.ReadinessHandler(ready))
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.With(chimiddleware.Compress(5, "application/geo+json")).Get("/kreise.geojson", s.handleCollection)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	ids, err := domain.ParseKreisIDs(r.URL.Query().Get("kreis"))
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	fc, err := s.builder.Build(r.Context(), ids)
	if err != nil {
		s.logger.Error("build feature collection", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "feature collection unavailable"})
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := geojson.Export(w, fc); err != nil {
		s.logger.Warn("write feature collection", "error", err)
	}
}
