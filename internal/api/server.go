package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/metrics"
)

// Server represents an HTTP API server.
type Server struct {
	router *chi.Mux
	server *http.Server
}

func newServer(cfg domain.ServerConfig, router *chi.Mux) *Server {
	return &Server{
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func newRouter(m *metrics.Metrics) *chi.Mux {
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	if m != nil {
		router.Use(MetricsMiddleware(m))
	}
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	if m != nil {
		router.Handle("/metrics", m.Handler())
	}
	return router
}

// NewPredictionServer creates the prediction API server.
func NewPredictionServer(cfg domain.ServerConfig, handler *Handler, m *metrics.Metrics) *Server {
	router := newRouter(m)

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	router.Post("/predict", handler.Predict)
	router.Get("/history/{upiId}", handler.GetHistory)
	router.Get("/history/{upiId}/predictions", handler.ListPredictions)
	router.Get("/predictions/{id}", handler.GetPrediction)

	return newServer(cfg, router)
}

// NewExplainServer creates the explanation service server.
func NewExplainServer(cfg domain.ExplainServerConfig, handler *ExplainHandler, m *metrics.Metrics) *Server {
	router := newRouter(m)

	router.Get("/health", handler.Health)
	router.With(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst, m)).Post("/explain", handler.Explain)

	return newServer(cfg.HTTP(), router)
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server. It is safe to call before or
// concurrently with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
