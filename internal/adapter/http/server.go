package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeshkovD/star-burger/internal/domain"
	"github.com/MeshkovD/star-burger/internal/matching"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service is the order API backend. It is implemented by matching.Service.
type Service interface {
	RegisterOrder(ctx context.Context, order domain.NewOrder) (domain.Order, error)
	Products(ctx context.Context) ([]domain.Product, error)
	Report(ctx context.Context) ([]matching.OrderReport, error)
	Candidates(ctx context.Context, orderID int64) ([]domain.Candidate, error)
	Assign(ctx context.Context, orderID, restaurantID int64) (domain.Order, error)
	Complete(ctx context.Context, orderID int64) (domain.Order, error)
}

// Server exposes the order API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	service    Service
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the API routes, /healthz, /readyz, and /metrics.
// writeTimeout must cover a report that geocodes every address on a cold cache.
func NewServer(addr string, service Service, ready sharedobs.ReadinessChecker, writeTimeout time.Duration, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
		service: service,
		logger:  logger,
	}

	mux.HandleFunc("POST /api/order", s.handleRegisterOrder)
	mux.HandleFunc("GET /api/products", s.handleProducts)
	mux.HandleFunc("GET /manager/orders", s.handleReport)
	mux.HandleFunc("GET /manager/orders/{id}/candidates", s.handleCandidates)
	mux.HandleFunc("POST /manager/orders/{id}/assign", s.handleAssign)
	mux.HandleFunc("POST /manager/orders/{id}/complete", s.handleComplete)

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

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
