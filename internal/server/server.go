package server

import (
	"log/slog"
	"net/http"

	"sales-dashboard/internal/handlers"
	"sales-dashboard/internal/scenarios"
	"sales-dashboard/internal/services"
)

type Server struct {
	dataset     *services.Dataset
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

// Deps are the services the routes read from.
type Deps struct {
	Dataset       *services.Dataset
	Scenarios     *scenarios.Loader
	ReferenceYear int
	// Metrics serves the Prometheus exposition; nil leaves /metrics unrouted.
	Metrics http.Handler
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(deps Deps, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		dataset:     deps.Dataset,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(deps.Dataset, deps.Scenarios, deps.ReferenceYear, logger),
		sseHandlers: handlers.NewSSEHandlers(deps.Dataset, deps.Scenarios, deps.ReferenceYear, logger),
	}
	s.setupRoutes(templateHandlers, deps.Metrics)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers, metrics http.Handler) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)
	s.mux.HandleFunc("POST /admin/cache/invalidate", s.apiHandlers.HandleInvalidate)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}

	// REST API endpoints
	s.mux.HandleFunc("GET /api/skus", s.apiHandlers.HandleSKUs)
	s.mux.HandleFunc("GET /api/sales", s.apiHandlers.HandleSales)
	s.mux.HandleFunc("GET /api/chart", s.apiHandlers.HandleChart)
	s.mux.HandleFunc("GET /api/chart.png", s.apiHandlers.HandleChartPNG)
	s.mux.HandleFunc("GET /api/metrics", s.apiHandlers.HandleMetrics)
	s.mux.HandleFunc("GET /api/yearly", s.apiHandlers.HandleYearly)
	s.mux.HandleFunc("GET /api/top-skus", s.apiHandlers.HandleTopSKUs)
	s.mux.HandleFunc("GET /api/scenarios", s.apiHandlers.HandleScenarios)
	s.mux.HandleFunc("GET /api/scenarios/details", s.apiHandlers.HandleScenarioDetails)
	s.mux.HandleFunc("GET /api/scenarios/grid", s.apiHandlers.HandleScenarioGrid)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/chart", s.sseHandlers.HandleChart)
	s.mux.HandleFunc("GET /sse/metrics", s.sseHandlers.HandleMetrics)
	s.mux.HandleFunc("GET /sse/scenarios", s.sseHandlers.HandleScenarios)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
