package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sales-dashboard/internal/charts"
	"sales-dashboard/internal/config"
	"sales-dashboard/internal/middleware"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/scenarios"
	"sales-dashboard/internal/server"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/store"
	"sales-dashboard/internal/ui/templates"
)

const (
	renderTimeout   = 10 * time.Second
	datasetTimeout  = 30 * time.Second
	dashboardMaxAge = "public, max-age=300"
)

func dashboardHandler(referenceYear int) http.HandlerFunc {
	props := templates.DashboardProps{
		ReferenceYear: referenceYear,
		YColumns:      charts.NumericColumns(),
		DefaultY:      charts.DefaultYColumn,
		DefaultTitle:  charts.DefaultTitle,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", dashboardMaxAge)
		if err := templates.Dashboard(props).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

// newHandler wires the routes behind the middleware chain.
func newHandler(cfg *config.Config, deps server.Deps, logger *slog.Logger) http.Handler {
	srv := server.NewServer(deps, logger, &server.TemplateHandlers{
		Dashboard: dashboardHandler(deps.ReferenceYear),
	})

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateDashboard(); err != nil {
		slog.Error("invalid dashboard configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", observability.ServiceVersion,
		"config", cfg,
	)

	tel, err := observability.InitTelemetry(context.Background(), cfg.Telemetry, logger)
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	datasetStore, err := store.New(cfg.Data.DatasetFormat, cfg.Data.DatasetFile)
	if err != nil {
		logger.Error("invalid dataset store", "error", err)
		os.Exit(1)
	}
	dataset := services.NewDataset(datasetStore, logger)

	// Load once up front so a missing or malformed dataset stops startup.
	ctx, cancel := context.WithTimeout(context.Background(), datasetTimeout)
	defer cancel()
	start := time.Now()
	if _, err := dataset.Records(ctx); err != nil {
		logger.Error("failed to load dataset",
			"error", err,
			"path", cfg.Data.DatasetFile,
			"hint", "run the refresh command to build it from the raw export",
		)
		os.Exit(1)
	}
	logger.Info("dataset loaded successfully", "duration", time.Since(start))

	deps := server.Deps{
		Dataset:       dataset,
		Scenarios:     scenarios.NewLoader(cfg.Data.ScenarioFile),
		ReferenceYear: cfg.Summary.ReferenceYear,
		Metrics:       tel.MetricsHandler,
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, deps, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("flushing telemetry")
		return tel.Shutdown(ctx)
	})

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
