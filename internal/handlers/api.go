package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"gonum.org/v1/plot/vg"

	"sales-dashboard/internal/charts"
	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/scenarios"
	"sales-dashboard/internal/services"
)

const (
	cacheControl = "public, max-age=60"
	defaultTop   = 20
	// pixelsPerInch matches the PNG canvas resolution of gonum/plot.
	pixelsPerInch = 96
)

type APIHandlers struct {
	dataset       *services.Dataset
	scenarios     *scenarios.Loader
	referenceYear int
	logger        *slog.Logger
}

func NewAPIHandlers(dataset *services.Dataset, loader *scenarios.Loader, referenceYear int, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dataset:       dataset,
		scenarios:     loader,
		referenceYear: referenceYear,
		logger:        logger,
	}
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) HandleSKUs(w http.ResponseWriter, r *http.Request) {
	skus, err := h.dataset.SKUs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, skus, map[string]string{"Cache-Control": cacheControl})
}

func (h *APIHandlers) HandleSales(w http.ResponseWriter, r *http.Request) {
	q, err := parseSKUQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.dataset.ForSKU(r.Context(), q.SKU)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, records, map[string]string{"Cache-Control": cacheControl})
}

// salesChart builds the styled line chart for one SKU and reports how many
// weekly rows went into it.
func salesChart(ctx context.Context, dataset *services.Dataset, q chartQuery) (charts.Figure, int, error) {
	records, err := dataset.ForSKU(ctx, q.SKU)
	if err != nil {
		return charts.Figure{}, 0, err
	}
	fig, err := charts.BuildLineChart(records, q.X, q.Y)
	if err != nil {
		return charts.Figure{}, 0, err
	}
	fig = charts.FormatLayout(fig, charts.LayoutOptions{
		Title:      q.Title,
		XAxisTitle: q.X,
		Prefix:     q.Prefix,
	})
	return fig, len(records), nil
}

func (h *APIHandlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	q, err := parseChartQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fig, _, err := salesChart(r.Context(), h.dataset, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, fig, map[string]string{"Cache-Control": cacheControl})
}

func (h *APIHandlers) HandleChartPNG(w http.ResponseWriter, r *http.Request) {
	q, err := parseChartQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	fig, _, err := salesChart(r.Context(), h.dataset, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	width, height := charts.DefaultPNGWidth, charts.DefaultPNGHeight
	if q.Width > 0 {
		width = vg.Length(q.Width) * vg.Inch / pixelsPerInch
	}
	if q.Height > 0 {
		height = vg.Length(q.Height) * vg.Inch / pixelsPerInch
	}

	// Render fully before writing so a failure still gets a JSON error.
	var buf bytes.Buffer
	if err := charts.RenderPNG(fig, &buf, width, height); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "write chart png", "error", err)
	}
}

func (h *APIHandlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	q, err := parseMetricsQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if q.Year == 0 {
		q.Year = h.referenceYear
	}
	records, err := h.dataset.ForSKU(r.Context(), q.SKU)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := services.SummarizeSKU(records, q.Year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, m)
}

func (h *APIHandlers) HandleYearly(w http.ResponseWriter, r *http.Request) {
	q, err := parseSKUQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := h.dataset.ForSKU(r.Context(), q.SKU)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, services.YearlyBreakdown(records))
}

// HandleTopSKUs ranks SKUs by value sales in a year, the reference year
// unless ?year= says otherwise.
func (h *APIHandlers) HandleTopSKUs(w http.ResponseWriter, r *http.Request) {
	q, err := parseTopQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if q.Year == 0 {
		q.Year = h.referenceYear
	}
	if q.Limit == 0 {
		q.Limit = defaultTop
	}
	records, err := h.dataset.Records(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccessWithHeaders(w, services.TopSKUs(records, q.Year, q.Limit), map[string]string{"Cache-Control": cacheControl})
}

func (h *APIHandlers) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scenarios.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, summary)
}

func (h *APIHandlers) HandleScenarioDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.scenarios.Details(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, details)
}

// HandleScenarioGrid returns the grid configuration together with its rows,
// ready for the client grid.
func (h *APIHandlers) HandleScenarioGrid(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.scenarios.SummarySheet(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	errors.WriteSuccess(w, map[string]any{
		"gridOptions": scenarios.BuildGridOptions(sheet.Columns),
		"rowData":     scenarios.RowData(sheet),
	})
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {

	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   observability.ServiceVersion,
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.dataset.Stats()
	stats["reference_year"] = h.referenceYear
	stats["scenario_file"] = h.scenarios.Path
	errors.WriteSuccess(w, stats)
}

// HandleInvalidate drops the cached dataset; the next read loads the file again.
func (h *APIHandlers) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	h.dataset.Invalidate()
	errors.WriteSuccess(w, map[string]bool{"invalidated": true})
}
