package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"
	"golang.org/x/sync/errgroup"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/scenarios"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	dataset       *services.Dataset
	scenarios     *scenarios.Loader
	referenceYear int
	logger        *slog.Logger
}

func NewSSEHandlers(dataset *services.Dataset, loader *scenarios.Loader, referenceYear int, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dataset:       dataset,
		scenarios:     loader,
		referenceYear: referenceYear,
		logger:        logger,
	}
}

func (h *SSEHandlers) readSignals(r *http.Request) (dashboardSignals, error) {
	var sig dashboardSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		return sig, errors.BadRequestWrap(err, "cannot read dashboard signals")
	}
	return sig, check(sig)
}

func (h *SSEHandlers) patch(ctx context.Context, sse *datastar.ServerSentEventGenerator, c templ.Component) error {
	html, err := templates.RenderString(ctx, c)
	if err != nil {
		return errors.InternalWrap(err, "cannot render fragment")
	}
	return sse.PatchElements(html)
}

// finish clears the error banner, or fills it with err. The stream has
// already started, so this is the only way a failure reaches the user.
func (h *SSEHandlers) finish(ctx context.Context, w http.ResponseWriter, sse *datastar.ServerSentEventGenerator, err error) {
	message := ""
	if err != nil {
		level := slog.LevelError
		message = "Update failed"
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			message = appErr.Message
			if appErr.Details != "" {
				message += ": " + appErr.Details
			}
			if appErr.StatusCode < 500 {
				level = slog.LevelWarn
			}
		}
		h.logger.Log(ctx, level, "sse update failed", "error", err, "code", errors.CodeOf(err))
	}
	if patchErr := h.patch(ctx, sse, templates.ErrorBanner(message)); patchErr != nil {
		h.logger.WarnContext(ctx, "patch error banner", "error", patchErr)
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) sendChart(ctx context.Context, sse *datastar.ServerSentEventGenerator, sig dashboardSignals) error {
	if sig.SKU == "" {
		return errors.Validation("select a SKU")
	}
	fig, weeks, err := salesChart(ctx, h.dataset, chartQuery{
		SKU:    sig.SKU,
		Y:      sig.YCol,
		Title:  sig.Title,
		Prefix: sig.Prefix,
	})
	if err != nil {
		return err
	}
	jsonData, err := json.Marshal(map[string]any{"_chart": fig})
	if err != nil {
		return errors.InternalWrap(err, "cannot encode chart")
	}
	if err := sse.PatchSignals(jsonData); err != nil {
		return err
	}
	return h.patch(ctx, sse, templates.ChartStatus(sig.SKU, weeks))
}

func (h *SSEHandlers) sendMetrics(ctx context.Context, sse *datastar.ServerSentEventGenerator, sig dashboardSignals) error {
	if sig.SKU == "" {
		return errors.Validation("select a SKU")
	}
	year := sig.Year
	if year == 0 {
		year = h.referenceYear
	}
	records, err := h.dataset.ForSKU(ctx, sig.SKU)
	if err != nil {
		return err
	}
	m, err := services.SummarizeSKU(records, year)
	if err != nil {
		return err
	}
	return h.patch(ctx, sse, templates.MetricsCard(m))
}

func (h *SSEHandlers) sendScenarios(ctx context.Context, sse *datastar.ServerSentEventGenerator, sheet *scenarios.Sheet) error {
	rows := make([][]string, 0, len(sheet.Scenarios))
	for _, s := range sheet.Scenarios {
		rows = append(rows, scenarios.Cells(sheet.Columns, s))
	}
	return h.patch(ctx, sse, templates.ScenarioTable(scenarios.Headers(sheet.Columns), rows))
}

func (h *SSEHandlers) HandleChart(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	ctx := r.Context()

	sig, err := h.readSignals(r)
	if err == nil {
		err = h.sendChart(ctx, sse, sig)
	}
	h.finish(ctx, w, sse, err)
}

func (h *SSEHandlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	ctx := r.Context()

	sig, err := h.readSignals(r)
	if err == nil {
		err = h.sendMetrics(ctx, sse, sig)
	}
	h.finish(ctx, w, sse, err)
}

func (h *SSEHandlers) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	ctx := r.Context()

	sheet, err := h.scenarios.SummarySheet(ctx)
	if err == nil {
		err = h.sendScenarios(ctx, sse, sheet)
	}
	h.finish(ctx, w, sse, err)
}

// HandleRefreshAll reloads every panel. The dataset and the workbook are
// read concurrently; a panel whose source failed is left as it was and the
// failure is shown in the banner.
func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	ctx := r.Context()

	sig, err := h.readSignals(r)
	if err != nil {
		h.finish(ctx, w, sse, err)
		return
	}

	var (
		g        errgroup.Group
		skus     []string
		skuErr   error
		sheet    *scenarios.Sheet
		sheetErr error
	)
	g.Go(func() error {
		skus, skuErr = h.dataset.SKUs(ctx)
		return skuErr
	})
	g.Go(func() error {
		sheet, sheetErr = h.scenarios.SummarySheet(ctx)
		return sheetErr
	})
	// Each source's error is kept separately below.
	_ = g.Wait()

	var errs []error
	if skuErr != nil {
		errs = append(errs, skuErr)
	} else {
		errs = append(errs, h.refreshSales(ctx, sse, sig, skus))
	}
	if sheetErr != nil {
		errs = append(errs, sheetErr)
	} else {
		errs = append(errs, h.sendScenarios(ctx, sse, sheet))
	}

	h.finish(ctx, w, sse, stderrors.Join(errs...))
}

// refreshSales fills the SKU selector, keeps the current selection when it
// still exists and redraws the chart and KPI card for it.
func (h *SSEHandlers) refreshSales(ctx context.Context, sse *datastar.ServerSentEventGenerator, sig dashboardSignals, skus []string) error {
	if err := h.patch(ctx, sse, templates.SKUSelect(skus)); err != nil {
		return err
	}
	if len(skus) == 0 {
		return errors.NotFound("the dataset has no SKUs")
	}
	if !slices.Contains(skus, sig.SKU) {
		sig.SKU = skus[0]
	}
	if sig.Year == 0 {
		sig.Year = h.referenceYear
	}

	signals, err := json.Marshal(map[string]any{"sku": sig.SKU, "year": sig.Year})
	if err != nil {
		return errors.InternalWrap(err, "cannot encode signals")
	}
	if err := sse.PatchSignals(signals); err != nil {
		return err
	}
	if err := h.sendChart(ctx, sse, sig); err != nil {
		return err
	}
	return h.sendMetrics(ctx, sse, sig)
}
