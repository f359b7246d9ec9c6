package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/models"
	"sales-dashboard/internal/scenarios"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/store"
)

const testReferenceYear = 2020

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func weekly(sku string, date time.Time, units, value float64) models.WeeklyRecord {
	r := models.WeeklyRecord{
		Retailer:    "Mart",
		Category:    "Snacks",
		Brand:       "Acme",
		ProductCode: "K-" + sku,
		SKU:         sku,
		Date:        models.NewDate(date),
		Year:        date.Year(),
		Units:       units,
		Volume:      units / 2,
		Value:       value,
		R2:          70,
		MAPE:        15,
		UnitPrice:   models.Measure(value / units),
		VolPrice:    models.Measure(value / (units / 2)),
	}
	if date.Year() == 2021 {
		r.PredFlag = 1
	}
	return r
}

func fixtureRecords() []models.WeeklyRecord {
	return []models.WeeklyRecord{
		weekly("Widget A", time.Date(2019, time.June, 3, 0, 0, 0, 0, time.UTC), 10, 20),
		weekly("Widget A", time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC), 15, 30),
		weekly("Widget A", time.Date(2021, time.June, 7, 0, 0, 0, 0, time.UTC), 20, 40),
		weekly("Widget B", time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC), 5, 5),
	}
}

func writeScenarioWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", scenarios.SummarySheet))
	rows := [][]any{
		{"Scenario", "Created Date", "revenue", "cost", "inv_cost", "profit", "prec_profit"},
		{"Base", time.Date(2021, time.January, 15, 0, 0, 0, 0, time.UTC), 1000, 600, 100, 300, 0.3},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(scenarios.SummarySheet, cell, &row))
	}
	_, err := f.NewSheet(scenarios.DetailsSheet)
	require.NoError(t, err)
	details := []any{"Scenario", "Retailer"}
	require.NoError(t, f.SetSheetRow(scenarios.DetailsSheet, "A1", &details))
	detailRow := []any{"Base", "Mart"}
	require.NoError(t, f.SetSheetRow(scenarios.DetailsSheet, "A2", &detailRow))

	path := filepath.Join(t.TempDir(), "scenarios.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

type fixture struct {
	dataset   *services.Dataset
	scenarios *scenarios.Loader
	api       *APIHandlers
	sse       *SSEHandlers
}

// newFixture writes the sample dataset and, when withWorkbook is set, the
// scenario workbook to disk. Otherwise the loader points at a missing file.
func newFixture(t *testing.T, withWorkbook bool) *fixture {
	t.Helper()
	datasetPath := filepath.Join(t.TempDir(), "sales_data.csv")
	require.NoError(t, store.NewCSV(datasetPath).Write(context.Background(), fixtureRecords()))

	workbook := filepath.Join(t.TempDir(), "missing.xlsx")
	if withWorkbook {
		workbook = writeScenarioWorkbook(t)
	}

	logger := discardLogger()
	dataset := services.NewDataset(store.NewCSV(datasetPath), logger)
	loader := scenarios.NewLoader(workbook)
	return &fixture{
		dataset:   dataset,
		scenarios: loader,
		api:       NewAPIHandlers(dataset, loader, testReferenceYear, logger),
		sse:       NewSSEHandlers(dataset, loader, testReferenceYear, logger),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env), "body: %s", w.Body.String())
	return env
}
