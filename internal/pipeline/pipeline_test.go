package pipeline

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

var firstWeek = time.Date(2019, 1, 5, 0, 0, 0, 0, time.UTC)

func rawRow(retailer, code, desc string, day time.Time, units, kg, lc float64) models.RawRecord {
	return models.RawRecord{
		Retailer:    retailer,
		Category:    "Snacks",
		Segment:     "Chips",
		SubSegment:  "Salted",
		Brand:       "Crunch",
		ProductCode: code,
		Description: desc,
		Day:         models.DatePart(day.Day()),
		Month:       models.DatePart(day.Month()),
		Year:        models.DatePart(day.Year()),
		Units:       units,
		SalesKg:     kg,
		SalesLC:     lc,
	}
}

// weeklyRows returns one row per week for n consecutive weeks starting at from.
func weeklyRows(retailer, code, desc string, from time.Time, n int) []models.RawRecord {
	rows := make([]models.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, rawRow(retailer, code, desc, from.AddDate(0, 0, 7*i), 10, 5, 1000))
	}
	return rows
}

func seededOptions(seed uint64) Options {
	opts := DefaultOptions()
	opts.Rand = Seeded(seed)
	return opts
}

func TestRun_DropsShortHistoryProducts(t *testing.T) {
	var raw []models.RawRecord
	raw = append(raw, weeklyRows("Mart", "K-A", "Widget A", firstWeek, 115)...)
	raw = append(raw, weeklyRows("Mart", "K-B", "Widget B", firstWeek, 50)...)

	result, err := Run(raw, seededOptions(1))
	require.NoError(t, err)

	require.Len(t, result.Records, 115)
	for _, r := range result.Records {
		assert.Equal(t, "Widget A", r.SKU)
	}
	assert.Equal(t, 1, result.Stats.DroppedProducts)
	assert.Equal(t, 165, result.Stats.RawRows)
	assert.Equal(t, 1, result.Stats.SKUs)
}

func TestRun_HistoryCountsDistinctDatesAcrossRetailers(t *testing.T) {
	// Two retailers with 60 weeks each, overlapping on 5 weeks: 115 distinct dates.
	var raw []models.RawRecord
	raw = append(raw, weeklyRows("Mart", "K-A", "Widget A", firstWeek, 60)...)
	raw = append(raw, weeklyRows("Shop", "K-A", "Widget A", firstWeek.AddDate(0, 0, 7*55), 60)...)
	// 120 rows but only 60 distinct dates.
	raw = append(raw, weeklyRows("Mart", "K-C", "Widget C", firstWeek, 60)...)
	raw = append(raw, weeklyRows("Shop", "K-C", "Widget C", firstWeek, 60)...)

	result, err := Run(raw, seededOptions(1))
	require.NoError(t, err)

	dates := map[string]map[models.Date]bool{}
	for _, r := range result.Records {
		if dates[r.ProductCode] == nil {
			dates[r.ProductCode] = map[models.Date]bool{}
		}
		dates[r.ProductCode][r.Date] = true
	}
	require.Contains(t, dates, "K-A")
	assert.NotContains(t, dates, "K-C")
	for code, seen := range dates {
		assert.GreaterOrEqual(t, len(seen), DefaultMinWeeks, code)
	}
	assert.Len(t, result.Records, 120)
}

func TestRun_ForecastFlag(t *testing.T) {
	raw := []models.RawRecord{
		rawRow("Mart", "K-A", "Widget A", time.Date(2021, 6, 15, 0, 0, 0, 0, time.UTC), 1, 1, 100),
		rawRow("Mart", "K-A", "Widget A", time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC), 1, 1, 100),
		rawRow("Mart", "K-A", "Widget A", time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), 1, 1, 100),
	}
	opts := seededOptions(7)
	opts.MinWeeks = 1

	result, err := Run(raw, opts)
	require.NoError(t, err)
	require.Len(t, result.Records, 3)

	byDate := map[string]models.WeeklyRecord{}
	for _, r := range result.Records {
		byDate[r.Date.String()] = r
		assert.Equal(t, r.Year == 2021, r.PredFlag == 1, r.Date.String())
	}
	assert.Equal(t, 1, byDate["2021-06-15"].PredFlag)
	assert.Equal(t, 2021, byDate["2021-06-15"].Year)
	assert.Equal(t, 0, byDate["2019-06-15"].PredFlag)
	assert.Equal(t, 2019, byDate["2019-06-15"].Year)
	assert.Equal(t, 0, byDate["2020-12-31"].PredFlag)
}

func TestRun_ValueRescaledAndGrouped(t *testing.T) {
	day := time.Date(2020, 3, 7, 0, 0, 0, 0, time.UTC)
	raw := []models.RawRecord{
		rawRow("Mart", "K-A", "Widget A", day, 4, 2, 1000),
		rawRow("Mart", "K-A", "Widget A", day, 6, 3, 500),
		rawRow("Shop", "K-A", "Widget A", day, 1, 1, 1000),
	}
	opts := seededOptions(3)
	opts.MinWeeks = 1

	result, err := Run(raw, opts)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Equal(t, 2, result.Stats.GroupedRows)

	byRetailer := map[string]models.WeeklyRecord{}
	for _, r := range result.Records {
		byRetailer[r.Retailer] = r
	}
	mart := byRetailer["Mart"]
	assert.Equal(t, 10.0, mart.Units)
	assert.Equal(t, 5.0, mart.Volume)
	assert.InDelta(t, 1.8, mart.Value, 1e-9)
	assert.InDelta(t, 1.2, byRetailer["Shop"].Value, 1e-9)
	assert.Equal(t, "2020-03-07", mart.Date.String())
	assert.Equal(t, "Widget A", mart.SKU)
}

func TestRun_MetricsInvariants(t *testing.T) {
	var raw []models.RawRecord
	raw = append(raw, weeklyRows("Mart", "K-A", "Widget A", firstWeek, 120)...)
	raw = append(raw, weeklyRows("Shop", "K-A", "Widget A", firstWeek, 120)...)
	raw = append(raw, weeklyRows("Mart", "K-Z", "Widget Z", firstWeek, 130)...)

	result, err := Run(raw, seededOptions(42))
	require.NoError(t, err)
	require.NotEmpty(t, result.Records)

	r2BySKU := map[string]float64{}
	for _, r := range result.Records {
		if prev, ok := r2BySKU[r.SKU]; ok {
			assert.Equal(t, prev, r.R2, "R2 must be constant per SKU")
		}
		r2BySKU[r.SKU] = r.R2

		assert.GreaterOrEqual(t, r.R2, 55.0)
		assert.Less(t, r.R2, 85.0)
		assert.Equal(t, (100-r.R2)/2, r.MAPE)
		if r.Units != 0 {
			assert.InDelta(t, r.Value, float64(r.UnitPrice)*r.Units, 1e-9)
		}
		if r.Volume != 0 {
			assert.InDelta(t, r.Value, float64(r.VolPrice)*r.Volume, 1e-9)
		}
	}
	assert.Len(t, r2BySKU, 2)
	assert.Empty(t, result.Warnings)
}

func TestRun_R2IsMeanOfPerRowDraws(t *testing.T) {
	raw := weeklyRows("Mart", "K-A", "Widget A", firstWeek, 3)
	opts := DefaultOptions()
	opts.MinWeeks = 1

	// Replay the draws the run will make with the same seed.
	replay := Seeded(9)
	var sum float64
	for range 3 {
		sum += float64(DefaultR2Low + replay.IntN(DefaultR2High-DefaultR2Low))
	}

	opts.Rand = Seeded(9)
	result, err := Run(raw, opts)
	require.NoError(t, err)
	for _, r := range result.Records {
		assert.InDelta(t, sum/3, r.R2, 1e-12)
	}
}

func TestRun_SeedIsReproducible(t *testing.T) {
	raw := weeklyRows("Mart", "K-A", "Widget A", firstWeek, 120)

	first, err := Run(raw, seededOptions(11))
	require.NoError(t, err)
	second, err := Run(raw, seededOptions(11))
	require.NoError(t, err)

	require.Equal(t, len(first.Records), len(second.Records))
	for i := range first.Records {
		assert.Equal(t, first.Records[i].R2, second.Records[i].R2)
	}
}

func TestRun_SortedBySKUThenDate(t *testing.T) {
	var raw []models.RawRecord
	raw = append(raw, weeklyRows("Mart", "K-Z", "Zeta", firstWeek, 5)...)
	raw = append(raw, weeklyRows("Mart", "K-A", "Alpha", firstWeek.AddDate(0, 0, 7*4), 5)...)
	raw = append(raw, weeklyRows("Mart", "K-A", "Alpha", firstWeek, 4)...)
	opts := seededOptions(5)
	opts.MinWeeks = 1

	result, err := Run(raw, opts)
	require.NoError(t, err)

	for i := 1; i < len(result.Records); i++ {
		prev, cur := result.Records[i-1], result.Records[i]
		if prev.SKU == cur.SKU {
			assert.False(t, cur.Date.Before(prev.Date.Time), "dates out of order at %d", i)
		} else {
			assert.Less(t, prev.SKU, cur.SKU)
		}
	}
	assert.Equal(t, "Alpha", result.Records[0].SKU)
	assert.Equal(t, firstWeek, result.Records[0].Date.Time)
}

func TestRun_ZeroUnitsKeepNonFinitePrice(t *testing.T) {
	day := time.Date(2020, 3, 7, 0, 0, 0, 0, time.UTC)
	raw := []models.RawRecord{
		rawRow("Mart", "K-A", "Widget A", day, 0, 0, 1000),
		rawRow("Mart", "K-A", "Widget A", day.AddDate(0, 0, 7), 0, 2, 0),
	}
	opts := seededOptions(1)
	opts.MinWeeks = 1

	result, err := Run(raw, opts)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	assert.True(t, math.IsInf(float64(result.Records[0].UnitPrice), 1))
	assert.True(t, math.IsInf(float64(result.Records[0].VolPrice), 1))
	assert.True(t, math.IsNaN(float64(result.Records[1].UnitPrice)))
	assert.Equal(t, 0.0, float64(result.Records[1].VolPrice))

	require.Len(t, result.Warnings, 3)
	assert.Equal(t, "Unit Price", result.Warnings[0].Field)
	assert.Equal(t, "Widget A", result.Warnings[0].SKU)
}

func TestRun_InvalidDateFails(t *testing.T) {
	raw := []models.RawRecord{{
		Retailer: "Mart", ProductCode: "K-A", Description: "Widget A",
		Day: 31, Month: 2, Year: 2020, Units: 1, SalesKg: 1, SalesLC: 1,
	}}
	opts := seededOptions(1)
	opts.MinWeeks = 1

	_, err := Run(raw, opts)
	require.Error(t, err)
	assert.Equal(t, errors.CodeParse, errors.CodeOf(err))
}

func TestRun_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.R2High = opts.R2Low

	_, err := Run(nil, opts)
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
}

func TestRun_EmptyInput(t *testing.T) {
	result, err := Run(nil, seededOptions(1))
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Zero(t, result.Stats.OutputRows)
}

func TestPipeline_Run(t *testing.T) {
	p := New(seededOptions(2), slog.New(slog.NewTextHandler(io.Discard, nil)))

	result, err := p.Run(context.Background(), weeklyRows("Mart", "K-A", "Widget A", firstWeek, 114))
	require.NoError(t, err)
	assert.Len(t, result.Records, 114)
	assert.Positive(t, result.Stats.Duration)
}
