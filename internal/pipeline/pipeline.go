// Package pipeline turns raw point-of-sale rows into weekly SKU series.
//
// Run applies, in order: grouping on the retailer/product/day key, calendar
// date construction, currency rescaling, the minimum-history filter on
// product codes, forecast flagging, (SKU, Date) ordering, synthetic R2/MAPE
// metrics and the derived price ratios. The order matters: the history
// filter counts distinct dates over the full grouped table, and the R2 draw
// happens on the sorted rows.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

const (
	DefaultMinWeeks     = 114
	DefaultForecastYear = 2021
	DefaultValueScale   = 0.0012
	DefaultR2Low        = 55
	DefaultR2High       = 85

	instrumentationName = "sales-dashboard/pipeline"
	dateInputLayout     = "2-1-2006"
)

// Options tunes a pipeline run. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// MinWeeks is the number of distinct dates a product code needs to be kept.
	MinWeeks int
	// ForecastYear marks rows whose year is treated as the forecast period.
	ForecastYear int
	// ValueScale converts local-currency sales into reporting currency.
	ValueScale float64
	// R2Low and R2High bound the per-row R2 draw, [R2Low, R2High).
	R2Low, R2High int
	// Rand is the source of the R2 draws. Nil means a fresh unseeded source,
	// so two runs over the same input disagree on R2 and MAPE.
	Rand *rand.Rand
}

// DefaultOptions returns the production settings with an unseeded source.
func DefaultOptions() Options {
	return Options{
		MinWeeks:     DefaultMinWeeks,
		ForecastYear: DefaultForecastYear,
		ValueScale:   DefaultValueScale,
		R2Low:        DefaultR2Low,
		R2High:       DefaultR2High,
	}
}

// Seeded returns a deterministic source for reproducible runs.
func Seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func (o Options) validate() error {
	if o.MinWeeks < 0 {
		return errors.Validation(fmt.Sprintf("min weeks must not be negative, got %d", o.MinWeeks))
	}
	if o.R2High <= o.R2Low {
		return errors.Validation(fmt.Sprintf("R2 range [%d, %d) is empty", o.R2Low, o.R2High))
	}
	return nil
}

// Stats summarizes a run for logs and the admin endpoint.
type Stats struct {
	RawRows         int           `json:"raw_rows"`
	GroupedRows     int           `json:"grouped_rows"`
	DroppedProducts int           `json:"dropped_products"`
	OutputRows      int           `json:"output_rows"`
	SKUs            int           `json:"skus"`
	Duration        time.Duration `json:"duration"`
}

// Result is the output of a run.
type Result struct {
	Records  []models.WeeklyRecord
	Warnings []errors.DivisionPolicyWarning
	Stats    Stats
}

// groupKey is the nine-field composite the raw rows collapse on.
type groupKey struct {
	Retailer    string
	Category    string
	Segment     string
	SubSegment  string
	Brand       string
	ProductCode string
	Description string
	Day         models.DatePart
	Month       models.DatePart
	Year        models.DatePart
}

type bucket struct {
	key    groupKey
	units  float64
	volume float64
	value  float64
}

// Pipeline runs aggregations and reports them to the logger and the
// global OpenTelemetry providers.
type Pipeline struct {
	opts       Options
	logger     *slog.Logger
	outputRows metric.Int64Counter
}

// New returns a Pipeline with the given options.
func New(opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter(instrumentationName)
	counter, err := meter.Int64Counter("pipeline_output_rows_total",
		metric.WithDescription("Weekly SKU rows produced by aggregation runs"))
	if err != nil {
		logger.Warn("pipeline counter unavailable", "error", err)
	}
	return &Pipeline{opts: opts, logger: logger, outputRows: counter}
}

// Run aggregates raw into weekly records.
func (p *Pipeline) Run(ctx context.Context, raw []models.RawRecord) (*Result, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "pipeline.Run")
	defer span.End()

	start := time.Now()
	result, err := Run(raw, p.opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.Stats.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("pipeline.raw_rows", result.Stats.RawRows),
		attribute.Int("pipeline.output_rows", result.Stats.OutputRows),
		attribute.Int("pipeline.skus", result.Stats.SKUs),
	)
	if p.outputRows != nil {
		p.outputRows.Add(ctx, int64(result.Stats.OutputRows))
	}

	if len(result.Warnings) > 0 {
		p.logger.Warn("non-finite prices kept as NaN/Inf", "count", len(result.Warnings))
	}
	for _, w := range result.Warnings {
		p.logger.Debug("non-finite price",
			"sku", w.SKU,
			"product_code", w.ProductCode,
			"date", w.Date.Format("2006-01-02"),
			"field", w.Field,
		)
	}
	p.logger.Info("aggregation complete",
		"raw_rows", result.Stats.RawRows,
		"grouped_rows", result.Stats.GroupedRows,
		"dropped_products", result.Stats.DroppedProducts,
		"output_rows", result.Stats.OutputRows,
		"skus", result.Stats.SKUs,
		"warnings", len(result.Warnings),
		"duration", result.Stats.Duration,
	)
	return result, nil
}

// Run is the uninstrumented aggregation.
func Run(raw []models.RawRecord, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	buckets := group(raw)

	records := make([]models.WeeklyRecord, 0, len(buckets))
	for _, b := range buckets {
		date, err := buildDate(b.key)
		if err != nil {
			return nil, err
		}
		records = append(records, models.WeeklyRecord{
			Retailer:    b.key.Retailer,
			Category:    b.key.Category,
			Segment:     b.key.Segment,
			SubSegment:  b.key.SubSegment,
			Brand:       b.key.Brand,
			ProductCode: b.key.ProductCode,
			Units:       b.units,
			Volume:      b.volume,
			Value:       opts.ValueScale * b.value,
			Date:        date,
			Year:        date.Year(),
			SKU:         b.key.Description,
		})
	}
	stats := Stats{RawRows: len(raw), GroupedRows: len(records)}

	records, stats.DroppedProducts = filterHistory(records, opts.MinWeeks)

	for i := range records {
		if records[i].Year == opts.ForecastYear {
			records[i].PredFlag = 1
		}
	}

	slices.SortStableFunc(records, func(a, b models.WeeklyRecord) int {
		return cmp.Or(
			cmp.Compare(a.SKU, b.SKU),
			a.Date.Compare(b.Date.Time),
		)
	})

	stats.SKUs = assignR2(records, rng, opts.R2Low, opts.R2High)

	var warnings []errors.DivisionPolicyWarning
	for i := range records {
		r := &records[i]
		r.MAPE = (100 - r.R2) / 2
		r.UnitPrice = models.Measure(r.Value / r.Units)
		r.VolPrice = models.Measure(r.Value / r.Volume)

		if !r.UnitPrice.Finite() {
			warnings = append(warnings, divisionWarning(r, "Unit Price", r.Units))
		}
		if !r.VolPrice.Finite() {
			warnings = append(warnings, divisionWarning(r, "Vol Price", r.Volume))
		}
	}

	stats.OutputRows = len(records)
	return &Result{Records: records, Warnings: warnings, Stats: stats}, nil
}

// group sums the measures of raw rows sharing a key. Buckets keep the
// order in which their key first appeared.
func group(raw []models.RawRecord) []*bucket {
	index := make(map[groupKey]*bucket, len(raw))
	var ordered []*bucket
	for _, r := range raw {
		key := groupKey{
			Retailer:    r.Retailer,
			Category:    r.Category,
			Segment:     r.Segment,
			SubSegment:  r.SubSegment,
			Brand:       r.Brand,
			ProductCode: r.ProductCode,
			Description: r.Description,
			Day:         r.Day,
			Month:       r.Month,
			Year:        r.Year,
		}
		b, ok := index[key]
		if !ok {
			b = &bucket{key: key}
			index[key] = b
			ordered = append(ordered, b)
		}
		b.units += r.Units
		b.volume += r.SalesKg
		b.value += r.SalesLC
	}
	return ordered
}

// buildDate formats the key as D-M-YYYY and parses it back, so impossible
// dates such as 31-2-2020 fail instead of rolling over.
func buildDate(key groupKey) (models.Date, error) {
	s := fmt.Sprintf("%d-%d-%d", key.Day, key.Month, key.Year)
	t, err := time.Parse(dateInputLayout, s)
	if err != nil {
		appErr := errors.Parse(err, "invalid calendar date")
		appErr.Details = fmt.Sprintf("product %s (%s): %q", key.ProductCode, key.Description, s)
		return models.Date{}, appErr
	}
	return models.NewDate(t), nil
}

// filterHistory drops every row of a product code observed on fewer than
// minWeeks distinct dates.
func filterHistory(records []models.WeeklyRecord, minWeeks int) ([]models.WeeklyRecord, int) {
	dates := make(map[string]map[models.Date]struct{})
	for _, r := range records {
		seen, ok := dates[r.ProductCode]
		if !ok {
			seen = make(map[models.Date]struct{})
			dates[r.ProductCode] = seen
		}
		seen[r.Date] = struct{}{}
	}

	dropped := 0
	for _, seen := range dates {
		if len(seen) < minWeeks {
			dropped++
		}
	}

	kept := records[:0]
	for _, r := range records {
		if len(dates[r.ProductCode]) >= minWeeks {
			kept = append(kept, r)
		}
	}
	return kept, dropped
}

// assignR2 draws one integer per row in [low, high) and then replaces every
// row's value with the mean of its SKU's draws. It returns the number of SKUs.
func assignR2(records []models.WeeklyRecord, rng *rand.Rand, low, high int) int {
	type acc struct {
		sum float64
		n   int
	}
	bySKU := make(map[string]*acc)
	for i := range records {
		draw := float64(low + rng.IntN(high-low))
		records[i].R2 = draw
		a, ok := bySKU[records[i].SKU]
		if !ok {
			a = &acc{}
			bySKU[records[i].SKU] = a
		}
		a.sum += draw
		a.n++
	}
	for i := range records {
		a := bySKU[records[i].SKU]
		records[i].R2 = a.sum / float64(a.n)
	}
	return len(bySKU)
}

func divisionWarning(r *models.WeeklyRecord, field string, denominator float64) errors.DivisionPolicyWarning {
	return errors.DivisionPolicyWarning{
		SKU:         r.SKU,
		ProductCode: r.ProductCode,
		Date:        r.Date.Time,
		Field:       field,
		Numerator:   r.Value,
		Denominator: denominator,
	}
}
