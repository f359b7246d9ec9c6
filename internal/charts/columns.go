package charts

import (
	"fmt"
	"slices"
	"strings"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

type column struct {
	numeric bool
	value   func(models.WeeklyRecord) any
}

func measure(f func(models.WeeklyRecord) float64) column {
	return column{numeric: true, value: func(r models.WeeklyRecord) any { return models.Measure(f(r)) }}
}

func text(f func(models.WeeklyRecord) string) column {
	return column{value: func(r models.WeeklyRecord) any { return f(r) }}
}

// columns maps dataset headers to record accessors. Dates are emitted as
// ISO strings, which plotly reads as a date axis.
var columns = map[string]column{
	"Retailer":    text(func(r models.WeeklyRecord) string { return r.Retailer }),
	"Category":    text(func(r models.WeeklyRecord) string { return r.Category }),
	"Segment":     text(func(r models.WeeklyRecord) string { return r.Segment }),
	"Sub-Segment": text(func(r models.WeeklyRecord) string { return r.SubSegment }),
	"Brand":       text(func(r models.WeeklyRecord) string { return r.Brand }),
	"KNAC-14":     text(func(r models.WeeklyRecord) string { return r.ProductCode }),
	"SKU":         text(func(r models.WeeklyRecord) string { return r.SKU }),
	"Market":      text(func(r models.WeeklyRecord) string { return r.Market }),
	"Date":        text(func(r models.WeeklyRecord) string { return r.Date.String() }),
	"Units":       measure(func(r models.WeeklyRecord) float64 { return r.Units }),
	"Volume":      measure(func(r models.WeeklyRecord) float64 { return r.Volume }),
	"Value":       measure(func(r models.WeeklyRecord) float64 { return r.Value }),
	"year":        measure(func(r models.WeeklyRecord) float64 { return float64(r.Year) }),
	"pred_flag":   measure(func(r models.WeeklyRecord) float64 { return float64(r.PredFlag) }),
	"R2":          measure(func(r models.WeeklyRecord) float64 { return r.R2 }),
	"MAPE":        measure(func(r models.WeeklyRecord) float64 { return r.MAPE }),
	"Unit Price":  measure(func(r models.WeeklyRecord) float64 { return float64(r.UnitPrice) }),
	"Vol Price":   measure(func(r models.WeeklyRecord) float64 { return float64(r.VolPrice) }),
}

// NumericColumns lists the columns usable as a y axis, sorted.
func NumericColumns() []string {
	var out []string
	for name, c := range columns {
		if c.numeric {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func lookup(name string, wantNumeric bool) (column, error) {
	c, ok := columns[name]
	if !ok {
		return column{}, errors.Validation(fmt.Sprintf("unknown column %q", name))
	}
	if wantNumeric && !c.numeric {
		return column{}, errors.Validation(fmt.Sprintf("column %q is not numeric, choose one of %s",
			name, strings.Join(NumericColumns(), ", ")))
	}
	return c, nil
}
