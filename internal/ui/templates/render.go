// Package templates holds the dashboard page and the HTML fragments the
// SSE handlers patch into it. The *_templ.go files are generated from the
// .templ sources with `templ generate`.
package templates

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"sales-dashboard/internal/models"
)

//go:generate templ generate

var printer = message.NewPrinter(language.AmericanEnglish)

// RenderString renders c for an SSE element patch.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// pageSignals is the initial datastar signal set. _chart is local to the
// browser and filled by /sse/chart.
func pageSignals(props DashboardProps) (string, error) {
	b, err := json.Marshal(map[string]any{
		"sku":    "",
		"ycol":   props.DefaultY,
		"title":  props.DefaultTitle,
		"prefix": false,
		"year":   props.ReferenceYear,
		"_chart": nil,
	})
	return string(b), err
}

func decimal(v float64, digits int) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(digits), number.MinFractionDigits(digits)))
}

func growth(m models.Measure) string {
	if !m.Finite() {
		return "n/a"
	}
	return printer.Sprint(number.Percent(float64(m), number.MaxFractionDigits(1)))
}
