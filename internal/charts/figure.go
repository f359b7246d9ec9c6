// Package charts builds the sales line chart.
//
// A Figure marshals to the JSON plotly.js expects for Plotly.newPlot, so the
// dashboard can hand it to the browser untouched. RenderPNG draws the same
// figure server side for clients without JavaScript.
package charts

import (
	"sales-dashboard/internal/models"
)

const (
	DefaultXColumn = "Date"
	DefaultYColumn = "Units"

	DefaultTitle      = "Unit Sales"
	DefaultXAxisTitle = "Date"

	HistoryTraceName    = "Historical Sales"
	PredictionTraceName = "Predictions"

	historyColor    = "#D01E2F"
	predictionColor = "#27A844"
)

type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

type Trace struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Mode string `json:"mode"`
	X    []any  `json:"x"`
	Y    []any  `json:"y"`
	Line Line   `json:"line"`
}

type Line struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Dash  string  `json:"dash,omitempty"`
}

type Layout struct {
	Title      *Title      `json:"title,omitempty"`
	XAxis      Axis        `json:"xaxis"`
	YAxis      Axis        `json:"yaxis"`
	Legend     *Legend     `json:"legend,omitempty"`
	Template   string      `json:"template,omitempty"`
	HoverMode  string      `json:"hovermode,omitempty"`
	HoverLabel *HoverLabel `json:"hoverlabel,omitempty"`
}

type Title struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Font *Font   `json:"font,omitempty"`
}

type AxisTitle struct {
	Text string `json:"text"`
}

type Axis struct {
	Title         *AxisTitle `json:"title,omitempty"`
	ShowGrid      *bool      `json:"showgrid,omitempty"`
	ShowLine      bool       `json:"showline,omitempty"`
	LineWidth     float64    `json:"linewidth,omitempty"`
	LineColor     string     `json:"linecolor,omitempty"`
	Mirror        bool       `json:"mirror,omitempty"`
	RangeMode     string     `json:"rangemode,omitempty"`
	TickLabelMode string     `json:"ticklabelmode,omitempty"`
	DTick         string     `json:"dtick,omitempty"`
	TickFormat    string     `json:"tickformat,omitempty"`
	TickPrefix    string     `json:"tickprefix,omitempty"`
}

type Legend struct {
	Orientation string  `json:"orientation"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	XAnchor     string  `json:"xanchor"`
	YAnchor     string  `json:"yanchor"`
}

type Font struct {
	Family string `json:"family,omitempty"`
	Color  string `json:"color,omitempty"`
	Size   int    `json:"size,omitempty"`
}

type HoverLabel struct {
	BgColor string `json:"bgcolor"`
	Font    Font   `json:"font"`
}

// BuildLineChart plots yCol against xCol: every row as a dotted history
// line, and the forecast-period rows again as a solid line with markers.
// Empty column names fall back to Date and Units.
func BuildLineChart(records []models.WeeklyRecord, xCol, yCol string) (Figure, error) {
	if xCol == "" {
		xCol = DefaultXColumn
	}
	if yCol == "" {
		yCol = DefaultYColumn
	}
	x, err := lookup(xCol, false)
	if err != nil {
		return Figure{}, err
	}
	y, err := lookup(yCol, true)
	if err != nil {
		return Figure{}, err
	}

	history := Trace{
		Type: "scatter",
		Name: HistoryTraceName,
		Mode: "lines",
		X:    make([]any, 0, len(records)),
		Y:    make([]any, 0, len(records)),
		Line: Line{Color: historyColor, Width: 2, Dash: "dot"},
	}
	predictions := Trace{
		Type: "scatter",
		Name: PredictionTraceName,
		Mode: "lines+markers",
		X:    []any{},
		Y:    []any{},
		Line: Line{Color: predictionColor, Width: 2},
	}
	for _, r := range records {
		xv, yv := x.value(r), y.value(r)
		history.X = append(history.X, xv)
		history.Y = append(history.Y, yv)
		if r.IsForecast() {
			predictions.X = append(predictions.X, xv)
			predictions.Y = append(predictions.Y, yv)
		}
	}

	noGrid := false
	return Figure{
		Data: []Trace{history, predictions},
		Layout: Layout{
			XAxis: Axis{
				ShowGrid:      &noGrid,
				TickLabelMode: "period",
				DTick:         "M1",
				TickFormat:    "%m-%d-%Y",
			},
			Legend: &Legend{
				Orientation: "h",
				X:           0.5,
				Y:           -0.5,
				XAnchor:     "center",
				YAnchor:     "bottom",
			},
		},
	}, nil
}

type LayoutOptions struct {
	Title      string
	XAxisTitle string
	// Prefix puts a dollar sign on the y tick labels.
	Prefix bool
}

// FormatLayout applies the house style to fig and returns it. Settings made
// by BuildLineChart that the style does not touch are kept.
func FormatLayout(fig Figure, opts LayoutOptions) Figure {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.XAxisTitle == "" {
		opts.XAxisTitle = DefaultXAxisTitle
	}

	l := &fig.Layout
	l.Title = &Title{
		Text: opts.Title,
		X:    0.5,
		Font: &Font{Family: "Rockwell", Color: "Black"},
	}

	l.XAxis.Title = &AxisTitle{Text: opts.XAxisTitle}
	frame(&l.XAxis)
	frame(&l.YAxis)
	l.YAxis.RangeMode = "tozero"

	l.Template = "plotly_white"
	l.HoverMode = "x unified"
	l.HoverLabel = &HoverLabel{
		BgColor: "white",
		Font:    Font{Family: "Rockwell", Size: 12},
	}
	if opts.Prefix {
		l.YAxis.TickPrefix = "$"
	}
	return fig
}

func frame(a *Axis) {
	a.ShowLine = true
	a.LineWidth = 1
	a.LineColor = "black"
	a.Mirror = true
}
