package charts

import (
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

const (
	DefaultPNGWidth  = 10 * vg.Inch
	DefaultPNGHeight = 5 * vg.Inch
)

// RenderPNG draws fig as a PNG. Points with a non-finite y value are left
// out, since plotly leaves a gap for null and gonum cannot draw NaN.
func RenderPNG(fig Figure, w io.Writer, width, height vg.Length) error {
	p := plot.New()
	if fig.Layout.Title != nil {
		p.Title.Text = fig.Layout.Title.Text
		p.Title.TextStyle.Font.Size = vg.Points(16)
	}
	if t := fig.Layout.XAxis.Title; t != nil {
		p.X.Label.Text = t.Text
	}
	if fig.Layout.YAxis.RangeMode == "tozero" {
		p.Y.Min = 0
	}
	p.Legend.Top = false
	p.Legend.Left = false

	dates := false
	added := 0
	for _, tr := range fig.Data {
		pts, isDate, err := points(tr)
		if err != nil {
			return err
		}
		dates = dates || isDate
		if len(pts) == 0 {
			continue
		}

		c, err := parseHex(tr.Line.Color)
		if err != nil {
			return err
		}
		if tr.Mode == "lines+markers" {
			line, scatter, err := plotter.NewLinePoints(pts)
			if err != nil {
				return errors.InternalWrap(err, "cannot plot trace")
			}
			line.Color = c
			line.Width = vg.Points(tr.Line.Width)
			scatter.Color = c
			scatter.Shape = draw.CircleGlyph{}
			scatter.Radius = vg.Points(3)
			p.Add(line, scatter)
			p.Legend.Add(tr.Name, line, scatter)
		} else {
			line, err := plotter.NewLine(pts)
			if err != nil {
				return errors.InternalWrap(err, "cannot plot trace")
			}
			line.Color = c
			line.Width = vg.Points(tr.Line.Width)
			if tr.Line.Dash == "dot" {
				line.Dashes = []vg.Length{vg.Points(2), vg.Points(3)}
			}
			p.Add(line)
			p.Legend.Add(tr.Name, line)
		}
		added++
	}
	if added == 0 {
		return errors.NotFound("no data points to plot")
	}

	if dates {
		p.X.Tick.Marker = plot.TimeTicks{Format: "01-02-2006"}
	}
	if fig.Layout.YAxis.TickPrefix != "" {
		p.Y.Tick.Marker = prefixTicks{prefix: fig.Layout.YAxis.TickPrefix}
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return errors.InternalWrap(err, "cannot render chart")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.InternalWrap(err, "cannot write chart")
	}
	return nil
}

// points converts a trace to plottable pairs. Date strings become Unix
// seconds; the second result reports whether any were seen.
func points(tr Trace) (plotter.XYs, bool, error) {
	pts := make(plotter.XYs, 0, len(tr.X))
	dates := false
	for i := range tr.X {
		y, ok := tr.Y[i].(models.Measure)
		if !ok {
			return nil, false, errors.Validation(fmt.Sprintf("trace %q has a non-numeric y value", tr.Name))
		}
		if !y.Finite() {
			continue
		}

		var x float64
		switch v := tr.X[i].(type) {
		case models.Measure:
			x = float64(v)
		case string:
			t, err := time.Parse(time.DateOnly, v)
			if err != nil {
				return nil, false, errors.Validation(fmt.Sprintf("x value %q cannot be placed on an axis", v))
			}
			x = float64(t.Unix())
			dates = true
		default:
			return nil, false, errors.Validation(fmt.Sprintf("trace %q has an unsupported x value", tr.Name))
		}
		pts = append(pts, plotter.XY{X: x, Y: float64(y)})
	}
	return pts, dates, nil
}

func parseHex(s string) (color.RGBA, error) {
	var c color.RGBA
	c.A = 0xff
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return color.RGBA{}, errors.ValidationWrap(err, fmt.Sprintf("invalid color %q", s))
	}
	return c, nil
}

type prefixTicks struct {
	prefix string
}

func (t prefixTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = t.prefix + ticks[i].Label
		}
	}
	return ticks
}
