package charts

import (
	"bytes"
	"encoding/json"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

func series() []models.WeeklyRecord {
	var out []models.WeeklyRecord
	start := time.Date(2020, time.November, 2, 0, 0, 0, 0, time.UTC)
	for i := range 12 {
		d := models.NewDate(start.AddDate(0, 0, 7*i))
		r := models.WeeklyRecord{
			SKU:       "Widget A",
			Date:      d,
			Year:      d.Year(),
			Units:     float64(10 + i),
			Value:     float64(20 + i),
			UnitPrice: models.Measure(float64(20+i) / float64(10+i)),
		}
		if r.Year == 2021 {
			r.PredFlag = 1
		}
		out = append(out, r)
	}
	return out
}

func TestBuildLineChart_Traces(t *testing.T) {
	records := series()
	fig, err := BuildLineChart(records, "", "")
	require.NoError(t, err)
	require.Len(t, fig.Data, 2)

	history, predictions := fig.Data[0], fig.Data[1]
	assert.Equal(t, HistoryTraceName, history.Name)
	assert.Equal(t, "lines", history.Mode)
	assert.Equal(t, Line{Color: "#D01E2F", Width: 2, Dash: "dot"}, history.Line)
	assert.Len(t, history.X, len(records))
	assert.Equal(t, "2020-11-02", history.X[0])
	assert.Equal(t, models.Measure(10), history.Y[0])

	forecast := 0
	for _, r := range records {
		if r.IsForecast() {
			forecast++
		}
	}
	assert.Equal(t, PredictionTraceName, predictions.Name)
	assert.Equal(t, "lines+markers", predictions.Mode)
	assert.Equal(t, Line{Color: "#27A844", Width: 2}, predictions.Line)
	assert.Len(t, predictions.X, forecast)
	assert.Equal(t, "2021-01-04", predictions.X[0])
}

func TestBuildLineChart_Layout(t *testing.T) {
	fig, err := BuildLineChart(series(), "Date", "Value")
	require.NoError(t, err)

	x := fig.Layout.XAxis
	require.NotNil(t, x.ShowGrid)
	assert.False(t, *x.ShowGrid)
	assert.Equal(t, "period", x.TickLabelMode)
	assert.Equal(t, "M1", x.DTick)
	assert.Equal(t, "%m-%d-%Y", x.TickFormat)
	assert.Equal(t, &Legend{Orientation: "h", X: 0.5, Y: -0.5, XAnchor: "center", YAnchor: "bottom"}, fig.Layout.Legend)
}

func TestBuildLineChart_UnknownColumns(t *testing.T) {
	_, err := BuildLineChart(series(), "Date", "Revenue")
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))

	_, err = BuildLineChart(series(), "Date", "SKU")
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))

	_, err = BuildLineChart(series(), "When", "Units")
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
}

func TestBuildLineChart_JSON(t *testing.T) {
	records := series()[:1]
	records[0].UnitPrice = models.Measure(math.Inf(1))

	fig, err := BuildLineChart(records, "Date", "Unit Price")
	require.NoError(t, err)

	b, err := json.Marshal(fig)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"y":[null]`)
	assert.Contains(t, string(b), `"x":["2020-11-02"]`)
	assert.Contains(t, string(b), `"showgrid":false`)
}

func TestFormatLayout_Defaults(t *testing.T) {
	fig, err := BuildLineChart(series(), "", "")
	require.NoError(t, err)

	fig = FormatLayout(fig, LayoutOptions{})
	l := fig.Layout

	require.NotNil(t, l.Title)
	assert.Equal(t, "Unit Sales", l.Title.Text)
	assert.Equal(t, 0.5, l.Title.X)
	assert.Equal(t, &Font{Family: "Rockwell", Color: "Black"}, l.Title.Font)
	assert.Equal(t, &AxisTitle{Text: "Date"}, l.XAxis.Title)

	for _, a := range []Axis{l.XAxis, l.YAxis} {
		assert.True(t, a.ShowLine)
		assert.Equal(t, 1.0, a.LineWidth)
		assert.Equal(t, "black", a.LineColor)
		assert.True(t, a.Mirror)
	}
	assert.Equal(t, "tozero", l.YAxis.RangeMode)
	assert.Equal(t, "plotly_white", l.Template)
	assert.Equal(t, "x unified", l.HoverMode)
	assert.Equal(t, &HoverLabel{BgColor: "white", Font: Font{Family: "Rockwell", Size: 12}}, l.HoverLabel)
	assert.Empty(t, l.YAxis.TickPrefix)

	// Chart settings survive the styling pass.
	assert.Equal(t, "M1", l.XAxis.DTick)
	require.NotNil(t, l.Legend)
}

func TestFormatLayout_Options(t *testing.T) {
	fig, err := BuildLineChart(series(), "Date", "Value")
	require.NoError(t, err)

	fig = FormatLayout(fig, LayoutOptions{Title: "Value Sales", XAxisTitle: "Week", Prefix: true})
	assert.Equal(t, "Value Sales", fig.Layout.Title.Text)
	assert.Equal(t, "Week", fig.Layout.XAxis.Title.Text)
	assert.Equal(t, "$", fig.Layout.YAxis.TickPrefix)
}

func TestRenderPNG(t *testing.T) {
	fig, err := BuildLineChart(series(), "", "Value")
	require.NoError(t, err)
	fig = FormatLayout(fig, LayoutOptions{Prefix: true})

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(fig, &buf, DefaultPNGWidth, DefaultPNGHeight))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Positive(t, img.Bounds().Dx())
}

func TestRenderPNG_SkipsNonFinite(t *testing.T) {
	records := series()
	records[3].UnitPrice = models.Measure(math.NaN())

	fig, err := BuildLineChart(records, "Date", "Unit Price")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderPNG(fig, &buf, DefaultPNGWidth, DefaultPNGHeight))
	assert.NotZero(t, buf.Len())
}

func TestRenderPNG_Empty(t *testing.T) {
	fig, err := BuildLineChart(nil, "", "")
	require.NoError(t, err)

	err = RenderPNG(fig, &bytes.Buffer{}, DefaultPNGWidth, DefaultPNGHeight)
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestParseHex(t *testing.T) {
	c, err := parseHex("#D01E2F")
	require.NoError(t, err)
	assert.Equal(t, uint8(0xD0), c.R)
	assert.Equal(t, uint8(0x1E), c.G)
	assert.Equal(t, uint8(0x2F), c.B)

	_, err = parseHex("red")
	assert.Error(t, err)
}
