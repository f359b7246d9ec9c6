package scenarios

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"sales-dashboard/internal/models"
)

const (
	gridDateFormat = "MM-dd-yyyy"
	cellDateLayout = "01-02-2006"

	// localeFractionDigits matches the default of Number.toLocaleString.
	localeFractionDigits = 3
)

var (
	dateColumnTypes    = []string{"customDateTimeFormat"}
	numericColumnTypes = []string{"numericColumn", "numberColumnFilter", "customNumericFormat"}
)

// ColumnDef is one AG Grid column definition.
type ColumnDef struct {
	Field              string   `json:"field"`
	HeaderName         string   `json:"headerName"`
	Hide               bool     `json:"hide"`
	Type               []string `json:"type,omitempty"`
	CustomFormatString string   `json:"custom_format_string,omitempty"`
	ValueFormatter     string   `json:"valueFormatter,omitempty"`
}

type GridOptions struct {
	ColumnDefs []ColumnDef `json:"columnDefs"`
}

type columnStyle struct {
	header    string
	types     []string
	format    string
	formatter string
}

func localeFormatter(field string) string {
	return fmt.Sprintf("data.%s.toLocaleString('en-US');", field)
}

var styles = map[string]columnStyle{
	ColCreatedDate: {header: "Created Date", types: dateColumnTypes, format: gridDateFormat},
	ColRevenue:     {header: "Revenue ($)", types: numericColumnTypes, formatter: localeFormatter(ColRevenue)},
	ColCost:        {header: "Cost ($)", types: numericColumnTypes, formatter: localeFormatter(ColCost)},
	ColInvCost:     {header: "Inventory Cost ($)", types: numericColumnTypes, formatter: localeFormatter(ColInvCost)},
	ColProfit:      {header: "Profit ($)", types: numericColumnTypes, formatter: localeFormatter(ColProfit)},
	ColPrecProfit:  {header: "% Profit", types: numericColumnTypes, formatter: "data.prec_profit.toLocaleString() +'%';"},
}

// BuildGridOptions declares one column per header, in order. Columns without
// a house style keep the header as their display name.
func BuildGridOptions(columns []string) GridOptions {
	opts := GridOptions{ColumnDefs: make([]ColumnDef, 0, len(columns))}
	for _, field := range columns {
		def := ColumnDef{Field: field, HeaderName: field}
		if s, ok := styles[field]; ok {
			def.HeaderName = s.header
			def.Type = s.types
			def.CustomFormatString = s.format
			def.ValueFormatter = s.formatter
		}
		opts.ColumnDefs = append(opts.ColumnDefs, def)
	}
	return opts
}

// RowData flattens scenarios into grid rows keyed by sheet header.
func RowData(sheet *Sheet) []map[string]any {
	rows := make([]map[string]any, 0, len(sheet.Scenarios))
	for _, s := range sheet.Scenarios {
		row := map[string]any{
			ColCreatedDate: s.CreatedDate.Format(time.DateOnly),
			ColRevenue:     s.Revenue,
			ColCost:        s.Cost,
			ColInvCost:     s.InvCost,
			ColProfit:      s.Profit,
			ColPrecProfit:  s.PrecProfit,
		}
		for k, v := range s.Extra {
			row[k] = v
		}
		rows = append(rows, row)
	}
	return rows
}

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatCell renders a value the way the grid's formatter for column would
// in an en-US browser.
func FormatCell(column string, value any) string {
	switch v := value.(type) {
	case time.Time:
		if column == ColCreatedDate {
			return v.Format(cellDateLayout)
		}
		return v.Format(time.DateOnly)
	case models.Measure:
		if !v.Finite() {
			return ""
		}
		return FormatCell(column, float64(v))
	case float64:
		s := printer.Sprint(number.Decimal(v, number.MaxFractionDigits(localeFractionDigits)))
		if column == ColPrecProfit {
			return s + "%"
		}
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Cells returns the formatted cells of s in column order.
func Cells(columns []string, s models.Scenario) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		switch c {
		case ColCreatedDate:
			out[i] = FormatCell(c, s.CreatedDate)
		case ColRevenue:
			out[i] = FormatCell(c, s.Revenue)
		case ColCost:
			out[i] = FormatCell(c, s.Cost)
		case ColInvCost:
			out[i] = FormatCell(c, s.InvCost)
		case ColProfit:
			out[i] = FormatCell(c, s.Profit)
		case ColPrecProfit:
			out[i] = FormatCell(c, s.PrecProfit)
		default:
			out[i] = s.Extra[c]
		}
	}
	return out
}

// Headers returns the display names of columns.
func Headers(columns []string) []string {
	opts := BuildGridOptions(columns)
	out := make([]string, len(opts.ColumnDefs))
	for i, d := range opts.ColumnDefs {
		out[i] = d.HeaderName
	}
	return out
}
