// Package scenarios reads the planning-scenario workbook and describes how
// its summary sheet is shown in the dashboard grid.
package scenarios

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

const (
	SummarySheet = "Scenarios Summary"
	DetailsSheet = "Details"

	ColCreatedDate = "Created Date"
	ColRevenue     = "revenue"
	ColCost        = "cost"
	ColInvCost     = "inv_cost"
	ColProfit      = "profit"
	ColPrecProfit  = "prec_profit"
)

// SummaryColumns are the headers the summary sheet must carry.
var SummaryColumns = []string{ColCreatedDate, ColRevenue, ColCost, ColInvCost, ColProfit, ColPrecProfit}

// dateLayouts are the text forms accepted for Created Date when the cell
// holds a string rather than an Excel serial number.
var dateLayouts = []string{
	time.DateTime,
	time.DateOnly,
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02.01.2006",
}

// Sheet is the parsed summary sheet: every scenario plus the header order.
type Sheet struct {
	Columns   []string          `json:"columns"`
	Scenarios []models.Scenario `json:"scenarios"`
}

// Loader reads the workbook at Path. Nothing is cached; each call opens
// the file again so edits show up on the next request.
type Loader struct {
	Path string
}

func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Summary returns the scenarios with Created Date truncated to the day and
// prec_profit scaled from a fraction to a percentage.
func (l *Loader) Summary(ctx context.Context) ([]models.Scenario, error) {
	sheet, err := l.SummarySheet(ctx)
	if err != nil {
		return nil, err
	}
	return sheet.Scenarios, nil
}

func (l *Loader) SummarySheet(ctx context.Context) (*Sheet, error) {
	rows, err := l.rows(ctx, SummarySheet, true)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Schema(fmt.Sprintf("sheet %q is empty", SummarySheet))
	}

	header := trimAll(rows[0])
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}
	var missing []string
	for _, name := range SummaryColumns {
		if _, ok := pos[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		err := errors.Schema(fmt.Sprintf("sheet %q is missing required columns", SummarySheet))
		err.Details = strings.Join(missing, ", ")
		return nil, err
	}

	known := make(map[string]bool, len(SummaryColumns))
	for _, name := range SummaryColumns {
		known[name] = true
	}

	out := &Sheet{Columns: header, Scenarios: make([]models.Scenario, 0, len(rows)-1)}
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		line := i + 2
		cell := func(name string) string {
			if p := pos[name]; p < len(row) {
				return strings.TrimSpace(row[p])
			}
			return ""
		}

		var s models.Scenario
		if s.CreatedDate, err = parseDate(cell(ColCreatedDate)); err != nil {
			return nil, cellError(err, line, ColCreatedDate)
		}
		for _, f := range []struct {
			name string
			dst  *models.Measure
		}{
			{ColRevenue, &s.Revenue},
			{ColCost, &s.Cost},
			{ColInvCost, &s.InvCost},
			{ColProfit, &s.Profit},
			{ColPrecProfit, &s.PrecProfit},
		} {
			if *f.dst, err = parseAmount(cell(f.name)); err != nil {
				return nil, cellError(err, line, f.name)
			}
		}
		s.PrecProfit *= 100

		for j, name := range header {
			if known[name] || name == "" {
				continue
			}
			if s.Extra == nil {
				s.Extra = make(map[string]string)
			}
			if j < len(row) {
				s.Extra[name] = row[j]
			} else {
				s.Extra[name] = ""
			}
		}
		out.Scenarios = append(out.Scenarios, s)
	}
	return out, nil
}

// Details returns the details sheet as displayed in Excel, unmodified.
// Short rows are padded to the header width.
func (l *Loader) Details(ctx context.Context) (models.Table, error) {
	rows, err := l.rows(ctx, DetailsSheet, false)
	if err != nil {
		return models.Table{}, err
	}
	if len(rows) == 0 {
		return models.Table{Columns: []string{}, Rows: [][]string{}}, nil
	}

	t := models.Table{Columns: rows[0], Rows: make([][]string, 0, len(rows)-1)}
	for _, row := range rows[1:] {
		if len(row) < len(t.Columns) {
			padded := make([]string, len(t.Columns))
			copy(padded, row)
			row = padded
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func (l *Loader) rows(ctx context.Context, sheet string, raw bool) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(l.Path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, fs.ErrPermission) {
			return nil, errors.FileAccess(err, l.Path)
		}
		return nil, errors.Parse(err, "cannot open scenario workbook")
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		appErr := errors.Schema(fmt.Sprintf("workbook has no sheet %q", sheet))
		appErr.Details = strings.Join(f.GetSheetList(), ", ")
		return nil, appErr
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: raw})
	if err != nil {
		return nil, errors.Parse(err, fmt.Sprintf("cannot read sheet %q", sheet))
	}
	return rows, ctx.Err()
}

// parseDate accepts an Excel serial number or one of dateLayouts and
// returns midnight of that day.
// parseAmount reads a numeric cell. An empty cell is a missing value and
// becomes NaN.
func parseAmount(s string) (models.Measure, error) {
	if s == "" {
		return models.Measure(math.NaN()), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return models.Measure(f), err
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, stderrors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return midnight(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return midnight(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cellError(err error, line int, column string) *errors.AppError {
	appErr := errors.Parse(err, fmt.Sprintf("invalid %s value", column))
	appErr.Details = fmt.Sprintf("sheet %q row %d", SummarySheet, line)
	return appErr
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, s := range row {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func blank(row []string) bool {
	for _, s := range row {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
