// Package ingest reads the weekly point-of-sale export.
//
// The export is a semicolon separated file written in ISO-8859-1, one row per
// retailer, product and day. Rows are decoded into models.RawRecord without
// any aggregation; see package pipeline for that.
package ingest

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/charmap"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

// Separator is the field delimiter of the export.
const Separator = ';'

// ReadRaw reads and decodes the export at path.
func ReadRaw(ctx context.Context, path string) ([]models.RawRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.FileAccess(err, path)
	}
	defer file.Close()

	records, err := Decode(ctx, file)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Decode decodes an export from r. The header is checked against
// models.RawColumns before any row is converted.
func Decode(ctx context.Context, r io.Reader) ([]models.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader := csv.NewReader(charmap.ISO8859_1.NewDecoder().Reader(r))
	reader.Comma = Separator

	var records []models.RawRecord
	if err := gocsv.UnmarshalCSV(RequireColumns(reader, models.RawColumns...), &records); err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, errors.Parse(err, "cannot decode sales export")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// CheckedReader fails a gocsv decode with a schema error when the first
// row is missing a required column.
type CheckedReader struct {
	*csv.Reader
	required []string
	checked  bool
}

// RequireColumns wraps reader so its header must contain every required name.
func RequireColumns(reader *csv.Reader, required ...string) *CheckedReader {
	return &CheckedReader{Reader: reader, required: required}
}

func (h *CheckedReader) Read() ([]string, error) {
	row, err := h.Reader.Read()
	if err != nil || h.checked {
		return row, err
	}
	h.checked = true
	if err := checkHeader(row, h.required); err != nil {
		return nil, err
	}
	return row, nil
}

func (h *CheckedReader) ReadAll() ([][]string, error) {
	var rows [][]string
	for {
		row, err := h.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if !h.checked {
		return nil, errors.Schema("file is empty")
	}
	return rows, nil
}

func checkHeader(header, required []string) error {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[strings.TrimSpace(name)] = true
	}

	var missing []string
	for _, name := range required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		err := errors.Schema("file is missing required columns")
		err.Details = strings.Join(missing, ", ")
		return err
	}
	return nil
}
