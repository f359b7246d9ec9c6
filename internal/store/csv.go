package store

import (
	"bufio"
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gocarina/gocsv"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/ingest"
	"sales-dashboard/internal/models"
)

// CSVStore keeps the dataset as a comma separated file with a header row.
// Non-finite prices are written as NaN, +Inf and -Inf.
type CSVStore struct {
	path string
}

func NewCSV(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) ModTime() (time.Time, error) { return modTime(s.path) }

func (s *CSVStore) Write(ctx context.Context, records []models.WeeklyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "writing dataset", "path", s.path, "format", FormatCSV, "rows", len(records))
	return replaceFile(s.path, func(tmp string) error {
		file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return errors.FileAccess(err, tmp)
		}
		buf := bufio.NewWriter(file)

		err = gocsv.Marshal(records, buf)
		if err == nil {
			err = buf.Flush()
		}
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.InternalWrap(err, "cannot write dataset")
		}
		return nil
	})
}

func (s *CSVStore) Read(ctx context.Context) ([]models.WeeklyRecord, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, errors.FileAccess(err, s.path)
	}
	defer file.Close()

	return decodeCSV(ctx, file)
}

func decodeCSV(ctx context.Context, r io.Reader) ([]models.WeeklyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader := ingest.RequireColumns(csv.NewReader(bufio.NewReader(r)), models.DatasetColumns...)
	var records []models.WeeklyRecord
	if err := gocsv.UnmarshalCSV(reader, &records); err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, errors.Parse(err, "cannot decode dataset")
	}
	return records, ctx.Err()
}
