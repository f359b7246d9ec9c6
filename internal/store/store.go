// Package store persists the aggregated weekly dataset.
//
// The refresh command is the only writer. Writes go to a temporary file in
// the destination directory that is renamed over the target, so a server
// reading the same path sees either the old dataset or the new one.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// Store reads and writes a dataset file.
type Store interface {
	Write(ctx context.Context, records []models.WeeklyRecord) error
	Read(ctx context.Context) ([]models.WeeklyRecord, error)
	Path() string
	ModTime() (time.Time, error)
}

// New returns the store for format at path.
func New(format, path string) (Store, error) {
	if path == "" {
		return nil, errors.Validation("dataset path is required")
	}
	switch strings.ToLower(format) {
	case "", FormatCSV:
		return NewCSV(path), nil
	case FormatParquet:
		return NewParquet(path), nil
	default:
		return nil, errors.Validation(fmt.Sprintf("unknown dataset format %q, want csv or parquet", format))
	}
}

func modTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, errors.FileAccess(err, path)
	}
	return info.ModTime(), nil
}

// replaceFile runs write against a temporary sibling of path and renames it
// into place once write and close succeed.
func replaceFile(path string, write func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.FileAccess(err, dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.FileAccess(err, dir)
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.FileAccess(err, tmpName)
	}

	if err := write(tmpName); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.FileAccess(err, path)
	}
	return nil
}
