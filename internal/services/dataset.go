package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xeonx/timeago"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/store"
)

// snapshot is one loaded version of the dataset file. It is never
// modified after it has been published.
type snapshot struct {
	records  []models.WeeklyRecord
	skus     []string
	bySKU    map[string][]models.WeeklyRecord
	modTime  time.Time
	loadedAt time.Time
}

// Dataset is the in-memory view of the persisted weekly dataset. The file is
// read on first use and again whenever its modification time moves forward
// or Invalidate is called.
type Dataset struct {
	mu      sync.RWMutex
	current *snapshot
	store   store.Store
	loads   atomic.Int64
	logger  *slog.Logger
}

func NewDataset(s store.Store, logger *slog.Logger) *Dataset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dataset{store: s, logger: logger}
}

// Records returns every row with Market set. Callers must not modify the
// returned slice.
func (d *Dataset) Records(ctx context.Context) ([]models.WeeklyRecord, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.records, nil
}

// SKUs returns the distinct SKUs in ascending order.
func (d *Dataset) SKUs(ctx context.Context) ([]string, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.skus, nil
}

// ForSKU returns the rows of one SKU ordered by date.
func (d *Dataset) ForSKU(ctx context.Context, sku string) ([]models.WeeklyRecord, error) {
	snap, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rows, ok := snap.bySKU[sku]
	if !ok {
		return nil, errors.NotFoundf("sku %q", sku)
	}
	return rows, nil
}

// Invalidate drops the loaded dataset; the next read goes back to the file.
func (d *Dataset) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
	d.logger.Info("dataset cache invalidated", "path", d.store.Path())
}

func (d *Dataset) snapshot(ctx context.Context) (*snapshot, error) {
	d.mu.RLock()
	snap := d.current
	d.mu.RUnlock()

	modTime, err := d.store.ModTime()
	if err != nil {
		// A loaded snapshot outlives its file until a new one shows up.
		if snap != nil {
			d.logger.WarnContext(ctx, "dataset file unavailable, serving loaded snapshot",
				"path", d.store.Path(),
				"loaded_at", snap.loadedAt,
				"error", err)
			return snap, nil
		}
		return nil, err
	}
	if snap != nil && !modTime.After(snap.modTime) {
		return snap, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// Another caller may have loaded while we waited for the lock.
	if d.current != nil && !modTime.After(d.current.modTime) {
		return d.current, nil
	}

	start := time.Now()
	records, err := d.store.Read(ctx)
	if err != nil {
		return nil, err
	}
	d.current = index(records, modTime)
	d.loads.Add(1)

	d.logger.Info("dataset loaded",
		"path", d.store.Path(),
		"records", len(records),
		"skus", len(d.current.skus),
		"duration", time.Since(start))
	return d.current, nil
}

func index(records []models.WeeklyRecord, modTime time.Time) *snapshot {
	snap := &snapshot{
		records:  records,
		bySKU:    make(map[string][]models.WeeklyRecord),
		modTime:  modTime,
		loadedAt: time.Now(),
	}
	for i := range records {
		records[i].Market = models.DefaultMarket
	}
	for _, r := range records {
		snap.bySKU[r.SKU] = append(snap.bySKU[r.SKU], r)
	}
	for sku, rows := range snap.bySKU {
		slices.SortStableFunc(rows, func(a, b models.WeeklyRecord) int {
			return a.Date.Compare(b.Date.Time)
		})
		snap.skus = append(snap.skus, sku)
	}
	slices.Sort(snap.skus)
	return snap
}

// Stats reports what is currently loaded, for monitoring.
func (d *Dataset) Stats() map[string]any {
	d.mu.RLock()
	snap := d.current
	d.mu.RUnlock()

	stats := map[string]any{
		"path":   d.store.Path(),
		"loaded": snap != nil,
		"loads":  d.loads.Load(),
	}
	if snap == nil {
		return stats
	}
	stats["record_count"] = len(snap.records)
	stats["skus"] = len(snap.skus)
	stats["loaded_at"] = snap.loadedAt
	stats["loaded_ago"] = timeago.English.Format(snap.loadedAt)
	stats["file_modified"] = snap.modTime
	stats["file_age"] = fmt.Sprintf("%s old", time.Since(snap.modTime).Round(time.Second))
	return stats
}
