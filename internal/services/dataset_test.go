package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
	"sales-dashboard/internal/store"
)

// memStore serves a fixed set of records and counts reads.
type memStore struct {
	mu      sync.Mutex
	records []models.WeeklyRecord
	modTime time.Time
	reads   atomic.Int64
	readErr error
}

func (m *memStore) Write(_ context.Context, records []models.WeeklyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.modTime = m.modTime.Add(time.Second)
	return nil
}

func (m *memStore) Read(context.Context) ([]models.WeeklyRecord, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make([]models.WeeklyRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *memStore) Path() string { return "mem://dataset" }

func (m *memStore) ModTime() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modTime, nil
}

func week(sku string, y int, m time.Month, d int, units, value float64) models.WeeklyRecord {
	date := models.NewDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
	return models.WeeklyRecord{
		SKU:         sku,
		ProductCode: "K-" + sku,
		Date:        date,
		Year:        y,
		Units:       units,
		Value:       value,
		R2:          70,
		MAPE:        15,
	}
}

func newMemStore(records ...models.WeeklyRecord) *memStore {
	return &memStore{records: records, modTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestDataset_LoadsOnceAndAppendsMarket(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore(
		week("Widget B", 2020, time.January, 6, 1, 1),
		week("Widget A", 2020, time.January, 13, 2, 2),
		week("Widget A", 2020, time.January, 6, 3, 3),
	)
	d := NewDataset(ms, nil)

	records, err := d.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, models.DefaultMarket, r.Market)
	}

	skus, err := d.SKUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget A", "Widget B"}, skus)

	rows, err := d.ForSKU(ctx, "Widget A")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Date.Before(rows[1].Date.Time), "rows not ordered by date")

	assert.EqualValues(t, 1, ms.reads.Load())
}

func TestDataset_ForSKUUnknown(t *testing.T) {
	d := NewDataset(newMemStore(week("Widget A", 2020, time.January, 6, 1, 1)), nil)

	_, err := d.ForSKU(context.Background(), "Widget Z")
	assert.Equal(t, errors.CodeNotFound, errors.CodeOf(err))
}

func TestDataset_ReloadsWhenFileChanges(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore(week("Widget A", 2020, time.January, 6, 1, 1))
	d := NewDataset(ms, nil)

	_, err := d.Records(ctx)
	require.NoError(t, err)

	require.NoError(t, ms.Write(ctx, []models.WeeklyRecord{
		week("Widget A", 2020, time.January, 6, 1, 1),
		week("Widget C", 2020, time.January, 6, 1, 1),
	}))

	skus, err := d.SKUs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget A", "Widget C"}, skus)
	assert.EqualValues(t, 2, ms.reads.Load())
}

func TestDataset_Invalidate(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore(week("Widget A", 2020, time.January, 6, 1, 1))
	d := NewDataset(ms, nil)

	_, err := d.Records(ctx)
	require.NoError(t, err)
	_, err = d.Records(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ms.reads.Load())

	d.Invalidate()
	assert.Equal(t, false, d.Stats()["loaded"])

	_, err = d.Records(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ms.reads.Load())
}

func TestDataset_ReadErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore(week("Widget A", 2020, time.January, 6, 1, 1))
	ms.readErr = errors.Parse(assert.AnError, "cannot decode dataset")
	d := NewDataset(ms, nil)

	_, err := d.Records(ctx)
	assert.Equal(t, errors.CodeParse, errors.CodeOf(err))

	ms.mu.Lock()
	ms.readErr = nil
	ms.mu.Unlock()

	records, err := d.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestDataset_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	ms := newMemStore(
		week("Widget A", 2020, time.January, 6, 1, 1),
		week("Widget B", 2020, time.January, 6, 1, 1),
	)
	d := NewDataset(ms, nil)

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			skus, err := d.SKUs(ctx)
			assert.NoError(t, err)
			assert.Len(t, skus, 2)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, ms.reads.Load())
}

func TestDataset_MissingFile(t *testing.T) {
	s := store.NewCSV(filepath.Join(t.TempDir(), "weekly_data.csv"))
	d := NewDataset(s, nil)

	_, err := d.Records(context.Background())
	assert.Equal(t, errors.CodeFileAccess, errors.CodeOf(err))
}

func TestDataset_KeepsSnapshotWhenFileDisappears(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "weekly_data.csv")
	s := store.NewCSV(path)
	require.NoError(t, s.Write(ctx, []models.WeeklyRecord{week("Widget A", 2020, time.January, 6, 4, 8)}))
	d := NewDataset(s, nil)

	_, err := d.Records(ctx)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	records, err := d.ForSKU(ctx, "Widget A")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	d.Invalidate()
	_, err = d.Records(ctx)
	assert.Equal(t, errors.CodeFileAccess, errors.CodeOf(err))
}

func TestDataset_CSVRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewCSV(filepath.Join(t.TempDir(), "weekly_data.csv"))
	require.NoError(t, s.Write(ctx, []models.WeeklyRecord{week("Widget A", 2020, time.January, 6, 4, 8)}))

	d := NewDataset(s, nil)
	rows, err := d.ForSKU(ctx, "Widget A")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.DefaultMarket, rows[0].Market)
	assert.Equal(t, 4.0, rows[0].Units)

	stats := d.Stats()
	assert.Equal(t, true, stats["loaded"])
	assert.Equal(t, 1, stats["record_count"])
	assert.Equal(t, 1, stats["skus"])
	assert.NotEmpty(t, stats["loaded_ago"])
}
