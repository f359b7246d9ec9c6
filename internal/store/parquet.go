package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/models"
)

const parquetParallelism = 4

// parquetRow is the on-disk shape of a WeeklyRecord. Column names match the
// CSV header, lower-cased.
type parquetRow struct {
	Retailer    string  `parquet:"name=retailer, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Category    string  `parquet:"name=category, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Segment     string  `parquet:"name=segment, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SubSegment  string  `parquet:"name=sub_segment, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Brand       string  `parquet:"name=brand, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ProductCode string  `parquet:"name=knac_14, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Units       float64 `parquet:"name=units, type=DOUBLE"`
	Volume      float64 `parquet:"name=volume, type=DOUBLE"`
	Value       float64 `parquet:"name=value, type=DOUBLE"`
	Date        string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8"`
	Year        int32   `parquet:"name=year, type=INT32"`
	SKU         string  `parquet:"name=sku, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	PredFlag    int32   `parquet:"name=pred_flag, type=INT32"`
	R2          float64 `parquet:"name=r2, type=DOUBLE"`
	MAPE        float64 `parquet:"name=mape, type=DOUBLE"`
	UnitPrice   float64 `parquet:"name=unit_price, type=DOUBLE"`
	VolPrice    float64 `parquet:"name=vol_price, type=DOUBLE"`
}

func toParquet(r models.WeeklyRecord) *parquetRow {
	return &parquetRow{
		Retailer:    r.Retailer,
		Category:    r.Category,
		Segment:     r.Segment,
		SubSegment:  r.SubSegment,
		Brand:       r.Brand,
		ProductCode: r.ProductCode,
		Units:       r.Units,
		Volume:      r.Volume,
		Value:       r.Value,
		Date:        r.Date.String(),
		Year:        int32(r.Year),
		SKU:         r.SKU,
		PredFlag:    int32(r.PredFlag),
		R2:          r.R2,
		MAPE:        r.MAPE,
		UnitPrice:   float64(r.UnitPrice),
		VolPrice:    float64(r.VolPrice),
	}
}

func (p parquetRow) record() (models.WeeklyRecord, error) {
	var date models.Date
	if err := date.UnmarshalCSV(p.Date); err != nil {
		return models.WeeklyRecord{}, errors.Parse(err, "invalid date in dataset")
	}
	return models.WeeklyRecord{
		Retailer:    p.Retailer,
		Category:    p.Category,
		Segment:     p.Segment,
		SubSegment:  p.SubSegment,
		Brand:       p.Brand,
		ProductCode: p.ProductCode,
		Units:       p.Units,
		Volume:      p.Volume,
		Value:       p.Value,
		Date:        date,
		Year:        int(p.Year),
		SKU:         p.SKU,
		PredFlag:    int(p.PredFlag),
		R2:          p.R2,
		MAPE:        p.MAPE,
		UnitPrice:   models.Measure(p.UnitPrice),
		VolPrice:    models.Measure(p.VolPrice),
	}, nil
}

// ParquetStore keeps the dataset as a snappy-compressed parquet file.
type ParquetStore struct {
	path string
}

func NewParquet(path string) *ParquetStore {
	return &ParquetStore{path: path}
}

func (s *ParquetStore) Path() string { return s.path }

func (s *ParquetStore) ModTime() (time.Time, error) { return modTime(s.path) }

func (s *ParquetStore) Write(ctx context.Context, records []models.WeeklyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.InfoContext(ctx, "writing dataset", "path", s.path, "format", FormatParquet, "rows", len(records))
	return replaceFile(s.path, func(tmp string) error {
		fh, err := local.NewLocalFileWriter(tmp)
		if err != nil {
			return errors.FileAccess(err, tmp)
		}
		defer fh.Close()

		pw, err := writer.NewParquetWriter(fh, new(parquetRow), parquetParallelism)
		if err != nil {
			return errors.InternalWrap(err, "cannot create parquet writer")
		}
		pw.CompressionType = parquet.CompressionCodec_SNAPPY

		for _, r := range records {
			if err := pw.Write(toParquet(r)); err != nil {
				return errors.InternalWrap(err, "cannot write parquet row")
			}
		}
		if err := pw.WriteStop(); err != nil {
			return errors.InternalWrap(err, "cannot finish parquet file")
		}
		return nil
	})
}

func (s *ParquetStore) Read(ctx context.Context) ([]models.WeeklyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fh, err := local.NewLocalFileReader(s.path)
	if err != nil {
		return nil, errors.FileAccess(err, s.path)
	}
	defer fh.Close()

	pr, err := reader.NewParquetReader(fh, new(parquetRow), parquetParallelism)
	if err != nil {
		return nil, errors.Parse(err, "cannot open parquet dataset")
	}
	defer pr.ReadStop()

	rows := make([]parquetRow, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, errors.Parse(err, "cannot read parquet dataset")
	}

	records := make([]models.WeeklyRecord, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, ctx.Err()
}
