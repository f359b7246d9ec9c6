package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-dashboard/internal/errors"
)

const rawHeader = "Retailer;Category;Segment;Sub-Segment;Brand;KNAC-14;Description;Day;Month;Year;Units;Sales in kg;Sales in LC\n"

func writeRaw(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weekly_raw_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRaw_ValidExport(t *testing.T) {
	// "Caf\xe9" is "Café" in ISO-8859-1.
	content := rawHeader +
		"Mart;Snacks;Chips;Salted;Crunch;K1;Caf\xe9 Chips;05;01;2020;10;2.5;1000\n" +
		"Mart;Snacks;Chips;Salted;Crunch;K1;Caf\xe9 Chips;12;1;2020;4;1;250.5\n"

	records, err := ReadRaw(context.Background(), writeRaw(t, content))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "Mart", first.Retailer)
	assert.Equal(t, "Salted", first.SubSegment)
	assert.Equal(t, "K1", first.ProductCode)
	assert.Equal(t, "Café Chips", first.Description)
	assert.EqualValues(t, 5, first.Day)
	assert.EqualValues(t, 1, first.Month)
	assert.EqualValues(t, 2020, first.Year)
	assert.Equal(t, 10.0, first.Units)
	assert.Equal(t, 2.5, first.SalesKg)
	assert.Equal(t, 1000.0, first.SalesLC)

	assert.Equal(t, 250.5, records[1].SalesLC)
}

func TestReadRaw_MissingFile(t *testing.T) {
	_, err := ReadRaw(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeFileAccess), "got %v", err)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		code errors.ErrorCode
	}{
		{
			name: "empty file",
			csv:  "",
			code: errors.CodeSchema,
		},
		{
			name: "missing column",
			csv:  "Retailer;Category;Segment;Sub-Segment;Brand;Description;Day;Month;Year;Units;Sales in kg;Sales in LC\n",
			code: errors.CodeSchema,
		},
		{
			name: "bad number",
			csv:  rawHeader + "Mart;Snacks;Chips;Salted;Crunch;K1;Chips;5;1;2020;ten;2.5;1000\n",
			code: errors.CodeParse,
		},
		{
			name: "bad day",
			csv:  rawHeader + "Mart;Snacks;Chips;Salted;Crunch;K1;Chips;first;1;2020;1;2.5;1000\n",
			code: errors.CodeParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(context.Background(), strings.NewReader(tt.csv))
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err), "got %v", err)
		})
	}
}

func TestDecode_MissingColumnDetails(t *testing.T) {
	_, err := Decode(context.Background(), strings.NewReader("Retailer;Units\n"))
	require.Error(t, err)

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "KNAC-14")
	assert.Contains(t, appErr.Details, "Sales in LC")
}

func TestDecode_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Decode(ctx, strings.NewReader(rawHeader))
	assert.ErrorIs(t, err, context.Canceled)
}
