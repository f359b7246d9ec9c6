package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{BadRequest("bad"), http.StatusBadRequest},
		{NotFound("gone"), http.StatusNotFound},
		{RateLimit("slow down"), http.StatusTooManyRequests},
		{ServiceUnavailable("down"), http.StatusServiceUnavailable},
		{FileAccess(os.ErrNotExist, "data/sales.csv"), http.StatusServiceUnavailable},
		{Schema("missing column"), http.StatusInternalServerError},
		{Parse(fmt.Errorf("x"), "bad date"), http.StatusInternalServerError},
		{Internal("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode)
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("loading: %w", FileAccess(os.ErrNotExist, "in.csv"))

	assert.Equal(t, CodeFileAccess, CodeOf(wrapped))
	assert.True(t, Is(wrapped, CodeFileAccess))
	assert.True(t, stderrors.Is(wrapped, os.ErrNotExist))
	assert.Equal(t, CodeInternal, CodeOf(stderrors.New("plain")))
	assert.False(t, Is(nil, CodeInternal))
}

func TestFileAccess_Details(t *testing.T) {
	err := FileAccess(os.ErrPermission, "data/sales.csv")
	assert.Equal(t, "data/sales.csv", err.Details)
	assert.Contains(t, err.Error(), "FILE_ACCESS_ERROR")
	assert.Contains(t, err.Error(), "caused by")
}

func TestWriteError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("app error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, logger, NotFoundf("SKU %q not found", "Widget Z"), "req-1")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body struct {
			Success bool `json:"success"`
			Error   struct {
				Code      string    `json:"code"`
				Message   string    `json:"message"`
				RequestID string    `json:"request_id"`
				Timestamp time.Time `json:"timestamp"`
			} `json:"error"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.False(t, body.Success)
		assert.Equal(t, "NOT_FOUND", body.Error.Code)
		assert.Equal(t, `SKU "Widget Z" not found`, body.Error.Message)
		assert.Equal(t, "req-1", body.Error.RequestID)
		assert.False(t, body.Error.Timestamp.IsZero())
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, logger, stderrors.New("disk on fire"), "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
		assert.NotContains(t, rec.Body.String(), "disk on fire")
	})
}

func TestWriteSuccessWithHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessWithHeaders(rec, []string{"Widget A"}, map[string]string{"Cache-Control": "no-store"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"success":true,"data":["Widget A"]}`, rec.Body.String())
}

func TestDivisionPolicyWarning(t *testing.T) {
	w := DivisionPolicyWarning{
		SKU:         "Widget A",
		Date:        time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC),
		Field:       "Unit Price",
		Numerator:   1.2,
		Denominator: 0,
	}
	assert.Equal(t, `Unit Price for "Widget A" on 2020-06-01: 1.2 / 0 is not finite`, w.Error())
}
