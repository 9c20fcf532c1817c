package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

func snapshot() models.Snapshot {
	return models.Snapshot{
		Metadata:   models.Section{"batch": "42"},
		MixingStep: models.Section{"qty": json.Number("9.0"), "ok": true},
		Timestamp:  "2024-03-01T04:00:00Z",
	}
}

func TestPublish(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     Ack
		wantFail bool
	}{
		{
			name:   "json reply",
			status: http.StatusOK,
			body:   `{"status":"ok","row":12}`,
			want:   map[string]any{"status": "ok", "row": float64(12)},
		},
		{
			name:   "text reply",
			status: http.StatusOK,
			body:   "Data added",
			want:   map[string]any{"status": "success", "message": "Data added"},
		},
		{
			name:   "json array reply",
			status: http.StatusOK,
			body:   `[{"row":12},{"row":13}]`,
			want:   []any{map[string]any{"row": float64(12)}, map[string]any{"row": float64(13)}},
		},
		{
			name:   "json string reply",
			status: http.StatusOK,
			body:   `"Data added"`,
			want:   "Data added",
		},
		{
			name:   "empty reply",
			status: http.StatusOK,
			body:   "",
			want:   map[string]any{"status": "success", "message": ""},
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     "boom",
			wantFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fields map[string][]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.NoError(t, r.ParseMultipartForm(1<<20))
				fields = r.MultipartForm.Value
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewPublisher(srv.URL, time.Second, nil)
			require.NoError(t, err)

			ack, err := p.Publish(context.Background(), snapshot())

			assert.Equal(t, []string{`{"batch":"42"}`}, fields["metadata"])
			assert.Equal(t, []string{`{"ok":true,"qty":9.0}`}, fields["mixingStep"])
			assert.NotContains(t, fields, "phAdjustment")
			assert.Equal(t, []string{"2024-03-01T04:00:00Z"}, fields["timestamp"])

			if tt.wantFail {
				var f *apperr.Fail
				require.ErrorAs(t, err, &f)
				assert.Equal(t, models.StageNetwork, f.Stage)
				assert.Contains(t, f.Message, "500")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ack)
		})
	}
}

func TestNewPublisherRequiresURL(t *testing.T) {
	_, err := NewPublisher("", time.Second, nil)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestWriteXLSX(t *testing.T) {
	b, err := WriteXLSX(snapshot())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"metadata", "mixingStep"}, f.GetSheetList())

	rows, err := f.GetRows("mixingStep")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Field", "Value"}, {"ok", "true"}, {"qty", "9.0"}}, rows)
}

func TestWriteXLSXEmpty(t *testing.T) {
	_, err := WriteXLSX(models.Snapshot{Timestamp: "2024-03-01T04:00:00Z"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestWriteSectionReportsCellErrors(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	err := writeSection(f, "phAdjustment", models.Section{"ph": "7.0"})
	assert.Error(t, err)

	require.NoError(t, writeSection(f, "Sheet1", models.Section{"ph": "7.0"}))
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Field", "Value"}, {"ph", "7.0"}}, rows)
}
