package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/config"
	"github.com/suyaash/batchrec/internal/models"
	"github.com/suyaash/batchrec/internal/providers"
)

func newVision(t *testing.T, timeout time.Duration, handler http.HandlerFunc) *VisionRecognizer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r, err := NewVisionRecognizer(context.Background(), "test-key", timeout, nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return r
}

func TestVisionRecognize(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		want      string
		wantStage models.Stage
		wantMsg   string
	}{
		{
			name:   "full text annotation",
			status: http.StatusOK,
			body:   `{"responses":[{"fullTextAnnotation":{"text":"Batch No. 42\nLot A"}}]}`,
			want:   "Batch No. 42\nLot A",
		},
		{
			name:   "no text detected",
			status: http.StatusOK,
			body:   `{"responses":[{}]}`,
			want:   NoTextFound,
		},
		{
			name:   "empty responses",
			status: http.StatusOK,
			body:   `{"responses":[]}`,
			want:   NoTextFound,
		},
		{
			name:      "quota exceeded",
			status:    http.StatusForbidden,
			body:      `{"error":{"code":403,"message":"quota exceeded","status":"PERMISSION_DENIED"}}`,
			wantStage: models.StageRecognition,
			wantMsg:   "quota exceeded",
		},
		{
			name:      "per image error",
			status:    http.StatusOK,
			body:      `{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`,
			wantStage: models.StageRecognition,
			wantMsg:   "Bad image data.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newVision(t, time.Second, func(w http.ResponseWriter, req *http.Request) {
				assert.Equal(t, "/v1/images:annotate", req.URL.Path)

				var payload struct {
					Requests []struct {
						Image struct {
							Content string `json:"content"`
						} `json:"image"`
						Features []struct {
							Type string `json:"type"`
						} `json:"features"`
					} `json:"requests"`
				}
				assert.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
				if assert.Len(t, payload.Requests, 1) {
					assert.NotEmpty(t, payload.Requests[0].Image.Content)
					assert.Equal(t, "TEXT_DETECTION", payload.Requests[0].Features[0].Type)
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			got, err := r.Recognize(context.Background(), []byte("\x89PNG fake"))
			if tt.wantMsg != "" {
				var f *apperr.Fail
				require.ErrorAs(t, err, &f)
				assert.Equal(t, tt.wantStage, f.Stage)
				assert.Equal(t, tt.wantMsg, f.Message)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVisionRecognizeTimeout(t *testing.T) {
	r := newVision(t, 50*time.Millisecond, func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-req.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := r.Recognize(context.Background(), []byte("img"))
	var f *apperr.Fail
	require.ErrorAs(t, err, &f)
	assert.Equal(t, models.StageNetwork, f.Stage)
	assert.True(t, errors.Is(err, apperr.ErrNetwork))
}

func TestRecognizeEmptyImage(t *testing.T) {
	r := newVision(t, time.Second, func(w http.ResponseWriter, req *http.Request) {
		t.Error("no request expected for an empty image")
	})

	_, err := r.Recognize(context.Background(), nil)
	var f *apperr.Fail
	require.ErrorAs(t, err, &f)
	assert.Equal(t, models.StageRecognition, f.Stage)
}

type fakeProvider struct {
	reply string
	err   error
	got   providers.Config
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ExtractText(ctx context.Context, cfg providers.Config) (string, error) {
	f.got = cfg
	return f.reply, f.err
}

func TestLLMRecognize(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		err       error
		want      string
		wantStage models.Stage
	}{
		{name: "transcription", reply: "  pH 6.8\n", want: "pH 6.8"},
		{name: "blank reply", reply: " \n", want: NoTextFound},
		{
			name:      "status error",
			err:       &providers.StatusError{Provider: "fake", Code: 500, Message: "model not loaded"},
			wantStage: models.StageRecognition,
		},
		{
			name:      "transport error",
			err:       context.DeadlineExceeded,
			wantStage: models.StageNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{reply: tt.reply, err: tt.err}
			r := NewLLMRecognizer(p, "llava", time.Second, nil)

			got, err := r.Recognize(context.Background(), []byte("img"))
			if tt.wantStage != "" {
				var f *apperr.Fail
				require.ErrorAs(t, err, &f)
				assert.Equal(t, tt.wantStage, f.Stage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "llava", p.got.Model)
			assert.Len(t, p.got.Images, 1)
		})
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := &config.Config{OCR: config.OCRConfig{Provider: "vision", Timeout: time.Second}}

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}
