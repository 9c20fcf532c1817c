// Package sheets sends finished record sets to a spreadsheet web app and
// renders them as XLSX workbooks.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/suyaash/batchrec/internal/apperr"
	"github.com/suyaash/batchrec/internal/models"
)

// Ack is the webhook's decoded JSON reply, whatever its shape. Replies that
// are not JSON become {"status":"success","message":<body>}.
type Ack = any

// Publisher posts snapshots to the spreadsheet webhook.
type Publisher struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(webhookURL string, timeout time.Duration, logger *slog.Logger) (*Publisher, error) {
	if webhookURL == "" {
		return nil, apperr.Configuration("SHEET_WEBHOOK_URL is required to publish")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: webhookURL, client: &http.Client{}, timeout: timeout, logger: logger}, nil
}

// Publish sends one multipart POST with a JSON field per present section and
// the snapshot timestamp.
func (p *Publisher) Publish(ctx context.Context, snap models.Snapshot) (Ack, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	body, contentType, err := encodeForm(snap)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, body)
	if err != nil {
		return nil, apperr.Configuration("invalid SHEET_WEBHOOK_URL: %v", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.Transport(err, "sheet publish")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		p.logger.Warn("sheets.publish.failed", "status", resp.StatusCode)
		return nil, apperr.Network(models.StageNetwork, nil, "Failed to add data to sheet: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transport(err, "sheet publish")
	}

	var ack Ack
	if err := json.Unmarshal(raw, &ack); err != nil || ack == nil {
		ack = map[string]any{"status": "success", "message": string(raw)}
	}

	p.logger.Info("sheets.publish.ok",
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ack, nil
}

func encodeForm(snap models.Snapshot) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, name := range models.Sections {
		sec := snap.Section(name)
		if sec == nil {
			continue
		}
		b, err := json.Marshal(sec)
		if err != nil {
			return nil, "", apperr.Validation("section %s cannot be encoded: %v", name, err)
		}
		if err := w.WriteField(string(name), string(b)); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	ts := snap.Timestamp
	if strings.TrimSpace(ts) == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	if err := w.WriteField("timestamp", ts); err != nil {
		return nil, "", fmt.Errorf("write field timestamp: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
