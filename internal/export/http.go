// Package export uploads encoded batches to an OTLP/HTTP JSON endpoint.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/spanlink/spanlink/internal/otlp"
)

// maxErrorBody bounds how much of a rejection response gets logged.
const maxErrorBody = 512

// HTTPUploader posts OTLP/JSON payloads to a collector endpoint. Connection
// failures and transient server rejections (429, 5xx) are retried once;
// client-level rejections fail immediately.
type HTTPUploader struct {
	client   *retryablehttp.Client
	endpoint string
	headers  map[string]string
	logger   *slog.Logger
}

// NewHTTPUploader builds an uploader for the given endpoint. The endpoint
// must include the traces path (e.g. http://localhost:4318/v1/traces).
// headers are sent opaquely on every request, typically for auth.
func NewHTTPUploader(endpoint string, headers map[string]string, timeout time.Duration, logger *slog.Logger) *HTTPUploader {
	client := retryablehttp.NewClient()
	client.RetryMax = 1
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	return &HTTPUploader{
		client:   client,
		endpoint: endpoint,
		headers:  headers,
		logger:   logger,
	}
}

// Upload sends one batch. Any transport error or non-2xx response is a
// failure; the caller decides what happens to the underlying store.
func (u *HTTPUploader) Upload(ctx context.Context, req otlp.ExportRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("export: marshal payload: %w", err)
	}

	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return fmt.Errorf("export: build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	for k, v := range u.headers {
		hreq.Header.Set(k, v)
	}

	resp, err := u.client.Do(hreq)
	if err != nil {
		return fmt.Errorf("export: post %s: %w", u.endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		u.logger.Error("export: collector rejected batch",
			"status", resp.StatusCode, "body", string(detail))
		return fmt.Errorf("export: collector returned HTTP %d", resp.StatusCode)
	}

	u.logger.Debug("export: batch accepted", "status", resp.StatusCode, "bytes", len(body))
	return nil
}
