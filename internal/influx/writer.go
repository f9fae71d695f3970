// Package influx sends line protocol payloads to an InfluxDB write endpoint.
package influx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"BobbyCloud/internal/model"
)

// Writer submits one line protocol payload. Implementations must be safe
// for concurrent use; every session shares one Writer.
type Writer interface {
	Write(ctx context.Context, payload []byte) error
}

// WriteError reports a non-2xx response from the write endpoint.
type WriteError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *WriteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("influx write failed: %s", e.Status)
	}
	return fmt.Sprintf("influx write failed: %s: %s", e.Status, e.Body)
}

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// HTTPWriter posts payloads to the configured URL with token authorization.
type HTTPWriter struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPWriter builds a writer from the influx section of the config.
func NewHTTPWriter(cfg model.InfluxConfig) *HTTPWriter {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPWriter{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}
}

// Write posts payload and returns an error for transport failures and
// non-2xx responses.
func (w *HTTPWriter) Write(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build influx request: %w", err)
	}
	if w.token != "" {
		req.Header.Set("Authorization", "Token "+w.token)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Printf("[influx] warning: failed to close response body: %v", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &WriteError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		log.Printf("[influx] warning: failed to drain response body: %v", err)
	}
	return nil
}
