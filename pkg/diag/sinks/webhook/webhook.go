// Package webhook provides a sink that POSTs each error report as JSON to an
// HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// Option configures the webhook sink.
type Option func(*webhookSink)

// WithHTTPClient sets the client used for delivery (default: 10s timeout).
// Do not pass a client instrumented by the same engine; failed deliveries
// would then be recorded as failed requests of the application.
func WithHTTPClient(c *http.Client) Option {
	return func(s *webhookSink) {
		s.client = c
	}
}

// WithHeader adds a header to every request, such as an API token.
func WithHeader(key, value string) Option {
	return func(s *webhookSink) {
		s.headers.Set(key, value)
	}
}

// WithRetries retries 5xx responses and transport errors up to n times
// with linear backoff (default: 0).
func WithRetries(n int, backoff time.Duration) Option {
	return func(s *webhookSink) {
		if n >= 0 {
			s.retries = n
		}
		s.backoff = backoff
	}
}

type webhookSink struct {
	endpoint string
	client   *http.Client
	headers  http.Header
	retries  int
	backoff  time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewWebhookSink creates a sink posting to endpoint.
func NewWebhookSink(endpoint string, opts ...Option) diag.Sink {
	s := &webhookSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		headers:  make(http.Header),
		backoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// statusError is returned for non-2xx responses.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("webhook returned %d", e.status)
	}
	return fmt.Sprintf("webhook returned %d: %s", e.status, e.body)
}

func (s *webhookSink) Write(ctx context.Context, report diag.ErrorReport) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return diag.ErrClosed
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
		lastErr = s.post(ctx, report.ID, body)
		if lastErr == nil || !retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (s *webhookSink) post(ctx context.Context, reportID string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range s.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", reportID)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &statusError{status: resp.StatusCode, body: string(bytes.TrimSpace(snippet))}
}

func retryable(err error) bool {
	if se, ok := err.(*statusError); ok {
		return se.status >= 500 || se.status == http.StatusTooManyRequests
	}
	return true
}

// Flush is a no-op; writes are synchronous.
func (s *webhookSink) Flush(ctx context.Context) error {
	return nil
}

// Close rejects further writes and releases idle connections.
func (s *webhookSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.client.CloseIdleConnections()
	return nil
}
