// Package notify delivers usage notifications to remote HTTP endpoints.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/port/outbound"
)

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 512

// HTTPSink POSTs access records as JSON. Any 2xx response acknowledges
// delivery. There are no retries.
type HTTPSink struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// Option configures HTTPSink.
type Option func(*HTTPSink)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(s *HTTPSink) {
		s.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *HTTPSink) {
		s.userAgent = ua
	}
}

// NewHTTPSink creates an HTTPSink. A non-positive timeout selects DefaultTimeout.
func NewHTTPSink(timeout time.Duration, logger *slog.Logger, opts ...Option) *HTTPSink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &HTTPSink{
		client:    &http.Client{Timeout: timeout},
		userAgent: "contract-gate",
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendNotification posts record to endpoint.
func (s *HTTPSink) SendNotification(ctx context.Context, endpoint string, record outbound.AccessRecord) error {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid notification endpoint %q", endpoint)
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification to %s: %w", u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("notification endpoint %s returned %d: %s", u.Host, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.logger.Debug("notification delivered", "endpoint", u.Host, "target", record.Target, "status", resp.StatusCode)
	return nil
}

var _ outbound.NotificationSink = (*HTTPSink)(nil)
