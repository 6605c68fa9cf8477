package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/site-outages-etl/internal/config"
	"github.com/couchcryptid/site-outages-etl/internal/domain"
	"github.com/couchcryptid/site-outages-etl/internal/observability"
)

const headerAPIKey = "x-api-key"

// Config holds the connection settings for the outages API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per attempt
	Retry   RetryPolicy
}

// ConfigFrom maps the job configuration onto client settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.APITimeout,
		Retry: RetryPolicy{
			MaxAttempts:     cfg.RetryMaxAttempts,
			BackoffFactor:   cfg.RetryBackoffFactor,
			MaxBackoff:      cfg.RetryMaxBackoff,
			RetryableStatus: DefaultRetryableStatus(),
		},
	}
}

// Option customises a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport, e.g. with a fake in tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.SetTransport(rt)
	}
}

// WithClock sets the clock used for retry waits and request timing.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// Client talks to the outages API. Every call goes through Do, which applies
// the retry policy and turns any failure into an *APIError.
type Client struct {
	http    *resty.Client
	retry   RetryPolicy
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates an outages API client.
func NewClient(cfg Config, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader(headerAPIKey, cfg.APIKey).
			SetHeader("Accept", "application/json").
			SetLogger(restyLogger{logger: logger}),
		retry:   cfg.Retry,
		clock:   domain.Clock(),
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends one logical request to route, relative to the base URL. Leading
// slashes on route are ignored. A non-nil body is sent as JSON. The response
// is returned only for a 2xx status; anything else, after retries, is an
// *APIError matching ErrAPI.
func (c *Client) Do(ctx context.Context, method, route string, body any) (*resty.Response, error) {
	path := "/" + strings.TrimLeft(route, "/")
	maxAttempts := c.retry.attempts()

	for attempt := 1; ; attempt++ {
		resp, err := c.attempt(ctx, method, path, body)
		if err == nil {
			return resp, nil
		}

		status := 0
		var transportErr error
		var se *statusError
		if errors.As(err, &se) {
			status = se.code
		} else {
			transportErr = err
		}

		if attempt >= maxAttempts || ctx.Err() != nil || !c.retry.ShouldRetry(status, transportErr) {
			return nil, &APIError{Method: method, Route: path, StatusCode: status, Attempts: attempt, Err: err}
		}

		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying api request",
			"method", method,
			"route", path,
			"attempt", attempt,
			"status", status,
			"wait", wait,
			"error", err,
		)
		c.metrics.APIRetries.WithLabelValues(method).Inc()

		if !sleepWithContext(ctx, c.clock, wait) {
			return nil, &APIError{Method: method, Route: path, StatusCode: status, Attempts: attempt, Err: ctx.Err()}
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, body any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	c.logger.Debug("sending api request", "method", method, "route", path)
	start := c.clock.Now()
	resp, err := req.Execute(method, path)
	c.metrics.APIRequestDuration.WithLabelValues(method).Observe(c.clock.Since(start).Seconds())

	if err != nil {
		c.metrics.APIRequests.WithLabelValues(method, "transport_error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug("api response", "method", method, "route", path, "status", resp.StatusCode())
	if !resp.IsSuccess() {
		c.metrics.APIRequests.WithLabelValues(method, "http_error").Inc()
		return nil, &statusError{code: resp.StatusCode(), body: truncate(resp.String(), 256)}
	}

	c.metrics.APIRequests.WithLabelValues(method, "success").Inc()
	return resp, nil
}

// statusError is a completed request with a non-2xx status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// restyLogger routes resty's internal messages to slog at debug level; the
// errors it reports are also returned to Do and classified there.
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.logger.Debug("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.logger.Debug("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.logger.Debug("resty: " + strings.TrimSpace(fmt.Sprintf(format, v...)))
}
