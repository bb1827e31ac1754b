package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// MaxAttemptsLimit caps the number of attempts any single request may make.
// Resilience comes from trying other sources, not from retrying one.
const MaxAttemptsLimit = 2

// RequestObserver receives one observation per completed request.
type RequestObserver interface {
	ObserveRequest(source, outcome string, duration time.Duration)
}

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Name identifies the source in metrics.
	Name string

	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxAttempts is the total number of attempts per request, clamped to [1, MaxAttemptsLimit].
	MaxAttempts int

	// RetryDelay is the delay before the second attempt when the server gives no Retry-After.
	RetryDelay time.Duration

	// MaxRetryDelay bounds a server-provided Retry-After.
	MaxRetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key", "Authorization").
	APIKeyHeader string

	// APIKeyPrefix is prepended to the key value (e.g., "Bearer ").
	APIKeyPrefix string

	// Transport overrides the default round tripper.
	Transport http.RoundTripper

	// CheckRedirect overrides the default redirect policy.
	CheckRedirect func(req *http.Request, via []*http.Request) error

	// Jar carries session cookies, e.g. for an institutional proxy login.
	Jar http.CookieJar

	// Observer is notified after every request. Optional.
	Observer RequestObserver
}

// HTTPClient wraps http.Client with rate limiting and a bounded retry.
// It is the single retry wrapper used by every source client and the downloader.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
// The client applies rate limiting before each attempt and retries once on
// network errors, 429 (Too Many Requests) and 5xx server errors.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = MaxAttemptsLimit
	}
	if cfg.MaxAttempts > MaxAttemptsLimit {
		cfg.MaxAttempts = MaxAttemptsLimit
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:       cfg.Timeout,
			Transport:     cfg.Transport,
			CheckRedirect: cfg.CheckRedirect,
			Jar:           cfg.Jar,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "Helixir-ReferenceService/1.0"

// Timeout returns the per-request timeout.
func (c *HTTPClient) Timeout() time.Duration {
	return c.config.Timeout
}

// Do executes an HTTP request with rate limiting and a bounded retry.
// It waits for the rate limiter before each attempt, sets the User-Agent and
// optional API key headers, and retries on 429 (honoring Retry-After) and on
// 5xx server errors. Context cancellation is never retried.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.do(req)
	c.observe(resp, err, time.Since(start))
	return resp, err
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKeyPrefix+c.config.APIKey)
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxAttempts {
				if err := c.prepareRetry(req, c.config.RetryDelay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if !c.shouldRetry(resp.StatusCode) || attempt == c.config.MaxAttempts {
			return resp, nil
		}

		retryDelay := c.getRetryDelay(resp)
		if resp.StatusCode == http.StatusTooManyRequests {
			c.rateLimiter.PauseFor(retryDelay)
		}
		if resp.Body != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
		}
		lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
		if err := c.prepareRetry(req, retryDelay); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

func (c *HTTPClient) prepareRetry(req *http.Request, delay time.Duration) error {
	if err := c.waitForRetry(req.Context(), delay); err != nil {
		return err
	}
	if err := c.resetRequestBody(req); err != nil {
		return fmt.Errorf("cannot retry request: %w", err)
	}
	return nil
}

func (c *HTTPClient) observe(resp *http.Response, err error, d time.Duration) {
	if c.config.Observer == nil {
		return
	}
	outcome := "error"
	switch {
	case err != nil && IsTimeout(err):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case resp.StatusCode == http.StatusTooManyRequests:
		outcome = "rate_limited"
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		outcome = "ok"
	default:
		outcome = "status_" + strconv.Itoa(resp.StatusCode)
	}
	c.config.Observer.ObserveRequest(c.config.Name, outcome, d)
}

// shouldRetry returns true if the status code indicates we should retry.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay respects the Retry-After header if present, bounded by
// MaxRetryDelay, otherwise uses the configured retry delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	delay := c.config.RetryDelay
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			delay = time.Duration(seconds) * time.Second
		}
	} else if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			delay = d
		}
	}

	if delay > c.config.MaxRetryDelay {
		delay = c.config.MaxRetryDelay
	}
	return delay
}

// waitForRetry waits for the specified duration, respecting context cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody resets the request body for retry if possible.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

type timeoutError interface {
	Timeout() bool
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}
