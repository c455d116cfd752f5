package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/researchgpt/evidence-service/internal/domain"
	"github.com/researchgpt/evidence-service/internal/observability"
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Timeout is the per-request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the maximum number of retry attempts after the first
	// call (MaxRetries+1 attempts in total).
	MaxRetries int

	// RetryDelay is the base delay between retries. Backoff is linear:
	// the n-th retry waits n*RetryDelay.
	RetryDelay time.Duration

	// RateLimitDelay is the wait applied after a 429 response that carries
	// no Retry-After header.
	RateLimitDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key").
	APIKeyHeader string

	// SourceName labels this client's request metrics.
	SourceName string

	// Metrics receives per-request counters and durations. Optional.
	Metrics *observability.Metrics
}

// HTTPClient wraps http.Client with rate limiting and bounded retries.
// It is safe for concurrent use.
//
// Retry policy: 429 responses wait for the advertised Retry-After duration
// (RateLimitDelay if absent) and consume an attempt like any other retry;
// 5xx responses and connection/timeout errors wait attempt*RetryDelay.
// Any other non-success status is returned to the caller immediately as an
// error without retrying. Callers treat every error as "provider
// unavailable for this request", never as a fatal pipeline error.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client with rate limiting.
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
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = 2 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ResearchGPT-EvidenceService/1.0"
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes an HTTP request with rate limiting and retries.
// It waits for the rate limiter before each attempt, sets the User-Agent
// and optional API key headers, and applies the retry policy described on
// HTTPClient.
//
// The request body is not preserved across retries; callers must provide
// requests with GetBody set if the body needs to be resent on retry.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	endpoint := req.URL.Path

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries+1; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			c.recordFailure(endpoint, "connection_error")
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt <= c.config.MaxRetries {
				if waitErr := c.waitForRetry(req.Context(), time.Duration(attempt)*c.config.RetryDelay); waitErr != nil {
					return nil, waitErr
				}
				if resetErr := c.resetRequestBody(req); resetErr != nil {
					return nil, fmt.Errorf("cannot retry request: %w", resetErr)
				}
				continue
			}
			return nil, lastErr
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			c.recordRequest(endpoint, start)
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			retryDelay := c.retryAfterDelay(resp)
			drainBody(resp)
			c.recordRateLimited()
			lastErr = &domain.RateLimitError{Source: req.URL.Host, RetryAfter: retryDelay}
			if attempt <= c.config.MaxRetries {
				if waitErr := c.waitForRetry(req.Context(), retryDelay); waitErr != nil {
					return nil, waitErr
				}
				if resetErr := c.resetRequestBody(req); resetErr != nil {
					return nil, fmt.Errorf("cannot retry request: %w", resetErr)
				}
				continue
			}
			return nil, lastErr

		case resp.StatusCode >= 500:
			drainBody(resp)
			c.recordFailure(endpoint, "server_error")
			lastErr = fmt.Errorf("server returned status %d", resp.StatusCode)
			if attempt <= c.config.MaxRetries {
				if waitErr := c.waitForRetry(req.Context(), time.Duration(attempt)*c.config.RetryDelay); waitErr != nil {
					return nil, waitErr
				}
				if resetErr := c.resetRequestBody(req); resetErr != nil {
					return nil, fmt.Errorf("cannot retry request: %w", resetErr)
				}
				continue
			}
			return nil, fmt.Errorf("retries exhausted after %d attempts: %w", c.config.MaxRetries+1, lastErr)

		default:
			// Non-retryable HTTP error (4xx other than 429).
			drainBody(resp)
			c.recordFailure(endpoint, "client_error")
			return nil, &domain.ExternalAPIError{
				Source:     req.URL.Host,
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

func (c *HTTPClient) recordRequest(endpoint string, start time.Time) {
	if c.config.Metrics != nil {
		c.config.Metrics.RecordProviderRequest(c.config.SourceName, endpoint, time.Since(start).Seconds())
	}
}

func (c *HTTPClient) recordFailure(endpoint, errorType string) {
	if c.config.Metrics != nil {
		c.config.Metrics.RecordProviderRequestFailed(c.config.SourceName, endpoint, errorType)
	}
}

func (c *HTTPClient) recordRateLimited() {
	if c.config.Metrics != nil {
		c.config.Metrics.RecordProviderRateLimited(c.config.SourceName)
	}
}

// retryAfterDelay determines how long to wait after a 429 response.
// It respects the Retry-After header (seconds or HTTP date) if present,
// otherwise falls back to the configured RateLimitDelay.
func (c *HTTPClient) retryAfterDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RateLimitDelay
	}

	if seconds, err := strconv.ParseFloat(retryAfter, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds * float64(time.Second))
		}
		return c.config.RateLimitDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RateLimitDelay
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

// drainBody fully reads and closes a response body so the underlying
// connection can be reused.
func drainBody(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
