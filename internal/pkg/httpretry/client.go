// Package httpretry wraps an HTTP client with bounded retries, exponential
// backoff and full jitter for outbound calls to third-party APIs.
package httpretry

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer executes HTTP requests. Both *http.Client and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a RetryClient.
type Options struct {
	Client     HTTPDoer      // Optional: defaults to an http.Client with a 30s timeout
	MaxRetries int           // retries after the first request; 0 disables retries
	BaseDelay  time.Duration // Optional: defaults to 500ms
	MaxDelay   time.Duration // Optional: defaults to 10s
	Logger     *slog.Logger  // Optional
}

// RetryClient retries transient failures of an HTTPDoer.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// New creates a RetryClient.
func New(opts Options) *RetryClient {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = opts.BaseDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryClient{
		client:     opts.Client,
		maxRetries: max(opts.MaxRetries, 0),
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		logger:     logger.With("component", "httpretry"),
	}
}

// Do executes req, retrying retryable statuses (429, 500, 502, 503, 504) and
// network errors. Client errors and context cancellation are never retried.
// The response of the final attempt is returned as is so callers can inspect it.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var (
		lastErr    error
		retryAfter time.Duration
	)
	ctx := req.Context()

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ctx.Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := max(rc.delay(attempt), retryAfter)
			rc.logger.DebugContext(ctx, "retrying request",
				"attempt", attempt,
				"max_retries", rc.maxRetries,
				"method", req.Method,
				"host", req.URL.Host,
				"path", req.URL.Path,
				"wait", delay,
			)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, ctx.Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			retryAfter = 0
			continue
		}

		if !RetryableStatus(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}

		retryAfter = min(parseRetryAfter(resp.Header.Get("Retry-After")), rc.maxDelay)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// delay is full-jitter exponential backoff with a small floor.
func (rc *RetryClient) delay(attempt int) time.Duration {
	d := rc.maxDelay
	if shift := attempt - 1; shift < 30 {
		if exp := rc.baseDelay << uint(shift); exp > 0 && exp < rc.maxDelay {
			d = exp
		}
	}
	jittered := time.Duration(rand.Float64() * float64(d)) // #nosec G404 - jitter only
	return max(jittered, rc.baseDelay/10)
}

// RetryableStatus reports whether an HTTP status indicates a transient server condition.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at), 0)
	}
	return 0
}
