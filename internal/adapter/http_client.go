package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/logging"
	"golang.org/x/time/rate"
)

// httpGetter performs throttled GET requests with backoff on 429 and
// transport errors.
type httpGetter struct {
	provider   string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func newHTTPGetter(provider string, timeout time.Duration, limiter *rate.Limiter) *httpGetter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpGetter{
		provider:   provider,
		client:     &http.Client{Timeout: timeout},
		limiter:    limiter,
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
	}
}

// get returns the body of a 200 response
func (g *httpGetter) get(ctx context.Context, url string) ([]byte, error) {
	logger := logging.FromContext(ctx).WithField("provider", g.provider)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				if ctx.Err() == nil {
					// the next token would arrive after the deadline
					return nil, apperrors.NewProviderRateLimitError(g.provider)
				}
				return nil, g.contextError(ctx, err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "stock-tracker/1.0")

		resp, err := g.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, g.contextError(ctx, err)
			}
			lastErr = apperrors.NewProviderError(g.provider, err)
			if !g.backoff(ctx, logger, attempt, g.delay(attempt), err) {
				break
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, apperrors.NewProviderError(g.provider, fmt.Errorf("failed to read response: %w", err))
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = apperrors.NewProviderRateLimitError(g.provider)
			// Use Retry-After header if present, otherwise exponential backoff
			delay := g.delay(attempt)
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					delay = time.Duration(seconds) * time.Second
				}
			}
			if !g.backoff(ctx, logger, attempt, delay, lastErr) {
				break
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, apperrors.NewProviderError(g.provider,
				fmt.Errorf("HTTP error: %d - %s", resp.StatusCode, truncate(body, 200)))
		}

		return body, nil
	}

	return nil, lastErr
}

func (g *httpGetter) delay(attempt int) time.Duration {
	d := g.baseDelay * time.Duration(1<<uint(attempt))
	if d > g.maxDelay {
		d = g.maxDelay
	}
	return d
}

// backoff waits before the next attempt and reports whether one should follow
func (g *httpGetter) backoff(ctx context.Context, logger *logging.Logger, attempt int, delay time.Duration, cause error) bool {
	if attempt >= g.maxRetries {
		return false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		return false
	}

	logger.WithFields(map[string]interface{}{
		"attempt": attempt + 1,
		"delay":   delay.String(),
	}).WithError(cause).Warn("Provider request failed, retrying")

	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *httpGetter) contextError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperrors.NewProviderTimeoutError(g.provider), context.DeadlineExceeded)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return apperrors.NewProviderError(g.provider, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
