package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/StarfishJ/SceneSound/internal/core/domain"
	"github.com/StarfishJ/SceneSound/internal/logging"
	"github.com/StarfishJ/SceneSound/internal/metrics"
	"github.com/StarfishJ/SceneSound/internal/retry"
)

// statusError is a retryable non-2xx response. It carries the Retry-After
// delay so retry.Do can honour it.
type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("spotify adapter: status %d", e.status)
}

func (e *statusError) RetryAfter() time.Duration {
	return e.retryAfter
}

// doRequestWithRetry sends the request built by newReq, retrying transport
// errors, 429 and 5xx responses with exponential backoff (or Retry-After).
// The returned response has a 2xx status or a status that is not retryable;
// the caller owns its body.
func (c *Client) doRequestWithRetry(ctx context.Context, op string, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	policy := retry.Policy{
		MaxAttempts: c.maxAttempts,
		Backoff:     retry.Exponential(c.baseBackoff),
		Retryable:   isRetryable,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.maxAttempts).
				Dur("backoff", delay).Msg("spotify adapter: retrying request")
		},
	}

	resp, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The next slot lies beyond the deadline; waiting again cannot help.
			return nil, domain.Transient(op, http.StatusGatewayTimeout, fmt.Errorf("spotify adapter: rate limiter: %w", err))
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, domain.Internal(op, err)
		}

		start := time.Now()
		// #nosec G107 -- URL constructed from configured Spotify API base URL
		resp, err := c.httpClient.Do(req)
		elapsed := time.Since(start)
		if err != nil {
			metrics.RecordUpstreamAttempt("spotify", "error", elapsed)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}

		retryAfter, again := shouldRetry(resp)
		if again {
			metrics.RecordUpstreamAttempt("spotify", "retry", elapsed)
			drain(resp)
			return nil, &statusError{status: resp.StatusCode, retryAfter: retryAfter}
		}
		metrics.RecordUpstreamAttempt("spotify", "ok", elapsed)
		return resp, nil
	})
	if err == nil {
		return resp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("spotify adapter: request canceled: %w", ctxErr)
	}
	var se *statusError
	if errors.As(err, &se) {
		return nil, domain.Transient(op, transientStatus(se.status), err)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return nil, err
	}
	return nil, transportError(op, err)
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Client.Timeout is reported as a net.Error, not as a context error.
		var ne net.Error
		return errors.As(err, &ne) && ne.Timeout()
	}
	var de *domain.Error
	return !errors.As(err, &de)
}

func shouldRetry(resp *http.Response) (time.Duration, bool) {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}
	return 0, false
}

func transientStatus(status int) int {
	if status == http.StatusGatewayTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// transportError maps a failure to reach the upstream to a transient error;
// timeouts report 504.
func transportError(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.Transient(op, http.StatusGatewayTimeout, err)
	}
	return domain.Transient(op, http.StatusBadGateway, err)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
