// Package retry implements the Retry Engine interface contract of
// SPEC_FULL.md §4.8: retry a fetch with a bounded attempt count, a
// retriable-status allowlist, a per-attempt timeout, and optional
// Retry-After honoring. It never throws on transport failure; it returns
// the best response obtained, or a synthesized failure, plus a skip flag
// the caller (internal/processor) uses to decide whether retrying even
// applies.
package retry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// RequestHandler performs a single upstream fetch attempt. It must not
// retry internally; retrying is this package's job. Implementations return
// skip=true when a retry would be unsafe (streaming body already consumed,
// etc.); err reports a transport failure.
type RequestHandler func(ctx context.Context, attempt int) (resp *engine.Response, skip bool, err error)

// Result is what RetryRequest returns.
type Result struct {
	Response  *engine.Response
	Attempt   int // zero-based index of the attempt that produced Response
	CreatedAt time.Time
	Skip      bool // true if the engine decided not to retry further
}

// RetryRequest invokes handler at most maxAttempts+1 times, stopping early
// when a response's status is not in retriableStatusCodes, or when handler
// reports skip=true. When useRetryAfterHeader is set and a 429/503-style
// response carries a Retry-After header, the engine sleeps that long
// (bounded by timeout) before the next attempt instead of using its own
// backoff.
func RetryRequest(ctx context.Context, maxAttempts int, retriableStatusCodes []int, timeout time.Duration, useRetryAfterHeader bool, handler RequestHandler) Result {
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	var lastResp *engine.Response
	createdAt := time.Now()

	for attempt := 0; attempt <= maxAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		resp, skip, err := handler(attemptCtx, attempt)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			// Transport failure: synthesize a 502 so callers always see a
			// Response, never a bare error (the engine never throws).
			resp = engine.NewResponse(http.StatusBadGateway, []byte(err.Error()))
		}
		lastResp = resp

		if skip {
			return Result{Response: resp, Attempt: attempt, CreatedAt: createdAt, Skip: true}
		}
		if attempt == maxAttempts {
			return Result{Response: resp, Attempt: attempt, CreatedAt: createdAt, Skip: false}
		}
		if !isRetriable(resp, retriableStatusCodes) {
			return Result{Response: resp, Attempt: attempt, CreatedAt: createdAt, Skip: false}
		}

		wait := backoffDelay(attempt)
		if useRetryAfterHeader {
			if d, ok := retryAfterDelay(resp); ok {
				wait = d
			}
		}
		if timeout > 0 && wait > timeout {
			wait = timeout
		}

		select {
		case <-ctx.Done():
			return Result{Response: resp, Attempt: attempt, CreatedAt: createdAt, Skip: true}
		case <-time.After(wait):
		}
	}

	return Result{Response: lastResp, Attempt: maxAttempts, CreatedAt: createdAt, Skip: false}
}

func isRetriable(resp *engine.Response, retriableStatusCodes []int) bool {
	if resp == nil {
		return true
	}
	for _, code := range retriableStatusCodes {
		if resp.Status == code {
			return true
		}
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	d := 100 * time.Millisecond
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// retryAfterDelay parses the Retry-After header, either as a number of
// seconds or an HTTP-date, per SPEC_FULL.md §4.8.
func retryAfterDelay(resp *engine.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := resp.HeaderValue("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
