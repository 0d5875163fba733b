package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/errshape"
	"github.com/ferro-labs/ai-gateway/internal/metrics"
	"github.com/ferro-labs/ai-gateway/internal/retry"
)

// afterHookLoopInput carries the state threaded through one recursive pass
// of the After-Request Hook Loop (SPEC_FULL.md §4.7).
type afterHookLoopInput struct {
	target       engine.Target
	span         *engine.HookSpan
	requestURL   string
	method       string
	finalHeaders map[string]string
	bodyBytes    []byte
	isStreaming  bool
	retryCfg     *engine.RetryConfig
	timeout      time.Duration
	jsonPath     string
	attemptsMade int
}

// afterRequestHookLoop runs the upstream fetch through the retry engine, maps
// and runs after-hooks against the result, and recurses when the hook-mapped
// response is still retriable and budget remains. Returns the final
// retryCount (-1 sentinel when attempts were exhausted without success), the
// hook-mapped response, and the parsed original response JSON (nil when no
// synchronous after-hook required parsing).
func (p *Processor) afterRequestHookLoop(ctx context.Context, in afterHookLoopInput) (retryCount int, resp *engine.Response, originalJSON map[string]any) {
	maxAttempts, onStatusCodes, useRetryAfterHeader := 0, []int(nil), false
	if in.retryCfg != nil {
		maxAttempts = in.retryCfg.Attempts
		onStatusCodes = in.retryCfg.OnStatusCodes
		useRetryAfterHeader = in.retryCfg.UseRetryAfterHeader
	}

	remainingBudget := maxAttempts - in.attemptsMade
	if remainingBudget < 0 {
		remainingBudget = 0
	}

	handler := func(ctx context.Context, attempt int) (*engine.Response, bool, error) {
		resp, err := p.doHTTP(ctx, in.method, in.requestURL, in.finalHeaders, in.bodyBytes)
		// A streaming/raw-audio body has already been consumed by the first
		// attempt and cannot be replayed, so no further attempt is possible.
		return resp, in.isStreaming, err
	}

	result := retry.RetryRequest(ctx, remainingBudget, onStatusCodes, in.timeout, useRetryAfterHeader, handler)

	mappedResponse, mappedJSON, original := p.runResponseHandler(result.Response, in.target.AfterRequestHooks)

	arhResponse, _, err := p.Hooks.AfterRequestHookHandler(ctx, mappedResponse, mappedJSON, in.target.AfterRequestHooks, in.span.ID, in.attemptsMade)
	if err != nil {
		arhResponse = errshape.Shape(err)
	}

	remaining := maxAttempts - result.Attempt - in.attemptsMade
	retriable := containsStatus(onStatusCodes, arhResponse.Status)

	if remaining > 0 && !result.Skip && retriable {
		p.log(engine.LogObject{
			HookSpanID:   in.span.ID,
			JSONPath:     in.jsonPath,
			RequestURL:   in.requestURL,
			Response:     arhResponse,
			OriginalJSON: original,
			RetryAttempt: result.Attempt + in.attemptsMade,
			CreatedAt:    result.CreatedAt,
		})
		next := in
		next.attemptsMade = result.Attempt + 1 + in.attemptsMade
		return p.afterRequestHookLoop(ctx, next)
	}

	finalCount := result.Attempt + in.attemptsMade
	if retriable || result.Skip {
		finalCount = -1
		if retriable && !result.Skip {
			metrics.RetryExhaustedTotal.WithLabelValues(in.target.Provider).Inc()
		}
	}
	return finalCount, arhResponse, original
}

// runResponseHandler parses the raw response body into JSON only when a
// synchronous after-hook needs it (SPEC_FULL.md §4.7 step 2), mirroring the
// provider adapter's responseHandler pass.
func (p *Processor) runResponseHandler(resp *engine.Response, afterHooks []engine.HookConfig) (mapped *engine.Response, mappedJSON, originalJSON map[string]any) {
	if resp == nil {
		return resp, nil, nil
	}
	if !p.Hooks.AreSyncHooksAvailable(afterHooks) {
		return resp, nil, nil
	}
	var parsed map[string]any
	if json.Unmarshal(resp.Body, &parsed) != nil {
		return resp, nil, nil
	}
	mapped = &engine.Response{Status: resp.Status, Headers: resp.Headers, Body: resp.Body, JSON: parsed}
	return mapped, parsed, parsed
}

func containsStatus(codes []int, status int) bool {
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}
