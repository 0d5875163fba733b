// Package processor implements the Request Processor (SPEC_FULL.md §4.6,
// internal/resolver's LeafExecutor) and the recursive After-Request Hook
// Loop (§4.7): the seven-phase pipeline for one leaf call, plus the
// retry/after-hooks recursion that drives it.
//
// Grounded in Gateway.Route's ordered phase structure (before-plugins →
// strategy execute → after-plugins → metrics/logging), generalized here
// from "single pass over a flat target list" to "per-leaf pipeline with an
// explicit hook span and recursive retry".
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/cache"
	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/headers"
	"github.com/ferro-labs/ai-gateway/internal/hooks"
	"github.com/ferro-labs/ai-gateway/internal/reqbody"
	"github.com/ferro-labs/ai-gateway/providers"
)

// HTTPDoer performs a raw HTTP round trip; *http.Client satisfies it.
// Injectable so tests never hit the network.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator runs pre-request validation (e.g. virtual-key budget checks).
// Returning a non-nil Response short-circuits the pipeline with that
// response (SPEC_FULL.md §4.6 step 6); a nil Validator always passes.
type Validator func(target engine.Target, inherited engine.InheritedConfig) *engine.Response

// Processor runs the per-leaf pipeline.
type Processor struct {
	Providers *providers.Registry
	Hooks     *hooks.Manager
	Cache     *cache.ResponseCache
	Client    HTTPDoer
	Validator Validator
	Logger    func(engine.LogObject)
}

// New builds a Processor. hooksManager/client/cacheStore may be supplied by
// the caller; a nil Logger is a no-op.
func New(registry *providers.Registry, hooksManager *hooks.Manager, responseCache *cache.ResponseCache, client HTTPDoer) *Processor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Processor{Providers: registry, Hooks: hooksManager, Cache: responseCache, Client: client}
}

// Execute implements internal/resolver.LeafExecutor.
func (p *Processor) Execute(ctx context.Context, target engine.Target, inherited engine.InheritedConfig, body any, reqHeaders map[string]string, endpoint, method, jsonPath string) (*engine.Response, error) {
	// 1. Setup.
	requestURL := p.resolveRequestURL(target, endpoint)
	span := p.Hooks.NewSpan(bodyAsJSON(body))

	// 2. Before-request hooks.
	results, shouldDeny := p.Hooks.BeforeRequestHookHandler(ctx, span, target.BeforeRequestHooks)
	if shouldDeny {
		return nil, &engine.HooksDeniedError{
			Message: "The guardrail checks defined in the config failed",
			Results: toHookResults(results),
		}
	}
	if span.IsTransformed {
		body = span.RequestJSON
	}

	// 3. Prepare: merge override params into the outgoing body. The inherited
	// map and target's own map are merged shallowly, target's keys winning.
	body = applyOverrideParams(body, inherited.Merge(target).OverrideParams)

	// 4. Build fetch options.
	providerMappedHeaders := p.providerAuthHeaders(target)
	clientContentType := reqHeaders["content-type"]
	providerContentType := providerMappedHeaders["content-type"]
	shape := reqbody.Decide(method, providerContentType, clientContentType, endpoint)
	// A structured (non-byte) body has no stream to forward, so it is encoded as JSON.
	if _, isBytes := body.([]byte); shape == reqbody.ShapeStream && !isBytes && body != nil {
		shape = reqbody.ShapeJSON
	}
	bodyBytes, err := reqbody.Build(shape, body)
	if err != nil {
		return nil, engine.NewGatewayError(err.Error())
	}
	finalHeaders := headers.BuildFinalHeaders(providerMappedHeaders, inherited.ForwardHeaders, reqHeaders, endpoint, method, clientContentType)
	headers.SetFilePurposeHeader(finalHeaders, reqHeaders, endpoint)

	// 5. Cache lookup.
	cacheKey, cacheStatus := "", engine.CacheStatusMiss
	if p.Cache != nil && target.Cache != nil && target.Cache.Mode == "simple" {
		cacheKey = cache.Key(target.VirtualKey, endpoint, bodyBytes)
		if cached, ok := p.Cache.Get(cacheKey); ok {
			p.log(engine.LogObject{HookSpanID: span.ID, JSONPath: jsonPath, RequestURL: requestURL, Response: cached, CacheStatus: engine.CacheStatusHit, CacheKey: cacheKey, CreatedAt: time.Now()})
			return cached, nil
		}
		cacheStatus = engine.CacheStatusSimple
	}

	// 6. Pre-request validation.
	if p.Validator != nil {
		if resp := p.Validator(target, inherited); resp != nil {
			p.log(engine.LogObject{HookSpanID: span.ID, JSONPath: jsonPath, RequestURL: requestURL, Response: resp, CreatedAt: time.Now()})
			return resp, nil
		}
	}

	// 7. Main execution: retry engine + after-hooks, recursing on retriable responses.
	retryCount, arhResponse, originalJSON := p.afterRequestHookLoop(ctx, afterHookLoopInput{
		target:       target,
		span:         span,
		requestURL:   requestURL,
		method:       method,
		finalHeaders: finalHeaders,
		bodyBytes:    bodyBytes,
		isStreaming:  reqbody.IsStreamingShape(shape),
		retryCfg:     target.Retry,
		timeout:      target.RequestTimeout,
		jsonPath:     jsonPath,
		attemptsMade: 0,
	})

	if p.Cache != nil && cacheKey != "" && arhResponse.Ok() {
		var ttl time.Duration
		if target.Cache != nil {
			ttl = target.Cache.TTL
		}
		p.Cache.Set(cacheKey, arhResponse, ttl)
	}

	p.log(engine.LogObject{
		HookSpanID:   span.ID,
		JSONPath:     jsonPath,
		RequestURL:   requestURL,
		Response:     arhResponse,
		OriginalJSON: originalJSON,
		CacheStatus:  cacheStatus,
		CacheKey:     cacheKey,
		RetryAttempt: retryCount,
		CreatedAt:    time.Now(),
	})

	return arhResponse, nil
}

func (p *Processor) log(obj engine.LogObject) {
	if p.Logger != nil {
		p.Logger(obj)
	}
}

// resolveRequestURL asks the provider adapter for its base URL when it
// implements providers.ProxiableProvider, falling back to the target's
// custom host.
func (p *Processor) resolveRequestURL(target engine.Target, endpoint string) string {
	if target.CustomHost != "" {
		return target.CustomHost + endpoint
	}
	if p.Providers != nil {
		if prov, ok := p.Providers.Get(target.Provider); ok {
			if proxiable, ok := prov.(providers.ProxiableProvider); ok {
				return proxiable.BaseURL() + endpoint
			}
		}
	}
	return endpoint
}

func (p *Processor) providerAuthHeaders(target engine.Target) map[string]string {
	if p.Providers != nil {
		if prov, ok := p.Providers.Get(target.Provider); ok {
			if proxiable, ok := prov.(providers.ProxiableProvider); ok {
				return proxiable.AuthHeaders()
			}
		}
	}
	if target.APIKey != "" {
		return map[string]string{"authorization": "Bearer " + target.APIKey}
	}
	return map[string]string{}
}

func bodyAsJSON(body any) map[string]any {
	switch v := body.(type) {
	case map[string]any:
		return v
	case []byte:
		var m map[string]any
		_ = json.Unmarshal(v, &m)
		return m
	default:
		b, err := json.Marshal(body)
		if err != nil {
			return nil
		}
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		return m
	}
}

// applyOverrideParams layers overrideParams (already merged by
// InheritedConfig.Merge, current node winning conflicts) over the request
// body.
func applyOverrideParams(body any, overrideParams map[string]any) any {
	if len(overrideParams) == 0 {
		return body
	}
	m := bodyAsJSON(body)
	if m == nil {
		m = map[string]any{}
	}
	for k, v := range overrideParams {
		m[k] = v
	}
	return m
}

func toHookResults(results []engine.HookResult) []engine.HookResult {
	if results == nil {
		return []engine.HookResult{}
	}
	return results
}

// doHTTP performs the raw upstream fetch for one retry attempt.
func (p *Processor) doHTTP(ctx context.Context, method, url string, hdrs map[string]string, body []byte) (*engine.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, v := range hdrs {
		req.Header.Set(k, v)
	}

	httpResp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(httpResp.Body); err != nil {
		return nil, err
	}

	return &engine.Response{Status: httpResp.StatusCode, Headers: httpResp.Header, Body: buf.Bytes()}, nil
}
