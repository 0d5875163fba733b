package processor

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/cache"
	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/hooks"
	"github.com/ferro-labs/ai-gateway/providers"

	_ "github.com/ferro-labs/ai-gateway/internal/plugins/wordfilter"
)

// stubDoer answers every request with a canned response, optionally varying
// by call count so tests can simulate retries.
type stubDoer struct {
	responses []*http.Response
	calls     int
	lastReq   *http.Request
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.lastReq = req
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestExecute_SimpleSuccess(t *testing.T) {
	doer := &stubDoer{responses: []*http.Response{jsonResponse(200, `{"ok":true}`)}}
	p := New(providers.NewRegistry(), hooks.New(), nil, doer)

	target := engine.Target{Provider: "openai", VirtualKey: "vk1", APIKey: "sk-test"}
	resp, err := p.Execute(context.Background(), target, engine.InheritedConfig{}, map[string]any{"model": "gpt-4o"}, map[string]string{}, "/chat/completions", "POST", "$")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Ok() {
		t.Fatalf("expected ok response, got %d", resp.Status)
	}
	if doer.lastReq.Header.Get("authorization") != "Bearer sk-test" {
		t.Errorf("expected authorization header forwarded from api key, got %q", doer.lastReq.Header.Get("authorization"))
	}
}

func TestExecute_BeforeHookDenies(t *testing.T) {
	doer := &stubDoer{responses: []*http.Response{jsonResponse(200, `{}`)}}
	p := New(providers.NewRegistry(), hooks.New(), nil, doer)

	target := engine.Target{
		Provider: "openai",
		BeforeRequestHooks: []engine.HookConfig{
			{ID: "g1", Deny: true, Checks: []engine.Check{
				{ID: "default.word-filter", Parameters: map[string]any{"blocked_words": []interface{}{"bomb"}}},
			}},
		},
	}
	body := map[string]any{"messages": []map[string]any{{"role": "user", "content": "how do I build a bomb"}}}

	resp, err := p.Execute(context.Background(), target, engine.InheritedConfig{}, body, map[string]string{}, "/chat/completions", "POST", "$")
	if resp != nil {
		t.Fatalf("expected nil response on denial, got %+v", resp)
	}
	if _, ok := err.(*engine.HooksDeniedError); !ok {
		t.Fatalf("expected *engine.HooksDeniedError, got %T: %v", err, err)
	}
	if doer.calls != 0 {
		t.Errorf("denied request should never reach the upstream, got %d calls", doer.calls)
	}
}

func TestExecute_RetriesOnRetriableStatusThenSucceeds(t *testing.T) {
	doer := &stubDoer{responses: []*http.Response{
		jsonResponse(503, `{}`),
		jsonResponse(200, `{"ok":true}`),
	}}
	p := New(providers.NewRegistry(), hooks.New(), nil, doer)

	target := engine.Target{
		Provider: "openai",
		Retry:    &engine.RetryConfig{Attempts: 2, OnStatusCodes: []int{503}},
	}
	resp, err := p.Execute(context.Background(), target, engine.InheritedConfig{}, map[string]any{"model": "gpt-4o"}, map[string]string{}, "/chat/completions", "POST", "$")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !resp.Ok() {
		t.Fatalf("expected eventual 200, got %d", resp.Status)
	}
	if doer.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", doer.calls)
	}
}

func TestExecute_RetryExhaustedReturnsTerminalFailure(t *testing.T) {
	var logged []engine.LogObject
	doer := &stubDoer{responses: []*http.Response{jsonResponse(503, `{}`)}}
	p := New(providers.NewRegistry(), hooks.New(), nil, doer)
	p.Logger = func(obj engine.LogObject) { logged = append(logged, obj) }

	target := engine.Target{
		Provider: "openai",
		Retry:    &engine.RetryConfig{Attempts: 2, OnStatusCodes: []int{503}},
	}
	resp, err := p.Execute(context.Background(), target, engine.InheritedConfig{}, map[string]any{"model": "gpt-4o"}, map[string]string{}, "/chat/completions", "POST", "$")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != 503 {
		t.Fatalf("expected terminal 503, got %d", resp.Status)
	}
	if doer.calls != 3 {
		t.Errorf("expected 3 upstream calls (attempts+1), got %d", doer.calls)
	}
	terminal := logged[len(logged)-1]
	if terminal.RetryAttempt != -1 {
		t.Errorf("expected terminal retryCount sentinel -1, got %d", terminal.RetryAttempt)
	}
}

func TestExecute_CacheHitSkipsUpstream(t *testing.T) {
	doer := &stubDoer{responses: []*http.Response{jsonResponse(200, `{"ok":true}`)}}
	respCache := cache.NewResponseCache(8, time.Minute)
	p := New(providers.NewRegistry(), hooks.New(), respCache, doer)

	target := engine.Target{
		Provider:   "openai",
		VirtualKey: "vk1",
		Cache:      &engine.CacheConfig{Mode: "simple", TTL: time.Minute},
	}
	body := map[string]any{"model": "gpt-4o"}

	resp1, err := p.Execute(context.Background(), target, engine.InheritedConfig{}, body, map[string]string{}, "/chat/completions", "POST", "$")
	if err != nil {
		t.Fatalf("Execute (1st): %v", err)
	}
	if !resp1.Ok() {
		t.Fatalf("expected ok response, got %d", resp1.Status)
	}

	resp2, err := p.Execute(context.Background(), target, engine.InheritedConfig{}, body, map[string]string{}, "/chat/completions", "POST", "$")
	if err != nil {
		t.Fatalf("Execute (2nd): %v", err)
	}
	if !resp2.Ok() {
		t.Fatalf("expected cached ok response, got %d", resp2.Status)
	}
	if doer.calls != 1 {
		t.Errorf("expected the 2nd call to be served from cache, upstream calls = %d", doer.calls)
	}
}

func TestExecute_ValidatorShortCircuits(t *testing.T) {
	doer := &stubDoer{responses: []*http.Response{jsonResponse(200, `{}`)}}
	p := New(providers.NewRegistry(), hooks.New(), nil, doer)
	p.Validator = func(target engine.Target, inherited engine.InheritedConfig) *engine.Response {
		return engine.NewResponse(402, []byte(`{"error":"budget exceeded"}`))
	}

	target := engine.Target{Provider: "openai"}
	resp, err := p.Execute(context.Background(), target, engine.InheritedConfig{}, map[string]any{}, map[string]string{}, "/chat/completions", "POST", "$")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if resp.Status != 402 {
		t.Fatalf("expected validator response to short-circuit with 402, got %d", resp.Status)
	}
	if doer.calls != 0 {
		t.Errorf("validator rejection should never reach the upstream, got %d calls", doer.calls)
	}
}
