// Package hooks supplies a concrete, in-process implementation of the hook
// runtime (HooksManager, HookSpan). Checks inside a canonical
// engine.HookConfig are dispatched to the plugin registry
// (plugin.GetFactory) — a shorthand check id like "default.word-filter" or
// "default.max-token" resolves to the guardrail plugin of the same name,
// Init'd with the check's Parameters and Executed against a plugin.Context
// synthesized from the hook span's request JSON.
//
// This keeps the guardrail *evaluation* DSL out of scope (SPEC_FULL.md's
// Non-goals explicitly exclude it) while still giving the runtime something
// real to dispatch to, grounded in plugin.Manager/plugin.Context.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/plugin"
	"github.com/ferro-labs/ai-gateway/providers"
	"github.com/google/uuid"
)

// Manager runs before/after-request hooks against a HookSpan.
type Manager struct{}

// New creates a Manager.
func New() *Manager { return &Manager{} }

// NewSpan creates a HookSpan for one leaf call.
func (m *Manager) NewSpan(requestJSON map[string]any) *engine.HookSpan {
	return &engine.HookSpan{
		ID:          uuid.New().String(),
		RequestJSON: requestJSON,
	}
}

// AreSyncHooksAvailable reports whether any of the given after-request
// hooks need the provider response parsed synchronously (SPEC_FULL.md
// §4.7 step 2): any non-async hook does.
func (m *Manager) AreSyncHooksAvailable(afterHooks []engine.HookConfig) bool {
	for _, h := range afterHooks {
		if !h.Async {
			return true
		}
	}
	return false
}

// BeforeRequestHookHandler runs beforeHooks against span, mutating
// span.RequestJSON in place when a mutator transforms it, and reports
// whether any non-async guardrail voted to deny.
func (m *Manager) BeforeRequestHookHandler(ctx context.Context, span *engine.HookSpan, beforeHooks []engine.HookConfig) (results []engine.HookResult, shouldDeny bool) {
	for _, hook := range beforeHooks {
		result, transformed, denied := m.runHook(ctx, span, hook)
		results = append(results, result)
		if transformed {
			span.IsTransformed = true
		}
		if denied && hook.Deny {
			shouldDeny = true
		}
	}
	return results, shouldDeny
}

// AfterRequestHookHandler runs afterHooks against the mapped response and
// returns resp as given; changes a hook makes to the response JSON are not
// applied to it. After-hook errors propagate rather than being swallowed:
// the first check error stops the loop and is returned as a non-nil error.
func (m *Manager) AfterRequestHookHandler(ctx context.Context, resp *engine.Response, respJSON map[string]any, afterHooks []engine.HookConfig, hookSpanID string, attemptsAlreadyMade int) (*engine.Response, []engine.HookResult, error) {
	span := &engine.HookSpan{ID: hookSpanID, RequestJSON: respJSON}
	var results []engine.HookResult
	for _, hook := range afterHooks {
		result, _, _ := m.runHook(ctx, span, hook)
		results = append(results, result)
		if result.Error != "" {
			return resp, results, errors.New(result.Error)
		}
	}
	return resp, results, nil
}

// runHook dispatches every Check in hook to a registered plugin (trimming
// the "default." prefix convention introduced by internal/hookshorthand)
// and folds their verdicts into one HookResult. A check whose id names no
// registered plugin is treated as passing (verdict=true) — there is no
// guardrail DSL in scope to evaluate it against.
func (m *Manager) runHook(ctx context.Context, span *engine.HookSpan, hook engine.HookConfig) (result engine.HookResult, transformed bool, denied bool) {
	result = engine.HookResult{ID: hook.ID, Type: hook.Type, Verdict: true}

	pctx := contextFromSpan(span)
	for _, check := range hook.Checks {
		if check.IsEnabled != nil && !*check.IsEnabled {
			continue
		}
		name := strings.TrimPrefix(check.ID, "default.")
		factory, ok := plugin.GetFactory(name)
		if !ok {
			continue
		}
		p := factory()
		if err := p.Init(check.Parameters); err != nil {
			result.Error = err.Error()
			continue
		}
		if err := p.Execute(ctx, pctx); err != nil {
			result.Error = err.Error()
			continue
		}
		if pctx.Reject {
			result.Verdict = false
			result.Deny = hook.Deny
			result.Data = pctx.Reason
			denied = true
		}
	}

	if pctx.Request != nil {
		if b, err := json.Marshal(pctx.Request); err == nil {
			var merged map[string]any
			if json.Unmarshal(b, &merged) == nil {
				if !jsonEqual(span.RequestJSON, merged) {
					transformed = true
				}
				span.RequestJSON = merged
			}
		}
	}

	return result, transformed, denied
}

// contextFromSpan best-effort unmarshals the span's request JSON into a
// providers.Request so existing guardrail plugins (word-filter, max-token,
// ...) can run against it unmodified.
func contextFromSpan(span *engine.HookSpan) *plugin.Context {
	req := &providers.Request{}
	if span.RequestJSON != nil {
		if b, err := json.Marshal(span.RequestJSON); err == nil {
			_ = json.Unmarshal(b, req)
		}
	}
	return plugin.NewContext(req)
}

func jsonEqual(a, b map[string]any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}
