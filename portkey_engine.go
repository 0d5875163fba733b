package aigateway

import (
	"context"

	"github.com/ferro-labs/ai-gateway/internal/cache"
	"github.com/ferro-labs/ai-gateway/internal/condition"
	"github.com/ferro-labs/ai-gateway/internal/configbuilder"
	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/hooks"
	"github.com/ferro-labs/ai-gateway/internal/processor"
	"github.com/ferro-labs/ai-gateway/internal/resolver"
	"github.com/ferro-labs/ai-gateway/internal/strategies"
	"github.com/ferro-labs/ai-gateway/providers"
)

// PortkeyEngine wires the Config Builder, Target Resolver, Strategies, and
// Request Processor into the single call SPEC_FULL.md §6 names as the
// system's entry point: hand it request headers and a body, get back the
// routed, cached, retried, guard-railed Response.
//
// It is the tree-routing counterpart to Gateway: Gateway.Route walks a
// single pre-loaded flat Config against a providers.Request; PortkeyEngine
// builds its target tree per request from x-portkey-* headers
// (internal/configbuilder) and walks it with the full recursive resolver,
// so config-header-driven multi-provider routing, guardrails, and circuit
// breakers are reachable without a pre-loaded config file — the shape
// SPEC_FULL.md §4.5's tryPost/tryTargetsRecursively entry points describe.
type PortkeyEngine struct {
	resolver *resolver.Resolver
	aliases  map[string]string
}

// NewPortkeyEngine builds a PortkeyEngine over registry. hooksManager,
// respCache, client, and logger may all be nil/zero: a nil hooksManager
// is replaced by hooks.New(), a nil respCache disables the
// "simple" cache mode, a nil client defaults to http.DefaultClient (see
// internal/processor.New), and a nil logger makes LogObject emission a
// no-op. aliases maps a client-facing model name to the name actually sent
// upstream, the same map Gateway.resolveModelAlias consults (§9).
func NewPortkeyEngine(registry *providers.Registry, hooksManager *hooks.Manager, respCache *cache.ResponseCache, client processor.HTTPDoer, logger func(engine.LogObject), aliases map[string]string) *PortkeyEngine {
	if hooksManager == nil {
		hooksManager = hooks.New()
	}

	proc := processor.New(registry, hooksManager, respCache, client)
	proc.Logger = logger

	factory := strategies.NewTreeStrategyFactory(condition.NewRouter())
	r := resolver.New(factory, proc.Execute, nil)

	return &PortkeyEngine{resolver: r, aliases: aliases}
}

// ExecuteRequest builds the root Target from reqHeaders via the Config
// Builder (§4.1), resolves a model alias on the body (§9) once before the
// tree walk begins, then walks the tree via the Target Resolver (§4.4),
// returning the mapped Response.
//
// A malformed x-portkey-config header surfaces as a *engine.RouterError —
// the caller (the HTTP front end) is responsible for mapping that to HTTP
// 400 without the gateway-exception header, exactly as a RouterError from
// the conditional strategy would be (SPEC_FULL.md §4.5, §7).
func (e *PortkeyEngine) ExecuteRequest(ctx context.Context, reqHeaders map[string]string, body any, endpoint, method string) (*engine.Response, error) {
	target, err := configbuilder.Build(reqHeaders)
	if err != nil {
		return nil, err
	}
	body = e.resolveModelAlias(body)
	return e.resolver.ExecuteRequest(ctx, target, body, reqHeaders, endpoint, method)
}

// ExecuteTarget walks a caller-supplied Target tree directly, skipping the
// Config Builder — the path a config-file-rooted caller (cmd/ferrogw-cli's
// route command, or the flat GATEWAY_CONFIG-driven front end) takes instead
// of the header-driven ExecuteRequest.
func (e *PortkeyEngine) ExecuteTarget(ctx context.Context, target engine.Target, reqHeaders map[string]string, body any, endpoint, method string) (*engine.Response, error) {
	body = e.resolveModelAlias(body)
	return e.resolver.ExecuteRequest(ctx, target, body, reqHeaders, endpoint, method)
}

// resolveModelAlias rewrites body["model"] to its configured alias target,
// if any, leaving body untouched when it carries no "model" field or no
// alias matches.
func (e *PortkeyEngine) resolveModelAlias(body any) any {
	if len(e.aliases) == 0 {
		return body
	}
	m, ok := body.(map[string]any)
	if !ok {
		return body
	}
	model, ok := m["model"].(string)
	if !ok {
		return body
	}
	if target, ok := e.aliases[model]; ok {
		m["model"] = target
	}
	return body
}
