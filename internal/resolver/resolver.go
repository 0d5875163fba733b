// Package resolver implements the Target Resolver (SPEC_FULL.md §4.5):
// tryTargetsRecursively, generalized from Gateway.Route's flat strategy
// dispatch into a recursive walk over a Target tree, with one circuit
// breaker per resolver-tree node keyed by the node's inherited id.
package resolver

import (
	"context"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/errshape"
	"github.com/ferro-labs/ai-gateway/internal/hookshorthand"
	"github.com/ferro-labs/ai-gateway/internal/metrics"
	"github.com/ferro-labs/ai-gateway/internal/strategies"
)

// LeafExecutor runs the Request Processor against a single leaf target.
// internal/processor.Execute satisfies this signature; it is injected
// rather than imported directly to keep internal/resolver's dependency
// graph shallow and independently testable with a stub.
type LeafExecutor func(ctx context.Context, target engine.Target, inherited engine.InheritedConfig, body any, headers map[string]string, endpoint, method, jsonPath string) (*engine.Response, error)

// Resolver walks a Target tree, dispatching strategy nodes to
// internal/strategies and leaf nodes to a LeafExecutor, applying circuit
// breaker filtering at every strategy node whose inherited id is set.
type Resolver struct {
	Strategies *strategies.TreeStrategyFactory
	Leaf       LeafExecutor
	Breakers   *BreakerRegistry
}

// New builds a Resolver. breakers may be nil, in which case a fresh
// registry is created.
func New(factory *strategies.TreeStrategyFactory, leaf LeafExecutor, breakers *BreakerRegistry) *Resolver {
	if breakers == nil {
		breakers = NewBreakerRegistry()
	}
	return &Resolver{Strategies: factory, Leaf: leaf, Breakers: breakers}
}

// ExecuteRequest is the public entry point (Gateway.Route's
// equivalent): the root call into tryTargetsRecursively, with an empty
// InheritedConfig and jsonPath "$".
func (r *Resolver) ExecuteRequest(ctx context.Context, target engine.Target, body any, headers map[string]string, endpoint, method string) (*engine.Response, error) {
	resp, err := r.tryTargetsRecursively(ctx, target, body, headers, endpoint, method, "$", engine.InheritedConfig{})
	if err != nil {
		if _, isRouter := err.(*engine.RouterError); isRouter {
			return nil, err
		}
		return errshape.Shape(err), nil
	}
	return resp, nil
}

// tryTargetsRecursively implements SPEC_FULL.md §4.5 step by step.
func (r *Resolver) tryTargetsRecursively(ctx context.Context, target engine.Target, body any, headers map[string]string, endpoint, method, jsonPath string, inherited engine.InheritedConfig) (*engine.Response, error) {
	isBaseCase := inherited.ID == "" && inherited.Retry == nil && inherited.Cache == nil && len(inherited.BeforeRequestHooks) == 0 && len(inherited.AfterRequestHooks) == 0

	currentInherited := inherited.Merge(target)

	if isBaseCase {
		if len(target.DefaultInputGuardrails) > 0 {
			expanded := hookshorthand.ExpandAll(target.DefaultInputGuardrails, hookshorthand.DirectionInput, hookshorthand.HookTypeGuardrail)
			currentInherited.BeforeRequestHooks = append(currentInherited.BeforeRequestHooks, expanded...)
		}
		if len(target.DefaultOutputGuardrails) > 0 {
			expanded := hookshorthand.ExpandAll(target.DefaultOutputGuardrails, hookshorthand.DirectionOutput, hookshorthand.HookTypeGuardrail)
			currentInherited.AfterRequestHooks = append(currentInherited.AfterRequestHooks, expanded...)
		}
	}

	currentInherited.ApplyTo(&target)

	if len(target.InputGuardrails) > 0 {
		target.BeforeRequestHooks = append(target.BeforeRequestHooks, hookshorthand.ExpandAll(target.InputGuardrails, hookshorthand.DirectionInput, hookshorthand.HookTypeGuardrail)...)
	}
	if len(target.InputMutators) > 0 {
		target.BeforeRequestHooks = append(target.BeforeRequestHooks, hookshorthand.ExpandAll(target.InputMutators, hookshorthand.DirectionInput, hookshorthand.HookTypeMutator)...)
	}
	if len(target.OutputGuardrails) > 0 {
		target.AfterRequestHooks = append(target.AfterRequestHooks, hookshorthand.ExpandAll(target.OutputGuardrails, hookshorthand.DirectionOutput, hookshorthand.HookTypeGuardrail)...)
	}
	if len(target.OutputMutators) > 0 {
		target.AfterRequestHooks = append(target.AfterRequestHooks, hookshorthand.ExpandAll(target.OutputMutators, hookshorthand.DirectionOutput, hookshorthand.HookTypeMutator)...)
	}

	children := target.Targets
	if currentInherited.ID != "" {
		children = r.filterOpenCircuits(children, currentInherited.ID)
	}

	if target.Strategy != nil && target.Strategy.Mode != "" && len(children) > 0 {
		strategy, err := r.Strategies.Create(target.Strategy.Mode)
		if err != nil {
			return errshape.Shape(err), nil
		}
		tctx := strategies.TreeContext{
			Ctx:      ctx,
			Body:     body,
			Headers:  headers,
			Endpoint: endpoint,
			Method:   method,
			Recurse:  r.tryTargetsRecursively,
		}
		resp, err := strategy.Execute(tctx, children, currentInherited, jsonPath)
		if err != nil {
			if _, isRouter := err.(*engine.RouterError); isRouter {
				return nil, err
			}
			return errshape.Shape(err), nil
		}
		return resp, nil
	}

	// Leaf.
	resp, err := r.Leaf(ctx, target, currentInherited, body, headers, endpoint, method, jsonPath)
	if err != nil {
		return errshape.Shape(err), nil
	}
	if currentInherited.ID != "" {
		r.handleCircuitBreakerResponse(resp, breakerKey(target, currentInherited), target.CBConfig)
	}
	return resp, nil
}

func breakerKey(target engine.Target, inherited engine.InheritedConfig) string {
	if target.ID != "" {
		return target.ID
	}
	return inherited.ID
}

// filterOpenCircuits stamps IsOpen on each child from the breaker registry
// and removes open circuits, unless doing so would empty the list
// (SPEC_FULL.md §4.5 step 4: "only if at least one healthy remains").
func (r *Resolver) filterOpenCircuits(children []engine.Target, inheritedID string) []engine.Target {
	stamped := make([]engine.Target, len(children))
	copy(stamped, children)
	for i := range stamped {
		key := stamped[i].ID
		if key == "" {
			key = inheritedID
		}
		stamped[i].IsOpen = !r.Breakers.Get(key, stamped[i].CBConfig).Allow()
	}

	healthy := make([]engine.Target, 0, len(stamped))
	for _, c := range stamped {
		if !c.IsOpen {
			healthy = append(healthy, c)
		}
	}
	if len(healthy) == 0 {
		return stamped
	}
	if filtered := len(stamped) - len(healthy); filtered > 0 {
		metrics.CircuitBreakerFilteredTotal.WithLabelValues().Add(float64(filtered))
	}
	return healthy
}

func (r *Resolver) handleCircuitBreakerResponse(resp *engine.Response, key string, cbConfig *engine.CircuitBreakerConfig) {
	cb := r.Breakers.Get(key, cbConfig)
	if circuitBreakerTreatsAsFailure(resp, cbConfig) {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
}

func circuitBreakerTreatsAsFailure(resp *engine.Response, cbConfig *engine.CircuitBreakerConfig) bool {
	if resp == nil {
		return true
	}
	if cbConfig != nil && len(cbConfig.OnStatusCodes) > 0 {
		for _, code := range cbConfig.OnStatusCodes {
			if resp.Status == code {
				return true
			}
		}
		return false
	}
	return !resp.Ok()
}
