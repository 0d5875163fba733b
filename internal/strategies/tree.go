package strategies

import (
	"context"
	"fmt"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// RecurseFunc is the Target Resolver's tryTargetsRecursively entry point,
// injected into each tree strategy by construction instead of imported
// directly. This is how the package avoids an import cycle with
// internal/resolver (SPEC_FULL.md §9 design note: "strategies receive the
// resolver's entry point via a small interface to break the import cycle").
type RecurseFunc func(ctx context.Context, target engine.Target, body any, headers map[string]string, endpoint, method, jsonPath string, inherited engine.InheritedConfig) (*engine.Response, error)

// TreeContext carries the per-request values every tree strategy needs to
// recurse into a selected child (SPEC_FULL.md §4.5: "All strategies receive
// {ctx, body, headers, endpoint, method, currentJsonPath}").
type TreeContext struct {
	Ctx      context.Context
	Body     any
	Headers  map[string]string
	Endpoint string
	Method   string
	Recurse  RecurseFunc
}

// TreeStrategy is the tree-aware strategy interface consumed by
// internal/resolver: select one or more children of target and recurse
// into them via tctx.Recurse, returning the response the resolver should
// propagate.
type TreeStrategy interface {
	Execute(tctx TreeContext, children []engine.Target, inherited engine.InheritedConfig, jsonPath string) (*engine.Response, error)
}

// ConditionalRouter evaluates the conditional-routing DSL against request
// metadata/params and selects a child index. Implementations must return a
// *engine.RouterError (not a bare error) on DSL failure so the Target
// Resolver can propagate it unchanged to the edge as HTTP 400
// (SPEC_FULL.md §4.5, §7).
type ConditionalRouter interface {
	Route(children []engine.Target, metadata, params map[string]any) (index int, err error)
}

// TreeStrategyFactory builds a TreeStrategy for a given mode. A single
// instance is shared across requests; it must be safe for concurrent use.
type TreeStrategyFactory struct {
	Router ConditionalRouter
}

// NewTreeStrategyFactory builds a factory. router may be nil if the
// conditional strategy is never used.
func NewTreeStrategyFactory(router ConditionalRouter) *TreeStrategyFactory {
	return &TreeStrategyFactory{Router: router}
}

// Create returns the TreeStrategy implementing mode, or an error for an
// unrecognized mode.
func (f *TreeStrategyFactory) Create(mode engine.StrategyMode) (TreeStrategy, error) {
	switch mode {
	case engine.ModeSingle:
		return TreeSingle{}, nil
	case engine.ModeFallback:
		return TreeFallback{}, nil
	case engine.ModeLoadBalance:
		return TreeLoadBalance{}, nil
	case engine.ModeConditional:
		if f.Router == nil {
			return nil, fmt.Errorf("conditional strategy requires a ConditionalRouter")
		}
		return TreeConditional{Router: f.Router}, nil
	default:
		return nil, fmt.Errorf("unknown strategy mode: %q", mode)
	}
}
