// Package condition implements the conditional-routing DSL the Target
// Resolver's conditional strategy delegates to: a small expression grammar
// over dotted paths into request metadata and body params, plus the legacy
// key/value rule form the flat config used
// (Condition.Key="model"/"model_prefix").
//
// The key/value rule form is generalized to dotted-path expressions without
// pulling in a third-party expression engine (see DESIGN.md).
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// Router evaluates each child's Condition against {metadata, params} and
// selects the first matching child, falling back to a designated default
// target when none match (SPEC_FULL.md §4.5).
type Router struct{}

// NewRouter builds a Router.
func NewRouter() *Router { return &Router{} }

// Route implements strategies.ConditionalRouter.
func (r *Router) Route(children []engine.Target, metadata, params map[string]any) (int, error) {
	if len(children) == 0 {
		return 0, engine.NewRouterError("conditional strategy requires at least one target")
	}

	env := map[string]any{"metadata": metadata, "params": params}

	defaultIdx := -1
	for i, child := range children {
		if child.Strategy == nil {
			continue
		}
		for _, cond := range child.Strategy.Conditions {
			if cond.TargetKey == "default" || cond.Query == "default" {
				defaultIdx = i
			}
			matched, err := evaluate(cond, env, metadata, params)
			if err != nil {
				return 0, engine.NewRouterError(err.Error())
			}
			if matched {
				return resolveIndex(cond, children, i), nil
			}
		}
	}

	// No child condition matched: pick the child holding the condition marked
	// "default". Only conditions declared on the children are consulted.
	if defaultIdx >= 0 {
		return defaultIdx, nil
	}

	return 0, engine.NewRouterError("no condition matched and no default target configured")
}

func resolveIndex(cond engine.Condition, children []engine.Target, fallback int) int {
	if cond.OriginalIndex > 0 {
		for i, c := range children {
			if c.OriginalIndex == cond.OriginalIndex {
				return i
			}
		}
	}
	if cond.TargetKey != "" {
		for i, c := range children {
			if c.VirtualKey == cond.TargetKey {
				return i
			}
		}
	}
	return fallback
}

// evaluate runs either the legacy Key/Value rule or the dotted-path Query
// expression, whichever is populated on cond.
func evaluate(cond engine.Condition, env map[string]any, metadata, params map[string]any) (bool, error) {
	if cond.Query != "" && cond.Query != "default" {
		return evalQuery(cond.Query, env)
	}
	switch cond.Key {
	case "":
		return false, nil
	case "model":
		return fmt.Sprint(params["model"]) == cond.Value, nil
	case "model_prefix":
		return strings.HasPrefix(fmt.Sprint(params["model"]), cond.Value), nil
	default:
		// Legacy rules may also target metadata.<key> or params.<key> directly.
		if v, ok := metadata[cond.Key]; ok {
			return fmt.Sprint(v) == cond.Value, nil
		}
		if v, ok := params[cond.Key]; ok {
			return fmt.Sprint(v) == cond.Value, nil
		}
		return false, nil
	}
}

// evalQuery evaluates a single `<path> <op> <literal>` expression, e.g.
// `metadata.user_tier == "gold"` or `params.model contains "vision"`.
func evalQuery(query string, env map[string]any) (bool, error) {
	query = strings.TrimSpace(query)
	for _, op := range []string{"==", "!=", "contains"} {
		idx := strings.Index(query, " "+op+" ")
		if idx < 0 {
			continue
		}
		path := strings.TrimSpace(query[:idx])
		literal := strings.TrimSpace(query[idx+len(op)+2:])
		value, err := lookupPath(env, path)
		if err != nil {
			return false, err
		}
		lit := unquote(literal)
		switch op {
		case "==":
			return fmt.Sprint(value) == lit, nil
		case "!=":
			return fmt.Sprint(value) != lit, nil
		case "contains":
			return strings.Contains(fmt.Sprint(value), lit), nil
		}
	}
	return false, fmt.Errorf("unsupported condition query: %q", query)
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	if n, err := strconv.Unquote(s); err == nil {
		return n
	}
	return s
}

// lookupPath walks a dotted path (e.g. "metadata.user.tier") through env.
func lookupPath(env map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var cur any = env
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		cur = m[p]
	}
	return cur, nil
}
