package strategies

import (
	"fmt"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// TreeFallback iterates children in order, stopping at the first response
// that satisfies shouldStop (SPEC_FULL.md §4.5).
type TreeFallback struct{}

func (TreeFallback) Execute(tctx TreeContext, children []engine.Target, inherited engine.InheritedConfig, jsonPath string) (*engine.Response, error) {
	var last *engine.Response
	produced := false

	for _, child := range children {
		path := fmt.Sprintf("%s.targets[%d]", jsonPath, child.OriginalIndex)
		resp, err := tctx.Recurse(tctx.Ctx, child, tctx.Body, tctx.Headers, tctx.Endpoint, tctx.Method, path, inherited)
		if err != nil {
			return nil, err
		}
		produced = true
		last = resp
		if shouldStop(resp, child.Strategy) {
			return resp, nil
		}
	}

	if !produced {
		return nil, engine.NewGatewayError("All fallback attempts failed")
	}
	return last, nil
}

// shouldStop implements the fallback-stopping predicate exactly as specified:
//
//	(onStatusCodes is set AND resp.status is NOT in onStatusCodes)
//	OR (no onStatusCodes set AND resp.ok)
//	OR (resp carries the gateway-exception header)
func shouldStop(resp *engine.Response, childStrategy *engine.StrategyConfig) bool {
	if resp == nil {
		return false
	}
	if resp.IsGatewayException() {
		return true
	}
	var onStatusCodes []int
	if childStrategy != nil {
		onStatusCodes = childStrategy.OnStatusCodes
	}
	if len(onStatusCodes) > 0 {
		for _, code := range onStatusCodes {
			if resp.Status == code {
				return false
			}
		}
		return true
	}
	return resp.Ok()
}
