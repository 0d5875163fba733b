package strategies

import (
	"fmt"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// TreeSingle always recurses into the first child (SPEC_FULL.md §4.5).
type TreeSingle struct{}

func (TreeSingle) Execute(tctx TreeContext, children []engine.Target, inherited engine.InheritedConfig, jsonPath string) (*engine.Response, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("single strategy requires at least one target")
	}
	child := children[0]
	path := fmt.Sprintf("%s.targets[%d]", jsonPath, child.OriginalIndex)
	return tctx.Recurse(tctx.Ctx, child, tctx.Body, tctx.Headers, tctx.Endpoint, tctx.Method, path, inherited)
}
