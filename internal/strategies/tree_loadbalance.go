package strategies

import (
	"fmt"
	"math/rand"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/errshape"
)

// TreeLoadBalance draws a single child with probability proportional to its
// weight (default 1) and recurses only into that child (SPEC_FULL.md §4.5).
type TreeLoadBalance struct {
	// Rand, if set, is used instead of the package-level math/rand source.
	// Tests inject a seeded source for deterministic draws.
	Rand *rand.Rand
}

func (s TreeLoadBalance) Execute(tctx TreeContext, children []engine.Target, inherited engine.InheritedConfig, jsonPath string) (*engine.Response, error) {
	total := 0.0
	weights := make([]float64, len(children))
	for i, c := range children {
		w := 1.0
		if c.Weight != nil {
			w = *c.Weight
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return nil, errshape.NoProviderSelected()
	}

	var draw float64
	if s.Rand != nil {
		draw = s.Rand.Float64() * total
	} else {
		draw = rand.Float64() * total //nolint:gosec
	}

	cumulative := 0.0
	selected := len(children) - 1
	for i, w := range weights {
		cumulative += w
		if draw < cumulative {
			selected = i
			break
		}
	}

	child := children[selected]
	path := fmt.Sprintf("%s.targets[%d]", jsonPath, child.OriginalIndex)
	return tctx.Recurse(tctx.Ctx, child, tctx.Body, tctx.Headers, tctx.Endpoint, tctx.Method, path, inherited)
}
