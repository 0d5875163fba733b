package strategies

import (
	"fmt"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// TreeConditional parses x-portkey-metadata and the request body, delegates
// selection to the external Conditional Router, and recurses only into the
// selected child (SPEC_FULL.md §4.5). Any router error is wrapped/propagated
// as a *engine.RouterError so the resolver re-raises it unchanged.
type TreeConditional struct {
	Router ConditionalRouter
}

func (s TreeConditional) Execute(tctx TreeContext, children []engine.Target, inherited engine.InheritedConfig, jsonPath string) (*engine.Response, error) {
	metadata := parseMetadataHeader(tctx.Headers)
	params := paramsFromBody(tctx.Body)

	index, err := s.Router.Route(children, metadata, params)
	if err != nil {
		if _, ok := err.(*engine.RouterError); ok {
			return nil, err
		}
		return nil, engine.NewRouterError(err.Error())
	}
	if index < 0 || index >= len(children) {
		return nil, engine.NewRouterError(fmt.Sprintf("conditional router selected out-of-range index %d", index))
	}

	child := children[index]
	path := fmt.Sprintf("%s.targets[%d]", jsonPath, child.OriginalIndex)
	return tctx.Recurse(tctx.Ctx, child, tctx.Body, tctx.Headers, tctx.Endpoint, tctx.Method, path, inherited)
}

func parseMetadataHeader(headers map[string]string) map[string]any {
	raw := headerLookup(headers, "x-portkey-metadata")
	return parseJSONObjectOrEmpty(raw)
}

// paramsFromBody returns the parsed JSON body as params, or an empty map
// when the body is not JSON (FormData/ReadableStream/ArrayBuffer in the
// original request framing, or simply raw bytes here).
func paramsFromBody(body any) map[string]any {
	switch v := body.(type) {
	case map[string]any:
		return v
	case []byte:
		return parseJSONObjectOrEmpty(string(v))
	case string:
		return parseJSONObjectOrEmpty(v)
	default:
		return map[string]any{}
	}
}

func headerLookup(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if equalFoldASCII(k, name) {
			return v
		}
	}
	return ""
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
