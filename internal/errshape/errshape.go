// Package errshape converts thrown errors into a uniform failure
// engine.Response, implementing the four-case table of SPEC_FULL.md §4.10.
package errshape

import (
	"encoding/json"
	"strconv"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/metrics"
)

// Shape converts err into the Response the core should emit at the point
// an uncaught error reaches the target resolver or the request processor.
// *engine.RouterError is the one case callers should check for and
// propagate unchanged before reaching Shape; Shape treats any RouterError
// passed to it the same way (400, no gateway-exception header) so it is
// still safe to call uniformly.
func Shape(err error) *engine.Response {
	switch e := err.(type) {
	case *engine.RouterError:
		return routerErrorResponse(e)
	case *engine.HooksDeniedError:
		return hooksDeniedResponse(e)
	case *engine.GatewayError:
		return uncaughtResponse(e.Message)
	default:
		return uncaughtResponse("Something went wrong")
	}
}

func uncaughtResponse(message string) *engine.Response {
	body, _ := json.Marshal(map[string]any{
		"status":  "failure",
		"message": message,
	})
	resp := engine.NewResponse(500, body)
	resp.WithGatewayException()
	metrics.GatewayExceptionsTotal.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
	return resp
}

func routerErrorResponse(e *engine.RouterError) *engine.Response {
	body, _ := json.Marshal(map[string]any{
		"status":  "failure",
		"message": e.Message,
	})
	return engine.NewResponse(400, body)
}

func hooksDeniedResponse(e *engine.HooksDeniedError) *engine.Response {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"message": "The guardrail checks defined in the config failed. You can find more information in the `hook_results` object.",
			"type":    "hooks_failed",
			"param":   nil,
			"code":    nil,
		},
		"hook_results": map[string]any{
			"before_request_hooks": e.Results,
			"after_request_hooks":  []engine.HookResult{},
		},
	})
	resp := engine.NewResponse(446, body)
	resp.WithGatewayException()
	metrics.GatewayExceptionsTotal.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
	metrics.HookDenialsTotal.WithLabelValues().Inc()
	return resp
}

// NoProviderSelected is the GatewayError surfaced when load-balance weights
// sum to zero (SPEC_FULL.md §8 S3).
func NoProviderSelected() *engine.GatewayError {
	return engine.NewGatewayError("No provider selected, please check the weights")
}
