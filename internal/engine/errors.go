package engine

// GatewayError is the taxonomy's "gateway decided the request cannot
// proceed" kind (SPEC_FULL.md §7): a human-readable message surfaced
// verbatim, as opposed to a generic transport failure.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string { return e.Message }

// NewGatewayError constructs a GatewayError with the given message.
func NewGatewayError(message string) *GatewayError {
	return &GatewayError{Message: message}
}

// RouterError signals that the conditional-routing DSL failed to select a
// target. It propagates unchanged up through the target resolver (unlike
// any other error, which gets converted to a 500 by the Error Shaper) and
// is surfaced as HTTP 400 without the gateway-exception header.
type RouterError struct {
	Message string
}

func (e *RouterError) Error() string { return e.Message }

// NewRouterError constructs a RouterError with the given message.
func NewRouterError(message string) *RouterError {
	return &RouterError{Message: message}
}

// HooksDeniedError signals that the before-request hook runtime voted to
// block the request. It carries the hook results so the Error Shaper can
// build the 446 response body.
type HooksDeniedError struct {
	Message string
	Results []HookResult
}

func (e *HooksDeniedError) Error() string { return e.Message }

// HookResult is one guardrail/mutator's verdict, surfaced in hook_results.
type HookResult struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type,omitempty"`
	Verdict bool   `json:"verdict"`
	Deny    bool   `json:"deny,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
