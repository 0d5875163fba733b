package engine

import "net/http"

// GatewayExceptionHeader is the sentinel response header the fallback
// strategy and the front end use to recognize a core-emitted failure
// response, as opposed to an upstream provider's own error status
// (SPEC_FULL.md §6).
const GatewayExceptionHeader = "x-portkey-gateway-exception"

// Response is the generic, provider-agnostic result of a leaf call or a
// strategy execution: a status code, headers, and a body. It is distinct
// from providers.Response (the OpenAI-shaped chat completion used by the
// flat Gateway.Route handler) — the routing engine only needs to inspect
// status and headers to make fallback/retry decisions; the body is opaque
// bytes the caller ultimately emits.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	// JSON is the parsed body when the content was JSON and a synchronous
	// after-hook needed to inspect it; nil otherwise (§4.7 step 2).
	JSON map[string]any
}

// Ok reports whether the response represents a successful HTTP status.
func (r *Response) Ok() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// IsGatewayException reports whether the response carries the gateway's own
// failure marker header, as opposed to an upstream status code.
func (r *Response) IsGatewayException() bool {
	if r == nil || r.Headers == nil {
		return false
	}
	return r.Headers.Get(GatewayExceptionHeader) == "true"
}

// HeaderValue returns a header by case-insensitive name, or "" if unset or r is nil.
func (r *Response) HeaderValue(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// NewResponse builds a Response, initializing Headers if nil.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Headers: make(http.Header), Body: body}
}

// WithGatewayException marks the response with the gateway-exception header.
func (r *Response) WithGatewayException() *Response {
	if r.Headers == nil {
		r.Headers = make(http.Header)
	}
	r.Headers.Set(GatewayExceptionHeader, "true")
	return r
}
