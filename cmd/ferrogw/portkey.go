package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	aigateway "github.com/ferro-labs/ai-gateway"
	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/ferro-labs/ai-gateway/internal/errshape"
)

// portkeyHandler adapts one incoming HTTP request into a PortkeyEngine
// ExecuteRequest call: it builds the root Target from the request's
// x-portkey-* headers (internal/configbuilder), walks it, and writes the
// mapped Response back verbatim, honoring the gateway-exception header
// contract of SPEC_FULL.md §7.
//
// endpoint is the logical provider path (e.g. "/chat/completions"), derived
// from the request path with the "/v1/portkey" prefix stripped.
func portkeyHandler(engineImpl *aigateway.PortkeyEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		endpoint := strings.TrimPrefix(r.URL.Path, "/v1/portkey")
		if endpoint == "" {
			endpoint = "/"
		}

		reqHeaders := make(map[string]string, len(r.Header))
		for k := range r.Header {
			reqHeaders[strings.ToLower(k)] = r.Header.Get(k)
		}

		rawBody, err := io.ReadAll(r.Body)
		if err != nil {
			writeEngineResponse(w, errshape.Shape(engine.NewGatewayError(err.Error())))
			return
		}

		var body any = rawBody
		if len(rawBody) > 0 {
			var decoded map[string]any
			if json.Unmarshal(rawBody, &decoded) == nil {
				body = decoded
			}
		}

		resp, err := engineImpl.ExecuteRequest(r.Context(), reqHeaders, body, endpoint, r.Method)
		if err != nil {
			writeEngineResponse(w, errshape.Shape(err))
			return
		}
		writeEngineResponse(w, resp)
	}
}

// writeEngineResponse copies an internal/engine.Response onto the HTTP
// response verbatim, including the x-portkey-gateway-exception sentinel
// header when IsGatewayException is set.
func writeEngineResponse(w http.ResponseWriter, resp *engine.Response) {
	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}
