// Package configbuilder implements the Config Builder (SPEC_FULL.md §4.1):
// turns a gateway request's headers (and, when present, its x-portkey-config
// JSON header) into a root engine.Target the resolver can walk.
//
// Grounded in config_load.go's YAML/JSON target decoding and providers/*.go's
// per-provider field names, promoted here into
// engine.AzureConfig/AwsConfig/VertexConfig.
package configbuilder

import (
	"encoding/json"
	"fmt"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	headerConfig   = "x-portkey-config"
	headerProvider = "x-portkey-provider"
	headerAuth     = "authorization"
)

// Build constructs a root Target from the gateway request's headers,
// following SPEC_FULL.md §4.1:
//
//  1. baseConfig carries the two default-guardrail headers, read before
//     anything else so they can be merged into the config-header object
//     whether or not that object already declares its own.
//  2. when x-portkey-config is present, it is parsed as the root object;
//     when it lacks both "provider" and "targets" it is treated as a bare
//     leaf and enriched with provider/apiKey/provider-specific fields from
//     the individual per-provider headers.
//  3. when x-portkey-config is absent, a leaf object is built entirely from
//     the individual headers.
//  4. the resulting object is camelCase-normalized (excluding the pinned
//     key list) and decoded into an engine.Target.
func Build(h map[string]string) (engine.Target, error) {
	h = lowerKeys(h)

	baseInputGuardrails := parseJSONOrNil(h["x-portkey-default-input-guardrails"])
	baseOutputGuardrails := parseJSONOrNil(h["x-portkey-default-output-guardrails"])

	var obj map[string]any

	if raw, ok := h[headerConfig]; ok && raw != "" {
		if !gjson.Valid(raw) {
			return engine.Target{}, engine.NewRouterError("invalid x-portkey-config header: not valid JSON")
		}

		// gjson.Get walks the raw header without a full unmarshal just to
		// decide whether this is a bare leaf, the same way config_load.go
		// probes its YAML tree before fully decoding it.
		isBareLeaf := !gjson.Get(raw, "provider").Exists() && !gjson.Get(raw, "targets").Exists()
		if isBareLeaf {
			raw = applyLeafEnrichment(raw, h)
		}
		if baseInputGuardrails != nil {
			if patched, err := sjson.Set(raw, "default_input_guardrails", baseInputGuardrails); err == nil {
				raw = patched
			}
		}
		if baseOutputGuardrails != nil {
			if patched, err := sjson.Set(raw, "default_output_guardrails", baseOutputGuardrails); err == nil {
				raw = patched
			}
		}

		parsed, err := parseJSONObject(raw)
		if err != nil {
			return engine.Target{}, engine.NewRouterError(fmt.Sprintf("invalid x-portkey-config header: %v", err))
		}
		obj = parsed
	} else {
		obj = map[string]any{}
		enrichLeaf(obj, h)
		if baseInputGuardrails != nil {
			obj["default_input_guardrails"] = baseInputGuardrails
		}
		if baseOutputGuardrails != nil {
			obj["default_output_guardrails"] = baseOutputGuardrails
		}
	}

	camel, ok := convertKeysToCamelCase(obj).(map[string]any)
	if !ok {
		return engine.Target{}, engine.NewRouterError("malformed config object")
	}

	return ToTarget(camel), nil
}

// applyLeafEnrichment sets provider/apiKey/provider-specific fields directly
// into the raw x-portkey-config JSON string via sjson, preserving every
// other key (and its casing) byte-for-byte.
func applyLeafEnrichment(raw string, h map[string]string) string {
	obj := map[string]any{}
	enrichLeaf(obj, h)
	for k, v := range obj {
		if patched, err := sjson.Set(raw, k, v); err == nil {
			raw = patched
		}
	}
	return raw
}

// enrichLeaf populates provider, apiKey and the provider-specific header
// family directly onto obj, mutating it in place (§4.1 step 2/3).
func enrichLeaf(obj map[string]any, h map[string]string) {
	if provider, ok := h[headerProvider]; ok && provider != "" {
		obj["provider"] = provider
		for k, v := range enrichFromHeaders(provider, h) {
			obj[k] = v
		}
	}
	if auth, ok := h[headerAuth]; ok && auth != "" {
		obj["api_key"] = stripBearer(auth)
	}
	if vk, ok := h["x-portkey-virtual-key"]; ok && vk != "" {
		obj["virtual_key"] = vk
	}
}

func lowerKeys(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[toLowerASCII(k)] = v
	}
	return out
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func parseJSONObject(raw string) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// parseJSONOrNil parses raw as arbitrary JSON, returning nil on empty input
// or a parse error rather than propagating it — default-guardrail headers
// are best-effort per SPEC_FULL.md §4.1.
func parseJSONOrNil(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return v
}
