package configbuilder

import "strings"

// excludedKeys are the pinned exclusion list from SPEC_FULL.md §4.1 step 2:
// these keys (and everything nested beneath them) retain their
// originally-authored casing when the rest of the object is converted to
// camelCase. Both snake_case and camelCase spellings are listed because a
// key can reach convertKeysToCamelCase already in either form, depending on
// whether it came from the x-portkey-config JSON body (often snake_case) or
// from the individual per-provider headers (already camelCase).
var excludedKeys = map[string]struct{}{
	"override_params":             {},
	"overrideParams":              {},
	"params":                      {},
	"checks":                      {},
	"vertex_service_account_json": {},
	"vertexServiceAccountJson":    {},
	"conditions":                  {},
	"input_guardrails":            {},
	"inputGuardrails":             {},
	"output_guardrails":           {},
	"outputGuardrails":            {},
	"default_input_guardrails":    {},
	"defaultInputGuardrails":      {},
	"default_output_guardrails":   {},
	"defaultOutputGuardrails":     {},
	"integrationModelDetails":     {},
	"cb_config":                   {},
	"cbConfig":                    {},
}

// convertKeysToCamelCase recursively rewrites map keys to camelCase, except
// keys named in excludedKeys (and everything nested under them, which is
// copied verbatim so inner-key casing survives too).
func convertKeysToCamelCase(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			if _, excluded := excludedKeys[k]; excluded {
				out[k] = vv
				continue
			}
			out[toCamelCase(k)] = convertKeysToCamelCase(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = convertKeysToCamelCase(vv)
		}
		return out
	default:
		return v
	}
}

// toCamelCase converts a snake_case (or already-camelCase) string to
// camelCase. Strings with no underscore pass through unchanged.
func toCamelCase(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// kebabCase converts a camelCase field name to kebab-case, used to derive
// the x-portkey- header name for provider-specific fields
// (internal/configbuilder/headers.go): "resourceName" -> "resource-name".
func kebabCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
