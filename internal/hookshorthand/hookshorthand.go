// Package hookshorthand implements the Hook Shorthand Expander
// (SPEC_FULL.md §4.2): rewrites compact guardrail/mutator declarations into
// the canonical engine.HookConfig object shape the hook runtime consumes.
//
// Grounded in the plugin.Context/Plugin shapes in package plugin: a
// shorthand guardrail expands into the same checks[]-bearing object a
// guardrail plugin would consume via Init(config).
package hookshorthand

import (
	"strings"

	"github.com/ferro-labs/ai-gateway/internal/engine"
	"github.com/google/uuid"
)

// HookType distinguishes a guardrail (assertion) from a mutator (transformer).
type HookType string

const (
	HookTypeGuardrail HookType = "guardrail"
	HookTypeMutator   HookType = "mutator"
)

// Direction distinguishes before-request (input) from after-request (output) hooks.
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// fixedKeys are moved from the shorthand map into the canonical HookConfig
// verbatim; everything else becomes a Check.
var fixedKeys = map[string]struct{}{
	"deny":                 {},
	"on_fail":              {},
	"on_success":           {},
	"async":                {},
	"id":                   {},
	"type":                 {},
	"guardrail_version_id": {},
}

// Expand converts one shorthand guardrail/mutator declaration into the
// canonical engine.HookConfig shape.
func Expand(shorthand map[string]any, direction Direction, hookType HookType) engine.HookConfig {
	src := make(map[string]any, len(shorthand))
	for k, v := range shorthand {
		src[k] = v
	}

	hc := engine.HookConfig{
		Type: string(direction),
	}

	if id, ok := stringField(src, "id"); ok {
		hc.ID = id
	} else {
		hc.ID = generateID(direction)
	}
	delete(src, "id")

	if v, ok := stringField(src, "guardrail_version_id"); ok {
		hc.GuardrailVersionID = v
	}
	delete(src, "guardrail_version_id")

	if v, ok := boolField(src, "deny"); ok {
		hc.Deny = v
	}
	delete(src, "deny")

	if v, ok := boolField(src, "async"); ok {
		hc.Async = v
	}
	delete(src, "async")

	if v, ok := src["on_fail"]; ok {
		hc.OnFail = v
	}
	delete(src, "on_fail")

	if v, ok := src["on_success"]; ok {
		hc.OnSuccess = v
	}
	delete(src, "on_success")

	delete(src, "type") // consumed above into hc.Type

	// Remaining keys become checks[].
	for key, value := range src {
		checkID := key
		if !strings.Contains(key, ".") {
			checkID = "default." + key
		}
		check := engine.Check{ID: checkID, Parameters: toParams(value)}
		if m, ok := value.(map[string]any); ok {
			if enabled, ok := boolField(m, "is_enabled"); ok {
				e := enabled
				check.IsEnabled = &e
			}
		}
		hc.Checks = append(hc.Checks, check)
	}

	_ = hookType // reserved for future hook-type-specific expansion
	return hc
}

// ExpandAll expands a slice of shorthand declarations.
func ExpandAll(shorthands []map[string]any, direction Direction, hookType HookType) []engine.HookConfig {
	out := make([]engine.HookConfig, 0, len(shorthands))
	for _, sh := range shorthands {
		out = append(out, Expand(sh, direction, hookType))
	}
	return out
}

// generateID produces "<type>_guardrail_<rand>" using a uuid-derived random
// suffix rather than a hand-rolled base-36 substring (§4.2 determinism
// note: tests must tolerate id shape, not value).
func generateID(direction Direction) string {
	return string(direction) + "_guardrail_" + uuid.New().String()[:8]
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolField(m map[string]any, key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func toParams(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": value}
}
