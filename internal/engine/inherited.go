package engine

import "time"

// InheritedConfig is the snapshot of downward-flowing configuration threaded
// through the target resolver's recursive walk (SPEC_FULL.md §3).
//
// Preference goes to the current node: maps merge shallowly with
// current-wins, list-valued fields replace entirely when set on the current
// node (otherwise inherit), and Retry/Cache are replaced atomically, never
// merged field-by-field.
type InheritedConfig struct {
	ID                      string
	OverrideParams          map[string]any
	Retry                   *RetryConfig
	Cache                   *CacheConfig
	RequestTimeout          time.Duration
	DefaultInputGuardrails  []map[string]any
	DefaultOutputGuardrails []map[string]any
	StrictOpenAiCompliance  bool
	ForwardHeaders          []string
	CustomHost              string
	BeforeRequestHooks      []HookConfig
	AfterRequestHooks       []HookConfig
}

// Merge produces the InheritedConfig seen by target's children (and by
// target itself if it is a leaf), applying "preference to current node"
// over the parent's inherited snapshot.
func (parent InheritedConfig) Merge(target Target) InheritedConfig {
	out := parent

	if target.ID != "" {
		out.ID = target.ID
	}

	if len(target.OverrideParams) > 0 {
		if out.OverrideParams == nil {
			out.OverrideParams = make(map[string]any, len(target.OverrideParams))
		} else {
			merged := make(map[string]any, len(out.OverrideParams)+len(target.OverrideParams))
			for k, v := range out.OverrideParams {
				merged[k] = v
			}
			out.OverrideParams = merged
		}
		for k, v := range target.OverrideParams {
			out.OverrideParams[k] = v // current wins
		}
	}

	if target.Retry != nil {
		out.Retry = target.Retry // atomic replace, never merged
	}
	if target.Cache != nil {
		out.Cache = target.Cache // atomic replace, never merged
	}
	if target.RequestTimeout != 0 {
		out.RequestTimeout = target.RequestTimeout
	}
	if len(target.DefaultInputGuardrails) > 0 {
		out.DefaultInputGuardrails = target.DefaultInputGuardrails
	}
	if len(target.DefaultOutputGuardrails) > 0 {
		out.DefaultOutputGuardrails = target.DefaultOutputGuardrails
	}
	if target.StrictOpenAiCompliance {
		out.StrictOpenAiCompliance = true
	}
	if len(target.ForwardHeaders) > 0 {
		out.ForwardHeaders = target.ForwardHeaders
	}
	if target.CustomHost != "" {
		out.CustomHost = target.CustomHost
	}
	if len(target.BeforeRequestHooks) > 0 {
		out.BeforeRequestHooks = target.BeforeRequestHooks
	}
	if len(target.AfterRequestHooks) > 0 {
		out.AfterRequestHooks = target.AfterRequestHooks
	}

	return out
}

// ApplyTo copies inherited list-valued fields onto target when target has
// not already set them itself, so downstream leaf processing sees them as
// ordinary leaf fields (SPEC_FULL.md §4.4 step 2).
func (inherited InheritedConfig) ApplyTo(target *Target) {
	if target.Retry == nil {
		target.Retry = inherited.Retry
	}
	if target.Cache == nil {
		target.Cache = inherited.Cache
	}
	if target.RequestTimeout == 0 {
		target.RequestTimeout = inherited.RequestTimeout
	}
	if len(target.ForwardHeaders) == 0 {
		target.ForwardHeaders = inherited.ForwardHeaders
	}
	if target.CustomHost == "" {
		target.CustomHost = inherited.CustomHost
	}
	if len(target.BeforeRequestHooks) == 0 {
		target.BeforeRequestHooks = inherited.BeforeRequestHooks
	}
	if len(target.AfterRequestHooks) == 0 {
		target.AfterRequestHooks = inherited.AfterRequestHooks
	}
	if !target.StrictOpenAiCompliance {
		target.StrictOpenAiCompliance = inherited.StrictOpenAiCompliance
	}
	if len(target.OverrideParams) == 0 && len(inherited.OverrideParams) > 0 {
		target.OverrideParams = inherited.OverrideParams
	}
}
