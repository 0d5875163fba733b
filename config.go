package aigateway

import (
	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// Config holds the configuration for the AI Gateway.
//
// Targets is kept flat for backward compatibility with config files
// predating the tree model; Tree builds the recursive Target the routing
// engine actually walks (see RootFromFlat).
type Config struct {
	// Strategy defines how requests are routed (e.g., single, fallback, loadbalance).
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	// Targets is a list of provider targets to route requests to.
	Targets []Target `json:"targets" yaml:"targets"`
	// Plugins configuration (optional).
	Plugins []PluginConfig `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	// Aliases maps a client-facing model name to the model name actually sent upstream.
	Aliases map[string]string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Tree builds the recursive Target the routing engine walks, rooted at a
// synthetic strategy node wrapping the flat target list.
//
// Flat config files predate the tree model and key provider lookup and
// circuit-breaker state on VirtualKey alone; the tree resolver keys both on
// Provider/ID instead, so each target is backfilled here before the walk:
// Provider defaults to VirtualKey, and ID defaults to VirtualKey whenever a
// target carries CBConfig (so internal/resolver.BreakerRegistry gets one
// breaker per virtual key, matching the flat router's old per-virtual-key
// scheme).
func (c Config) Tree() Target {
	targets := make([]Target, len(c.Targets))
	for i, t := range c.Targets {
		if t.Provider == "" {
			t.Provider = t.VirtualKey
		}
		if t.CBConfig != nil && t.ID == "" {
			t.ID = t.VirtualKey
		}
		targets[i] = t
	}
	return RootFromFlat(c.Strategy, targets)
}

// RootFromFlat builds a single-level Target tree from a strategy and a flat
// target list, the shape every config file predating the tree model used.
func RootFromFlat(strategy StrategyConfig, targets []Target) Target {
	return engine.RootFromFlat(strategy, targets)
}

// The routing-tree data model (Target, StrategyConfig, HookConfig, ...) is
// defined in internal/engine so that internal/strategies, internal/resolver,
// and internal/processor can all depend on it without importing this
// package (which itself depends on internal/strategies), avoiding an import
// cycle. These aliases keep the original public API surface unchanged.
type (
	StrategyMode         = engine.StrategyMode
	StrategyConfig       = engine.StrategyConfig
	Condition            = engine.Condition
	RetryConfig          = engine.RetryConfig
	CacheConfig          = engine.CacheConfig
	CircuitBreakerConfig = engine.CircuitBreakerConfig
	Check                = engine.Check
	HookConfig           = engine.HookConfig
	Target               = engine.Target
	AzureConfig          = engine.AzureConfig
	AwsConfig            = engine.AwsConfig
	VertexConfig         = engine.VertexConfig
)

// StrategyMode constants define the supported routing strategies.
const (
	ModeSingle      = engine.ModeSingle
	ModeFallback    = engine.ModeFallback
	ModeLoadBalance = engine.ModeLoadBalance
	ModeConditional = engine.ModeConditional
)

// PluginConfig holds plugin configuration.
type PluginConfig struct {
	Name    string                 `json:"name" yaml:"name"`
	Type    string                 `json:"type" yaml:"type"`
	Stage   string                 `json:"stage" yaml:"stage"`
	Enabled bool                   `json:"enabled" yaml:"enabled"`
	Config  map[string]interface{} `json:"config" yaml:"config"`
}
