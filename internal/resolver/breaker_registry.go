package resolver

import (
	"sync"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/circuitbreaker"
	"github.com/ferro-labs/ai-gateway/internal/engine"
)

// BreakerRegistry hands out one *circuitbreaker.CircuitBreaker per key:
// one breaker per resolver-tree node keyed by id (SPEC_FULL.md §4.9).
// Safe for concurrent use.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*circuitbreaker.CircuitBreaker
}

// NewBreakerRegistry builds an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*circuitbreaker.CircuitBreaker)}
}

// Get returns the breaker for key, creating it from cfg on first use. A nil
// cfg gets circuitbreaker.New's defaults.
func (reg *BreakerRegistry) Get(key string, cfg *engine.CircuitBreakerConfig) *circuitbreaker.CircuitBreaker {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if cb, ok := reg.breakers[key]; ok {
		return cb
	}

	var failureThreshold, successThreshold int
	var timeout time.Duration
	if cfg != nil {
		failureThreshold = cfg.FailureThreshold
		successThreshold = cfg.SuccessThreshold
		if d, err := time.ParseDuration(cfg.Timeout); err == nil {
			timeout = d
		}
	}
	cb := circuitbreaker.New(failureThreshold, successThreshold, timeout)
	reg.breakers[key] = cb
	return cb
}
