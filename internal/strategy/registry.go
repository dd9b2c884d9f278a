package strategy

import (
	"fmt"
	"sort"
	"sync"

	"upbit-quant-bot/internal/models"
)

// Factory builds a strategy instance from its configuration.
type Factory func(cfg models.StrategyConfig) Strategy

// Registry maps strategy names to factories. Registration is explicit: the
// process builds one registry at startup instead of relying on package init
// side effects, which keeps tests free to build their own.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with all built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("sma_cross", func(cfg models.StrategyConfig) Strategy { return NewSMACross(cfg) })
	r.Register("macd_trend", func(cfg models.StrategyConfig) Strategy { return NewMACDTrend(cfg) })
	r.Register("momentum", func(cfg models.StrategyConfig) Strategy { return NewMomentum(cfg) })
	r.Register("goldcross_rsi", func(cfg models.StrategyConfig) Strategy { return NewGoldCrossRSI(cfg) })
	return r
}

// Register adds or replaces a factory under the given name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create builds a strategy by name. Unknown names are an error listing the
// registered alternatives.
func (r *Registry) Create(name string, cfg models.StrategyConfig) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q, registered: %v", name, r.Names())
	}
	return f(cfg), nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
