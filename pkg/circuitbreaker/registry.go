package circuitbreaker

import "sync"

// Registry manages circuit breakers keyed by resource. Breakers are
// created lazily on first access.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates a registry with the given default config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

// Get returns the breaker for a key, creating one if needed.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, exists := r.breakers[key]
	r.mu.RUnlock()
	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, exists = r.breakers[key]; exists {
		return b
	}
	b = New(r.config)
	r.breakers[key] = b
	return b
}

// Stats holds registry statistics.
type Stats struct {
	Total int // total breakers
	Open  int // breakers currently open
}

// Stats returns statistics about the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Total: len(r.breakers)}
	for _, b := range r.breakers {
		if b.State() == Open {
			stats.Open++
		}
	}
	return stats
}
