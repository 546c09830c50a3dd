package oracle

import (
	"strings"
	"sync"
)

// Registry is the set of outcome ids known to the exchange. Lookups are
// case-insensitive. A nil registry means "accept everything"; the matching
// engine treats it as tolerantly optional.
type Registry struct {
	mu       sync.RWMutex
	outcomes map[string]struct{}
}

// NewRegistry creates an empty outcome registry
func NewRegistry() *Registry {
	return &Registry{outcomes: make(map[string]struct{})}
}

// Register adds one outcome id.
func (r *Registry) Register(outcomeID string) {
	key := strings.ToLower(strings.TrimSpace(outcomeID))
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[key] = struct{}{}
}

// RegisterBinaryMarket registers both legs of a binary market,
// "<baseId>-yes" and "<baseId>-no".
func (r *Registry) RegisterBinaryMarket(baseID string) {
	base := strings.TrimSpace(baseID)
	if base == "" {
		return
	}
	r.Register(base + "-yes")
	r.Register(base + "-no")
}

// IsRegistered reports whether an outcome id is known.
func (r *Registry) IsRegistered(outcomeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.outcomes[strings.ToLower(strings.TrimSpace(outcomeID))]
	return ok
}
