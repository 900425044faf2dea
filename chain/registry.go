package chain

import "sync"

// Registry remembers which provider last served each capability. It is
// process-wide observability state and is never used to reorder a chain.
type Registry struct {
	mu   sync.Mutex
	last map[string]string
}

func NewRegistry() *Registry {
	return &Registry{last: make(map[string]string)}
}

func (r *Registry) Record(capability, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[capability] = provider
}

func (r *Registry) Last(capability string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.last[capability]
	return p, ok
}

// Snapshot copies the current winners
func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.last))
	for k, v := range r.last {
		out[k] = v
	}
	return out
}
