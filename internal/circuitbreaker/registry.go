package circuitbreaker

import "sync"

// Registry holds one breaker per downstream service. Breakers are
// created lazily on first use.
type Registry struct {
	cfg      Config
	opts     []BreakerOption
	breakers sync.Map // service name -> *Breaker
}

// NewRegistry creates a registry that builds breakers with cfg and opts.
func NewRegistry(cfg Config, opts ...BreakerOption) *Registry {
	return &Registry{cfg: cfg, opts: opts}
}

// GetOrCreate returns the breaker for a service, creating it on first
// use. Concurrent callers for the same service get the same instance.
func (r *Registry) GetOrCreate(service string) (*Breaker, error) {
	if existing, ok := r.breakers.Load(service); ok {
		return existing.(*Breaker), nil
	}

	breaker, err := New(service, r.cfg, r.opts...)
	if err != nil {
		return nil, err
	}

	actual, _ := r.breakers.LoadOrStore(service, breaker)
	return actual.(*Breaker), nil
}

// Get returns the breaker for a service if it exists.
func (r *Registry) Get(service string) (*Breaker, bool) {
	if b, ok := r.breakers.Load(service); ok {
		return b.(*Breaker), true
	}
	return nil, false
}

// States returns the current state of every known breaker.
func (r *Registry) States() map[string]State {
	states := make(map[string]State)
	r.breakers.Range(func(key, value interface{}) bool {
		states[key.(string)] = value.(*Breaker).State()
		return true
	})
	return states
}
