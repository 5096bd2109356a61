// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"stratlab/internal/domain"
)

// Strategy is the interface that all trading strategies must implement. A
// Strategy is stateless: everything carried between bars lives in State, so
// one instance can serve concurrent simulations.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// WarmupBars returns how many bars the strategy needs before its
	// indicators can produce a decision.
	WarmupBars(p Params) int

	// Prepare validates params and derives the indicator columns the
	// strategy reads in Decide.
	Prepare(bars []domain.Bar, p Params) (*Series, error)

	// Decide emits one signal for the given row.
	Decide(row Row, st *State, p Params) domain.Signal

	// Remember stores whatever the next Decide call needs from this row. It
	// is called after every Decide, including HOLD.
	Remember(row Row, st *State)
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name(). Registering
// the same name twice is an error.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if name == "" {
		return fmt.Errorf("registering strategy: empty name")
	}
	if _, dup := r.strategies[name]; dup {
		return fmt.Errorf("registering strategy: %q already registered", name)
	}
	r.strategies[name] = s
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(s Strategy) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Lookup is Get with an error that wraps domain.ErrUnknownStrategy and names
// the available strategies.
func (r *Registry) Lookup(name string) (Strategy, error) {
	if s, ok := r.Get(name); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q (available: %v)", domain.ErrUnknownStrategy, name, r.List())
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
