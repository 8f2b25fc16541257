package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shivanishrees/malscan/internal/domain/analysis"
)

// Registry is a name-keyed directory of analysis providers. Reads are
// lock-free against an immutable snapshot; registration swaps a new
// snapshot under a writer mutex. Registration is a startup-time concern,
// steady-state request handling only reads.
type Registry struct {
	mu       sync.Mutex
	snapshot atomic.Value // holds snapshot
}

type snapshot struct {
	byName  map[string]analysis.Module
	ordered []analysis.Module
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	r.snapshot.Store(snapshot{byName: map[string]analysis.Module{}})
	return r
}

func (r *Registry) load() snapshot {
	return r.snapshot.Load().(snapshot)
}

// Register admits a provider. Nil providers, empty names, and duplicate
// names violate the module contract.
func (r *Registry) Register(m analysis.Module) error {
	if m == nil {
		return fmt.Errorf("%w: nil module", analysis.ErrContractViolation)
	}
	name := m.Name()
	if name == "" {
		return fmt.Errorf("%w: module name is empty", analysis.ErrContractViolation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	if _, exists := cur.byName[name]; exists {
		return fmt.Errorf("%w: module %q already registered", analysis.ErrContractViolation, name)
	}
	r.snapshot.Store(cur.with(name, m))
	return nil
}

// Unregister removes a provider by name. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	if _, exists := cur.byName[name]; !exists {
		return
	}
	r.snapshot.Store(cur.without(name))
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (analysis.Module, bool) {
	m, ok := r.load().byName[name]
	return m, ok
}

// All returns the providers in registration order.
func (r *Registry) All() []analysis.Module {
	cur := r.load()
	out := make([]analysis.Module, len(cur.ordered))
	copy(out, cur.ordered)
	return out
}

// Names returns the sorted set of registered provider names.
func (r *Registry) Names() []string {
	cur := r.load()
	names := make([]string, 0, len(cur.byName))
	for n := range cur.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s snapshot) with(name string, m analysis.Module) snapshot {
	next := snapshot{
		byName:  make(map[string]analysis.Module, len(s.byName)+1),
		ordered: make([]analysis.Module, len(s.ordered), len(s.ordered)+1),
	}
	for k, v := range s.byName {
		next.byName[k] = v
	}
	copy(next.ordered, s.ordered)
	next.byName[name] = m
	next.ordered = append(next.ordered, m)
	return next
}

func (s snapshot) without(name string) snapshot {
	next := snapshot{
		byName:  make(map[string]analysis.Module, len(s.byName)),
		ordered: make([]analysis.Module, 0, len(s.ordered)),
	}
	for k, v := range s.byName {
		if k != name {
			next.byName[k] = v
		}
	}
	for _, m := range s.ordered {
		if m.Name() != name {
			next.ordered = append(next.ordered, m)
		}
	}
	return next
}
