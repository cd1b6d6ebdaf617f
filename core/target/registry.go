package target

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func is a target a worker can run. The returned value must be JSON-encodable.
type Func func(ctx context.Context, call Call) (any, error)

// Registry maps target names to Funcs. Worker processes are the same
// executable as the parent, so both sides see the same registrations as long
// as they happen at init time.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]Func
}

func New() *Registry {
	return &Registry{targets: map[string]Func{}}
}

// Default is the registry used by the package-level helpers.
var Default = New()

// Register adds or replaces a target under a given name.
func (r *Registry) Register(name string, fn Func) {
	if name == "" || fn == nil {
		panic("target: Register requires a name and a func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[name] = fn
}

// Lookup returns a target by name or an error if missing.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.targets[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("target %q not registered", name)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns the registered target names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.targets))
	for name := range r.targets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Register adds fn to the Default registry.
func Register(name string, fn Func) {
	Default.Register(name, fn)
}
