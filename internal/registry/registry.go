// Package registry implements spec.md's variable registry (component
// C3): an identity map from (type, name) to a single variable
// instance, scope-bounded by the Registry value's own lifetime. It
// mirrors the teacher's wire_gen.go constructors: a small struct
// holding a mutex-guarded map, built with a plain constructor rather
// than a DI container (google/wire is dropped per SPEC_FULL.md §4 —
// there is nothing here for a dependency-injection graph to wire).
package registry

import (
	"fmt"
	"sync"

	"github.com/chronovar/chronovar/internal/archivist"
	"github.com/chronovar/chronovar/internal/variable"
	"github.com/chronovar/chronovar/slice"
)

// Handle is the non-generic face every Variable[T] presents to the
// registry and, through it, to the engine's convergence check (spec.md
// §4.10), which must compare tails and timeline length across
// variables of differing element types without reflection.
type Handle interface {
	ID() uint64
	Key() variable.Key
	CaptureTail() any
	TailEqualsCaptured(captured any) bool
	TimelineLen() int
}

// Registry is an identity map of live variables, scoped to whatever
// owns it (typically one Engine run, see chronovartest.Fixture). It
// also keeps one type-erased finalize closure per variable so the
// engine's final pass (spec.md §4.10, "unify-all variables whose
// timelines have length > 1") can call the generic
// internal/archivist.UnifyAll without the registry ever needing a
// generic method of its own.
type Registry struct {
	mu         sync.Mutex
	byKey      map[variable.Key]Handle
	finalizers []func(a *archivist.Archivist)
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{byKey: make(map[variable.Key]Handle)}
}

func typeName[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}

// GetOrCreate returns the existing variable named name of type T,
// constructing one seeded with bootstrap if none exists yet. The key
// includes the element type, so the same name used with a different
// element type yields a separate, independent variable.
func GetOrCreate[T comparable](r *Registry, name string, bootstrap slice.Slice[T]) *variable.Variable[T] {
	key := variable.Key{Type: typeName[T](), Name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		v, ok := existing.(*variable.Variable[T])
		if !ok {
			panic(fmt.Sprintf("registry: variable %q already registered with a different element type", name))
		}
		return v
	}

	v := variable.New(key, bootstrap)
	r.byKey[key] = v
	r.finalizers = append(r.finalizers, func(a *archivist.Archivist) {
		archivist.UnifyAll(a, v)
	})
	return v
}

// Lookup returns the variable named name of type T, if registered.
func Lookup[T comparable](r *Registry, name string) (*variable.Variable[T], bool) {
	key := variable.Key{Type: typeName[T](), Name: name}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	v, ok := existing.(*variable.Variable[T])
	return v, ok
}

// All returns every registered variable's Handle, in no particular
// order, for use by the engine's convergence check and the reversal
// passes that must touch every variable.
func (r *Registry) All() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, len(r.byKey))
	for _, h := range r.byKey {
		out = append(out, h)
	}
	return out
}

// Len returns the number of registered variables.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

// FinalizeAll unifies the timeline of every registered variable whose
// length is still greater than one, the terminal step of spec.md
// §4.10 once the convergence loop has ended, whether by convergence or
// by exhausting the iteration budget.
func (r *Registry) FinalizeAll(a *archivist.Archivist) {
	r.mu.Lock()
	fs := make([]func(a *archivist.Archivist), len(r.finalizers))
	copy(fs, r.finalizers)
	r.mu.Unlock()
	for _, f := range fs {
		f(a)
	}
}
