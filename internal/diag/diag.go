// Package diag implements a minimal named-component registry, modeled
// on internal/util/diag.Diagnostics as used throughout the retrieved
// cdc-sink source (e.g. ProvideTargetStatements registering a
// statement cache by name, fixture.CreateDLQTable relying on it having
// already run). chronovar.New registers the System's ledger and
// variable registry here so a caller can enumerate and inspect them by
// name without each package exposing its own discovery mechanism.
package diag

import (
	"fmt"
	"sync"
)

// Diagnostics is a concurrency-safe name -> component registry.
type Diagnostics struct {
	mu    sync.Mutex
	named map[string]any
}

// New constructs an empty Diagnostics registry.
func New() *Diagnostics {
	return &Diagnostics{named: make(map[string]any)}
}

// Register associates name with v. It returns an error if name is
// already registered, mirroring diag.Diagnostics' refusal to silently
// shadow an existing registration.
func (d *Diagnostics) Register(name string, v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.named[name]; ok {
		return fmt.Errorf("diag: %q already registered", name)
	}
	d.named[name] = v
	return nil
}

// Get returns the component registered under name, if any.
func (d *Diagnostics) Get(name string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.named[name]
	return v, ok
}

// Names returns the names of every registered component.
func (d *Diagnostics) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.named))
	for name := range d.named {
		out = append(out, name)
	}
	return out
}
