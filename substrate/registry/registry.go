// Package registry implements the subsystem name registry: register,
// unregister, get, with the kernel's reserved name special-cased (spec
// §4.9).
package registry

import (
	"fmt"
	"sync"

	"github.com/relaykernel/substrate/substrate/subsystem"
)

// KernelName is the reserved scheme the kernel occupies; no other
// subsystem may register under it.
const KernelName = "kernel"

// DuplicateSubsystemError reports an attempt to register a name already in
// use.
type DuplicateSubsystemError struct{ Name string }

func (e *DuplicateSubsystemError) Error() string {
	return fmt.Sprintf("registry: duplicate subsystem %q", e.Name)
}

// ReservedNameError reports an attempt to register under the kernel's
// reserved name from outside MessageSystem.bootstrap.
type ReservedNameError struct{ Name string }

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("registry: %q is reserved for the kernel", e.Name)
}

// UnknownSubsystemError reports a lookup or unregister against a name with
// no registered subsystem.
type UnknownSubsystemError struct{ Name string }

func (e *UnknownSubsystemError) Error() string {
	return fmt.Sprintf("registry: unknown subsystem %q", e.Name)
}

// Registry is the name -> Subsystem table.
type Registry struct {
	mu         sync.RWMutex
	subsystems map[string]*subsystem.Subsystem
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{subsystems: make(map[string]*subsystem.Subsystem)}
}

// Register installs s under name. Only MessageSystem.bootstrap may pass
// KernelName; all other callers registering that name get
// ReservedNameError.
func (r *Registry) Register(name string, s *subsystem.Subsystem, allowKernel bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == KernelName && !allowKernel {
		return &ReservedNameError{Name: name}
	}
	if _, exists := r.subsystems[name]; exists {
		return &DuplicateSubsystemError{Name: name}
	}
	r.subsystems[name] = s
	return nil
}

// Unregister disposes and removes the subsystem at name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	s, ok := r.subsystems[name]
	if !ok {
		r.mu.Unlock()
		return &UnknownSubsystemError{Name: name}
	}
	delete(r.subsystems, name)
	r.mu.Unlock()
	return s.Dispose()
}

// Get returns the subsystem registered at name, or false.
func (r *Registry) Get(name string) (*subsystem.Subsystem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subsystems[name]
	return s, ok
}

// Names returns every registered subsystem name, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.subsystems))
	for n := range r.subsystems {
		names = append(names, n)
	}
	return names
}
