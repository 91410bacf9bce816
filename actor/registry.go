// Grounded on original_source/crates/snow-rt/src/actor/registry.rs: a
// name -> PID map plus its reverse index, used both for the process-local
// name registry (spec.md §4.7) and, with a second instance, the global
// registry behind Runtime.RegisterGlobal/Whereis. Neither registry is
// consulted by node.go; both resolve names on the local node only.
package actor

import (
	"fmt"
	"sync"
)

// NameAlreadyRegisteredError is returned by Register when name is already
// bound to a different, still-live process.
type NameAlreadyRegisteredError struct {
	Name        string
	ExistingPID PID
}

func (e *NameAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("actor: name %q already registered to %s", e.Name, e.ExistingPID)
}

type nameRegistry struct {
	mu     sync.RWMutex
	byName map[string]PID
	byPID  map[PID]map[string]struct{}
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{
		byName: make(map[string]PID),
		byPID:  make(map[PID]map[string]struct{}),
	}
}

// Register binds name to pid, failing if name is already taken by a
// different PID (spec.md §4.7: "registering an already-taken name fails").
func (r *nameRegistry) Register(name string, pid PID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok && existing != pid {
		return &NameAlreadyRegisteredError{Name: name, ExistingPID: existing}
	}
	r.byName[name] = pid
	if r.byPID[pid] == nil {
		r.byPID[pid] = make(map[string]struct{})
	}
	r.byPID[pid][name] = struct{}{}
	return nil
}

// Whereis resolves a registered name to its PID.
func (r *nameRegistry) Whereis(name string) (PID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pid, ok := r.byName[name]
	return pid, ok
}

// Unregister removes a single name binding.
func (r *nameRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid, ok := r.byName[name]
	if !ok {
		return
	}
	delete(r.byName, name)
	delete(r.byPID[pid], name)
	if len(r.byPID[pid]) == 0 {
		delete(r.byPID, pid)
	}
}

// unregisterPID removes every name bound to pid — used when a process
// exits (spec.md §4.7: "a registered name is released when its process
// exits").
func (r *nameRegistry) unregisterPID(pid PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.byPID[pid] {
		delete(r.byName, name)
	}
	delete(r.byPID, pid)
}
