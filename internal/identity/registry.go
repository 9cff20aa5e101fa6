// Package identity maps participant identities to live connection handles.
//
// The Registry holds two maps that are kept as mutual inverses: identity to
// handle and handle to identity. A binding is created when a connection joins a
// room and removed when that connection closes.
package identity

import (
	"sort"
	"sync"
)

// Displaced describes bindings that a Register call overwrote. The empty
// string is a valid identity and handle, so the flags say what was set.
type Displaced struct {
	// Handle was bound to the registered identity before and is now orphaned.
	Handle          string
	HandleDisplaced bool
	// Identity was bound to the registered handle before.
	Identity          string
	IdentityDisplaced bool
}

// Any reports whether the registration displaced anything.
func (d Displaced) Any() bool {
	return d.HandleDisplaced || d.IdentityDisplaced
}

// Binding is one identity/handle pair.
type Binding struct {
	Identity string `json:"identity"`
	Handle   string `json:"handle"`
}

// Registry is a concurrency-safe bidirectional identity<->handle map.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]string
	byHandle   map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]string),
		byHandle:   make(map[string]string),
	}
}

// Register binds identity to handle, overwriting any previous binding of
// either. It never fails. Reverse entries that would become stale are dropped
// so the two maps stay inverse; the returned Displaced reports what was lost.
func (r *Registry) Register(identity, handle string) Displaced {
	r.mu.Lock()
	defer r.mu.Unlock()

	var d Displaced

	if prev, ok := r.byIdentity[identity]; ok && prev != handle {
		delete(r.byHandle, prev)
		d.Handle = prev
		d.HandleDisplaced = true
	}
	if prev, ok := r.byHandle[handle]; ok && prev != identity {
		delete(r.byIdentity, prev)
		d.Identity = prev
		d.IdentityDisplaced = true
	}

	r.byIdentity[identity] = handle
	r.byHandle[handle] = identity
	return d
}

// ResolveHandle returns the live handle bound to identity.
func (r *Registry) ResolveHandle(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byIdentity[identity]
	return h, ok
}

// ResolveIdentity returns the identity bound to handle.
func (r *Registry) ResolveIdentity(handle string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handle]
	return id, ok
}

// Remove deletes the binding for handle and returns the identity it carried.
// Removing an unknown handle is a no-op.
func (r *Registry) Remove(handle string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHandle[handle]
	if !ok {
		return "", false
	}
	delete(r.byHandle, handle)
	delete(r.byIdentity, id)
	return id, true
}

// Len returns the number of live bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}

// Snapshot returns every binding sorted by identity.
func (r *Registry) Snapshot() []Binding {
	r.mu.RLock()
	out := make([]Binding, 0, len(r.byIdentity))
	for id, h := range r.byIdentity {
		out = append(out, Binding{Identity: id, Handle: h})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}
