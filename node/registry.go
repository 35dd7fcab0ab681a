package node

import (
	"fmt"
	"sync"
)

// Registry is the mutable shared store of live nodes. All mutation and
// enumeration goes through its lock; it is injected into every component
// that adds or removes nodes rather than reached through a global.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

// Add registers a node. Display names are unique; a duplicate is an error.
func (r *Registry) Add(n *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[n.Name()]; ok {
		return fmt.Errorf("node %q already registered", n.Name())
	}
	r.nodes[n.Name()] = n
	return nil
}

// Get returns the node with the given name.
func (r *Registry) Get(name string) (*Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[name]
	return n, ok
}

// Remove deregisters a node. Returns false if it was not registered;
// removal is idempotent.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[name]; !ok {
		return false
	}
	delete(r.nodes, name)
	return true
}

// List returns a snapshot of all registered nodes.
func (r *Registry) List() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		result = append(result, n)
	}
	return result
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
