/*
 * MEW
 *
 * Package registry holds the four immutable, post-compilation repositories:
 * TypeRegistry, EdgeTypeRegistry, ConstraintRegistry and RuleRegistry,
 * bundled as Registries and swapped atomically on ontology extension.
 */
package registry

import (
	"sync"

	"github.com/bdjafer/mew/graphdata"
)

// names assigns stable small-integer handles to a namespace of strings.
type names struct {
	mu     sync.RWMutex
	byName map[string]int32
	byID   []string
}

func newNames() *names {
	return &names{byName: make(map[string]int32), byID: []string{""}}
}

// intern returns the existing handle for name, or assigns and returns a
// new one. Handles start at 1; 0 is reserved as "unassigned".
func (n *names) intern(name string) int32 {
	n.mu.Lock()
	defer n.mu.Unlock()

	if id, ok := n.byName[name]; ok {
		return id
	}
	n.byID = append(n.byID, name)
	id := int32(len(n.byID) - 1)
	n.byName[name] = id
	return id
}

func (n *names) id(name string) (int32, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.byName[name]
	return id, ok
}

func (n *names) name(id int32) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if id <= 0 || int(id) >= len(n.byID) {
		return "", false
	}
	return n.byID[id], true
}

// clone returns a deep copy, used when publishing an extended registry
// by copy-on-write.
func (n *names) clone() *names {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c := &names{byName: make(map[string]int32, len(n.byName)), byID: append([]string(nil), n.byID...)}
	for k, v := range n.byName {
		c.byName[k] = v
	}
	return c
}

// AttrID resolves an attribute name to its handle, valid across the whole
// registry (attribute handles are shared between node and edge attribute
// definitions per graphdata.AttrID).
func (r *Registries) AttrID(name string) (graphdata.AttrID, bool) {
	id, ok := r.attrNames.id(name)
	return graphdata.AttrID(id), ok
}

// AttrName resolves a handle back to its declared name.
func (r *Registries) AttrName(id graphdata.AttrID) (string, bool) {
	return r.attrNames.name(int32(id))
}

func (r *Registries) internAttr(name string) graphdata.AttrID {
	return graphdata.AttrID(r.attrNames.intern(name))
}

// AttrHandle resolves name to its attribute handle, interning a new one
// if this is the first declaration to use it. Used by package compiler
// while compiling attribute declarations.
func (r *Registries) AttrHandle(name string) graphdata.AttrID {
	return r.internAttr(name)
}
