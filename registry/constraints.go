package registry

import (
	"sort"
	"sync"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
)

// ConstraintDef is a compiled constraint: a pattern, a condition, whether
// it is immediate or deferred, and the precomputed set of types/edge
// types that could possibly invalidate it.
type ConstraintDef struct {
	Name       string
	Pattern    *ast.Pattern
	Cond       ast.Expr
	Deferred   bool
	Soft       bool
	Message    string
	Declared   int // declaration order, for deterministic tie-breaking

	AffectedTypes     map[graphdata.TypeID]bool
	AffectedEdgeTypes map[graphdata.EdgeTypeID]bool
}

// ConstraintRegistry is the immutable repository of constraints.
type ConstraintRegistry struct {
	mu    sync.RWMutex
	byName map[string]*ConstraintDef
	order  []string
}

func newConstraintRegistry() *ConstraintRegistry {
	return &ConstraintRegistry{byName: make(map[string]*ConstraintDef)}
}

func (cr *ConstraintRegistry) Add(def *ConstraintDef) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if _, ok := cr.byName[def.Name]; ok {
		return
	}
	def.Declared = len(cr.order)
	cr.byName[def.Name] = def
	cr.order = append(cr.order, def.Name)
}

func (cr *ConstraintRegistry) ByName(name string) (*ConstraintDef, bool) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	d, ok := cr.byName[name]
	return d, ok
}

// All returns constraints in declaration order.
func (cr *ConstraintRegistry) All() []*ConstraintDef {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	out := make([]*ConstraintDef, 0, len(cr.order))
	for _, n := range cr.order {
		out = append(out, cr.byName[n])
	}
	return out
}

// AffectedByType returns constraints whose affected-types set includes
// the given node type, skipping constraints the mutation could not have
// invalidated.
func (cr *ConstraintRegistry) AffectedByType(t graphdata.TypeID) []*ConstraintDef {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	var out []*ConstraintDef
	for _, n := range cr.order {
		d := cr.byName[n]
		if d.AffectedTypes[t] {
			out = append(out, d)
		}
	}
	return out
}

// AffectedByEdgeType returns constraints whose affected-types set includes
// the given edge type.
func (cr *ConstraintRegistry) AffectedByEdgeType(t graphdata.EdgeTypeID) []*ConstraintDef {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	var out []*ConstraintDef
	for _, n := range cr.order {
		d := cr.byName[n]
		if d.AffectedEdgeTypes[t] {
			out = append(out, d)
		}
	}
	return out
}

func (cr *ConstraintRegistry) clone() *ConstraintRegistry {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	c := newConstraintRegistry()
	c.order = append([]string(nil), cr.order...)
	for k, v := range cr.byName {
		cp := *v
		c.byName[k] = &cp
	}
	return c
}

// sortedNames returns the constraint names in sorted order. SHOW
// CONSTRAINTS does not use it; it lists All() instead.
func (cr *ConstraintRegistry) sortedNames() []string {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	out := append([]string(nil), cr.order...)
	sort.Strings(out)
	return out
}
