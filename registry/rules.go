package registry

import (
	"sort"
	"sync"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
)

// RuleDef is a compiled rule: pattern, production (ordered action list),
// priority and affected-types set.
type RuleDef struct {
	Name       string
	Auto       bool
	Priority   int
	Pattern    *ast.Pattern
	Production []ast.Action
	Declared   int

	AffectedTypes     map[graphdata.TypeID]bool
	AffectedEdgeTypes map[graphdata.EdgeTypeID]bool
}

// RuleRegistry is the immutable repository of rules.
type RuleRegistry struct {
	mu     sync.RWMutex
	byName map[string]*RuleDef
	order  []string

	// autoSorted caches the auto rules sorted stably by descending
	// priority then declaration order, rebuilt on Add.
	autoSorted []*RuleDef
}

func newRuleRegistry() *RuleRegistry {
	return &RuleRegistry{byName: make(map[string]*RuleDef)}
}

func (rr *RuleRegistry) Add(def *RuleDef) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if _, ok := rr.byName[def.Name]; ok {
		return
	}
	def.Declared = len(rr.order)
	rr.byName[def.Name] = def
	rr.order = append(rr.order, def.Name)
	rr.rebuildAutoSorted()
}

func (rr *RuleRegistry) rebuildAutoSorted() {
	var autos []*RuleDef
	for _, n := range rr.order {
		d := rr.byName[n]
		if d.Auto {
			autos = append(autos, d)
		}
	}
	sort.SliceStable(autos, func(i, j int) bool {
		if autos[i].Priority != autos[j].Priority {
			return autos[i].Priority > autos[j].Priority
		}
		return autos[i].Declared < autos[j].Declared
	})
	rr.autoSorted = autos
}

func (rr *RuleRegistry) ByName(name string) (*RuleDef, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	d, ok := rr.byName[name]
	return d, ok
}

// AutoRules returns the auto rules sorted stably by descending priority,
// then declaration order.
func (rr *RuleRegistry) AutoRules() []*RuleDef {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return append([]*RuleDef(nil), rr.autoSorted...)
}

// AutoRulesAffecting returns auto rules whose affected-types set
// intersects the given node type, preserving the priority/declaration
// order.
func (rr *RuleRegistry) AutoRulesAffecting(t graphdata.TypeID) []*RuleDef {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	var out []*RuleDef
	for _, d := range rr.autoSorted {
		if d.AffectedTypes[t] {
			out = append(out, d)
		}
	}
	return out
}

// AutoRulesAffectingEdge returns auto rules whose affected-types set
// intersects the given edge type.
func (rr *RuleRegistry) AutoRulesAffectingEdge(t graphdata.EdgeTypeID) []*RuleDef {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	var out []*RuleDef
	for _, d := range rr.autoSorted {
		if d.AffectedEdgeTypes[t] {
			out = append(out, d)
		}
	}
	return out
}

func (rr *RuleRegistry) All() []*RuleDef {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	out := make([]*RuleDef, 0, len(rr.order))
	for _, n := range rr.order {
		out = append(out, rr.byName[n])
	}
	return out
}

func (rr *RuleRegistry) clone() *RuleRegistry {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	c := newRuleRegistry()
	c.order = append([]string(nil), rr.order...)
	for k, v := range rr.byName {
		cp := *v
		c.byName[k] = &cp
	}
	c.rebuildAutoSorted()
	return c
}
