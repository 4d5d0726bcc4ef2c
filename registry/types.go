package registry

import (
	"sort"
	"sync"

	"github.com/bdjafer/mew/graphdata"
)

// AttrDef is a compiled attribute definition.
type AttrDef struct {
	ID         graphdata.AttrID
	Name       string
	Kind       ValueKind
	Required   bool
	Unique     bool
	Indexed    bool
	HasMin     bool
	Min        float64
	HasMax     bool
	Max        float64
	Enum       []string
	Pattern    string
	HasMaxLen  bool
	MaxLen     int
	DeclaredOn string // type or edge type this attribute is declared on (own, not inherited)
}

// ValueKind mirrors ast.ValueKind without importing ast from registry, so
// attribute definitions can be compared without pulling in the statement
// AST package.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTimestamp
	KindAny
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindAny:
		return "any"
	}
	return "null"
}

// TypeDef is a compiled node type.
type TypeDef struct {
	ID       graphdata.TypeID
	Name     string
	Abstract bool
	Parents  []graphdata.TypeID

	// OwnAttrs are attributes declared directly on this type.
	OwnAttrs map[graphdata.AttrID]*AttrDef

	// precomputed transitive closures, filled in by finalize()
	allParents  map[graphdata.TypeID]bool
	allSubtypes map[graphdata.TypeID]bool
	allAttrs    map[graphdata.AttrID]*AttrDef // own + inherited
}

// TypeRegistry is the immutable, post-compilation repository of node
// types.
type TypeRegistry struct {
	mu      sync.RWMutex
	byName  map[string]*TypeDef
	byID    map[graphdata.TypeID]*TypeDef
	nextID  graphdata.TypeID
}

func newTypeRegistry() *TypeRegistry {
	return &TypeRegistry{byName: make(map[string]*TypeDef), byID: make(map[graphdata.TypeID]*TypeDef), nextID: 1}
}

// Declare registers a new type. Redeclaring an existing name is not an
// error: the existing TypeDef is returned unchanged (abstract and
// parentNames are ignored), so existing declarations are never altered
// or removed.
func (tr *TypeRegistry) Declare(name string, abstract bool, parentNames []string) *TypeDef {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if existing, ok := tr.byName[name]; ok {
		return existing
	}

	var parents []graphdata.TypeID
	for _, p := range parentNames {
		if pd, ok := tr.byName[p]; ok {
			parents = append(parents, pd.ID)
		}
	}

	td := &TypeDef{
		ID:       tr.nextID,
		Name:     name,
		Abstract: abstract,
		Parents:  parents,
		OwnAttrs: make(map[graphdata.AttrID]*AttrDef),
	}
	tr.nextID++
	tr.byName[name] = td
	tr.byID[td.ID] = td
	return td
}

func (tr *TypeRegistry) ByName(name string) (*TypeDef, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	td, ok := tr.byName[name]
	return td, ok
}

func (tr *TypeRegistry) ByID(id graphdata.TypeID) (*TypeDef, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	td, ok := tr.byID[id]
	return td, ok
}

// All returns all declared types (for SHOW TYPES).
func (tr *TypeRegistry) All() []*TypeDef {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make([]*TypeDef, 0, len(tr.byID))
	for _, td := range tr.byID {
		out = append(out, td)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsSubtype reports whether sub is sub.Equal(parent) or transitively
// inherits from parent.
func (tr *TypeRegistry) IsSubtype(sub, parent graphdata.TypeID) bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	if sub == parent {
		return true
	}
	td, ok := tr.byID[sub]
	if !ok {
		return false
	}
	return td.allParents[parent]
}

// Subtypes returns the transitive subtype set of a type, including itself.
func (tr *TypeRegistry) Subtypes(id graphdata.TypeID) map[graphdata.TypeID]bool {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	td, ok := tr.byID[id]
	if !ok {
		return nil
	}
	out := make(map[graphdata.TypeID]bool, len(td.allSubtypes)+1)
	out[id] = true
	for k := range td.allSubtypes {
		out[k] = true
	}
	return out
}

// AllAttrs returns the flat list of own + inherited attributes.
func (tr *TypeRegistry) AllAttrs(id graphdata.TypeID) map[graphdata.AttrID]*AttrDef {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	td, ok := tr.byID[id]
	if !ok {
		return nil
	}
	return td.allAttrs
}

// finalize precomputes transitive parent/subtype sets and flattened
// attribute lists. Called once by the compiler after all Declare calls.
func (tr *TypeRegistry) Finalize() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for _, td := range tr.byID {
		td.allParents = make(map[graphdata.TypeID]bool)
		tr.collectParents(td, td.allParents)
	}
	for _, td := range tr.byID {
		td.allSubtypes = make(map[graphdata.TypeID]bool)
	}
	for _, td := range tr.byID {
		for p := range td.allParents {
			if parent, ok := tr.byID[p]; ok {
				parent.allSubtypes[td.ID] = true
			}
		}
	}
	for _, td := range tr.byID {
		td.allAttrs = make(map[graphdata.AttrID]*AttrDef)
		tr.collectAttrs(td, td.allAttrs, make(map[graphdata.TypeID]bool))
	}
}

func (tr *TypeRegistry) collectParents(td *TypeDef, out map[graphdata.TypeID]bool) {
	for _, p := range td.Parents {
		if out[p] {
			continue
		}
		out[p] = true
		if pd, ok := tr.byID[p]; ok {
			tr.collectParents(pd, out)
		}
	}
}

func (tr *TypeRegistry) collectAttrs(td *TypeDef, out map[graphdata.AttrID]*AttrDef, seen map[graphdata.TypeID]bool) {
	if seen[td.ID] {
		return
	}
	seen[td.ID] = true
	for _, p := range td.Parents {
		if pd, ok := tr.byID[p]; ok {
			tr.collectAttrs(pd, out, seen)
		}
	}
	for id, def := range td.OwnAttrs {
		out[id] = def
	}
}

func (tr *TypeRegistry) clone() *TypeRegistry {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	c := newTypeRegistry()
	c.nextID = tr.nextID
	for name, td := range tr.byName {
		cp := *td
		cp.OwnAttrs = make(map[graphdata.AttrID]*AttrDef, len(td.OwnAttrs))
		for k, v := range td.OwnAttrs {
			cp.OwnAttrs[k] = v
		}
		cp.Parents = append([]graphdata.TypeID(nil), td.Parents...)
		c.byName[name] = &cp
		c.byID[cp.ID] = &cp
	}
	c.Finalize()
	return c
}
