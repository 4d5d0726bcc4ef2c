package registry

import (
	"sort"
	"sync"

	"github.com/bdjafer/mew/graphdata"
)

// OnKillPolicy describes what happens to the opposite end of an edge when
// one of its other ends is killed.
type OnKillPolicy int

const (
	OnKillUnlink OnKillPolicy = iota
	OnKillCascade
	OnKillPrevent
)

// EdgeParamDef is one positional parameter of an edge type's signature.
type EdgeParamDef struct {
	Role   string
	TypeID graphdata.TypeID // node type constraint; ignored if IsEdge
	IsEdge bool
	OnKill OnKillPolicy
}

// EdgeTypeDef is a compiled edge type.
type EdgeTypeDef struct {
	ID        graphdata.EdgeTypeID
	Name      string
	Params    []EdgeParamDef
	Attrs     map[graphdata.AttrID]*AttrDef

	Unique    bool
	Symmetric bool
	NoSelf    bool
	Acyclic   bool

	HasMinCard bool
	MinCard    int
	HasMaxCard bool
	MaxCard    int
}

func (d *EdgeTypeDef) Arity() int { return len(d.Params) }

// EdgeTypeRegistry is the immutable repository of edge types.
type EdgeTypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]*EdgeTypeDef
	byID   map[graphdata.EdgeTypeID]*EdgeTypeDef
	nextID graphdata.EdgeTypeID
}

func newEdgeTypeRegistry() *EdgeTypeRegistry {
	return &EdgeTypeRegistry{byName: make(map[string]*EdgeTypeDef), byID: make(map[graphdata.EdgeTypeID]*EdgeTypeDef), nextID: 1}
}

func (er *EdgeTypeRegistry) Declare(name string) *EdgeTypeDef {
	er.mu.Lock()
	defer er.mu.Unlock()

	if existing, ok := er.byName[name]; ok {
		return existing
	}

	ed := &EdgeTypeDef{ID: er.nextID, Name: name, Attrs: make(map[graphdata.AttrID]*AttrDef)}
	er.nextID++
	er.byName[name] = ed
	er.byID[ed.ID] = ed
	return ed
}

func (er *EdgeTypeRegistry) ByName(name string) (*EdgeTypeDef, bool) {
	er.mu.RLock()
	defer er.mu.RUnlock()
	ed, ok := er.byName[name]
	return ed, ok
}

func (er *EdgeTypeRegistry) ByID(id graphdata.EdgeTypeID) (*EdgeTypeDef, bool) {
	er.mu.RLock()
	defer er.mu.RUnlock()
	ed, ok := er.byID[id]
	return ed, ok
}

func (er *EdgeTypeRegistry) All() []*EdgeTypeDef {
	er.mu.RLock()
	defer er.mu.RUnlock()
	out := make([]*EdgeTypeDef, 0, len(er.byID))
	for _, ed := range er.byID {
		out = append(out, ed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (er *EdgeTypeRegistry) clone() *EdgeTypeRegistry {
	er.mu.RLock()
	defer er.mu.RUnlock()

	c := newEdgeTypeRegistry()
	c.nextID = er.nextID
	for name, ed := range er.byName {
		cp := *ed
		cp.Params = append([]EdgeParamDef(nil), ed.Params...)
		cp.Attrs = make(map[graphdata.AttrID]*AttrDef, len(ed.Attrs))
		for k, v := range ed.Attrs {
			cp.Attrs[k] = v
		}
		c.byName[name] = &cp
		c.byID[cp.ID] = &cp
	}
	return c
}
