package graphdata

// Edge is a live edge record: id, type id, targets (arity-many), typed
// attributes, version, and a deleted flag. Targets may reference nodes
// or, for higher-order edges, other edges.
type Edge struct {
	ID      EdgeID
	TypeID  EdgeTypeID
	Targets []Ref
	Attrs   map[AttrID]Value
	Version uint64
	Deleted bool
}

// NewEdge creates an empty edge of the given type and arity.
func NewEdge(id EdgeID, typeID EdgeTypeID, targets []Ref) *Edge {
	return &Edge{ID: id, TypeID: typeID, Targets: targets, Attrs: make(map[AttrID]Value)}
}

// Clone returns a deep copy suitable for buffering a tentative mutation.
func (e *Edge) Clone() *Edge {
	cp := &Edge{ID: e.ID, TypeID: e.TypeID, Version: e.Version, Deleted: e.Deleted,
		Targets: append([]Ref(nil), e.Targets...),
		Attrs:   make(map[AttrID]Value, len(e.Attrs))}
	for k, v := range e.Attrs {
		cp.Attrs[k] = v
	}
	return cp
}

func (e *Edge) Attr(id AttrID) Value {
	if v, ok := e.Attrs[id]; ok {
		return v
	}
	return Null
}

func (e *Edge) SetAttr(id AttrID, v Value) {
	if v.IsNull() {
		delete(e.Attrs, id)
	} else {
		e.Attrs[id] = v
	}
}

// HasTargetID reports whether any target position equals the given node id.
func (e *Edge) HasTargetID(n NodeID) bool {
	for _, t := range e.Targets {
		if !t.IsEdge && t.Node == n {
			return true
		}
	}
	return false
}

// HigherOrder reports whether any target is itself an edge.
func (e *Edge) HigherOrder() bool {
	for _, t := range e.Targets {
		if t.IsEdge {
			return true
		}
	}
	return false
}
