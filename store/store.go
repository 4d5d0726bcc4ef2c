package store

import (
	"sort"
	"sync"

	"github.com/bdjafer/mew/graphdata"
)

// Store is the authoritative, indexed graph state. It owns the committed
// nodes/edges and every index over them. A single RWMutex guards the
// committed critical section: the lock here only ever guards the moment
// indexes are mutated rather than a whole transaction's lifetime. There
// is no per-entity locking or conflict detection between concurrent
// transactions; package txn only keeps Serializable transactions apart,
// behind one Manager-wide lock.
type Store struct {
	mu sync.RWMutex

	nodes map[graphdata.NodeID]*graphdata.Node
	edges map[graphdata.EdgeID]*graphdata.Edge

	byType   typeIndex
	byTarget edgeTargetIndex
	adj      map[graphdata.NodeID]*adjacencyEntry
	higher   higherOrderIndex

	attrIdx map[attrIndexKey]*attrIndex
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		nodes:    make(map[graphdata.NodeID]*graphdata.Node),
		edges:    make(map[graphdata.EdgeID]*graphdata.Edge),
		byType:   make(typeIndex),
		byTarget: make(edgeTargetIndex),
		adj:      make(map[graphdata.NodeID]*adjacencyEntry),
		higher:   make(higherOrderIndex),
		attrIdx:  make(map[attrIndexKey]*attrIndex),
	}
}

// DeclareAttrIndex registers an [indexed] or [unique] attribute index, to
// be populated as matching nodes are inserted. Safe to call before any
// data exists.
func (s *Store) DeclareAttrIndex(t graphdata.TypeID, a graphdata.AttrID, unique bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attrIndexKey{Type: t, Attr: a}
	if _, ok := s.attrIdx[key]; ok {
		return
	}
	ix := newAttrIndex(unique)
	for id := range s.byType[t] {
		if n, ok := s.nodes[id]; ok {
			if v := n.Attr(a); !v.IsNull() {
				ix.insert(v, id)
			}
		}
	}
	s.attrIdx[key] = ix
}

// HasAttrIndex reports whether an index exists for (type, attr).
func (s *Store) HasAttrIndex(t graphdata.TypeID, a graphdata.AttrID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.attrIdx[attrIndexKey{Type: t, Attr: a}]
	return ok
}

// AttrIndexInfo describes one declared attribute index, for SHOW INDEXES.
type AttrIndexInfo struct {
	Type   graphdata.TypeID
	Attr   graphdata.AttrID
	Unique bool
}

// ListAttrIndexes returns every declared attribute index, in no
// particular order; callers sort if they need determinism.
func (s *Store) ListAttrIndexes() []AttrIndexInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AttrIndexInfo, 0, len(s.attrIdx))
	for k, ix := range s.attrIdx {
		out = append(out, AttrIndexInfo{Type: k.Type, Attr: k.Attr, Unique: ix.unique})
	}
	return out
}

// DropAttrIndex removes a previously declared attribute index. A no-op
// if no such index exists.
func (s *Store) DropAttrIndex(t graphdata.TypeID, a graphdata.AttrID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrIdx, attrIndexKey{Type: t, Attr: a})
}

// GetNode resolves a node id, checking buf for read-your-writes first,
// so a transaction always sees its own prior writes.
func (s *Store) GetNode(buf *Buffer, id graphdata.NodeID) (*graphdata.Node, bool) {
	if buf != nil {
		if e, ok := buf.Nodes[id]; ok {
			if e.Deleted {
				return nil, false
			}
			return e.Node, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	return n, ok
}

// GetEdge resolves an edge id through buf then committed state.
func (s *Store) GetEdge(buf *Buffer, id graphdata.EdgeID) (*graphdata.Edge, bool) {
	if buf != nil {
		if e, ok := buf.Edges[id]; ok {
			if e.Deleted {
				return nil, false
			}
			return e.Edge, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	return e, ok
}

// NodesOfTypes returns every live node whose type id is in types (the
// caller resolves subtype expansion via registry.TypeRegistry.Subtypes
// before calling, since a type match includes subtypes), merged with
// buf's tentative inserts/updates/deletes.
func (s *Store) NodesOfTypes(buf *Buffer, types map[graphdata.TypeID]bool) []*graphdata.Node {
	s.mu.RLock()
	out := make(map[graphdata.NodeID]*graphdata.Node)
	for t := range types {
		for id := range s.byType[t] {
			out[id] = s.nodes[id]
		}
	}
	s.mu.RUnlock()

	if buf != nil {
		for id, e := range buf.Nodes {
			if e.Deleted {
				delete(out, id)
				continue
			}
			if types[e.Node.TypeID] {
				out[id] = e.Node
			} else {
				delete(out, id)
			}
		}
	}

	result := make([]*graphdata.Node, 0, len(out))
	for _, n := range out {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// EdgesByTarget returns edges of edge type t whose position pos is ref,
// merged with buf.
func (s *Store) EdgesByTarget(buf *Buffer, t graphdata.EdgeTypeID, pos int, ref graphdata.Ref) []*graphdata.Edge {
	key := edgeTargetKey{Type: t, Pos: pos, Ref: ref}

	s.mu.RLock()
	out := make(map[graphdata.EdgeID]*graphdata.Edge)
	for id := range s.byTarget[key] {
		out[id] = s.edges[id]
	}
	s.mu.RUnlock()

	if buf != nil {
		for id, e := range buf.Edges {
			if e.Deleted {
				delete(out, id)
				continue
			}
			if pos < len(e.Edge.Targets) && e.Edge.Targets[pos].Equal(ref) && e.Edge.TypeID == t {
				out[id] = e.Edge
			} else if existed := out[id]; existed != nil {
				delete(out, id)
			}
		}
	}

	result := make([]*graphdata.Edge, 0, len(out))
	for _, e := range out {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// EdgesOfTypes returns every live edge whose type id is in types, merged
// with buf. This is the type-scan fallback the Planner picks when no
// target position of a pattern's edge is bound to a concrete entity —
// the least-preferred access path, used only when no index-resolvable
// predicate exists.
func (s *Store) EdgesOfTypes(buf *Buffer, types map[graphdata.EdgeTypeID]bool) []*graphdata.Edge {
	s.mu.RLock()
	out := make(map[graphdata.EdgeID]*graphdata.Edge)
	for id, e := range s.edges {
		if types == nil || types[e.TypeID] {
			out[id] = e
		}
	}
	s.mu.RUnlock()

	if buf != nil {
		for id, e := range buf.Edges {
			if e.Deleted {
				delete(out, id)
				continue
			}
			if types == nil || types[e.Edge.TypeID] {
				out[id] = e.Edge
			} else {
				delete(out, id)
			}
		}
	}

	result := make([]*graphdata.Edge, 0, len(out))
	for _, e := range out {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Direction selects outbound or inbound adjacency traversal.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// Adjacent returns the edges of type t incident on node id in direction
// dir, merged with buf. If types is nil, all edge types are returned.
func (s *Store) Adjacent(buf *Buffer, id graphdata.NodeID, types map[graphdata.EdgeTypeID]bool, dir Direction) []*graphdata.Edge {
	s.mu.RLock()
	out := make(map[graphdata.EdgeID]*graphdata.Edge)
	if entry, ok := s.adj[id]; ok {
		buckets := entry.Outbound
		if dir == Inbound {
			buckets = entry.Inbound
		}
		for et, set := range buckets {
			if types != nil && !types[et] {
				continue
			}
			for eid := range set {
				out[eid] = s.edges[eid]
			}
		}
	}
	s.mu.RUnlock()

	if buf != nil {
		ref := graphdata.NodeRef(id)
		for eid, e := range buf.Edges {
			if e.Deleted {
				delete(out, eid)
				continue
			}
			if types != nil && !types[e.Edge.TypeID] {
				continue
			}
			pos := -1
			for i, tgt := range e.Edge.Targets {
				if tgt.Equal(ref) {
					pos = i
					break
				}
			}
			if pos < 0 {
				continue
			}
			if dir == Outbound && pos == 0 {
				out[eid] = e.Edge
			} else if dir == Inbound && pos > 0 {
				out[eid] = e.Edge
			}
		}
	}

	result := make([]*graphdata.Edge, 0, len(out))
	for _, e := range out {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// HigherOrderReferrers returns edges that target edgeID as one of their
// own targets, used for cascade on UNLINK of a base edge.
func (s *Store) HigherOrderReferrers(buf *Buffer, edgeID graphdata.EdgeID) []graphdata.EdgeID {
	s.mu.RLock()
	out := make(map[graphdata.EdgeID]bool)
	for id := range s.higher[edgeID] {
		out[id] = true
	}
	s.mu.RUnlock()

	if buf != nil {
		ref := graphdata.EdgeRef(edgeID)
		for id, e := range buf.Edges {
			if e.Deleted {
				delete(out, id)
				continue
			}
			for _, t := range e.Edge.Targets {
				if t.Equal(ref) {
					out[id] = true
					break
				}
			}
		}
	}

	result := make([]graphdata.EdgeID, 0, len(out))
	for id := range out {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// AttrEquals returns node ids whose indexed attribute (t, a) equals v,
// or nil if no such index was declared (caller should fall back to a
// full scan via NodesOfTypes in that case).
func (s *Store) AttrEquals(t graphdata.TypeID, a graphdata.AttrID, v graphdata.Value) ([]graphdata.NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.attrIdx[attrIndexKey{Type: t, Attr: a}]
	if !ok {
		return nil, false
	}
	return ix.equalMatches(v), true
}

// AttrRange returns node ids whose indexed attribute (t, a) falls in
// [lo, hi] (bounds optional), or ok=false if no such index exists.
func (s *Store) AttrRange(t graphdata.TypeID, a graphdata.AttrID, lo graphdata.Value, hasLo bool, hi graphdata.Value, hasHi bool) ([]graphdata.NodeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ix, ok := s.attrIdx[attrIndexKey{Type: t, Attr: a}]
	if !ok {
		return nil, false
	}
	return ix.rangeMatches(lo, hasLo, hi, hasHi), true
}

// AttrUnique reports whether an attribute index enforces uniqueness, and
// whether v is already claimed by a different node in the committed
// state merged with buf: a buffered node can claim a value before it is
// ever committed, and a buffered delete or re-assignment releases the
// committed claim it shadows.
func (s *Store) AttrUnique(buf *Buffer, t graphdata.TypeID, a graphdata.AttrID, v graphdata.Value, excluding graphdata.NodeID) (claimedBy graphdata.NodeID, claimed bool) {
	if v.IsNull() {
		return "", false
	}
	s.mu.RLock()
	ix, ok := s.attrIdx[attrIndexKey{Type: t, Attr: a}]
	if !ok || !ix.unique {
		s.mu.RUnlock()
		return "", false
	}
	committed := ix.equalMatches(v)
	s.mu.RUnlock()

	for _, id := range committed {
		if id == excluding {
			continue
		}
		if buf != nil {
			if e, staged := buf.Nodes[id]; staged {
				if e.Deleted || e.Node == nil || !e.Node.Attr(a).Equal(v) {
					continue // the claim is released in this transaction
				}
			}
		}
		return id, true
	}

	if buf != nil {
		for id, e := range buf.Nodes {
			if id == excluding || e.Deleted || e.Node == nil {
				continue
			}
			if e.Node.TypeID == t && e.Node.Attr(a).Equal(v) {
				return id, true
			}
		}
	}
	return "", false
}

// Apply commits a transaction buffer into the authoritative store,
// maintaining every index, as a single critical section: index updates
// for the whole transaction are applied atomically. The caller (package
// txn) is responsible for having already validated constraints before
// calling Apply. Apply does no conflict check: buffered entities are
// written over whatever is committed at that moment.
func (s *Store) Apply(buf *Buffer, attrsOf func(graphdata.TypeID) []graphdata.AttrID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range buf.Nodes {
		old, existed := s.nodes[id]
		if existed {
			s.deindexNode(old, attrsOf)
		}
		if e.Deleted {
			delete(s.nodes, id)
			delete(s.adj, id)
			continue
		}
		s.nodes[id] = e.Node
		s.indexNode(e.Node, attrsOf)
	}

	for id, e := range buf.Edges {
		old, existed := s.edges[id]
		if existed {
			s.deindexEdge(old)
		}
		if e.Deleted {
			delete(s.edges, id)
			continue
		}
		s.edges[id] = e.Edge
		s.indexEdge(e.Edge)
	}
}

func (s *Store) indexNode(n *graphdata.Node, attrsOf func(graphdata.TypeID) []graphdata.AttrID) {
	s.byType.add(n.TypeID, n.ID)
	if attrsOf == nil {
		return
	}
	for _, a := range attrsOf(n.TypeID) {
		if ix, ok := s.attrIdx[attrIndexKey{Type: n.TypeID, Attr: a}]; ok {
			if v := n.Attr(a); !v.IsNull() {
				ix.insert(v, n.ID)
			}
		}
	}
}

func (s *Store) deindexNode(n *graphdata.Node, attrsOf func(graphdata.TypeID) []graphdata.AttrID) {
	s.byType.remove(n.TypeID, n.ID)
	if attrsOf == nil {
		return
	}
	for _, a := range attrsOf(n.TypeID) {
		if ix, ok := s.attrIdx[attrIndexKey{Type: n.TypeID, Attr: a}]; ok {
			if v := n.Attr(a); !v.IsNull() {
				ix.remove(v, n.ID)
			}
		}
	}
}

func (s *Store) indexEdge(e *graphdata.Edge) {
	for pos, t := range e.Targets {
		s.byTarget.add(edgeTargetKey{Type: e.TypeID, Pos: pos, Ref: t}, e.ID)
		if t.IsEdge {
			s.higher.add(t.Edge, e.ID)
			continue
		}
		entry, ok := s.adj[t.Node]
		if !ok {
			entry = newAdjacencyEntry()
			s.adj[t.Node] = entry
		}
		if pos == 0 {
			addBucket(entry.Outbound, e.TypeID, e.ID)
		} else {
			addBucket(entry.Inbound, e.TypeID, e.ID)
		}
	}
}

func (s *Store) deindexEdge(e *graphdata.Edge) {
	for pos, t := range e.Targets {
		s.byTarget.remove(edgeTargetKey{Type: e.TypeID, Pos: pos, Ref: t}, e.ID)
		if t.IsEdge {
			s.higher.remove(t.Edge, e.ID)
			continue
		}
		if entry, ok := s.adj[t.Node]; ok {
			if pos == 0 {
				removeBucket(entry.Outbound, e.TypeID, e.ID)
			} else {
				removeBucket(entry.Inbound, e.TypeID, e.ID)
			}
		}
	}
	delete(s.higher, e.ID)
}

// NodeCount and EdgeCount report committed (not buffered) sizes, used by
// SHOW STATS.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}
