package store

import (
	"github.com/google/btree"

	"github.com/bdjafer/mew/graphdata"
)

// attrIndexKey identifies one declared [indexed]/[unique] attribute index:
// "(type_id, attr_id, value) -> set<node_id>".
type attrIndexKey struct {
	Type graphdata.TypeID
	Attr graphdata.AttrID
}

// attrIndexItem is one entry of an attribute index's ordered btree,
// supporting both equality and range scans over google/btree's ordered
// map structure.
type attrIndexItem struct {
	Value graphdata.Value
	ID    graphdata.NodeID
}

func (a attrIndexItem) Less(than btree.Item) bool {
	b := than.(attrIndexItem)
	if a.Value.Less(b.Value) {
		return true
	}
	if b.Value.Less(a.Value) {
		return false
	}
	return a.ID < b.ID
}

// attrIndex wraps a btree with the declared uniqueness flag.
type attrIndex struct {
	tree   *btree.BTree
	unique bool
}

func newAttrIndex(unique bool) *attrIndex {
	return &attrIndex{tree: btree.New(32), unique: unique}
}

func (ix *attrIndex) insert(v graphdata.Value, id graphdata.NodeID) {
	ix.tree.ReplaceOrInsert(attrIndexItem{Value: v, ID: id})
}

func (ix *attrIndex) remove(v graphdata.Value, id graphdata.NodeID) {
	ix.tree.Delete(attrIndexItem{Value: v, ID: id})
}

// equalMatches returns every node id indexed under exactly v.
func (ix *attrIndex) equalMatches(v graphdata.Value) []graphdata.NodeID {
	var out []graphdata.NodeID
	pivot := attrIndexItem{Value: v, ID: ""}
	ix.tree.AscendGreaterOrEqual(pivot, func(item btree.Item) bool {
		cur := item.(attrIndexItem)
		if !cur.Value.Equal(v) {
			return false
		}
		out = append(out, cur.ID)
		return true
	})
	return out
}

// rangeMatches returns node ids whose indexed value v satisfies
// lo <= v <= hi (either bound may be the zero Value with its bool flag
// unset to signal "unbounded").
func (ix *attrIndex) rangeMatches(lo graphdata.Value, hasLo bool, hi graphdata.Value, hasHi bool) []graphdata.NodeID {
	var out []graphdata.NodeID
	visit := func(item btree.Item) bool {
		cur := item.(attrIndexItem)
		if hasHi && hi.Less(cur.Value) {
			return false
		}
		out = append(out, cur.ID)
		return true
	}
	if hasLo {
		ix.tree.AscendGreaterOrEqual(attrIndexItem{Value: lo, ID: ""}, visit)
	} else {
		ix.tree.Ascend(visit)
	}
	return out
}

// typeIndex maps a node type (and, by the caller resolving subtypes via
// the TypeRegistry, its subtypes) to the set of live node ids of that
// exact type.
type typeIndex map[graphdata.TypeID]map[graphdata.NodeID]bool

func (ti typeIndex) add(t graphdata.TypeID, id graphdata.NodeID) {
	set, ok := ti[t]
	if !ok {
		set = make(map[graphdata.NodeID]bool)
		ti[t] = set
	}
	set[id] = true
}

func (ti typeIndex) remove(t graphdata.TypeID, id graphdata.NodeID) {
	if set, ok := ti[t]; ok {
		delete(set, id)
	}
}

// edgeTargetIndex maps "(edge_type_id, position, node_id) -> set<edge_id>",
// supporting "edges of type T whose position p is X".
type edgeTargetKey struct {
	Type graphdata.EdgeTypeID
	Pos  int
	Ref  graphdata.Ref
}

type edgeTargetIndex map[edgeTargetKey]map[graphdata.EdgeID]bool

func (ei edgeTargetIndex) add(k edgeTargetKey, id graphdata.EdgeID) {
	set, ok := ei[k]
	if !ok {
		set = make(map[graphdata.EdgeID]bool)
		ei[k] = set
	}
	set[id] = true
}

func (ei edgeTargetIndex) remove(k edgeTargetKey, id graphdata.EdgeID) {
	if set, ok := ei[k]; ok {
		delete(set, id)
	}
}

// adjacency maps a node id to outbound/inbound edges bucketed by edge type.
type adjacencyEntry struct {
	Outbound map[graphdata.EdgeTypeID]map[graphdata.EdgeID]bool
	Inbound  map[graphdata.EdgeTypeID]map[graphdata.EdgeID]bool
}

func newAdjacencyEntry() *adjacencyEntry {
	return &adjacencyEntry{
		Outbound: make(map[graphdata.EdgeTypeID]map[graphdata.EdgeID]bool),
		Inbound:  make(map[graphdata.EdgeTypeID]map[graphdata.EdgeID]bool),
	}
}

func addBucket(m map[graphdata.EdgeTypeID]map[graphdata.EdgeID]bool, t graphdata.EdgeTypeID, id graphdata.EdgeID) {
	set, ok := m[t]
	if !ok {
		set = make(map[graphdata.EdgeID]bool)
		m[t] = set
	}
	set[id] = true
}

func removeBucket(m map[graphdata.EdgeTypeID]map[graphdata.EdgeID]bool, t graphdata.EdgeTypeID, id graphdata.EdgeID) {
	if set, ok := m[t]; ok {
		delete(set, id)
	}
}

// higherOrderIndex maps "edge_id -> set<edge_id>" listing edges whose
// targets include this edge, for cascade on UNLINK.
type higherOrderIndex map[graphdata.EdgeID]map[graphdata.EdgeID]bool

func (hi higherOrderIndex) add(target, referrer graphdata.EdgeID) {
	set, ok := hi[target]
	if !ok {
		set = make(map[graphdata.EdgeID]bool)
		hi[target] = set
	}
	set[referrer] = true
}

func (hi higherOrderIndex) remove(target, referrer graphdata.EdgeID) {
	if set, ok := hi[target]; ok {
		delete(set, referrer)
	}
}
