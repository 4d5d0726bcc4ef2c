package store

import "github.com/bdjafer/mew/graphdata"

// Buffer holds a transaction's tentative changes until commit: discarded
// on rollback, merged into the store atomically on commit. Savepoints
// record the length of an ordered log so ROLLBACK TO can
// undo exactly the operations since the savepoint, in order, rather than
// only by map size.
type Buffer struct {
	Nodes map[graphdata.NodeID]*bufNodeEntry
	Edges map[graphdata.EdgeID]*bufEdgeEntry

	// log records operations in order so savepoints can be rolled back
	// precisely even when the same entity is touched multiple times.
	log []bufOp
}

type bufNodeEntry struct {
	Node    *graphdata.Node // nil means deleted
	Deleted bool
}

type bufEdgeEntry struct {
	Edge    *graphdata.Edge
	Deleted bool
}

type bufOpKind int

const (
	opNode bufOpKind = iota
	opEdge
)

type bufOp struct {
	kind   bufOpKind
	nodeID graphdata.NodeID
	edgeID graphdata.EdgeID
	prevN  *bufNodeEntry // previous buffered state, nil if none existed
	prevE  *bufEdgeEntry
	newN   *bufNodeEntry // the state this op staged
	newE   *bufEdgeEntry
}

// StagedOp is one buffered operation in log order, exposed so the
// transaction manager can journal a primitive's exact effects.
type StagedOp struct {
	IsEdge  bool
	NodeID  graphdata.NodeID
	EdgeID  graphdata.EdgeID
	Node    *graphdata.Node // nil when Deleted
	Edge    *graphdata.Edge
	Deleted bool
}

// NewBuffer creates an empty transaction buffer.
func NewBuffer() *Buffer {
	return &Buffer{Nodes: make(map[graphdata.NodeID]*bufNodeEntry), Edges: make(map[graphdata.EdgeID]*bufEdgeEntry)}
}

// Mark returns the current log length, to be passed to RollbackTo later.
func (b *Buffer) Mark() int { return len(b.log) }

// RollbackTo undoes every operation recorded since mark, in reverse order.
func (b *Buffer) RollbackTo(mark int) {
	for i := len(b.log) - 1; i >= mark; i-- {
		op := b.log[i]
		switch op.kind {
		case opNode:
			if op.prevN == nil {
				delete(b.Nodes, op.nodeID)
			} else {
				b.Nodes[op.nodeID] = op.prevN
			}
		case opEdge:
			if op.prevE == nil {
				delete(b.Edges, op.edgeID)
			} else {
				b.Edges[op.edgeID] = op.prevE
			}
		}
	}
	b.log = b.log[:mark]
}

func (b *Buffer) putNode(id graphdata.NodeID, n *graphdata.Node, deleted bool) {
	prev := b.Nodes[id]
	entry := &bufNodeEntry{Node: n, Deleted: deleted}
	b.log = append(b.log, bufOp{kind: opNode, nodeID: id, prevN: prev, newN: entry})
	b.Nodes[id] = entry
}

func (b *Buffer) putEdge(id graphdata.EdgeID, e *graphdata.Edge, deleted bool) {
	prev := b.Edges[id]
	entry := &bufEdgeEntry{Edge: e, Deleted: deleted}
	b.log = append(b.log, bufOp{kind: opEdge, edgeID: id, prevE: prev, newE: entry})
	b.Edges[id] = entry
}

// OpsSince returns the operations staged since mark, in the order they
// were staged.
func (b *Buffer) OpsSince(mark int) []StagedOp {
	if mark >= len(b.log) {
		return nil
	}
	ops := make([]StagedOp, 0, len(b.log)-mark)
	for _, op := range b.log[mark:] {
		switch op.kind {
		case opNode:
			ops = append(ops, StagedOp{NodeID: op.nodeID, Node: op.newN.Node, Deleted: op.newN.Deleted})
		case opEdge:
			ops = append(ops, StagedOp{IsEdge: true, EdgeID: op.edgeID, Edge: op.newE.Edge, Deleted: op.newE.Deleted})
		}
	}
	return ops
}

// StageNode buffers a node insert/update.
func (b *Buffer) StageNode(n *graphdata.Node) { b.putNode(n.ID, n, false) }

// StageNodeDelete buffers a node delete.
func (b *Buffer) StageNodeDelete(id graphdata.NodeID) { b.putNode(id, nil, true) }

// StageEdge buffers an edge insert/update.
func (b *Buffer) StageEdge(e *graphdata.Edge) { b.putEdge(e.ID, e, false) }

// StageEdgeDelete buffers an edge delete.
func (b *Buffer) StageEdgeDelete(id graphdata.EdgeID) { b.putEdge(id, nil, true) }

// IsEmpty reports whether the buffer has no staged changes.
func (b *Buffer) IsEmpty() bool { return len(b.log) == 0 }

// Counts returns (inserted/updated nodes, inserted/updated edges, deleted
// nodes, deleted edges) currently staged.
func (b *Buffer) Counts() (storedNodes, storedEdges, removedNodes, removedEdges int) {
	for _, e := range b.Nodes {
		if e.Deleted {
			removedNodes++
		} else {
			storedNodes++
		}
	}
	for _, e := range b.Edges {
		if e.Deleted {
			removedEdges++
		} else {
			storedEdges++
		}
	}
	return
}

// Reset clears the buffer entirely (used after a successful commit or a
// full rollback).
func (b *Buffer) Reset() {
	b.Nodes = make(map[graphdata.NodeID]*bufNodeEntry)
	b.Edges = make(map[graphdata.EdgeID]*bufEdgeEntry)
	b.log = nil
}
