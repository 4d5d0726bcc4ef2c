package store

import (
	"testing"

	"github.com/bdjafer/mew/graphdata"
)

func TestGetNodeReadYourWrites(t *testing.T) {
	s := New()
	buf := NewBuffer()
	n := graphdata.NewNode(graphdata.NewNodeID(), 1)
	buf.StageNode(n)

	got, ok := s.GetNode(buf, n.ID)
	if !ok || got != n {
		t.Fatalf("GetNode with buf should see the staged node before commit")
	}

	if _, ok := s.GetNode(nil, n.ID); ok {
		t.Error("GetNode without a buffer should not see uncommitted writes")
	}
}

func TestGetNodeBufferedDeleteHidesCommitted(t *testing.T) {
	s := New()
	n := graphdata.NewNode(graphdata.NewNodeID(), 1)
	buf := NewBuffer()
	buf.StageNode(n)
	s.Apply(buf, nil)
	buf.Reset()

	buf.StageNodeDelete(n.ID)
	if _, ok := s.GetNode(buf, n.ID); ok {
		t.Error("a buffered delete should hide the committed node")
	}
	if _, ok := s.GetNode(nil, n.ID); !ok {
		t.Error("the committed node should still exist before Apply")
	}
}

func TestApplyMaintainsTypeIndex(t *testing.T) {
	s := New()
	buf := NewBuffer()
	n1 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n2 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n3 := graphdata.NewNode(graphdata.NewNodeID(), 2)
	buf.StageNode(n1)
	buf.StageNode(n2)
	buf.StageNode(n3)
	s.Apply(buf, nil)

	nodes := s.NodesOfTypes(nil, map[graphdata.TypeID]bool{1: true})
	if len(nodes) != 2 {
		t.Fatalf("NodesOfTypes(1) = %d nodes, want 2", len(nodes))
	}

	if s.NodeCount() != 3 {
		t.Fatalf("NodeCount() = %d, want 3", s.NodeCount())
	}
}

func TestApplyDeleteRemovesFromTypeIndex(t *testing.T) {
	s := New()
	buf := NewBuffer()
	n := graphdata.NewNode(graphdata.NewNodeID(), 1)
	buf.StageNode(n)
	s.Apply(buf, nil)
	buf.Reset()

	buf.StageNodeDelete(n.ID)
	s.Apply(buf, nil)

	nodes := s.NodesOfTypes(nil, map[graphdata.TypeID]bool{1: true})
	if len(nodes) != 0 {
		t.Fatalf("NodesOfTypes(1) after delete = %d, want 0", len(nodes))
	}
	if s.NodeCount() != 0 {
		t.Fatalf("NodeCount() after delete = %d, want 0", s.NodeCount())
	}
}

func TestAttrIndexEqualAndRange(t *testing.T) {
	s := New()
	s.DeclareAttrIndex(1, 1, false)

	buf := NewBuffer()
	n1 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n1.SetAttr(1, graphdata.Int(10))
	n2 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n2.SetAttr(1, graphdata.Int(20))
	n3 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n3.SetAttr(1, graphdata.Int(20))
	buf.StageNode(n1)
	buf.StageNode(n2)
	buf.StageNode(n3)
	s.Apply(buf, func(graphdata.TypeID) []graphdata.AttrID { return []graphdata.AttrID{1} })

	eq, ok := s.AttrEquals(1, 1, graphdata.Int(20))
	if !ok || len(eq) != 2 {
		t.Fatalf("AttrEquals(20) = %v, %v, want 2 matches", eq, ok)
	}

	rng, ok := s.AttrRange(1, 1, graphdata.Int(15), true, graphdata.Int(25), true)
	if !ok || len(rng) != 2 {
		t.Fatalf("AttrRange(15,25) = %v, %v, want 2 matches", rng, ok)
	}

	rngAll, ok := s.AttrRange(1, 1, graphdata.Value{}, false, graphdata.Value{}, false)
	if !ok || len(rngAll) != 3 {
		t.Fatalf("AttrRange(unbounded) = %v, %v, want 3 matches", rngAll, ok)
	}
}

func TestAttrUniqueDetectsCollision(t *testing.T) {
	s := New()
	s.DeclareAttrIndex(1, 1, true)

	buf := NewBuffer()
	n1 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n1.SetAttr(1, graphdata.Str("x@example.com"))
	buf.StageNode(n1)
	s.Apply(buf, func(graphdata.TypeID) []graphdata.AttrID { return []graphdata.AttrID{1} })

	if _, claimed := s.AttrUnique(nil, 1, 1, graphdata.Str("x@example.com"), n1.ID); claimed {
		t.Error("excluding the claimant itself should not report a collision")
	}
	if claimedBy, claimed := s.AttrUnique(nil, 1, 1, graphdata.Str("x@example.com"), graphdata.NewNodeID()); !claimed || claimedBy != n1.ID {
		t.Errorf("AttrUnique for a value already claimed by n1 = %v, %v, want n1.ID, true", claimedBy, claimed)
	}

	// A buffered node claims its value before commit; a buffered delete
	// releases the committed claim.
	txBuf := NewBuffer()
	n2 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n2.SetAttr(1, graphdata.Str("y@example.com"))
	txBuf.StageNode(n2)
	if claimedBy, claimed := s.AttrUnique(txBuf, 1, 1, graphdata.Str("y@example.com"), graphdata.NewNodeID()); !claimed || claimedBy != n2.ID {
		t.Errorf("AttrUnique against a buffered claimant = %v, %v, want n2.ID, true", claimedBy, claimed)
	}
	txBuf.StageNodeDelete(n1.ID)
	if _, claimed := s.AttrUnique(txBuf, 1, 1, graphdata.Str("x@example.com"), graphdata.NewNodeID()); claimed {
		t.Error("a claim released by a buffered delete should not report a collision")
	}
}

func TestAdjacentOutboundInboundAndBuffer(t *testing.T) {
	s := New()
	a := graphdata.NewNodeID()
	b := graphdata.NewNodeID()
	buf := NewBuffer()
	e := graphdata.NewEdge(graphdata.NewEdgeID(), 10, []graphdata.Ref{graphdata.NodeRef(a), graphdata.NodeRef(b)})
	buf.StageEdge(e)
	s.Apply(buf, nil)

	out := s.Adjacent(nil, a, nil, Outbound)
	if len(out) != 1 || out[0].ID != e.ID {
		t.Fatalf("Adjacent(a, Outbound) = %v, want [%v]", out, e.ID)
	}
	in := s.Adjacent(nil, b, nil, Inbound)
	if len(in) != 1 || in[0].ID != e.ID {
		t.Fatalf("Adjacent(b, Inbound) = %v, want [%v]", in, e.ID)
	}
	if len(s.Adjacent(nil, a, nil, Inbound)) != 0 {
		t.Error("a should have no inbound edges")
	}

	buf2 := NewBuffer()
	e2 := graphdata.NewEdge(graphdata.NewEdgeID(), 10, []graphdata.Ref{graphdata.NodeRef(a), graphdata.NodeRef(b)})
	buf2.StageEdge(e2)
	out2 := s.Adjacent(buf2, a, nil, Outbound)
	if len(out2) != 2 {
		t.Fatalf("Adjacent with buf should merge buffered edge, got %d want 2", len(out2))
	}
}

func TestHigherOrderReferrers(t *testing.T) {
	s := New()
	a := graphdata.NewNodeID()
	b := graphdata.NewNodeID()
	buf := NewBuffer()
	base := graphdata.NewEdge(graphdata.NewEdgeID(), 1, []graphdata.Ref{graphdata.NodeRef(a), graphdata.NodeRef(b)})
	buf.StageEdge(base)
	s.Apply(buf, nil)
	buf.Reset()

	higher := graphdata.NewEdge(graphdata.NewEdgeID(), 2, []graphdata.Ref{graphdata.EdgeRef(base.ID), graphdata.NodeRef(a)})
	buf.StageEdge(higher)
	s.Apply(buf, nil)

	refs := s.HigherOrderReferrers(nil, base.ID)
	if len(refs) != 1 || refs[0] != higher.ID {
		t.Fatalf("HigherOrderReferrers(base) = %v, want [%v]", refs, higher.ID)
	}
}

func TestBufferRollbackToUndoesInOrder(t *testing.T) {
	buf := NewBuffer()
	n1 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	buf.StageNode(n1)
	mark := buf.Mark()

	n2 := graphdata.NewNode(graphdata.NewNodeID(), 1)
	buf.StageNode(n2)
	buf.StageNodeDelete(n1.ID)

	buf.RollbackTo(mark)

	if _, ok := buf.Nodes[n2.ID]; ok {
		t.Error("RollbackTo should discard nodes staged after the mark")
	}
	entry, ok := buf.Nodes[n1.ID]
	if !ok || entry.Deleted {
		t.Error("RollbackTo should restore n1's pre-mark staged state (not deleted)")
	}
}

func TestDropAttrIndexRemovesIndex(t *testing.T) {
	s := New()
	s.DeclareAttrIndex(1, 1, false)
	if !s.HasAttrIndex(1, 1) {
		t.Fatal("HasAttrIndex should report true right after DeclareAttrIndex")
	}
	s.DropAttrIndex(1, 1)
	if s.HasAttrIndex(1, 1) {
		t.Error("HasAttrIndex should report false after DropAttrIndex")
	}
	if _, ok := s.AttrEquals(1, 1, graphdata.Int(1)); ok {
		t.Error("AttrEquals should report ok=false once the index is dropped")
	}
}
