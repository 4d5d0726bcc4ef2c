package store

import (
	"testing"

	"github.com/bdjafer/mew/graphdata"
)

func TestBufferCounts(t *testing.T) {
	buf := NewBuffer()
	buf.StageNode(graphdata.NewNode(graphdata.NewNodeID(), 1))
	buf.StageNode(graphdata.NewNode(graphdata.NewNodeID(), 1))
	buf.StageNodeDelete(graphdata.NewNodeID())
	buf.StageEdge(graphdata.NewEdge(graphdata.NewEdgeID(), 1, nil))

	storedN, storedE, delN, delE := buf.Counts()
	if storedN != 2 || storedE != 1 || delN != 1 || delE != 0 {
		t.Errorf("Counts() = (%d,%d,%d,%d), want (2,1,1,0)", storedN, storedE, delN, delE)
	}
}

func TestBufferIsEmptyAndReset(t *testing.T) {
	buf := NewBuffer()
	if !buf.IsEmpty() {
		t.Fatal("a fresh Buffer should be empty")
	}
	buf.StageNode(graphdata.NewNode(graphdata.NewNodeID(), 1))
	if buf.IsEmpty() {
		t.Error("Buffer should not be empty after staging a node")
	}
	buf.Reset()
	if !buf.IsEmpty() {
		t.Error("Buffer should be empty after Reset")
	}
}

func TestListAttrIndexes(t *testing.T) {
	s := New()
	s.DeclareAttrIndex(1, 1, true)
	s.DeclareAttrIndex(2, 3, false)

	got := s.ListAttrIndexes()
	if len(got) != 2 {
		t.Fatalf("ListAttrIndexes() = %v, want 2 entries", got)
	}
	seen := map[graphdata.TypeID]bool{}
	for _, ix := range got {
		seen[ix.Type] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("ListAttrIndexes() = %v, missing declared types", got)
	}
}

func TestOpsSinceReturnsStagedOperationsInOrder(t *testing.T) {
	b := NewBuffer()
	n := graphdata.NewNode("n1", 1)
	b.StageNode(n)

	mark := b.Mark()
	e := graphdata.NewEdge("e1", 2, []graphdata.Ref{graphdata.NodeRef("n1"), graphdata.NodeRef("n2")})
	b.StageEdge(e)
	b.StageNodeDelete("n2")

	ops := b.OpsSince(mark)
	if len(ops) != 2 {
		t.Fatalf("OpsSince(mark) = %d ops, want 2 (pre-mark op excluded)", len(ops))
	}
	if !ops[0].IsEdge || ops[0].EdgeID != "e1" || ops[0].Deleted {
		t.Errorf("op 0 = %+v, want the staged edge insert", ops[0])
	}
	if ops[1].IsEdge || ops[1].NodeID != "n2" || !ops[1].Deleted {
		t.Errorf("op 1 = %+v, want the staged node delete", ops[1])
	}

	if got := b.OpsSince(b.Mark()); got != nil {
		t.Errorf("OpsSince at the current mark = %v, want nil", got)
	}
}
