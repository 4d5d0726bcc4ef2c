package pattern

import (
	"testing"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// chain builds a -> b -> c -> d along a "follows" edge type and returns
// the node ids in order.
func chainFixture(t *testing.T) (*registry.Registries, *store.Store, []graphdata.NodeID) {
	t.Helper()
	reg := registry.New()
	personType := reg.Types.Declare("Person", false, nil)
	followsType := reg.EdgeTypes.Declare("follows")
	reg.Types.Finalize()

	s := store.New()
	buf := store.NewBuffer()
	ids := make([]graphdata.NodeID, 4)
	for i := range ids {
		n := graphdata.NewNode(graphdata.NewNodeID(), personType.ID)
		ids[i] = n.ID
		buf.StageNode(n)
	}
	for i := 0; i < len(ids)-1; i++ {
		e := graphdata.NewEdge(graphdata.NewEdgeID(), followsType.ID, []graphdata.Ref{graphdata.NodeRef(ids[i]), graphdata.NodeRef(ids[i+1])})
		buf.StageEdge(e)
	}
	s.Apply(buf, nil)
	return reg, s, ids
}

func TestTransitivePlusFindsMultiHopDescendant(t *testing.T) {
	reg, s, ids := chainFixture(t)
	ctx := &EvalCtx{Store: s, Reg: reg, Binding: Binding{"x": graphdata.NodeRef(ids[0]), "y": graphdata.NodeRef(ids[3])}}
	ep := ast.EdgePattern{TypeName: "follows", Positions: []string{"x", "y"}, Transitive: ast.TransitivePlus}
	c := Compile(reg, &ast.Pattern{Edges: []ast.EdgePattern{ep}})
	m := &matcher{ctx: ctx, c: c}

	ok, err := m.checkTransitive(0, ep, ctx.Binding)
	if err != nil {
		t.Fatalf("checkTransitive: %v", err)
	}
	if !ok {
		t.Error("a 3-hop chain should be reachable under + (default max depth 100)")
	}
}

func TestTransitivePlusRespectsMaxDepth(t *testing.T) {
	reg, s, ids := chainFixture(t)
	ctx := &EvalCtx{Store: s, Reg: reg, Binding: Binding{"x": graphdata.NodeRef(ids[0]), "y": graphdata.NodeRef(ids[3])}}
	ep := ast.EdgePattern{TypeName: "follows", Positions: []string{"x", "y"}, Transitive: ast.TransitivePlus, MinDepth: 1, MaxDepth: 2}
	c := Compile(reg, &ast.Pattern{Edges: []ast.EdgePattern{ep}})
	m := &matcher{ctx: ctx, c: c}

	ok, err := m.checkTransitive(0, ep, ctx.Binding)
	if err != nil {
		t.Fatalf("checkTransitive: %v", err)
	}
	if ok {
		t.Error("a 3-hop chain should not be reachable within max depth 2")
	}
}

func TestTransitiveStarMatchesSelfAtZeroDepth(t *testing.T) {
	reg, s, ids := chainFixture(t)
	ctx := &EvalCtx{Store: s, Reg: reg, Binding: Binding{"x": graphdata.NodeRef(ids[0]), "y": graphdata.NodeRef(ids[0])}}
	ep := ast.EdgePattern{TypeName: "follows", Positions: []string{"x", "y"}, Transitive: ast.TransitiveStar}
	c := Compile(reg, &ast.Pattern{Edges: []ast.EdgePattern{ep}})
	m := &matcher{ctx: ctx, c: c}

	ok, err := m.checkTransitive(0, ep, ctx.Binding)
	if err != nil {
		t.Fatalf("checkTransitive: %v", err)
	}
	if !ok {
		t.Error("`*` transitive closure should match a node against itself at depth 0")
	}
}

func TestBfsReachableDoesNotRevisitCycles(t *testing.T) {
	reg := registry.New()
	personType := reg.Types.Declare("Person", false, nil)
	followsType := reg.EdgeTypes.Declare("follows")
	reg.Types.Finalize()

	s := store.New()
	buf := store.NewBuffer()
	a := graphdata.NewNode(graphdata.NewNodeID(), personType.ID)
	b := graphdata.NewNode(graphdata.NewNodeID(), personType.ID)
	buf.StageNode(a)
	buf.StageNode(b)
	buf.StageEdge(graphdata.NewEdge(graphdata.NewEdgeID(), followsType.ID, []graphdata.Ref{graphdata.NodeRef(a.ID), graphdata.NodeRef(b.ID)}))
	buf.StageEdge(graphdata.NewEdge(graphdata.NewEdgeID(), followsType.ID, []graphdata.Ref{graphdata.NodeRef(b.ID), graphdata.NodeRef(a.ID)}))
	s.Apply(buf, nil)

	ctx := &EvalCtx{Store: s, Reg: reg, Binding: Binding{}}
	m := &matcher{ctx: ctx}
	reachable := m.bfsReachable(graphdata.NodeRef(a.ID), map[graphdata.EdgeTypeID]bool{followsType.ID: true}, false, 1, 100)
	if len(reachable) != 1 || !reachable[graphdata.NodeRef(b.ID)] {
		t.Errorf("bfsReachable over a 2-cycle = %v, want just {b}", reachable)
	}
}
