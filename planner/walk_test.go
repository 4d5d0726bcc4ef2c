package planner

import (
	"strings"
	"testing"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// buildCycleFixture builds A -> B -> C -> A on a single edge type, so a
// traversal from A that doesn't stop at an already-visited node would
// otherwise loop forever (bounded only by maxDepth).
func buildCycleFixture(t *testing.T) (*registry.Registries, *store.Store, map[string]graphdata.NodeID, string) {
	t.Helper()
	reg := registry.New()
	nodeType := reg.Types.Declare("Node", false, nil)
	reg.Types.Finalize()
	follows := reg.EdgeTypes.Declare("follows")
	follows.Params = []registry.EdgeParamDef{
		{Role: "from", TypeID: nodeType.ID},
		{Role: "to", TypeID: nodeType.ID},
	}
	follows.Attrs = make(map[graphdata.AttrID]*registry.AttrDef)

	s := store.New()
	buf := store.NewBuffer()
	ids := make(map[string]graphdata.NodeID)
	for _, name := range []string{"A", "B", "C"} {
		n := graphdata.NewNode(graphdata.NewNodeID(), nodeType.ID)
		ids[name] = n.ID
		buf.StageNode(n)
	}
	link := func(from, to string) {
		e := graphdata.NewEdge(graphdata.NewEdgeID(), follows.ID,
			[]graphdata.Ref{graphdata.NodeRef(ids[from]), graphdata.NodeRef(ids[to])})
		buf.StageEdge(e)
	}
	link("A", "B")
	link("B", "C")
	link("C", "A")
	s.Apply(buf, nil)
	return reg, s, ids, "follows"
}

func TestExecWalkVisitsEachNodeAtMostOncePerStartOnCycle(t *testing.T) {
	reg, s, ids, edgeName := buildCycleFixture(t)
	c := newPlannerCtx(reg, s)

	w := &ast.Walk{
		Starts:    []ast.Expr{&ast.IDRef{ID: string(ids["A"])}},
		EdgeTypes: []string{edgeName},
		Outbound:  true,
		MaxDepth:  10,
		Returns:   ast.WalkNodes,
		Strategy:  ast.WalkBFS,
	}
	res, err := ExecWalk(c, w)
	if err != nil {
		t.Fatalf("ExecWalk: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("WALK over a 3-node cycle returned %d node rows, want 3 (A, B, C each once)", len(res.Rows))
	}
	seen := make(map[string]bool)
	for _, row := range res.Rows {
		id := row["id"].S
		if seen[id] {
			t.Errorf("node %s returned more than once; cycle guard should visit each node at most once per start", id)
		}
		seen[id] = true
	}
}

func TestExecWalkPathsStopExpandingAtRevisitedNode(t *testing.T) {
	reg, s, ids, edgeName := buildCycleFixture(t)
	c := newPlannerCtx(reg, s)

	w := &ast.Walk{
		Starts:    []ast.Expr{&ast.IDRef{ID: string(ids["A"])}},
		EdgeTypes: []string{edgeName},
		Outbound:  true,
		MaxDepth:  100,
		Returns:   ast.WalkPaths,
	}
	res, err := ExecWalk(c, w)
	if err != nil {
		t.Fatalf("ExecWalk: %v", err)
	}
	// A cycle-safe walk from A produces exactly the paths [A], [A,B],
	// [A,B,C] — it must never re-expand through A a second time and
	// produce a path visiting more than the 3 distinct nodes in the cycle.
	for _, row := range res.Rows {
		nodeCount := strings.Count(row["path"].S, "->") + 1
		if nodeCount > 3 {
			t.Errorf("path %q visits %d nodes, more than the 3-node cycle allows; expansion should stop at a revisited node", row["path"].S, nodeCount)
		}
	}
	if len(res.Rows) != 3 {
		t.Fatalf("WALK RETURN PATHS over a 3-node cycle produced %d paths, want 3", len(res.Rows))
	}
}

func TestExecWalkUntilStopsAtMatchingNode(t *testing.T) {
	reg, s, ids, edgeName := buildCycleFixture(t)
	c := newPlannerCtx(reg, s)

	// Stop as soon as the walk reaches B; B should show up as a
	// terminal and should not be expanded past.
	until := &ast.BinaryExpr{
		Op:    ast.OpEq,
		Left:  &ast.VarRef{Name: walkVar},
		Right: &ast.LiteralExpr{Lit: ast.Literal{Kind: ast.KindString, S: string(ids["B"])}},
	}
	w := &ast.Walk{
		Starts:    []ast.Expr{&ast.IDRef{ID: string(ids["A"])}},
		EdgeTypes: []string{edgeName},
		Outbound:  true,
		MaxDepth:  10,
		Until:     until,
		Returns:   ast.WalkTerminals,
	}
	res, err := ExecWalk(c, w)
	if err != nil {
		t.Fatalf("ExecWalk: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["id"].S != string(ids["B"]) {
		t.Fatalf("ExecWalk terminals = %+v, want exactly B", res.Rows)
	}
}

func TestExecWalkEdgesReturnsDistinctEdgeSet(t *testing.T) {
	reg, s, ids, edgeName := buildCycleFixture(t)
	c := newPlannerCtx(reg, s)

	w := &ast.Walk{
		Starts:    []ast.Expr{&ast.IDRef{ID: string(ids["A"])}},
		EdgeTypes: []string{edgeName},
		Outbound:  true,
		MaxDepth:  10,
		Returns:   ast.WalkEdges,
	}
	res, err := ExecWalk(c, w)
	if err != nil {
		t.Fatalf("ExecWalk: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("WALK RETURN EDGES over the 3-edge cycle returned %d rows, want 3", len(res.Rows))
	}
}

func TestExecWalkUnknownEdgeTypeFails(t *testing.T) {
	reg, s, ids, _ := buildCycleFixture(t)
	c := newPlannerCtx(reg, s)

	w := &ast.Walk{
		Starts:    []ast.Expr{&ast.IDRef{ID: string(ids["A"])}},
		EdgeTypes: []string{"no_such_edge"},
		Outbound:  true,
	}
	if _, err := ExecWalk(c, w); err == nil {
		t.Error("ExecWalk with an unknown FOLLOW edge type should fail")
	}
}
