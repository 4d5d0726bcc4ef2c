package journal

import (
	"testing"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
)

func TestEncodeDecodeOpsRoundTrip(t *testing.T) {
	node := graphdata.NewNode("n1", 3)
	node.Version = 2
	node.SetAttr(7, graphdata.Str("Ada"))
	node.SetAttr(8, graphdata.Int(42))
	node.SetAttr(9, graphdata.Float(2.5))
	node.SetAttr(10, graphdata.Bool(true))

	edge := graphdata.NewEdge("e1", 1, []graphdata.Ref{
		graphdata.NodeRef("n1"),
		graphdata.EdgeRef("e0"),
	})
	edge.SetAttr(11, graphdata.Timestamp(1705320000000))

	prev := graphdata.NewNode("n2", 3)
	prev.SetAttr(7, graphdata.Str("old"))

	ops := []EntityOp{
		{NodeID: "n1", Node: node},
		{IsEdge: true, EdgeID: "e1", Edge: edge},
		{NodeID: "n2", Deleted: true, PrevNode: prev},
	}

	decoded, ok := DecodeOps(EncodeOps(ops))
	if !ok {
		t.Fatal("DecodeOps rejected its own encoding")
	}
	if len(decoded) != 3 {
		t.Fatalf("decoded %d ops, want 3", len(decoded))
	}

	got := decoded[0]
	if got.NodeID != "n1" || got.Node == nil || got.Deleted {
		t.Fatalf("op 0 = %+v, want a live n1 insert", got)
	}
	if got.Node.TypeID != 3 || got.Node.Version != 2 {
		t.Errorf("node type/version = %d/%d, want 3/2", got.Node.TypeID, got.Node.Version)
	}
	if got.Node.Attr(7).S != "Ada" || got.Node.Attr(8).I != 42 || got.Node.Attr(9).F != 2.5 || !got.Node.Attr(10).B {
		t.Errorf("node attrs did not round-trip: %+v", got.Node.Attrs)
	}

	ge := decoded[1]
	if !ge.IsEdge || ge.Edge == nil || len(ge.Edge.Targets) != 2 {
		t.Fatalf("op 1 = %+v, want an edge with two targets", ge)
	}
	if ge.Edge.Targets[0].IsEdge || ge.Edge.Targets[0].Node != "n1" {
		t.Errorf("target 0 = %+v, want node n1", ge.Edge.Targets[0])
	}
	if !ge.Edge.Targets[1].IsEdge || ge.Edge.Targets[1].Edge != "e0" {
		t.Errorf("target 1 = %+v, want edge e0", ge.Edge.Targets[1])
	}
	if ge.Edge.Attr(11).I != 1705320000000 {
		t.Errorf("edge timestamp attr = %d, want 1705320000000", ge.Edge.Attr(11).I)
	}

	gd := decoded[2]
	if !gd.Deleted || gd.NodeID != "n2" || gd.PrevNode == nil || gd.PrevNode.Attr(7).S != "old" {
		t.Errorf("op 2 = %+v, want a delete carrying the prior state", gd)
	}
}

func TestDecodeOpsRejectsTruncatedPayload(t *testing.T) {
	payload := EncodeOps([]EntityOp{{NodeID: "n1", Node: graphdata.NewNode("n1", 1)}})
	if _, ok := DecodeOps(payload[:len(payload)-3]); ok {
		t.Error("a truncated payload should not decode")
	}
}

func TestEncodeDecodeOntologyRoundTrip(t *testing.T) {
	onto := &ast.Ontology{
		Types: []ast.TypeDecl{{
			Name: "Task",
			Attrs: []ast.AttrDecl{
				{Name: "title", TypeName: "string", Modifiers: []ast.Modifier{{Name: "required"}}},
			},
		}},
		EdgeTypes: []ast.EdgeTypeDecl{{
			Name: "depends_on",
			Params: []ast.EdgeParam{
				{Role: "a", TypeName: "Task"},
				{Role: "b", TypeName: "Task"},
			},
			Modifiers: []ast.Modifier{{Name: "acyclic"}},
		}},
		Rules: []ast.RuleDecl{{
			Name: "stamp", Auto: true, Priority: 10,
			Pattern: &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
			Actions: []ast.Action{&ast.Set{
				Target: ast.SetTarget{IDExpr: &ast.VarRef{Name: "t"}},
				Attrs:  []ast.AttrAssign{{Attr: "title", Expr: &ast.CallExpr{Name: "now"}}},
			}},
		}},
		Constraints: []ast.ConstraintDecl{{
			Name:    "titled",
			Pattern: &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
			Cond: &ast.BinaryExpr{
				Op:    ast.OpNeq,
				Left:  &ast.AttrRef{Var: "t", Attr: "title"},
				Right: &ast.LiteralExpr{Lit: ast.Literal{Kind: ast.KindNull}},
			},
		}},
	}

	payload, err := EncodeOntology(onto)
	if err != nil {
		t.Fatalf("EncodeOntology: %v", err)
	}
	decoded, err := DecodeOntology(payload)
	if err != nil {
		t.Fatalf("DecodeOntology: %v", err)
	}

	if len(decoded.Types) != 1 || decoded.Types[0].Name != "Task" {
		t.Errorf("types = %+v, want Task", decoded.Types)
	}
	if len(decoded.EdgeTypes) != 1 || decoded.EdgeTypes[0].Modifiers[0].Name != "acyclic" {
		t.Errorf("edge types = %+v, want acyclic depends_on", decoded.EdgeTypes)
	}
	set, ok := decoded.Rules[0].Actions[0].(*ast.Set)
	if !ok {
		t.Fatalf("rule action = %T, want *ast.Set through the interface", decoded.Rules[0].Actions[0])
	}
	if call, ok := set.Attrs[0].Expr.(*ast.CallExpr); !ok || call.Name != "now" {
		t.Errorf("set expr = %+v, want now() call", set.Attrs[0].Expr)
	}
	cond, ok := decoded.Constraints[0].Cond.(*ast.BinaryExpr)
	if !ok || cond.Op != ast.OpNeq {
		t.Errorf("constraint cond = %+v, want a != comparison", decoded.Constraints[0].Cond)
	}
}
