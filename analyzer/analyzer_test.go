package analyzer

import (
	"testing"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/registry"
)

func TestAnalyzeStatementRejectsUnknownTypeInPattern(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Person", false, nil)
	reg.Types.Finalize()

	m := &ast.Match{
		Pattern:    &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
		Projection: []ast.Expr{&ast.VarRef{Name: "t"}},
	}
	if err := AnalyzeStatement(reg, m); err == nil {
		t.Error("AnalyzeStatement should reject a MATCH pattern referencing an undeclared type")
	}
}

func TestAnalyzeStatementAcceptsKnownType(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Person", false, nil)
	reg.Types.Finalize()

	m := &ast.Match{
		Pattern:    &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "p", TypeName: "Person"}}},
		Projection: []ast.Expr{&ast.VarRef{Name: "p"}},
	}
	if err := AnalyzeStatement(reg, m); err != nil {
		t.Errorf("AnalyzeStatement rejected a valid pattern: %v", err)
	}
}

func TestAnalyzeStatementRejectsUnknownEdgeTypeInWalk(t *testing.T) {
	reg := registry.New()
	w := &ast.Walk{EdgeTypes: []string{"no_such_edge"}}
	if err := AnalyzeStatement(reg, w); err == nil {
		t.Error("AnalyzeStatement should reject WALK FOLLOW naming an undeclared edge type")
	}
}

func TestAnalyzeStatementRejectsUnknownTypeInSpawn(t *testing.T) {
	reg := registry.New()
	tr := &ast.Transform{Action: &ast.Spawn{TypeName: "Ghost"}}
	if err := AnalyzeStatement(reg, tr); err == nil {
		t.Error("AnalyzeStatement should reject SPAWN of an undeclared type")
	}
}

func TestAnalyzeStatementChecksIndexTarget(t *testing.T) {
	reg := registry.New()
	td := reg.Types.Declare("Person", false, nil)
	nameAttr := reg.AttrHandle("name")
	td.OwnAttrs[nameAttr] = &registry.AttrDef{ID: nameAttr, Name: "name", Kind: registry.KindString}
	reg.Types.Finalize()

	ok := &ast.CreateIndex{TypeName: "Person", AttrName: "name"}
	if err := AnalyzeStatement(reg, ok); err != nil {
		t.Errorf("CREATE INDEX on a declared attribute should pass: %v", err)
	}

	bad := &ast.CreateIndex{TypeName: "Person", AttrName: "nope"}
	if err := AnalyzeStatement(reg, bad); err == nil {
		t.Error("CREATE INDEX on an undeclared attribute should fail")
	}
}

func TestAnalyzeOntologyForbidsWallTimeInConstraint(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Task", false, nil)
	reg.Types.Finalize()

	onto := &ast.Ontology{
		Constraints: []ast.ConstraintDecl{
			{
				Name:    "c1",
				Pattern: &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
				Cond: &ast.BinaryExpr{
					Op:    ast.OpGt,
					Left:  &ast.CallExpr{Name: "wall_time"},
					Right: &ast.AttrRef{Var: "t", Attr: "due"},
				},
			},
		},
	}
	if err := AnalyzeOntology(reg, onto); err == nil {
		t.Error("a constraint condition calling wall_time() should be rejected")
	}
}

func TestAnalyzeOntologyForbidsRandomInRule(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Task", false, nil)
	reg.Types.Finalize()

	onto := &ast.Ontology{
		Rules: []ast.RuleDecl{
			{
				Name: "r1",
				Pattern: &ast.Pattern{
					Nodes:   []ast.NodePatternVar{{Var: "t", TypeName: "Task"}},
					Filters: []ast.Expr{&ast.CallExpr{Name: "random"}},
				},
			},
		},
	}
	if err := AnalyzeOntology(reg, onto); err == nil {
		t.Error("a rule condition calling random() should be rejected")
	}
}

func TestAnalyzeOntologyAllowsDeterministicConstraint(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Task", false, nil)
	reg.Types.Finalize()

	onto := &ast.Ontology{
		Constraints: []ast.ConstraintDecl{
			{
				Name:    "c1",
				Pattern: &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
				Cond: &ast.BinaryExpr{
					Op:    ast.OpGeq,
					Left:  &ast.AttrRef{Var: "t", Attr: "hours"},
					Right: &ast.LiteralExpr{Lit: ast.Literal{Kind: ast.KindInt, I: 0}},
				},
			},
		},
	}
	if err := AnalyzeOntology(reg, onto); err != nil {
		t.Errorf("a deterministic constraint condition should be accepted: %v", err)
	}
}

func TestAnalyzeOntologyRejectsUnknownHigherOrderEdgeParam(t *testing.T) {
	reg := registry.New()
	onto := &ast.Ontology{
		EdgeTypes: []ast.EdgeTypeDecl{
			{
				Name: "annotates",
				Params: []ast.EdgeParam{
					{Role: "target", TypeName: "no_such_edge", IsEdge: true},
				},
			},
		},
	}
	if err := AnalyzeOntology(reg, onto); err == nil {
		t.Error("a higher-order edge param referencing an undeclared edge type should be rejected")
	}
}

func TestAnalyzeStatementRejectsAggregateWrongArity(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Task", false, nil)
	reg.Types.Finalize()

	m := &ast.Match{
		Pattern:    &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
		Projection: []ast.Expr{&ast.CallExpr{Name: "sum"}}, // sum() needs exactly one arg
	}
	if err := AnalyzeStatement(reg, m); err == nil {
		t.Error("AnalyzeStatement should reject sum() called with zero arguments")
	}
}

func TestAnalyzeStatementAcceptsCountWithNoArgs(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Task", false, nil)
	reg.Types.Finalize()

	m := &ast.Match{
		Pattern:    &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
		Projection: []ast.Expr{&ast.CallExpr{Name: "count"}},
	}
	if err := AnalyzeStatement(reg, m); err != nil {
		t.Errorf("count() with no arguments should be accepted: %v", err)
	}
}

func TestAnalyzeStatementRejectsCountWithTwoArgs(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Task", false, nil)
	reg.Types.Finalize()

	m := &ast.Match{
		Pattern: &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "t", TypeName: "Task"}}},
		Projection: []ast.Expr{&ast.CallExpr{Name: "count", Args: []ast.Expr{
			&ast.VarRef{Name: "t"}, &ast.VarRef{Name: "t"},
		}}},
	}
	if err := AnalyzeStatement(reg, m); err == nil {
		t.Error("count() called with two arguments should be rejected")
	}
}
