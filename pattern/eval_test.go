package pattern

import (
	"testing"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

func lit(k ast.ValueKind, i int64, f float64, s string, b bool) ast.Expr {
	return &ast.LiteralExpr{Lit: ast.Literal{Kind: k, I: i, F: f, S: s, B: b}}
}

func intLit(i int64) ast.Expr    { return lit(ast.KindInt, i, 0, "", false) }
func nullLit() ast.Expr          { return lit(ast.KindNull, 0, 0, "", false) }
func boolLit(b bool) ast.Expr    { return lit(ast.KindBool, 0, 0, "", b) }
func strLit(s string) ast.Expr   { return lit(ast.KindString, 0, 0, s, false) }

func newCtx() *EvalCtx {
	return &EvalCtx{Store: store.New(), Reg: registry.New(), Binding: Binding{}}
}

func TestEvalBinaryArithmeticCoercesIntToFloat(t *testing.T) {
	ctx := newCtx()
	e := &ast.BinaryExpr{Op: ast.OpAdd, Left: intLit(2), Right: lit(ast.KindFloat, 0, 0.5, "", false)}
	v, err := Eval(ctx, e)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v.Kind != ast.KindFloat || v.F != 2.5 {
		t.Errorf("2 + 0.5 = %+v, want float 2.5", v)
	}
}

func TestEvalEqNullEqualsNullIsTrue(t *testing.T) {
	ctx := newCtx()
	e := &ast.BinaryExpr{Op: ast.OpEq, Left: nullLit(), Right: nullLit()}
	v, err := Eval(ctx, e)
	if err != nil || v.Kind != ast.KindBool || !v.B {
		t.Errorf("null = null = %+v, %v, want true", v, err)
	}
}

func TestEvalEqNullEqualsValueIsFalse(t *testing.T) {
	ctx := newCtx()
	e := &ast.BinaryExpr{Op: ast.OpEq, Left: nullLit(), Right: intLit(1)}
	v, err := Eval(ctx, e)
	if err != nil || v.Kind != ast.KindBool || v.B {
		t.Errorf("null = 1 = %+v, %v, want false", v, err)
	}
}

func TestEvalAndShortCircuitsOnFalse(t *testing.T) {
	ctx := newCtx()
	e := &ast.BinaryExpr{Op: ast.OpAnd, Left: boolLit(false), Right: nullLit()}
	v, err := Eval(ctx, e)
	if err != nil || v.Kind != ast.KindBool || v.B {
		t.Errorf("false and null = %+v, %v, want false (not null)", v, err)
	}
}

func TestEvalOrShortCircuitsOnTrue(t *testing.T) {
	ctx := newCtx()
	e := &ast.BinaryExpr{Op: ast.OpOr, Left: boolLit(true), Right: nullLit()}
	v, err := Eval(ctx, e)
	if err != nil || v.Kind != ast.KindBool || !v.B {
		t.Errorf("true or null = %+v, %v, want true (not null)", v, err)
	}
}

func TestEvalConcat(t *testing.T) {
	ctx := newCtx()
	e := &ast.BinaryExpr{Op: ast.OpConcat, Left: strLit("foo"), Right: strLit("bar")}
	v, err := Eval(ctx, e)
	if err != nil || v.Kind != ast.KindString || v.S != "foobar" {
		t.Errorf(`"foo" ++ "bar" = %+v, %v, want "foobar"`, v, err)
	}
}

func TestEvalComparisonWithNullIsFalse(t *testing.T) {
	ctx := newCtx()
	e := &ast.BinaryExpr{Op: ast.OpLt, Left: nullLit(), Right: intLit(5)}
	v, err := Eval(ctx, e)
	if err != nil || v.Kind != ast.KindBool || v.B {
		t.Errorf("null < 5 = %+v, %v, want false", v, err)
	}
}

func TestEvalAttrRefReadsBoundNodeAttribute(t *testing.T) {
	reg := registry.New()
	attrID := reg.AttrHandle("age")

	s := store.New()
	buf := store.NewBuffer()
	n := graphdata.NewNode(graphdata.NewNodeID(), 1)
	n.SetAttr(attrID, graphdata.Int(30))
	buf.StageNode(n)
	s.Apply(buf, nil)

	ctx := &EvalCtx{Store: s, Reg: reg, Binding: Binding{"p": graphdata.NodeRef(n.ID)}}
	e := &ast.AttrRef{Var: "p", Attr: "age"}
	v, err := Eval(ctx, e)
	if err != nil || v.Kind != ast.KindInt || v.I != 30 {
		t.Errorf("p.age = %+v, %v, want Int(30)", v, err)
	}
}

func TestEvalAttrRefUnboundVarIsNull(t *testing.T) {
	ctx := newCtx()
	e := &ast.AttrRef{Var: "missing", Attr: "x"}
	v, err := Eval(ctx, e)
	if err != nil || !v.IsNull() {
		t.Errorf("unbound var attr ref = %+v, %v, want null", v, err)
	}
}

func TestEvalParamRef(t *testing.T) {
	ctx := newCtx()
	ctx.Params = map[string]graphdata.Value{"limit": graphdata.Int(10)}
	v, err := Eval(ctx, &ast.ParamRef{Name: "limit"})
	if err != nil || v.Kind != ast.KindInt || v.I != 10 {
		t.Errorf("$limit = %+v, %v, want Int(10)", v, err)
	}
}

func TestTruthyOnlyTrueForBoolTrue(t *testing.T) {
	if Truthy(graphdata.Null) {
		t.Error("Truthy(null) should be false")
	}
	if Truthy(graphdata.Int(1)) {
		t.Error("Truthy(Int(1)) should be false, only Bool(true) is truthy")
	}
	if !Truthy(graphdata.Bool(true)) {
		t.Error("Truthy(Bool(true)) should be true")
	}
}
