/*
 * MEW
 *
 * Package pattern is the shared primitive used by queries, constraints
 * and rules: it compiles textual patterns, matches them against the
 * store, and evaluates expressions under a binding over a typed
 * graphdata.Value union with three-valued null logic.
 */
package pattern

import (
	"math"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// Binding maps a pattern variable (node or edge alias) to the entity it
// is currently bound to.
type Binding map[string]graphdata.Ref

// Clone returns an independent copy, used when a search branches.
func (b Binding) Clone() Binding {
	c := make(Binding, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// EvalCtx carries everything expression evaluation and pattern matching
// need: the committed store plus the caller's transaction buffer (for
// read-your-writes), the published registries, bound parameters, the
// current variable binding, and a deterministic now-source (the analyzer
// forbids wall_time()/random() inside constraints; this package only
// needs a pluggable clock so tests can supply one).
type EvalCtx struct {
	Store   *store.Store
	Buf     *store.Buffer
	Reg     *registry.Registries
	Params  map[string]graphdata.Value
	Binding Binding
	Now     func() int64
}

func (c *EvalCtx) now() int64 {
	if c.Now != nil {
		return c.Now()
	}
	return 0
}

// Eval evaluates an expression to a scalar Value under three-valued
// logic.
func Eval(ctx *EvalCtx, e ast.Expr) (graphdata.Value, error) {
	switch n := e.(type) {
	case *ast.LiteralExpr:
		return literalValue(n.Lit), nil

	case *ast.VarRef:
		ref, ok := ctx.Binding[n.Name]
		if !ok {
			return graphdata.Null, nil
		}
		return graphdata.Str(ref.String()), nil

	case *ast.AttrRef:
		return evalAttrRef(ctx, n)

	case *ast.ParamRef:
		if v, ok := ctx.Params[n.Name]; ok {
			return v, nil
		}
		return graphdata.Null, nil

	case *ast.IDRef:
		return graphdata.Str(n.ID), nil

	case *ast.UnaryExpr:
		return evalUnary(ctx, n)

	case *ast.BinaryExpr:
		return evalBinary(ctx, n)

	case *ast.CallExpr:
		return evalCall(ctx, n)

	case *ast.ExistsExpr:
		matched, err := existsSubPattern(ctx, n.Pattern)
		if err != nil {
			return graphdata.Null, err
		}
		if n.Negated {
			matched = !matched
		}
		return graphdata.Bool(matched), nil
	}
	return graphdata.Null, mewerr.New("E2010", mewerr.CategoryType, mewerr.ErrTypeMismatch, "unevaluable expression")
}

func literalValue(l ast.Literal) graphdata.Value {
	switch l.Kind {
	case ast.KindNull:
		return graphdata.Null
	case ast.KindBool:
		return graphdata.Bool(l.B)
	case ast.KindInt:
		return graphdata.Int(l.I)
	case ast.KindFloat:
		return graphdata.Float(l.F)
	case ast.KindString:
		return graphdata.Str(l.S)
	case ast.KindTimestamp:
		return graphdata.Timestamp(l.I)
	}
	return graphdata.Null
}

func evalAttrRef(ctx *EvalCtx, n *ast.AttrRef) (graphdata.Value, error) {
	ref, ok := ctx.Binding[n.Var]
	if !ok {
		return graphdata.Null, nil
	}
	attrID, ok := ctx.Reg.AttrID(n.Attr)
	if !ok {
		return graphdata.Null, nil
	}
	if ref.IsEdge {
		e, ok := ctx.Store.GetEdge(ctx.Buf, ref.Edge)
		if !ok {
			return graphdata.Null, nil
		}
		return e.Attr(attrID), nil
	}
	nd, ok := ctx.Store.GetNode(ctx.Buf, ref.Node)
	if !ok {
		return graphdata.Null, nil
	}
	return nd.Attr(attrID), nil
}

func evalUnary(ctx *EvalCtx, n *ast.UnaryExpr) (graphdata.Value, error) {
	v, err := Eval(ctx, n.Operand)
	if err != nil {
		return graphdata.Null, err
	}
	switch n.Op {
	case ast.OpNot:
		if v.IsNull() {
			return graphdata.Null, nil
		}
		return graphdata.Bool(!truthy(v)), nil
	case ast.OpNeg:
		if v.IsNull() {
			return graphdata.Null, nil
		}
		switch v.Kind {
		case ast.KindInt:
			return graphdata.Int(-v.I), nil
		case ast.KindFloat:
			return graphdata.Float(-v.F), nil
		}
	}
	return graphdata.Null, mewerr.New("E2011", mewerr.CategoryType, mewerr.ErrTypeMismatch, "unary op on non-numeric value").WithLoc(n.Loc)
}

func truthy(v graphdata.Value) bool {
	return v.Kind == ast.KindBool && v.B
}

// evalBinary implements and/or short-circuit three-valued logic;
// null=null is true; null=x (x!=null) is false; null<x is false;
// Int/Float cross-kind arithmetic coerces Int to Float; integer division
// truncates toward zero and division by zero on integers is an
// ArithmeticError, on floats yields IEEE infinity/NaN; ++ is string
// concatenation.
func evalBinary(ctx *EvalCtx, n *ast.BinaryExpr) (graphdata.Value, error) {
	switch n.Op {
	case ast.OpAnd:
		return evalAnd(ctx, n)
	case ast.OpOr:
		return evalOr(ctx, n)
	}

	l, err := Eval(ctx, n.Left)
	if err != nil {
		return graphdata.Null, err
	}
	r, err := Eval(ctx, n.Right)
	if err != nil {
		return graphdata.Null, err
	}

	switch n.Op {
	case ast.OpEq:
		return graphdata.Bool(valuesEqual(l, r)), nil
	case ast.OpNeq:
		return graphdata.Bool(!valuesEqual(l, r)), nil
	case ast.OpLt, ast.OpLeq, ast.OpGt, ast.OpGeq:
		if l.IsNull() || r.IsNull() {
			return graphdata.Bool(false), nil
		}
		return graphdata.Bool(compare(n.Op, l, r)), nil
	case ast.OpConcat:
		if l.IsNull() || r.IsNull() {
			return graphdata.Null, nil
		}
		return graphdata.Str(l.String() + r.String()), nil
	}

	// Arithmetic: null-propagating.
	if l.IsNull() || r.IsNull() {
		return graphdata.Null, nil
	}
	return evalArith(n, l, r)
}

func evalAnd(ctx *EvalCtx, n *ast.BinaryExpr) (graphdata.Value, error) {
	l, err := Eval(ctx, n.Left)
	if err != nil {
		return graphdata.Null, err
	}
	if !l.IsNull() && !truthy(l) {
		return graphdata.Bool(false), nil // false and anything -> false
	}
	r, err := Eval(ctx, n.Right)
	if err != nil {
		return graphdata.Null, err
	}
	if !r.IsNull() && !truthy(r) {
		return graphdata.Bool(false), nil
	}
	if l.IsNull() || r.IsNull() {
		return graphdata.Null, nil
	}
	return graphdata.Bool(true), nil
}

func evalOr(ctx *EvalCtx, n *ast.BinaryExpr) (graphdata.Value, error) {
	l, err := Eval(ctx, n.Left)
	if err != nil {
		return graphdata.Null, err
	}
	if !l.IsNull() && truthy(l) {
		return graphdata.Bool(true), nil // true or anything -> true
	}
	r, err := Eval(ctx, n.Right)
	if err != nil {
		return graphdata.Null, err
	}
	if !r.IsNull() && truthy(r) {
		return graphdata.Bool(true), nil
	}
	if l.IsNull() || r.IsNull() {
		return graphdata.Null, nil
	}
	return graphdata.Bool(false), nil
}

// valuesEqual implements "null = null -> true", "null = x -> false".
func valuesEqual(l, r graphdata.Value) bool {
	if l.IsNull() && r.IsNull() {
		return true
	}
	if l.IsNull() || r.IsNull() {
		return false
	}
	return l.Equal(r)
}

func compare(op ast.BinOp, l, r graphdata.Value) bool {
	var less, eq bool
	if isNumeric(l) && isNumeric(r) {
		lf, rf := l.AsFloat(), r.AsFloat()
		less, eq = lf < rf, lf == rf
	} else {
		less, eq = l.Less(r), l.Equal(r)
	}
	switch op {
	case ast.OpLt:
		return less
	case ast.OpLeq:
		return less || eq
	case ast.OpGt:
		return !less && !eq
	case ast.OpGeq:
		return !less
	}
	return false
}

func isNumeric(v graphdata.Value) bool {
	return v.Kind == ast.KindInt || v.Kind == ast.KindFloat || v.Kind == ast.KindTimestamp
}

func evalArith(n *ast.BinaryExpr, l, r graphdata.Value) (graphdata.Value, error) {
	bothInt := l.Kind == ast.KindInt && r.Kind == ast.KindInt
	if bothInt {
		switch n.Op {
		case ast.OpAdd:
			return graphdata.Int(l.I + r.I), nil
		case ast.OpSub:
			return graphdata.Int(l.I - r.I), nil
		case ast.OpMul:
			return graphdata.Int(l.I * r.I), nil
		case ast.OpDiv, ast.OpDivInt:
			if r.I == 0 {
				return graphdata.Null, mewerr.New("E2012", mewerr.CategoryType, mewerr.ErrArithmetic,
					"integer division by zero").WithLoc(n.Loc)
			}
			return graphdata.Int(l.I / r.I), nil // Go truncates toward zero
		case ast.OpMod:
			if r.I == 0 {
				return graphdata.Null, mewerr.New("E2012", mewerr.CategoryType, mewerr.ErrArithmetic,
					"integer modulo by zero").WithLoc(n.Loc)
			}
			return graphdata.Int(l.I % r.I), nil
		}
	}

	if !isNumeric(l) || !isNumeric(r) {
		return graphdata.Null, mewerr.New("E2013", mewerr.CategoryType, mewerr.ErrTypeMismatch,
			"arithmetic on non-numeric value").WithLoc(n.Loc)
	}
	lf, rf := l.AsFloat(), r.AsFloat()
	switch n.Op {
	case ast.OpAdd:
		return graphdata.Float(lf + rf), nil
	case ast.OpSub:
		return graphdata.Float(lf - rf), nil
	case ast.OpMul:
		return graphdata.Float(lf * rf), nil
	case ast.OpDiv:
		return graphdata.Float(lf / rf), nil // IEEE inf/NaN on zero divisor
	case ast.OpDivInt:
		return graphdata.Float(math.Trunc(lf / rf)), nil
	case ast.OpMod:
		return graphdata.Float(math.Mod(lf, rf)), nil
	}
	return graphdata.Null, mewerr.New("E2014", mewerr.CategoryType, mewerr.ErrTypeMismatch, "unsupported operator").WithLoc(n.Loc)
}

// evalCall handles non-aggregate scalar functions. COUNT/SUM/AVG/MIN/MAX
// are aggregates handled by package planner over a group of bindings,
// not here.
func evalCall(ctx *EvalCtx, n *ast.CallExpr) (graphdata.Value, error) {
	switch n.Name {
	case "now", "wall_time":
		return graphdata.Timestamp(ctx.now()), nil
	case "coalesce":
		for _, a := range n.Args {
			v, err := Eval(ctx, a)
			if err != nil {
				return graphdata.Null, err
			}
			if !v.IsNull() {
				return v, nil
			}
		}
		return graphdata.Null, nil
	}
	return graphdata.Null, mewerr.New("E2015", mewerr.CategoryType, mewerr.ErrTypeMismatch,
		"unknown function "+n.Name).WithLoc(n.Loc)
}

// Truthy reports whether a WHERE/filter expression's evaluated value
// should keep the binding (null and false are both rejected).
func Truthy(v graphdata.Value) bool {
	return !v.IsNull() && truthy(v)
}

// ResolveEntityRef evaluates an expression expected to denote an entity
// (a `#id` literal, a bound variable, or a `$param` holding an id
// string) into a graphdata.Ref, trying the node namespace then the edge
// namespace. Used by KILL/LINK/UNLINK/SET target resolution.
func ResolveEntityRef(ctx *EvalCtx, e ast.Expr) (graphdata.Ref, bool) {
	var idStr string
	switch n := e.(type) {
	case *ast.VarRef:
		if ref, ok := ctx.Binding[n.Name]; ok {
			return ref, true
		}
		return graphdata.Ref{}, false
	case *ast.IDRef:
		idStr = n.ID
	case *ast.ParamRef:
		if v, ok := ctx.Params[n.Name]; ok && v.Kind == ast.KindString {
			idStr = v.S
		} else {
			return graphdata.Ref{}, false
		}
	default:
		v, err := Eval(ctx, e)
		if err != nil || v.Kind != ast.KindString {
			return graphdata.Ref{}, false
		}
		idStr = v.S
	}

	if _, ok := ctx.Store.GetNode(ctx.Buf, graphdata.NodeID(idStr)); ok {
		return graphdata.NodeRef(graphdata.NodeID(idStr)), true
	}
	if _, ok := ctx.Store.GetEdge(ctx.Buf, graphdata.EdgeID(idStr)); ok {
		return graphdata.EdgeRef(graphdata.EdgeID(idStr)), true
	}
	return graphdata.Ref{}, false
}
