/*
 * MEW
 *
 * Package graphdata models the runtime values, nodes and edges that make
 * up the live graph, built on a typed scalar value union rather than
 * bare interface{} attributes.
 */
package graphdata

import (
	"fmt"
	"math"

	"github.com/bdjafer/mew/ast"
)

// Value is a scalar drawn from {null, bool, i64, f64, utf8, timestamp_ms}.
type Value struct {
	Kind ast.ValueKind
	B    bool
	I    int64
	F    float64
	S    string
}

// Null is the null value.
var Null = Value{Kind: ast.KindNull}

func Bool(b bool) Value         { return Value{Kind: ast.KindBool, B: b} }
func Int(i int64) Value         { return Value{Kind: ast.KindInt, I: i} }
func Float(f float64) Value     { return Value{Kind: ast.KindFloat, F: f} }
func Str(s string) Value        { return Value{Kind: ast.KindString, S: s} }
func Timestamp(ms int64) Value  { return Value{Kind: ast.KindTimestamp, I: ms} }

func (v Value) IsNull() bool { return v.Kind == ast.KindNull }

// AsFloat promotes Int/Float/Timestamp values to float64. It panics on
// other kinds; callers must check Kind first.
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case ast.KindInt, ast.KindTimestamp:
		return float64(v.I)
	case ast.KindFloat:
		return v.F
	}
	panic(fmt.Sprintf("AsFloat on non-numeric value %v", v.Kind))
}

// Equal implements the three-valued-logic-free structural equality used
// for index keys and uniqueness checks (not the `=` operator, which has
// its own null semantics in package pattern).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		// Int/Float cross-kind equality for index/uniqueness purposes.
		if (v.Kind == ast.KindInt || v.Kind == ast.KindFloat) &&
			(o.Kind == ast.KindInt || o.Kind == ast.KindFloat) {
			return v.AsFloat() == o.AsFloat()
		}
		return false
	}
	switch v.Kind {
	case ast.KindNull:
		return true
	case ast.KindBool:
		return v.B == o.B
	case ast.KindInt:
		return v.I == o.I
	case ast.KindFloat:
		return v.F == o.F || (math.IsNaN(v.F) && math.IsNaN(o.F))
	case ast.KindString:
		return v.S == o.S
	case ast.KindTimestamp:
		return v.I == o.I
	}
	return false
}

// Less provides a total order for range-scan index keys. Null sorts
// before everything.
func (v Value) Less(o Value) bool {
	if v.Kind == ast.KindNull {
		return o.Kind != ast.KindNull
	}
	if o.Kind == ast.KindNull {
		return false
	}
	switch v.Kind {
	case ast.KindBool:
		return !v.B && o.B
	case ast.KindInt, ast.KindFloat, ast.KindTimestamp:
		return v.AsFloat() < o.AsFloat()
	case ast.KindString:
		return v.S < o.S
	}
	return false
}

// String renders the value for logging/IndexMap purposes.
func (v Value) String() string {
	switch v.Kind {
	case ast.KindNull:
		return "null"
	case ast.KindBool:
		return fmt.Sprintf("%v", v.B)
	case ast.KindInt:
		return fmt.Sprintf("%d", v.I)
	case ast.KindFloat:
		return fmt.Sprintf("%g", v.F)
	case ast.KindString:
		return v.S
	case ast.KindTimestamp:
		return fmt.Sprintf("%d", v.I)
	}
	return ""
}
