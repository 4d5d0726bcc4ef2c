package planner

import (
	"strings"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/pattern"
)

// evalAggregated groups bindings by their non-aggregate projected values
// (the group-by key is derived from the non-aggregated projections) and
// computes each aggregate projection over every group.
func evalAggregated(c *Ctx, m *ast.Match, bindings []pattern.Binding, cols []string) ([]Row, error) {
	isAgg := make([]bool, len(m.Projection))
	for i, e := range m.Projection {
		if call, ok := e.(*ast.CallExpr); ok && isAggregateName(call.Name) {
			isAgg[i] = true
		}
	}

	type group struct {
		keyVals  []graphdata.Value
		bindings []pattern.Binding
	}
	var order []string
	groups := make(map[string]*group)

	for _, b := range bindings {
		ectx := c.evalCtx(b)
		keyVals := make([]graphdata.Value, 0, len(m.Projection))
		var keyBuf strings.Builder
		for i, e := range m.Projection {
			if isAgg[i] {
				continue
			}
			v, err := pattern.Eval(ectx, e)
			if err != nil {
				return nil, err
			}
			keyVals = append(keyVals, v)
			keyBuf.WriteString(v.String())
			keyBuf.WriteByte(0)
		}
		k := keyBuf.String()
		g, ok := groups[k]
		if !ok {
			g = &group{keyVals: keyVals}
			groups[k] = g
			order = append(order, k)
		}
		g.bindings = append(g.bindings, b)
	}

	rows := make([]Row, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := make(Row, len(cols))
		keyPos := 0
		for i, e := range m.Projection {
			if !isAgg[i] {
				row[cols[i]] = g.keyVals[keyPos]
				keyPos++
				continue
			}
			v, err := evalAggExpr(c, e.(*ast.CallExpr), g.bindings)
			if err != nil {
				return nil, err
			}
			row[cols[i]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func evalAggExpr(c *Ctx, call *ast.CallExpr, group []pattern.Binding) (graphdata.Value, error) {
	switch call.Name {
	case "count":
		if len(call.Args) == 0 {
			return graphdata.Int(int64(len(group))), nil
		}
		n := 0
		for _, b := range group {
			v, err := pattern.Eval(c.evalCtx(b), call.Args[0])
			if err != nil {
				return graphdata.Null, err
			}
			if !v.IsNull() {
				n++
			}
		}
		return graphdata.Int(int64(n)), nil

	case "sum", "avg":
		if len(call.Args) != 1 {
			return graphdata.Null, mewerr.Internal(call.Name + "() expects exactly one argument")
		}
		var sum float64
		var n int
		allInt := true
		for _, b := range group {
			v, err := pattern.Eval(c.evalCtx(b), call.Args[0])
			if err != nil {
				return graphdata.Null, err
			}
			if v.IsNull() {
				continue
			}
			if v.Kind != ast.KindInt && v.Kind != ast.KindFloat {
				return graphdata.Null, mewerr.TypeErr("E4060", call.Name+"() requires a numeric argument")
			}
			if v.Kind != ast.KindInt {
				allInt = false
			}
			sum += v.AsFloat()
			n++
		}
		if call.Name == "sum" {
			if allInt {
				return graphdata.Int(int64(sum)), nil
			}
			return graphdata.Float(sum), nil
		}
		if n == 0 {
			return graphdata.Null, nil
		}
		return graphdata.Float(sum / float64(n)), nil

	case "min", "max":
		if len(call.Args) != 1 {
			return graphdata.Null, mewerr.Internal(call.Name + "() expects exactly one argument")
		}
		var best graphdata.Value
		have := false
		for _, b := range group {
			v, err := pattern.Eval(c.evalCtx(b), call.Args[0])
			if err != nil {
				return graphdata.Null, err
			}
			if v.IsNull() {
				continue
			}
			if !have {
				best, have = v, true
				continue
			}
			if call.Name == "min" && v.Less(best) {
				best = v
			}
			if call.Name == "max" && best.Less(v) {
				best = v
			}
		}
		if !have {
			return graphdata.Null, nil
		}
		return best, nil

	case "collect":
		if len(call.Args) != 1 {
			return graphdata.Null, mewerr.Internal("collect() expects exactly one argument")
		}
		seen := make(map[string]bool)
		var parts []string
		for _, b := range group {
			v, err := pattern.Eval(c.evalCtx(b), call.Args[0])
			if err != nil {
				return graphdata.Null, err
			}
			if v.IsNull() {
				continue
			}
			if call.Distinct {
				s := v.String()
				if seen[s] {
					continue
				}
				seen[s] = true
			}
			if c.MaxCollect > 0 && len(parts) >= c.MaxCollect {
				return graphdata.Null, mewerr.LimitExceeded("E5005", mewerr.ErrCollectLimit,
					"max_collect_size exceeded in collect()")
			}
			parts = append(parts, v.String())
		}
		return graphdata.Str(strings.Join(parts, ",")), nil
	}
	return graphdata.Null, mewerr.Internal("unknown aggregate function \"" + call.Name + "\"")
}
