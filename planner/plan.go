/*
 * MEW
 *
 * Package planner implements the Query Planner/Executor: it runs MATCH
 * observations (pattern binding -> projection -> distinct -> order ->
 * limit/offset, with optional aggregation), WALK procedural traversals,
 * and INSPECT direct-by-id reads against a store.Store snapshot plus an
 * in-flight transaction Buffer.
 *
 * There is no separate cost-based operator tree here: pattern.Match
 * already picks the cheapest available access path per edge/node
 * position (index lookup over type scan), so the executor above it is a
 * straightforward pipeline of plain Go slices rather than a distinct
 * physical-plan IR.
 */
package planner

import (
	"sort"
	"time"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/pattern"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// Row is one projected result row: column name -> value, in Columns order.
type Row map[string]graphdata.Value

// Stats describes an observation's execution for the result envelope:
// pattern matches considered, rows returned, wall-clock spent. Ms is
// stamped by the caller that owns the clock.
type Stats struct {
	Matches  int
	Returned int
	Ms       int64
}

// Result is what an observation statement produces: the ordered column
// names (for stable display), the rows themselves, and execution stats.
type Result struct {
	Columns []string
	Rows    []Row
	Stats   Stats
}

// Ctx bundles what every planner entry point needs.
type Ctx struct {
	Store      *store.Store
	Buf        *store.Buffer
	Reg        *registry.Registries
	Params     map[string]graphdata.Value
	Now        func() int64
	MaxResults int // max_unbounded_results; 0 means unlimited
	MaxCollect int // max_collect_size; 0 means unlimited
}

func (c *Ctx) evalCtx(b pattern.Binding) *pattern.EvalCtx {
	return &pattern.EvalCtx{Store: c.Store, Buf: c.Buf, Reg: c.Reg, Params: c.Params, Binding: b, Now: c.Now}
}

// ExecMatch runs a MATCH statement to completion: collect bindings,
// project, optionally aggregate, distinct, order, limit/offset. A
// TIMEOUT budget is checked between bindings: when exceeded the whole
// query fails with Timeout, never partial results.
func ExecMatch(c *Ctx, m *ast.Match) (*Result, error) {
	compiled := pattern.Compile(c.Reg, m.Pattern)

	var deadline time.Time
	if m.TimeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(m.TimeoutMs) * time.Millisecond)
	}

	var bindings []pattern.Binding
	var matchErr error
	pattern.Match(c.evalCtx(nil), compiled, func(b pattern.Binding) bool {
		if !deadline.IsZero() && time.Now().After(deadline) {
			matchErr = mewerr.LimitExceeded("E5001", mewerr.ErrTimeout,
				"query exceeded its TIMEOUT budget")
			return false
		}
		bindings = append(bindings, b)
		if c.MaxResults > 0 && len(bindings) > c.MaxResults && m.Limit == 0 && !hasAggregate(m.Projection) {
			matchErr = mewerr.LimitExceeded("E5004", mewerr.ErrUnboundedResult,
				"max_unbounded_results exceeded; add LIMIT or a narrower pattern")
			return false
		}
		return true
	})
	if matchErr != nil {
		return nil, matchErr
	}

	cols := columnNames(m.Projection, m.Aliases)

	var rows []Row
	var err error
	if hasAggregate(m.Projection) {
		rows, err = evalAggregated(c, m, bindings, cols)
	} else {
		rows, err = evalPlain(c, m.Projection, bindings, cols)
	}
	if err != nil {
		return nil, err
	}

	if m.Distinct {
		rows = distinctRows(rows, cols)
	}
	if len(m.OrderBy) > 0 {
		if err := sortRows(c, rows, m.OrderBy); err != nil {
			return nil, err
		}
	}
	rows = paginate(rows, m.Offset, m.Limit)

	return &Result{Columns: cols, Rows: rows, Stats: Stats{Matches: len(bindings), Returned: len(rows)}}, nil
}

func columnNames(proj []ast.Expr, aliases []string) []string {
	cols := make([]string, len(proj))
	for i, e := range proj {
		if i < len(aliases) && aliases[i] != "" {
			cols[i] = aliases[i]
			continue
		}
		cols[i] = exprLabel(e)
	}
	return cols
}

// exprLabel derives a default column name from a projection expression,
// matching the common convention of naming a column after a bare
// variable or attribute reference (e.g. `t.title` -> "title").
func exprLabel(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.VarRef:
		return v.Name
	case *ast.AttrRef:
		return v.Attr
	case *ast.CallExpr:
		return v.Name
	default:
		return "expr"
	}
}

func evalPlain(c *Ctx, proj []ast.Expr, bindings []pattern.Binding, cols []string) ([]Row, error) {
	rows := make([]Row, 0, len(bindings))
	for _, b := range bindings {
		row := make(Row, len(proj))
		ectx := c.evalCtx(b)
		for i, e := range proj {
			v, err := pattern.Eval(ectx, e)
			if err != nil {
				return nil, err
			}
			row[cols[i]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func paginate(rows []Row, offset, limit int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func distinctRows(rows []Row, cols []string) []Row {
	seen := make(map[string]bool, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		key := rowKey(r, cols)
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

func rowKey(r Row, cols []string) string {
	var b []byte
	for _, c := range cols {
		b = append(b, []byte(r[c].String())...)
		b = append(b, 0)
	}
	return string(b)
}

func sortRows(c *Ctx, rows []Row, keys []ast.SortKey) error {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			li, lj := rowSortValue(rows[i], k), rowSortValue(rows[j], k)
			if li.Equal(lj) {
				continue
			}
			if k.Desc {
				return lj.Less(li)
			}
			return li.Less(lj)
		}
		return false
	})
	return nil
}

// rowSortValue resolves a SortKey expression against a row that has
// already been projected. Supported forms are a bare projected column
// reference (VarRef/AttrRef/CallExpr matching exprLabel) — the common
// case for `ORDER BY <projected column>`.
func rowSortValue(r Row, k ast.SortKey) graphdata.Value {
	if v, ok := r[exprLabel(k.Expr)]; ok {
		return v
	}
	return graphdata.Null
}

func hasAggregate(proj []ast.Expr) bool {
	for _, e := range proj {
		if call, ok := e.(*ast.CallExpr); ok && isAggregateName(call.Name) {
			return true
		}
	}
	return false
}

func isAggregateName(name string) bool {
	switch name {
	case "count", "sum", "avg", "min", "max", "collect":
		return true
	default:
		return false
	}
}
