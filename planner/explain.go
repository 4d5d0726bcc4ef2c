package planner

import (
	"fmt"
	"strings"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
)

// Describe renders the execution pipeline an observation statement would
// run, one operator per row, without executing anything. The planner has
// no separate physical-plan IR (pattern.Match picks access paths
// itself), so the description mirrors the fixed pipeline stages in the
// order they apply.
func Describe(c *Ctx, stmt ast.Statement) *Result {
	var steps []string
	switch s := stmt.(type) {
	case *ast.Match:
		steps = describeMatch(c, s)
	case *ast.Walk:
		steps = describeWalk(s)
	case *ast.Inspect:
		steps = []string{"inspect: direct read by id"}
	default:
		steps = []string{"no plan: statement is not an observation"}
	}

	rows := make([]Row, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, Row{"step": graphdata.Str(s)})
	}
	return &Result{Columns: []string{"step"}, Rows: rows}
}

func describeMatch(c *Ctx, m *ast.Match) []string {
	var steps []string
	for _, nv := range m.Pattern.Nodes {
		if nv.Any || nv.TypeName == "" {
			steps = append(steps, fmt.Sprintf("scan all nodes as %s", nv.Var))
			continue
		}
		access := "type scan"
		if td, ok := c.Reg.Types.ByName(nv.TypeName); ok {
			for attrID := range c.Reg.Types.AllAttrs(td.ID) {
				if c.Store.HasAttrIndex(td.ID, attrID) {
					access = "index-backed type scan"
					break
				}
			}
		}
		steps = append(steps, fmt.Sprintf("%s %s as %s", access, nv.TypeName, nv.Var))
	}
	for _, ep := range m.Pattern.Edges {
		kind := "traverse"
		if ep.Negated {
			kind = "anti-join"
		}
		if ep.Transitive != ast.TransitiveNone {
			kind = "transitive closure"
		}
		steps = append(steps, fmt.Sprintf("%s %s(%s)", kind, ep.TypeName, strings.Join(ep.Positions, ", ")))
	}
	if n := len(m.Pattern.Filters); n > 0 {
		steps = append(steps, fmt.Sprintf("filter %d predicate(s)", n))
	}
	if hasAggregate(m.Projection) {
		steps = append(steps, "aggregate: group by non-aggregated projections")
	}
	steps = append(steps, fmt.Sprintf("project %d column(s)", len(m.Projection)))
	if m.Distinct {
		steps = append(steps, "distinct")
	}
	if len(m.OrderBy) > 0 {
		steps = append(steps, fmt.Sprintf("sort by %d key(s)", len(m.OrderBy)))
	}
	if m.Limit > 0 || m.Offset > 0 {
		steps = append(steps, fmt.Sprintf("limit %d offset %d", m.Limit, m.Offset))
	}
	return steps
}

func describeWalk(w *ast.Walk) []string {
	follow := strings.Join(w.EdgeTypes, ", ")
	if w.AnyEdge {
		follow = "*"
	}
	strategy := "bfs"
	if w.Strategy == ast.WalkDFS {
		strategy = "dfs"
	}
	return []string{
		fmt.Sprintf("walk from %d start(s)", len(w.Starts)),
		fmt.Sprintf("follow %s, depth %d..%d, %s", follow, w.MinDepth, w.MaxDepth, strategy),
	}
}
