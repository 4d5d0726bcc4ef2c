package mutate

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
)

// Unlink removes one or more edges, cascading
// unconditionally to any higher-order edge that lists the removed edge
// among its own targets. Unlike KILL, UNLINK never consults an on_kill
// policy and never deletes a node.
func Unlink(c *Ctx, a *ast.Unlink) (*Outcome, error) {
	refs, err := resolveTargetSet(c, a.Target.IDExpr, a.Target.Pattern, a.Target.Var, a.Loc)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, mewerr.NotFound("UNLINK target resolved to nothing").WithLoc(a.Loc)
	}

	cs := newCascadeState(c.MaxCascade)
	for _, ref := range refs {
		if !ref.IsEdge {
			return nil, mewerr.New("E4031", mewerr.CategoryType, mewerr.ErrTypeMismatch,
				"UNLINK target is a node, not an edge").WithLoc(a.Loc)
		}
		if err := cs.deleteEdge(c, ref.Edge, a.Loc); err != nil {
			return nil, err
		}
	}

	outRefs := make([]graphdata.Ref, 0, len(cs.deletedEdges))
	for id := range cs.deletedEdges {
		outRefs = append(outRefs, graphdata.EdgeRef(id))
	}

	direct := 0
	for _, ref := range refs {
		if cs.deletedEdges[ref.Edge] {
			direct++
		}
	}
	out := &Outcome{
		Refs: outRefs,
		Counts: Counts{
			Deleted:  direct,
			Cascaded: len(cs.deletedEdges) - direct,
		},
	}
	if len(a.Returning) > 0 {
		out.Returning = buildReturning(c, a.Returning, refs[0])
	}
	return out, nil
}
