package mutate

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/pattern"
)

// Kill destroys one or more entities. A direct id/var
// target kills exactly one entity; a MATCH subquery target kills every
// distinct binding of its victim variable. Each victim node's incident
// edges are walked per their on_kill policy (unlink/cascade/prevent,
// CascadeOverride forcing cascade through `prevent` positions); a victim
// that is itself an edge is removed the same way UNLINK removes one,
// cascading to higher-order referrers.
func Kill(c *Ctx, a *ast.Kill) (*Outcome, error) {
	refs, err := resolveTargetSet(c, a.Target.IDExpr, a.Target.Pattern, a.Target.Var, a.Loc)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, mewerr.NotFound("KILL target resolved to nothing").WithLoc(a.Loc)
	}

	cs := newCascadeState(c.MaxCascade)
	for _, ref := range refs {
		if ref.IsEdge {
			if err := cs.deleteEdge(c, ref.Edge, a.Loc); err != nil {
				return nil, err
			}
			continue
		}
		if err := cs.killNode(c, ref.Node, a.CascadeOverride, a.Loc); err != nil {
			return nil, err
		}
	}

	outRefs := make([]graphdata.Ref, 0, len(refs))
	for id := range cs.killedNodes {
		outRefs = append(outRefs, graphdata.NodeRef(id))
	}
	for id := range cs.deletedEdges {
		outRefs = append(outRefs, graphdata.EdgeRef(id))
	}

	// Deleted counts the directly targeted victims; everything else the
	// cascade removed — cascade-killed nodes and unlinked edges — is
	// Cascaded, so the envelope separates what the caller asked for from
	// what the on_kill policies pulled in.
	direct := 0
	for _, ref := range refs {
		if ref.IsEdge {
			if cs.deletedEdges[ref.Edge] {
				direct++
			}
		} else if cs.killedNodes[ref.Node] {
			direct++
		}
	}
	out := &Outcome{
		Refs: outRefs,
		Counts: Counts{
			Deleted:  direct,
			Cascaded: len(cs.killedNodes) + len(cs.deletedEdges) - direct,
		},
	}
	if len(a.Returning) > 0 {
		out.Returning = buildReturning(c, a.Returning, refs[0])
	}
	return out, nil
}

// resolveTargetSet resolves a KILL/UNLINK/SET target clause to the set of
// entity refs it denotes: a single ref for the direct id/var form, or the
// distinct set of bindings of Var across every match of Pattern.
func resolveTargetSet(c *Ctx, idExpr ast.Expr, pat *ast.Pattern, v string, loc ast.Location) ([]graphdata.Ref, error) {
	if pat == nil {
		ref, ok := pattern.ResolveEntityRef(c.evalCtx(), idExpr)
		if !ok {
			return nil, mewerr.NotFound("target could not be resolved").WithLoc(loc)
		}
		return []graphdata.Ref{ref}, nil
	}

	compiled := pattern.Compile(c.Reg, pat)
	seen := make(map[graphdata.Ref]bool)
	var out []graphdata.Ref
	pattern.Match(c.evalCtx(), compiled, func(b pattern.Binding) bool {
		if ref, ok := b[v]; ok && !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
		return true
	})
	return out, nil
}
