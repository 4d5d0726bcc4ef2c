package pattern

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/store"
)

// checkTransitive evaluates a `+`/`*` edge pattern: cycle-safe
// breadth-first expansion between depth bounds (default 1..100; `*`
// additionally allows depth 0, i.e. the start node itself). Only binary
// (arity-2) edge patterns are supported.
func (m *matcher) checkTransitive(i int, ep ast.EdgePattern, b Binding) (bool, error) {
	if len(ep.Positions) != 2 {
		return false, nil
	}
	fromVar, toVar := ep.Positions[0], ep.Positions[1]
	fromRef, fromBound := lookupRef(b, fromVar)
	toRef, toBound := lookupRef(b, toVar)

	minDepth, maxDepth := ep.MinDepth, ep.MaxDepth
	if minDepth == 0 && maxDepth == 0 {
		minDepth, maxDepth = 1, 100
	}
	if ep.Transitive == ast.TransitiveStar {
		minDepth = 0
	} else if minDepth == 0 {
		minDepth = 1 // `+` means >= 1, never 0
	}

	typeIDs := m.edgeTypesFor(i)
	symmetric := anySymmetric(m.ctx, typeIDs)

	if fromBound {
		if minDepth == 0 && toBound && toRef == fromRef {
			return true, nil // `*` matches the start node against itself at depth 0
		}
		reachable := m.bfsReachable(fromRef, typeIDs, symmetric, minDepth, maxDepth)
		if toBound {
			return reachable[toRef], nil
		}
		// toVar unbound: would need to branch over every reachable node,
		// so report the existence check only (EXISTS-style use) and
		// leave toVar unbound.
		return len(reachable) > 0, nil
	}
	if toBound {
		reachable := m.bfsReachable(toRef, typeIDs, symmetric, minDepth, maxDepth)
		_ = reachable
		return false, nil // direction requires a from-anchor; unsupported combination
	}
	return false, nil
}

func lookupRef(b Binding, v string) (graphdata.Ref, bool) {
	if v == "_" {
		return graphdata.Ref{}, false
	}
	r, ok := b[v]
	return r, ok
}

func anySymmetric(ctx *EvalCtx, types map[graphdata.EdgeTypeID]bool) bool {
	for t := range types {
		if ed, ok := ctx.Reg.EdgeTypes.ByID(t); ok && ed.Symmetric {
			return true
		}
	}
	return false
}

// bfsReachable returns every node reachable from start within
// [minDepth, maxDepth] hops along edges of the given types, visiting
// each node at most once. Symmetric edge types are traversed in both
// directions.
func (m *matcher) bfsReachable(start graphdata.Ref, types map[graphdata.EdgeTypeID]bool, symmetric bool, minDepth, maxDepth int) map[graphdata.Ref]bool {
	out := make(map[graphdata.Ref]bool)
	if start.IsEdge {
		return out // transitive closure is defined over node chains
	}
	visited := map[graphdata.NodeID]bool{start.Node: true}
	frontier := []graphdata.NodeID{start.Node}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []graphdata.NodeID
		for _, id := range frontier {
			edges := m.ctx.Store.Adjacent(m.ctx.Buf, id, types, store.Outbound)
			if symmetric {
				edges = append(edges, m.ctx.Store.Adjacent(m.ctx.Buf, id, types, store.Inbound)...)
			}
			for _, e := range edges {
				for _, t := range e.Targets {
					if t.IsEdge || t.Node == id || visited[t.Node] {
						continue
					}
					visited[t.Node] = true
					next = append(next, t.Node)
					if depth >= minDepth {
						out[graphdata.NodeRef(t.Node)] = true
					}
				}
			}
		}
		frontier = next
	}
	return out
}
