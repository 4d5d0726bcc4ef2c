package planner

import (
	"strings"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/pattern"
	"github.com/bdjafer/mew/store"
)

// walkVar is the variable name the current frontier node is bound to
// while evaluating a WALK statement's UNTIL expression.
const walkVar = "node"

// path is one traversal path from a start node, as an alternating
// node/edge trail, used to materialize WalkPaths results.
type path struct {
	nodes []graphdata.NodeID
	edges []graphdata.EdgeID
}

// ExecWalk runs a `WALK FROM ... FOLLOW ...` procedural traversal,
// expanding level by level from every start expression (under the DFS
// strategy each level's frontier is taken in reverse discovery order; the
// expansion itself stays level by level rather than depth-first),
// bounded by [MinDepth, MaxDepth] and stopped early at a node where
// Until evaluates true (that node becomes a terminal and is not
// expanded further). Each start visits a node at most once: a node
// already reached earlier in that start's walk is never re-expanded,
// which also bounds work on a cyclic graph.
func ExecWalk(c *Ctx, w *ast.Walk) (*Result, error) {
	edgeTypes, err := resolveEdgeTypes(c, w)
	if err != nil {
		return nil, err
	}

	minDepth, maxDepth := w.MinDepth, w.MaxDepth
	if maxDepth == 0 {
		maxDepth = 100
	}

	var starts []graphdata.NodeID
	for _, e := range w.Starts {
		ref, ok := pattern.ResolveEntityRef(c.evalCtx(nil), e)
		if !ok || ref.IsEdge {
			return nil, mewerr.NotFound("WALK start could not be resolved to a node")
		}
		starts = append(starts, ref.Node)
	}

	visitedNodes := make(map[graphdata.NodeID]bool)
	var resultNodes []graphdata.NodeID
	var resultEdges []graphdata.EdgeID
	var resultPaths []path
	var terminals []graphdata.NodeID
	seenEdges := make(map[graphdata.EdgeID]bool)

	for _, start := range starts {
		paths := []path{{nodes: []graphdata.NodeID{start}}}
		visitedThisStart := map[graphdata.NodeID]bool{start: true}
		depth := 0
		for len(paths) > 0 && depth <= maxDepth {
			if depth >= minDepth {
				for _, p := range paths {
					last := p.nodes[len(p.nodes)-1]
					if !visitedNodes[last] {
						visitedNodes[last] = true
						resultNodes = append(resultNodes, last)
					}
					resultPaths = append(resultPaths, p)
				}
			}

			var next []path
			for _, p := range paths {
				last := p.nodes[len(p.nodes)-1]
				if depth > 0 {
					until, err := evalUntil(c, w.Until, last)
					if err != nil {
						return nil, err
					}
					if until {
						terminals = append(terminals, last)
						continue
					}
				}
				if depth >= maxDepth {
					continue
				}
				for _, e := range adjacent(c, last, edgeTypes, w.Outbound, w.Inbound) {
					if !seenEdges[e.ID] {
						seenEdges[e.ID] = true
						resultEdges = append(resultEdges, e.ID)
					}
					for _, t := range e.Targets {
						if t.IsEdge || t.Node == last {
							continue
						}
						if visitedThisStart[t.Node] {
							continue
						}
						visitedThisStart[t.Node] = true
						next = append(next, path{
							nodes: append(append([]graphdata.NodeID(nil), p.nodes...), t.Node),
							edges: append(append([]graphdata.EdgeID(nil), p.edges...), e.ID),
						})
					}
				}
			}
			if w.Strategy == ast.WalkDFS {
				// DFS ordering: process the most recently discovered
				// frontier first by reversing before the next round.
				for i, j := 0, len(next)-1; i < j; i, j = i+1, j-1 {
					next[i], next[j] = next[j], next[i]
				}
			}
			paths = next
			depth++
		}
	}

	switch w.Returns {
	case ast.WalkNodes:
		return nodesResult(resultNodes), nil
	case ast.WalkEdges:
		return edgesResult(c, resultEdges), nil
	case ast.WalkTerminals:
		return nodesResult(terminals), nil
	case ast.WalkPaths:
		return pathsResult(resultPaths), nil
	}
	return nodesResult(resultNodes), nil
}

func evalUntil(c *Ctx, until ast.Expr, n graphdata.NodeID) (bool, error) {
	if until == nil {
		return false, nil
	}
	b := pattern.Binding{walkVar: graphdata.NodeRef(n)}
	v, err := pattern.Eval(c.evalCtx(b), until)
	if err != nil {
		return false, err
	}
	return pattern.Truthy(v), nil
}

func adjacent(c *Ctx, n graphdata.NodeID, types map[graphdata.EdgeTypeID]bool, outbound, inbound bool) []*graphdata.Edge {
	var out []*graphdata.Edge
	if outbound {
		out = append(out, c.Store.Adjacent(c.Buf, n, types, store.Outbound)...)
	}
	if inbound {
		out = append(out, c.Store.Adjacent(c.Buf, n, types, store.Inbound)...)
	}
	if !outbound && !inbound {
		out = append(out, c.Store.Adjacent(c.Buf, n, types, store.Outbound)...)
	}
	return out
}

func resolveEdgeTypes(c *Ctx, w *ast.Walk) (map[graphdata.EdgeTypeID]bool, error) {
	if w.AnyEdge || len(w.EdgeTypes) == 0 {
		return nil, nil
	}
	out := make(map[graphdata.EdgeTypeID]bool, len(w.EdgeTypes))
	for _, name := range w.EdgeTypes {
		ed, ok := c.Reg.EdgeTypes.ByName(name)
		if !ok {
			return nil, mewerr.New("E4020", mewerr.CategoryType, mewerr.ErrUnknownEdgeType,
				"unknown edge type \""+name+"\" in FOLLOW clause")
		}
		out[ed.ID] = true
	}
	return out, nil
}

func nodesResult(ids []graphdata.NodeID) *Result {
	rows := make([]Row, len(ids))
	for i, id := range ids {
		rows[i] = Row{"id": graphdata.Str(string(id))}
	}
	return &Result{Columns: []string{"id"}, Rows: rows}
}

func edgesResult(c *Ctx, ids []graphdata.EdgeID) *Result {
	rows := make([]Row, len(ids))
	for i, id := range ids {
		rows[i] = Row{"id": graphdata.Str(string(id))}
	}
	return &Result{Columns: []string{"id"}, Rows: rows}
}

func pathsResult(paths []path) *Result {
	rows := make([]Row, len(paths))
	for i, p := range paths {
		nodeIDs := make([]string, len(p.nodes))
		for j, n := range p.nodes {
			nodeIDs[j] = string(n)
		}
		rows[i] = Row{"path": graphdata.Str(strings.Join(nodeIDs, "->"))}
	}
	return &Result{Columns: []string{"path"}, Rows: rows}
}
