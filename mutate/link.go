package mutate

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/pattern"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// Link creates a new edge. Inline SPAWN target
// expressions are evaluated left-to-right first, buffering any new
// nodes, then the edge itself is validated: arity, per-position type,
// no-self, uniqueness (or IF NOT EXISTS reuse), checkable cardinality
// bounds, and acyclicity via a reachability search over the current
// edges, run at LINK time.
func Link(c *Ctx, a *ast.Link) (*Outcome, error) {
	ed, ok := c.Reg.EdgeTypes.ByName(a.EdgeType)
	if !ok {
		return nil, mewerr.New("E4020", mewerr.CategoryType, mewerr.ErrUnknownEdgeType,
			"unknown edge type \""+a.EdgeType+"\"").WithLoc(a.Loc)
	}
	if len(a.Targets) != ed.Arity() {
		return nil, mewerr.New("E4021", mewerr.CategoryType, mewerr.ErrArity,
			"edge \""+a.EdgeType+"\" expects arity").WithLoc(a.Loc)
	}

	targets := make([]graphdata.Ref, len(a.Targets))
	for i, t := range a.Targets {
		ref, err := resolveLinkTarget(c, t, ed.Params[i], a.Loc)
		if err != nil {
			return nil, err
		}
		targets[i] = ref
	}

	if ed.NoSelf {
		for i := 0; i < len(targets); i++ {
			for j := i + 1; j < len(targets); j++ {
				if targets[i].Equal(targets[j]) {
					return nil, mewerr.New("E4022", mewerr.CategoryConstraint, mewerr.ErrSelfReference,
						"edge \""+a.EdgeType+"\" disallows self reference").WithLoc(a.Loc)
				}
			}
		}
	}

	if existing, found := findExistingEdge(c, ed.ID, targets); found {
		if a.IfNotExists {
			ref := graphdata.EdgeRef(existing.ID)
			return &Outcome{Ref: ref, Created: false, Returning: buildReturning(c, a.Returning, ref)}, nil
		}
		if ed.Unique {
			return nil, mewerr.New("E4023", mewerr.CategoryConstraint, mewerr.ErrUniqueCollision,
				"edge \""+a.EdgeType+"\" already exists for these targets").WithLoc(a.Loc)
		}
	}

	if ed.Acyclic && len(targets) == 2 && !targets[0].IsEdge && !targets[1].IsEdge {
		if reachable(c, ed.ID, targets[1].Node, targets[0].Node) {
			return nil, mewerr.New("E4024", mewerr.CategoryConstraint, mewerr.ErrAcyclic,
				"edge \""+a.EdgeType+"\" is acyclic").WithLoc(a.Loc)
		}
	}

	if ed.HasMaxCard {
		for pos := range targets {
			if countEdgesAtPosition(c, ed.ID, pos, targets[pos]) >= ed.MaxCard {
				return nil, mewerr.New("E4025", mewerr.CategoryConstraint, mewerr.ErrCardinality,
					"edge \""+a.EdgeType+"\" exceeds max cardinality").WithLoc(a.Loc)
			}
		}
	}

	values, err := evalAttrAssigns(c, a.Attrs)
	if err != nil {
		return nil, err
	}

	id := graphdata.NewEdgeID()
	edge := graphdata.NewEdge(id, ed.ID, targets)
	for name, v := range values {
		attrID, ok := c.Reg.AttrID(name)
		if !ok {
			return nil, typeErr("E4026", "unknown edge attribute \""+name+"\"", a.Loc)
		}
		def, declared := ed.Attrs[attrID]
		if !declared {
			return nil, typeErr("E4026", "attribute \""+name+"\" is not declared on edge \""+a.EdgeType+"\"", a.Loc)
		}
		edge.SetAttr(attrID, v)
		_ = def
	}
	for attrID, def := range ed.Attrs {
		if err := checkValue(def, edge.Attr(attrID), a.Loc); err != nil {
			return nil, err
		}
	}

	c.Buf.StageEdge(edge)
	ref := graphdata.EdgeRef(id)
	return &Outcome{
		Ref:       ref,
		Created:   true,
		Counts:    Counts{Created: 1},
		Returning: buildReturning(c, a.Returning, ref),
	}, nil
}

func resolveLinkTarget(c *Ctx, t ast.LinkTargetExpr, param registry.EdgeParamDef, loc ast.Location) (graphdata.Ref, error) {
	if t.InlineSpawn != nil {
		out, err := Spawn(c, t.InlineSpawn)
		if err != nil {
			return graphdata.Ref{}, err
		}
		return out.Ref, nil
	}
	ref, ok := pattern.ResolveEntityRef(c.evalCtx(), t.Ref)
	if !ok {
		return graphdata.Ref{}, mewerr.New("E4027", mewerr.CategoryNotFound, mewerr.ErrNotFound,
			"LINK target could not be resolved").WithLoc(loc)
	}
	if err := checkParamType(c, param, ref, loc); err != nil {
		return graphdata.Ref{}, err
	}
	return ref, nil
}

func checkParamType(c *Ctx, param registry.EdgeParamDef, ref graphdata.Ref, loc ast.Location) error {
	if param.IsEdge {
		if !ref.IsEdge {
			return typeErr("E4028", "edge target expected an edge reference", loc)
		}
		return nil
	}
	if ref.IsEdge {
		return typeErr("E4028", "edge target expected a node reference", loc)
	}
	n, ok := c.Store.GetNode(c.Buf, ref.Node)
	if !ok {
		return mewerr.New("E4029", mewerr.CategoryNotFound, mewerr.ErrNotFound, "target node not found").WithLoc(loc)
	}
	if !c.Reg.Types.IsSubtype(n.TypeID, param.TypeID) {
		return typeErr("E4030", "target node's type does not satisfy the edge signature", loc)
	}
	return nil
}

// findExistingEdge looks for a live edge of type t whose target tuple
// equals targets (order respected unless the edge type is symmetric).
func findExistingEdge(c *Ctx, t graphdata.EdgeTypeID, targets []graphdata.Ref) (*graphdata.Edge, bool) {
	if len(targets) == 0 {
		return nil, false
	}
	candidates := c.Store.EdgesByTarget(c.Buf, t, 0, targets[0])
	for _, e := range candidates {
		if sameTargets(e.Targets, targets) {
			return e, true
		}
	}
	if ed, ok := c.Reg.EdgeTypes.ByID(t); ok && ed.Symmetric && len(targets) == 2 {
		reversed := []graphdata.Ref{targets[1], targets[0]}
		candidates = c.Store.EdgesByTarget(c.Buf, t, 0, reversed[0])
		for _, e := range candidates {
			if sameTargets(e.Targets, reversed) {
				return e, true
			}
		}
	}
	return nil, false
}

func sameTargets(a, b []graphdata.Ref) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func countEdgesAtPosition(c *Ctx, t graphdata.EdgeTypeID, pos int, ref graphdata.Ref) int {
	return len(c.Store.EdgesByTarget(c.Buf, t, pos, ref))
}

// reachable reports whether to is reachable from from by following
// edges of type t (used for the acyclic check: adding (from,to) must
// not let to reach back to from).
func reachable(c *Ctx, t graphdata.EdgeTypeID, from, to graphdata.NodeID) bool {
	visited := map[graphdata.NodeID]bool{from: true}
	frontier := []graphdata.NodeID{from}
	for len(frontier) > 0 {
		var next []graphdata.NodeID
		for _, id := range frontier {
			if id == to {
				return true
			}
			for _, e := range c.Store.Adjacent(c.Buf, id, map[graphdata.EdgeTypeID]bool{t: true}, store.Outbound) {
				for _, tgt := range e.Targets {
					if !tgt.IsEdge && !visited[tgt.Node] && tgt.Node != id {
						visited[tgt.Node] = true
						next = append(next, tgt.Node)
					}
				}
			}
		}
		frontier = next
	}
	return visited[to]
}
