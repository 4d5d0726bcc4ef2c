package mutate

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
)

// Set changes one or more attributes on every entity the target clause
// resolves to. Each assignment is re-validated exactly as
// SPAWN/LINK validate a fresh value: declared, kind-correct, and
// range/enum/pattern/length/uniqueness compliant against the entity's
// post-assignment state.
func Set(c *Ctx, a *ast.Set) (*Outcome, error) {
	refs, err := resolveTargetSet(c, a.Target.IDExpr, a.Target.Pattern, a.Target.Var, a.Loc)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, mewerr.NotFound("SET target resolved to nothing").WithLoc(a.Loc)
	}

	values, err := evalAttrAssigns(c, a.Attrs)
	if err != nil {
		return nil, err
	}

	for _, ref := range refs {
		if ref.IsEdge {
			if err := setEdge(c, ref.Edge, values, a.Loc); err != nil {
				return nil, err
			}
			continue
		}
		if err := setNode(c, ref.Node, values, a.Loc); err != nil {
			return nil, err
		}
	}

	out := &Outcome{
		Refs:   refs,
		Counts: Counts{Modified: len(refs)},
	}
	if len(a.Returning) > 0 {
		out.Returning = buildReturning(c, a.Returning, refs[0])
	}
	return out, nil
}

func setNode(c *Ctx, id graphdata.NodeID, values map[string]graphdata.Value, loc ast.Location) error {
	n, ok := c.Store.GetNode(c.Buf, id)
	if !ok {
		return mewerr.NotFound("SET target node not found").WithLoc(loc)
	}
	n = n.Clone()
	attrDefs := c.Reg.Types.AllAttrs(n.TypeID)

	dirty := false
	for name, v := range values {
		attrID, ok := c.Reg.AttrID(name)
		if !ok {
			return typeErr("E4012", "unknown attribute \""+name+"\"", loc)
		}
		if _, declared := attrDefs[attrID]; !declared {
			return typeErr("E4012", "attribute \""+name+"\" is not declared on this node's type", loc)
		}
		if !n.Attr(attrID).Equal(v) {
			n.SetAttr(attrID, v)
			dirty = true
		}
	}

	for attrID, def := range attrDefs {
		v := n.Attr(attrID)
		if err := checkValue(def, v, loc); err != nil {
			return err
		}
		if def.Unique && !v.IsNull() {
			if claimedBy, claimed := c.Store.AttrUnique(c.Buf, n.TypeID, attrID, v, id); claimed {
				return mewerr.New("E4013", mewerr.CategoryConstraint, mewerr.ErrUniqueCollision,
					"attribute \""+def.Name+"\" collides with existing node "+string(claimedBy)).WithLoc(loc)
			}
		}
	}

	// Assigning an identical value is a no-op: nothing staged, version
	// unchanged, so SET is idempotent and a stamp-style rule quiesces.
	if !dirty {
		return nil
	}
	n.Version++
	c.Buf.StageNode(n)
	return nil
}

func setEdge(c *Ctx, id graphdata.EdgeID, values map[string]graphdata.Value, loc ast.Location) error {
	e, ok := c.Store.GetEdge(c.Buf, id)
	if !ok {
		return mewerr.NotFound("SET target edge not found").WithLoc(loc)
	}
	ed, ok := c.Reg.EdgeTypes.ByID(e.TypeID)
	if !ok {
		return mewerr.Internal("edge references an unknown edge type").WithLoc(loc)
	}
	e = e.Clone()

	dirty := false
	for name, v := range values {
		attrID, ok := c.Reg.AttrID(name)
		if !ok {
			return typeErr("E4026", "unknown edge attribute \""+name+"\"", loc)
		}
		if _, declared := ed.Attrs[attrID]; !declared {
			return typeErr("E4026", "attribute \""+name+"\" is not declared on edge \""+ed.Name+"\"", loc)
		}
		if !e.Attr(attrID).Equal(v) {
			e.SetAttr(attrID, v)
			dirty = true
		}
	}

	for attrID, def := range ed.Attrs {
		if err := checkValue(def, e.Attr(attrID), loc); err != nil {
			return err
		}
	}

	if !dirty {
		return nil
	}
	e.Version++
	c.Buf.StageEdge(e)
	return nil
}
