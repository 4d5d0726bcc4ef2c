package mutate

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
)

// Spawn creates a new node of the declared type. Validates: the type is
// non-abstract, every required attribute is present (or defaulted to
// null, which then fails required-ness), every provided attribute
// exists on the type, and each value's runtime kind and modifiers hold.
func Spawn(c *Ctx, a *ast.Spawn) (*Outcome, error) {
	td, ok := c.Reg.Types.ByName(a.TypeName)
	if !ok {
		return nil, mewerr.New("E4010", mewerr.CategoryType, mewerr.ErrUnknownType,
			"unknown type \""+a.TypeName+"\"").WithLoc(a.Loc)
	}
	if td.Abstract {
		return nil, mewerr.New("E4011", mewerr.CategoryConstraint, mewerr.ErrAbstractType,
			"cannot SPAWN abstract type \""+a.TypeName+"\"").WithLoc(a.Loc)
	}

	values, err := evalAttrAssigns(c, a.Attrs)
	if err != nil {
		return nil, err
	}

	attrDefs := c.Reg.Types.AllAttrs(td.ID)
	id := graphdata.NewNodeID()
	node := graphdata.NewNode(id, td.ID)

	for name, v := range values {
		attrID, ok := c.Reg.AttrID(name)
		if !ok {
			return nil, typeErr("E4012", "unknown attribute \""+name+"\" on type \""+a.TypeName+"\"", a.Loc)
		}
		if _, declared := attrDefs[attrID]; !declared {
			return nil, typeErr("E4012", "attribute \""+name+"\" is not declared on type \""+a.TypeName+"\"", a.Loc)
		}
		node.SetAttr(attrID, v)
	}

	for attrID, def := range attrDefs {
		if err := checkValue(def, node.Attr(attrID), a.Loc); err != nil {
			return nil, err
		}
		if def.Unique {
			if claimedBy, claimed := c.Store.AttrUnique(c.Buf, td.ID, attrID, node.Attr(attrID), id); claimed {
				return nil, mewerr.New("E4013", mewerr.CategoryConstraint, mewerr.ErrUniqueCollision,
					"attribute \""+def.Name+"\" collides with existing node "+string(claimedBy)).WithLoc(a.Loc)
			}
		}
	}

	c.Buf.StageNode(node)
	if c.Binding != nil && a.Var != "" {
		c.Binding[a.Var] = graphdata.NodeRef(id)
	}

	ref := graphdata.NodeRef(id)
	return &Outcome{
		Ref:       ref,
		Counts:    Counts{Created: 1},
		Returning: buildReturning(c, a.Returning, ref),
	}, nil
}
