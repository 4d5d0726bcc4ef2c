package constraint

import (
	"fmt"

	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// CheckCardinality validates edge-cardinality lower bounds at the commit
// boundary, over the committed state merged with buf. Lower bounds are
// inherently deferred: a SPAWN and the LINK that satisfies it may arrive
// in either order within one transaction, so only the final combined
// view can be judged. Upper bounds are enforced immediately by LINK and
// are not re-checked here.
//
// A bound applies to every node-typed position, mirroring how LINK
// applies MaxCard per position: each live node whose type satisfies the
// position's signature must appear in at least MinCard live edges of the
// type at that position.
func CheckCardinality(s *store.Store, buf *store.Buffer, reg *registry.Registries, types map[graphdata.TypeID]bool, edgeTypes map[graphdata.EdgeTypeID]bool) error {
	for _, ed := range reg.EdgeTypes.All() {
		if !ed.HasMinCard {
			continue
		}
		if !cardinalityAffected(reg, ed, types, edgeTypes) {
			continue
		}
		for pos, param := range ed.Params {
			if param.IsEdge {
				continue
			}
			for _, n := range s.NodesOfTypes(buf, reg.Types.Subtypes(param.TypeID)) {
				count := len(s.EdgesByTarget(buf, ed.ID, pos, graphdata.NodeRef(n.ID)))
				if count < ed.MinCard {
					return mewerr.New("E4032", mewerr.CategoryConstraint, mewerr.ErrCardinality,
						fmt.Sprintf("edge \"%s\" requires at least %d edge(s) at position \"%s\"; node %s has %d",
							ed.Name, ed.MinCard, param.Role, n.ID, count)).
						WithContext(map[string]interface{}{"edge_type": ed.Name, "position": param.Role, "node": string(n.ID)})
				}
			}
		}
	}
	return nil
}

// cardinalityAffected reports whether a transaction that touched the
// given node/edge types could have changed whether ed's lower bound
// holds: linking/unlinking edges of the type, or creating/killing nodes
// of any position's signature type.
func cardinalityAffected(reg *registry.Registries, ed *registry.EdgeTypeDef, types map[graphdata.TypeID]bool, edgeTypes map[graphdata.EdgeTypeID]bool) bool {
	if edgeTypes[ed.ID] {
		return true
	}
	for _, param := range ed.Params {
		if param.IsEdge {
			continue
		}
		for sub := range reg.Types.Subtypes(param.TypeID) {
			if types[sub] {
				return true
			}
		}
	}
	return false
}
