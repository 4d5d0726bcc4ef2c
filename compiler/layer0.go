package compiler

import (
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// Layer-0 meta-schema names. Every declaration in the registries is
// mirrored as graph nodes/edges under these types, so the schema itself
// is queryable through MATCH like any other data.
const (
	metaType       = "_type"
	metaEdgeType   = "_edgetype"
	metaAttribute  = "_attribute"
	metaConstraint = "_constraint"
	metaRule       = "_rule"
	metaExtends    = "_extends"
	metaHasAttr    = "_has_attr"
)

// ensureMetaSchema declares the Layer-0 meta types and edges into reg.
// Declare skips names that already exist, so repeated compilation is a
// no-op.
func ensureMetaSchema(reg *registry.Registries) {
	boolAttr := func(td *registry.TypeDef, name string) {
		id := reg.AttrHandle(name)
		td.OwnAttrs[id] = &registry.AttrDef{ID: id, Name: name, Kind: registry.KindBool, DeclaredOn: td.Name}
	}
	intAttr := func(td *registry.TypeDef, name string) {
		id := reg.AttrHandle(name)
		td.OwnAttrs[id] = &registry.AttrDef{ID: id, Name: name, Kind: registry.KindInt, DeclaredOn: td.Name}
	}
	strAttr := func(td *registry.TypeDef, name string) {
		id := reg.AttrHandle(name)
		td.OwnAttrs[id] = &registry.AttrDef{ID: id, Name: name, Kind: registry.KindString, DeclaredOn: td.Name}
	}

	tType := reg.Types.Declare(metaType, false, nil)
	strAttr(tType, "name")
	boolAttr(tType, "abstract")

	tEdge := reg.Types.Declare(metaEdgeType, false, nil)
	strAttr(tEdge, "name")
	intAttr(tEdge, "arity")

	tAttr := reg.Types.Declare(metaAttribute, false, nil)
	strAttr(tAttr, "name")
	strAttr(tAttr, "kind")
	boolAttr(tAttr, "required")
	boolAttr(tAttr, "unique")
	boolAttr(tAttr, "indexed")

	tCons := reg.Types.Declare(metaConstraint, false, nil)
	strAttr(tCons, "name")
	boolAttr(tCons, "soft")
	boolAttr(tCons, "deferred")

	tRule := reg.Types.Declare(metaRule, false, nil)
	strAttr(tRule, "name")
	boolAttr(tRule, "auto")
	intAttr(tRule, "priority")

	ext := reg.EdgeTypes.Declare(metaExtends)
	if len(ext.Params) == 0 {
		ext.Params = []registry.EdgeParamDef{
			{Role: "sub", TypeID: tType.ID},
			{Role: "sup", TypeID: tType.ID},
		}
	}
	hasAttr := reg.EdgeTypes.Declare(metaHasAttr)
	if len(hasAttr.Params) == 0 {
		hasAttr.Params = []registry.EdgeParamDef{
			{Role: "owner", TypeID: tType.ID},
			{Role: "attr", TypeID: tAttr.ID},
		}
	}
}

// EmitLayer0 mirrors every registry declaration into s as `_`-prefixed
// meta nodes and edges, under deterministic ids so re-emission after an
// ontology extension (or a recovery replay) upserts rather than
// duplicates. The registries and the mirror agree after every ontology
// mutation because this runs on every publish.
func EmitLayer0(reg *registry.Registries, s *store.Store) {
	tType, _ := reg.Types.ByName(metaType)
	tEdge, _ := reg.Types.ByName(metaEdgeType)
	tAttr, _ := reg.Types.ByName(metaAttribute)
	tCons, _ := reg.Types.ByName(metaConstraint)
	tRule, _ := reg.Types.ByName(metaRule)
	eExtends, _ := reg.EdgeTypes.ByName(metaExtends)
	eHasAttr, _ := reg.EdgeTypes.ByName(metaHasAttr)

	nameAttr := reg.AttrHandle("name")
	buf := store.NewBuffer()

	typeNode := func(name string) graphdata.NodeID { return graphdata.NodeID(metaType + ":" + name) }

	for _, td := range reg.Types.All() {
		n := graphdata.NewNode(typeNode(td.Name), tType.ID)
		n.SetAttr(nameAttr, graphdata.Str(td.Name))
		n.SetAttr(reg.AttrHandle("abstract"), graphdata.Bool(td.Abstract))
		buf.StageNode(n)

		for _, pid := range td.Parents {
			pd, ok := reg.Types.ByID(pid)
			if !ok {
				continue
			}
			e := graphdata.NewEdge(graphdata.EdgeID(metaExtends+":"+td.Name+":"+pd.Name), eExtends.ID,
				[]graphdata.Ref{graphdata.NodeRef(typeNode(td.Name)), graphdata.NodeRef(typeNode(pd.Name))})
			buf.StageEdge(e)
		}

		for _, ad := range td.OwnAttrs {
			attrID := graphdata.NodeID(metaAttribute + ":" + td.Name + "." + ad.Name)
			n := graphdata.NewNode(attrID, tAttr.ID)
			n.SetAttr(nameAttr, graphdata.Str(ad.Name))
			n.SetAttr(reg.AttrHandle("kind"), graphdata.Str(ad.Kind.String()))
			n.SetAttr(reg.AttrHandle("required"), graphdata.Bool(ad.Required))
			n.SetAttr(reg.AttrHandle("unique"), graphdata.Bool(ad.Unique))
			n.SetAttr(reg.AttrHandle("indexed"), graphdata.Bool(ad.Indexed))
			buf.StageNode(n)

			e := graphdata.NewEdge(graphdata.EdgeID(metaHasAttr+":"+td.Name+":"+ad.Name), eHasAttr.ID,
				[]graphdata.Ref{graphdata.NodeRef(typeNode(td.Name)), graphdata.NodeRef(attrID)})
			buf.StageEdge(e)
		}
	}

	for _, ed := range reg.EdgeTypes.All() {
		n := graphdata.NewNode(graphdata.NodeID(metaEdgeType+":"+ed.Name), tEdge.ID)
		n.SetAttr(nameAttr, graphdata.Str(ed.Name))
		n.SetAttr(reg.AttrHandle("arity"), graphdata.Int(int64(len(ed.Params))))
		buf.StageNode(n)
	}

	for _, cd := range reg.Constraints.All() {
		n := graphdata.NewNode(graphdata.NodeID(metaConstraint+":"+cd.Name), tCons.ID)
		n.SetAttr(nameAttr, graphdata.Str(cd.Name))
		n.SetAttr(reg.AttrHandle("soft"), graphdata.Bool(cd.Soft))
		n.SetAttr(reg.AttrHandle("deferred"), graphdata.Bool(cd.Deferred))
		buf.StageNode(n)
	}

	for _, rd := range reg.Rules.All() {
		n := graphdata.NewNode(graphdata.NodeID(metaRule+":"+rd.Name), tRule.ID)
		n.SetAttr(nameAttr, graphdata.Str(rd.Name))
		n.SetAttr(reg.AttrHandle("auto"), graphdata.Bool(rd.Auto))
		n.SetAttr(reg.AttrHandle("priority"), graphdata.Int(int64(rd.Priority)))
		buf.StageNode(n)
	}

	s.Apply(buf, func(t graphdata.TypeID) []graphdata.AttrID {
		defs := reg.Types.AllAttrs(t)
		out := make([]graphdata.AttrID, 0, len(defs))
		for id := range defs {
			out = append(out, id)
		}
		return out
	})
}
