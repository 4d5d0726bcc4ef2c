/*
 * MEW
 *
 * Package compiler turns an ontology AST into registries plus a Layer-0
 * graph mirror: resolve names, check types, expand modifiers into
 * constraints, validate, build registries, materialize indexes.
 */
package compiler

import (
	"fmt"
	"strings"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/registry"
)

// Compile loads onto into reg (which the caller has already cloned from
// the published Registries for EXTEND, or created fresh via registry.New
// for the first LOAD ONTOLOGY) and finalizes it. Existing declarations
// cannot be altered or removed: Compile only adds, and type, edge type
// and rule/constraint names that already exist in reg are left untouched
// rather than reported as redeclarations, so loading the same ontology
// twice is idempotent.
func Compile(onto *ast.Ontology, reg *registry.Registries) error {
	ensureMetaSchema(reg)

	preTypes, preEdges := make(map[string]bool), make(map[string]bool)
	for _, td := range onto.Types {
		_, preTypes[td.Name] = reg.Types.ByName(td.Name)
	}
	for _, ed := range onto.EdgeTypes {
		_, preEdges[ed.Name] = reg.EdgeTypes.ByName(ed.Name)
	}

	for _, td := range onto.Types {
		reg.Types.Declare(td.Name, td.Abstract, td.Parents)
	}

	for _, td := range onto.Types {
		if preTypes[td.Name] {
			continue
		}
		def, _ := reg.Types.ByName(td.Name)
		for _, ad := range td.Attrs {
			attrDef, err := compileAttr(reg, ad, td.Name)
			if err != nil {
				return err
			}
			def.OwnAttrs[attrDef.ID] = attrDef
		}
	}

	for _, ed := range onto.EdgeTypes {
		reg.EdgeTypes.Declare(ed.Name)
	}

	for _, ed := range onto.EdgeTypes {
		if preEdges[ed.Name] {
			continue
		}
		def, _ := reg.EdgeTypes.ByName(ed.Name)
		if err := compileEdgeType(reg, ed, def); err != nil {
			return err
		}
	}

	for _, cd := range onto.Constraints {
		if _, exists := reg.Constraints.ByName(cd.Name); exists {
			continue
		}
		affT, affE := affectedTypes(reg, cd.Pattern)
		reg.Constraints.Add(&registry.ConstraintDef{
			Name: cd.Name, Pattern: cd.Pattern, Cond: cd.Cond,
			Deferred: deferredConstraint(cd.Pattern),
			Soft:     cd.Soft, Message: cd.Message,
			AffectedTypes: affT, AffectedEdgeTypes: affE,
		})
	}

	for _, rd := range onto.Rules {
		if _, exists := reg.Rules.ByName(rd.Name); exists {
			continue
		}
		affT, affE := affectedTypes(reg, rd.Pattern)
		reg.Rules.Add(&registry.RuleDef{
			Name: rd.Name, Auto: rd.Auto, Priority: rd.Priority,
			Pattern: rd.Pattern, Production: rd.Actions,
			AffectedTypes: affT, AffectedEdgeTypes: affE,
		})
	}

	reg.Finalize()
	return nil
}

func compileAttr(reg *registry.Registries, ad ast.AttrDecl, owner string) (*registry.AttrDef, error) {
	kind, err := kindOf(ad.TypeName)
	if err != nil {
		return nil, mewerr.New("E2001", mewerr.CategoryType, mewerr.ErrTypeMismatch,
			fmt.Sprintf("unknown attribute type %q on %s.%s", ad.TypeName, owner, ad.Name)).WithLoc(ad.Loc)
	}

	def := &registry.AttrDef{
		ID:         reg.AttrHandle(ad.Name),
		Name:       ad.Name,
		Kind:       kind,
		Required:   !ad.Optional,
		DeclaredOn: owner,
	}

	for _, m := range ad.Modifiers {
		switch m.Name {
		case "required":
			def.Required = true
		case "unique":
			def.Unique = true
		case "indexed":
			def.Indexed = true
		case ">=":
			def.HasMin, def.Min = true, literalFloat(m.Args)
		case "<=":
			def.HasMax, def.Max = true, literalFloat(m.Args)
		case "enum":
			def.Enum = literalStrings(m.Args)
		case "pattern":
			def.Pattern = literalString(m.Args)
		case "length":
			def.HasMaxLen, def.MaxLen = true, int(literalFloat(m.Args))
		}
	}
	return def, nil
}

func compileEdgeType(reg *registry.Registries, ed ast.EdgeTypeDecl, def *registry.EdgeTypeDef) error {
	for _, p := range ed.Params {
		param := registry.EdgeParamDef{Role: p.Role, IsEdge: p.IsEdge}
		if p.IsEdge {
			if et, ok := reg.EdgeTypes.ByName(p.TypeName); ok {
				_ = et // higher-order target edge type; analyzer rejects a reference to an unknown edge type
			}
		} else if nt, ok := reg.Types.ByName(p.TypeName); ok {
			param.TypeID = nt.ID
		} else {
			return mewerr.New("E2002", mewerr.CategoryType, mewerr.ErrUnknownType,
				fmt.Sprintf("edge %s: unknown node type %q", ed.Name, p.TypeName)).WithLoc(p.Loc)
		}
		def.Params = append(def.Params, param)
	}

	for _, ad := range ed.Attrs {
		attrDef, err := compileAttr(reg, ad, ed.Name)
		if err != nil {
			return err
		}
		def.Attrs[attrDef.ID] = attrDef
	}

	for _, m := range ed.Modifiers {
		switch m.Name {
		case "unique":
			def.Unique = true
		case "symmetric":
			def.Symmetric = true
		case "no_self":
			def.NoSelf = true
		case "acyclic":
			def.Acyclic = true
		case "min_cardinality":
			def.HasMinCard, def.MinCard = true, int(literalFloat(m.Args))
		case "max_cardinality":
			def.HasMaxCard, def.MaxCard = true, int(literalFloat(m.Args))
		default:
			applyOnKill(def, m)
		}
	}
	return nil
}

// applyOnKill recognizes modifiers of the shape `on_kill_<role> = cascade
// | unlink | prevent` (spec's edge modifiers expanding to cascade rules).
func applyOnKill(def *registry.EdgeTypeDef, m ast.Modifier) {
	const prefix = "on_kill_"
	if len(m.Name) <= len(prefix) || m.Name[:len(prefix)] != prefix {
		return
	}
	role := m.Name[len(prefix):]
	policy := registry.OnKillUnlink
	switch literalString(m.Args) {
	case "cascade":
		policy = registry.OnKillCascade
	case "prevent":
		policy = registry.OnKillPrevent
	}
	for i := range def.Params {
		if def.Params[i].Role == role {
			def.Params[i].OnKill = policy
		}
	}
}

func kindOf(name string) (registry.ValueKind, error) {
	switch strings.ToLower(name) {
	case "bool", "boolean":
		return registry.KindBool, nil
	case "int", "i64", "integer":
		return registry.KindInt, nil
	case "float", "f64", "double":
		return registry.KindFloat, nil
	case "string", "utf8":
		return registry.KindString, nil
	case "timestamp", "timestamp_ms":
		return registry.KindTimestamp, nil
	case "any":
		return registry.KindAny, nil
	}
	return registry.KindNull, fmt.Errorf("unknown kind %q", name)
}

func literalFloat(args []ast.Literal) float64 {
	if len(args) == 0 {
		return 0
	}
	switch args[0].Kind {
	case ast.KindFloat:
		return args[0].F
	case ast.KindInt:
		return float64(args[0].I)
	}
	return 0
}

func literalString(args []ast.Literal) string {
	if len(args) == 0 {
		return ""
	}
	return args[0].S
}

func literalStrings(args []ast.Literal) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a.Kind == ast.KindString {
			out = append(out, a.S)
		}
	}
	return out
}

// deferredConstraint classifies a constraint: single-entity attribute
// conditions are checked after every mutation (immediate), while a
// pattern spanning edges or several node variables could only be
// completed at commit — a LINK arriving later in the same transaction
// must be allowed to satisfy it — so it is validated at the commit
// boundary instead.
func deferredConstraint(p *ast.Pattern) bool {
	if p == nil {
		return false
	}
	return len(p.Edges) > 0 || len(p.Nodes) > 1
}

// affectedTypes walks a pattern's node/edge variables, resolving type
// names to handles, so the constraint/rule registries can skip
// evaluation for mutations that cannot possibly touch them.
func affectedTypes(reg *registry.Registries, p *ast.Pattern) (map[graphdata.TypeID]bool, map[graphdata.EdgeTypeID]bool) {
	types := make(map[graphdata.TypeID]bool)
	edgeTypes := make(map[graphdata.EdgeTypeID]bool)
	if p == nil {
		return types, edgeTypes
	}
	for _, n := range p.Nodes {
		if n.TypeName == "" {
			continue
		}
		if td, ok := reg.Types.ByName(n.TypeName); ok {
			for sub := range reg.Types.Subtypes(td.ID) {
				types[sub] = true
			}
		}
	}
	for _, e := range p.Edges {
		if e.TypeName == "" {
			continue
		}
		if ed, ok := reg.EdgeTypes.ByName(e.TypeName); ok {
			edgeTypes[ed.ID] = true
		}
	}
	return types, edgeTypes
}
