/*
 * MEW
 *
 * Package analyzer performs the name-resolution and type-checking pass
 * that runs between parsing and planning: every pattern's declared
 * type/edge-type names must resolve against the published registries,
 * higher-order edge parameters must reference a real edge type, and
 * constraint/rule conditions may not call a non-deterministic function
 * (`now`, `wall_time`, `random`) — a constraint or rule must be a pure
 * function of committed graph state, or two transactions racing past the
 * same mutation could each see the constraint as satisfied.
 */
package analyzer

import (
	"strconv"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/registry"
)

// AnalyzeOntology validates an ontology against the registries it has
// already been compiled into (compiler.Compile runs first so names are
// resolvable), catching what Compile itself doesn't: higher-order edge
// param references, pattern type/edge-type names used by constraints and
// rules, and non-deterministic constraint/rule conditions.
func AnalyzeOntology(reg *registry.Registries, onto *ast.Ontology) error {
	for _, ed := range onto.EdgeTypes {
		for _, p := range ed.Params {
			if !p.IsEdge {
				continue
			}
			if _, ok := reg.EdgeTypes.ByName(p.TypeName); !ok {
				return mewerr.New("E2003", mewerr.CategoryType, mewerr.ErrUnknownEdgeType,
					"edge \""+ed.Name+"\": higher-order parameter references unknown edge type \""+p.TypeName+"\"").WithLoc(p.Loc)
			}
		}
	}

	for _, cd := range onto.Constraints {
		if err := checkPatternNames(reg, cd.Pattern); err != nil {
			return err
		}
		if err := forbidNondeterministic(cd.Cond); err != nil {
			return err
		}
	}

	for _, rd := range onto.Rules {
		if err := checkPatternNames(reg, rd.Pattern); err != nil {
			return err
		}
		for _, f := range rd.Pattern.Filters {
			if err := forbidNondeterministic(f); err != nil {
				return err
			}
		}
		for _, action := range rd.Actions {
			if err := checkActionNames(reg, action); err != nil {
				return err
			}
		}
	}
	return nil
}

// AnalyzeStatement validates a top-level statement before planning:
// pattern type/edge-type names resolve, WALK's FOLLOW edge type names
// resolve, and CREATE/DROP INDEX names resolve to a declared attribute.
func AnalyzeStatement(reg *registry.Registries, stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.Match:
		if err := checkPatternNames(reg, s.Pattern); err != nil {
			return err
		}
		if err := checkAggregates(s); err != nil {
			return err
		}
	case *ast.Walk:
		if !s.AnyEdge {
			for _, name := range s.EdgeTypes {
				if _, ok := reg.EdgeTypes.ByName(name); !ok {
					return mewerr.New("E2004", mewerr.CategoryType, mewerr.ErrUnknownEdgeType,
						"WALK: unknown edge type \""+name+"\" in FOLLOW clause").WithLoc(s.Loc)
				}
			}
		}
	case *ast.Transform:
		return checkActionNames(reg, s.Action)
	case *ast.CreateIndex:
		return checkIndexTarget(reg, s.TypeName, s.AttrName, s.Loc)
	case *ast.DropIndex:
		return checkIndexTarget(reg, s.TypeName, s.AttrName, s.Loc)
	case *ast.Explain:
		return AnalyzeStatement(reg, s.Inner)
	case *ast.DryRun:
		return AnalyzeStatement(reg, s.Inner)
	}
	return nil
}

func checkIndexTarget(reg *registry.Registries, typeName, attrName string, loc ast.Location) error {
	td, ok := reg.Types.ByName(typeName)
	if !ok {
		return mewerr.New("E2005", mewerr.CategoryType, mewerr.ErrUnknownType,
			"unknown type \""+typeName+"\"").WithLoc(loc)
	}
	attrs := reg.Types.AllAttrs(td.ID)
	for _, def := range attrs {
		if def.Name == attrName {
			return nil
		}
	}
	return mewerr.New("E2006", mewerr.CategoryType, mewerr.ErrUnknownAttribute,
		"type \""+typeName+"\" has no attribute \""+attrName+"\"").WithLoc(loc)
}

// checkPatternNames resolves every node/edge type name a pattern declares
// against the registries, including nested EXISTS sub-patterns.
func checkPatternNames(reg *registry.Registries, p *ast.Pattern) error {
	if p == nil {
		return nil
	}
	for _, nv := range p.Nodes {
		if nv.Any || nv.TypeName == "" {
			continue
		}
		if _, ok := reg.Types.ByName(nv.TypeName); !ok {
			return mewerr.New("E2007", mewerr.CategoryType, mewerr.ErrUnknownType,
				"unknown type \""+nv.TypeName+"\" for pattern variable \""+nv.Var+"\"").WithLoc(nv.Loc)
		}
	}
	for _, ep := range p.Edges {
		if ep.AnyType || ep.TypeName == "" {
			continue
		}
		if _, ok := reg.EdgeTypes.ByName(ep.TypeName); !ok {
			return mewerr.New("E2008", mewerr.CategoryType, mewerr.ErrUnknownEdgeType,
				"unknown edge type \""+ep.TypeName+"\"").WithLoc(ep.Loc)
		}
	}
	for _, f := range p.Filters {
		if err := checkExprPatternNames(reg, f); err != nil {
			return err
		}
	}
	return nil
}

func checkExprPatternNames(reg *registry.Registries, e ast.Expr) error {
	switch v := e.(type) {
	case *ast.ExistsExpr:
		return checkPatternNames(reg, v.Pattern)
	case *ast.UnaryExpr:
		return checkExprPatternNames(reg, v.Operand)
	case *ast.BinaryExpr:
		if err := checkExprPatternNames(reg, v.Left); err != nil {
			return err
		}
		return checkExprPatternNames(reg, v.Right)
	case *ast.CallExpr:
		for _, a := range v.Args {
			if err := checkExprPatternNames(reg, a); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkActionNames resolves the type/edge-type names a mutation action
// references, including its inline LINK targets, without touching the
// store (a static, schema-only check; mutate performs the dynamic checks
// at execution time).
func checkActionNames(reg *registry.Registries, a ast.Action) error {
	switch act := a.(type) {
	case *ast.Spawn:
		if _, ok := reg.Types.ByName(act.TypeName); !ok {
			return mewerr.New("E2009", mewerr.CategoryType, mewerr.ErrUnknownType,
				"SPAWN: unknown type \""+act.TypeName+"\"").WithLoc(act.Loc)
		}
	case *ast.Link:
		if _, ok := reg.EdgeTypes.ByName(act.EdgeType); !ok {
			return mewerr.New("E2010", mewerr.CategoryType, mewerr.ErrUnknownEdgeType,
				"LINK: unknown edge type \""+act.EdgeType+"\"").WithLoc(act.Loc)
		}
		for _, t := range act.Targets {
			if t.InlineSpawn != nil {
				if err := checkActionNames(reg, t.InlineSpawn); err != nil {
					return err
				}
			}
		}
	case *ast.Kill:
		if act.Target.Pattern != nil {
			return checkPatternNames(reg, act.Target.Pattern)
		}
	case *ast.Unlink:
		if act.Target.Pattern != nil {
			return checkPatternNames(reg, act.Target.Pattern)
		}
	case *ast.Set:
		if act.Target.Pattern != nil {
			return checkPatternNames(reg, act.Target.Pattern)
		}
	}
	return nil
}

// aggregateNames is the set of function names evalAggExpr in package
// planner knows how to compute, with the number of arguments each
// expects (-1 meaning zero or one), kept in sync with planner's own
// isAggregateName.
var aggregateNames = map[string]int{
	"count":   -1, // 0 or 1 args
	"sum":     1,
	"avg":     1,
	"min":     1,
	"max":     1,
	"collect": 1,
}

// checkAggregates validates every aggregate call in a MATCH's projection
// list against aggregateNames, rejecting a wrong argument count before
// planning runs — evalAggExpr would otherwise only discover the same
// problem mid-execution, after the pattern has already been matched.
func checkAggregates(m *ast.Match) error {
	for _, e := range m.Projection {
		call, ok := e.(*ast.CallExpr)
		if !ok {
			continue
		}
		arity, known := aggregateNames[call.Name]
		if !known {
			continue // not an aggregate name; evalCall validates scalar functions
		}
		if arity >= 0 && len(call.Args) != arity {
			return mewerr.New("E2012", mewerr.CategorySyntax, mewerr.ErrAmbiguous,
				call.Name+"() expects exactly "+strconv.Itoa(arity)+" argument(s)").WithLoc(call.Loc)
		}
		if arity < 0 && len(call.Args) > 1 {
			return mewerr.New("E2012", mewerr.CategorySyntax, mewerr.ErrAmbiguous,
				"count() expects zero or one argument").WithLoc(call.Loc)
		}
	}
	return nil
}

// forbidNondeterministic rejects a constraint/rule condition that calls a
// non-deterministic function, recursing into sub-expressions and nested
// EXISTS sub-patterns' own filters.
func forbidNondeterministic(e ast.Expr) error {
	switch v := e.(type) {
	case *ast.CallExpr:
		switch v.Name {
		case "now", "wall_time", "random":
			return mewerr.New("E2011", mewerr.CategorySyntax, mewerr.ErrAmbiguous,
				"constraint/rule conditions may not call non-deterministic function \""+v.Name+"\"").WithLoc(v.Loc)
		}
		for _, a := range v.Args {
			if err := forbidNondeterministic(a); err != nil {
				return err
			}
		}
	case *ast.UnaryExpr:
		return forbidNondeterministic(v.Operand)
	case *ast.BinaryExpr:
		if err := forbidNondeterministic(v.Left); err != nil {
			return err
		}
		return forbidNondeterministic(v.Right)
	case *ast.ExistsExpr:
		if v.Pattern == nil {
			return nil
		}
		for _, f := range v.Pattern.Filters {
			if err := forbidNondeterministic(f); err != nil {
				return err
			}
		}
	}
	return nil
}
