/*
 * MEW
 *
 * Package constraint implements the incremental constraint checker:
 * given the set of node/edge types a transaction's buffer actually
 * touched, it checks only the constraints registry.ConstraintRegistry
 * already knows could be affected, evaluating each constraint's pattern
 * and condition against the buffered state. Hard constraint violations
 * abort the transaction; soft constraint violations are collected and
 * reported on the result envelope without aborting.
 */
package constraint

import (
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/pattern"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// Violation is one failed constraint check: the binding that violated it
// (for error context) and whether it was soft (reported) or hard (aborts).
type Violation struct {
	Constraint *registry.ConstraintDef
	Binding    pattern.Binding
}

// TouchedTypes computes the distinct node/edge types a buffer's staged
// inserts, updates and deletes reference, used to select which
// constraints could possibly have been invalidated.
func TouchedTypes(buf *store.Buffer, s *store.Store) (map[graphdata.TypeID]bool, map[graphdata.EdgeTypeID]bool) {
	types := make(map[graphdata.TypeID]bool)
	edgeTypes := make(map[graphdata.EdgeTypeID]bool)
	for id, e := range buf.Nodes {
		if e.Node != nil {
			types[e.Node.TypeID] = true
		} else if old, ok := s.GetNode(nil, id); ok {
			types[old.TypeID] = true
		}
	}
	for id, e := range buf.Edges {
		if e.Edge != nil {
			edgeTypes[e.Edge.TypeID] = true
		} else if old, ok := s.GetEdge(nil, id); ok {
			edgeTypes[old.TypeID] = true
		}
	}
	return types, edgeTypes
}

// Affected collects the distinct set of constraints whose affected-types
// intersect the touched node/edge types, deduplicating constraints that
// are reachable through both a node type and an edge type.
func Affected(reg *registry.Registries, types map[graphdata.TypeID]bool, edgeTypes map[graphdata.EdgeTypeID]bool) []*registry.ConstraintDef {
	seen := make(map[string]bool)
	var out []*registry.ConstraintDef
	add := func(defs []*registry.ConstraintDef) {
		for _, d := range defs {
			if !seen[d.Name] {
				seen[d.Name] = true
				out = append(out, d)
			}
		}
	}
	for t := range types {
		add(reg.Constraints.AffectedByType(t))
	}
	for t := range edgeTypes {
		add(reg.Constraints.AffectedByEdgeType(t))
	}
	return out
}

// Check evaluates every given constraint's pattern against the current
// store+buffer state, collecting a Violation for each binding whose
// condition does not evaluate to true: a constraint holds when, for
// every match of its pattern, the condition is true; null is not true,
// so an unevaluable condition also counts as a violation.
func Check(s *store.Store, buf *store.Buffer, reg *registry.Registries, now func() int64, defs []*registry.ConstraintDef) ([]Violation, error) {
	var violations []Violation
	for _, def := range defs {
		compiled := pattern.CompileCached(reg, def.Pattern)
		ctx := &pattern.EvalCtx{Store: s, Buf: buf, Reg: reg, Now: now, Binding: pattern.Binding{}}
		var innerErr error
		pattern.Match(ctx, compiled, func(b pattern.Binding) bool {
			scoped := &pattern.EvalCtx{Store: s, Buf: buf, Reg: reg, Now: now, Binding: b}
			v, err := pattern.Eval(scoped, def.Cond)
			if err != nil {
				innerErr = err
				return false
			}
			if !pattern.Truthy(v) {
				violations = append(violations, Violation{Constraint: def, Binding: b})
			}
			return true
		})
		if innerErr != nil {
			return nil, innerErr
		}
	}
	return violations, nil
}

// Split partitions violations into hard (must abort the transaction) and
// soft (reported on the result envelope, non-aborting).
func Split(violations []Violation) (hard, soft []Violation) {
	for _, v := range violations {
		if v.Constraint.Soft {
			soft = append(soft, v)
		} else {
			hard = append(hard, v)
		}
	}
	return hard, soft
}

// Error builds the mewerr.Error for a hard constraint violation:
// ConstraintViolation category, the constraint's declared message when
// present.
func Error(v Violation) *mewerr.Error {
	detail := v.Constraint.Message
	if detail == "" {
		detail = "constraint \"" + v.Constraint.Name + "\" violated"
	}
	return mewerr.New("E4050", mewerr.CategoryConstraint, mewerr.ErrRequiredMissing, detail).
		WithContext(map[string]interface{}{"constraint": v.Constraint.Name})
}
