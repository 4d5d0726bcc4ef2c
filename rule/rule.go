/*
 * MEW
 *
 * Package rule implements the forward-chaining reactive Rule Engine:
 * after a transaction's primitive mutations are buffered, auto rules
 * whose affected-types intersect what changed are collected, matched,
 * and their productions executed, continuing in quiescence rounds until
 * no rule stages a fresh change or a resource limit (max_rule_depth,
 * max_rule_actions) is hit. Idempotence is enforced via a dedup set
 * keyed by (rule name, hash of the binding and the bound entities'
 * state) so the same rule never reapplies to the same match twice
 * within one transaction — while a rule whose own production changes
 * its matched entity (a counter increment, say) keeps firing until its
 * pattern stops matching.
 */
package rule

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/mutate"
	"github.com/bdjafer/mew/pattern"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// Limits bundles the resource bounds placed on rule evaluation.
type Limits struct {
	MaxDepth   int // max_rule_depth: quiescence rounds
	MaxActions int // max_rule_actions: total production actions executed
	MaxCascade int // forwarded to mutate.Ctx for KILL/UNLINK inside productions
}

// Engine runs the quiescence loop for one transaction. One Engine lives
// for the whole transaction: the dedup set and the action counter are
// transaction-scoped, accumulating across every statement that runs
// under the same buffer.
type Engine struct {
	Store  *store.Store
	Buf    *store.Buffer
	Reg    *registry.Registries
	Params map[string]graphdata.Value
	Now    func() int64
	Limits Limits

	// OnApply, when set, is called after each production action commits
	// to the buffer with the exact entity operations it staged, letting
	// package txn append the same per-mutation journal record for
	// rule-triggered writes as for directly executed ones.
	OnApply func(a ast.Action, ops []store.StagedOp)

	// OnFire, when set, is called once per effective activation: a
	// (rule, binding) pair whose production staged at least one change.
	// Re-executions that turn out to be no-ops (every action left the
	// buffer untouched) are not reported, so a stamp-style rule that
	// rewrites the same value is recorded exactly once per binding.
	OnFire func(ruleName string)

	fired      map[string]bool // (rule name, binding state hash) already executed
	firedOrder []string        // insertion order, for savepoint truncation
	actions    int
}

// NewEngine creates a rule Engine scoped to one transaction's buffer.
func NewEngine(s *store.Store, buf *store.Buffer, reg *registry.Registries, params map[string]graphdata.Value, now func() int64, limits Limits) *Engine {
	return &Engine{Store: s, Buf: buf, Reg: reg, Params: params, Now: now, Limits: limits, fired: make(map[string]bool)}
}

// Mark returns the current size of the dedup set, to be paired with a
// buffer mark in a savepoint.
func (e *Engine) Mark() int { return len(e.firedOrder) }

// TruncateTo discards every dedup entry recorded since mark, so rules
// undone by ROLLBACK TO a savepoint become eligible to fire again.
func (e *Engine) TruncateTo(mark int) {
	if mark >= len(e.firedOrder) {
		return
	}
	for _, key := range e.firedOrder[mark:] {
		delete(e.fired, key)
	}
	e.firedOrder = e.firedOrder[:mark]
}

// Run executes the quiescence loop: collect auto rules affected by
// whatever the buffer currently touches, match each, execute every fresh
// binding's production, and repeat until a round stages nothing new or
// MaxDepth rounds have run.
//
// Each round re-scans the full affected-rule set against the buffer's
// current state rather than recursively re-entering a rule from within
// its own production, so there is no call stack on which a (rule,
// binding) pair could re-enter itself — only the dedup set and the
// round counter bound how long this can run.
func (e *Engine) Run() error {
	maxDepth := e.Limits.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 100
	}
	for depth := 0; depth < maxDepth; depth++ {
		changed, err := e.round()
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
	return mewerr.LimitExceeded("E5002", mewerr.ErrRuleDepth, "max_rule_depth exceeded").WithHints(
		"a rule's production keeps re-triggering rules; check for an unintended cycle")
}

// round runs one pass over every currently-affected auto rule, in
// priority/declaration order, applying each fresh binding's production
// exactly once. Returns whether any production staged a change.
func (e *Engine) round() (bool, error) {
	touched, touchedEdges := touchedTypes(e.Buf, e.Store)
	rules := affectedRules(e.Reg, touched, touchedEdges)
	if len(rules) == 0 {
		return false, nil
	}

	changed := false
	for _, def := range rules {
		compiled := pattern.CompileCached(e.Reg, def.Pattern)
		ctx := &pattern.EvalCtx{Store: e.Store, Buf: e.Buf, Reg: e.Reg, Params: e.Params, Now: e.Now, Binding: pattern.Binding{}}

		var bindings []pattern.Binding
		pattern.Match(ctx, compiled, func(b pattern.Binding) bool {
			bindings = append(bindings, b)
			return true
		})

		for _, b := range bindings {
			key := def.Name + "\x00" + e.stateHash(b)
			if e.fired[key] {
				continue
			}
			e.fired[key] = true
			e.firedOrder = append(e.firedOrder, key)

			prodMark := e.Buf.Mark()
			mctx := &mutate.Ctx{Store: e.Store, Buf: e.Buf, Reg: e.Reg, Params: e.Params, Binding: b.Clone(), Now: e.Now, MaxCascade: e.Limits.MaxCascade}
			for _, action := range def.Production {
				if e.Limits.MaxActions > 0 && e.actions >= e.Limits.MaxActions {
					return false, mewerr.LimitExceeded("E5003", mewerr.ErrRuleActions, "max_rule_actions exceeded")
				}
				actionMark := e.Buf.Mark()
				if err := apply(mctx, action); err != nil {
					return false, err
				}
				if e.OnApply != nil {
					if ops := e.Buf.OpsSince(actionMark); len(ops) > 0 {
						e.OnApply(action, ops)
					}
				}
				e.actions++
			}
			if e.Buf.Mark() > prodMark {
				changed = true
				if e.OnFire != nil {
					e.OnFire(def.Name)
				}
			}
		}
	}
	return changed, nil
}

// apply dispatches one production action through package mutate, mirroring
// the exhaustive Action-sum dispatch package kernel uses for top-level
// Transform statements.
func apply(c *mutate.Ctx, a ast.Action) error {
	var err error
	switch act := a.(type) {
	case *ast.Spawn:
		_, err = mutate.Spawn(c, act)
	case *ast.Kill:
		_, err = mutate.Kill(c, act)
	case *ast.Link:
		_, err = mutate.Link(c, act)
	case *ast.Unlink:
		_, err = mutate.Unlink(c, act)
	case *ast.Set:
		_, err = mutate.Set(c, act)
	default:
		return mewerr.Internal("unknown action kind in rule production")
	}
	return err
}

func touchedTypes(buf *store.Buffer, s *store.Store) (map[graphdata.TypeID]bool, map[graphdata.EdgeTypeID]bool) {
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

// affectedRules collects the distinct auto rules affected by the touched
// types, preserving the registry's overall priority/declaration order:
// stable sort by priority, then declaration order, then binding order.
func affectedRules(reg *registry.Registries, types map[graphdata.TypeID]bool, edgeTypes map[graphdata.EdgeTypeID]bool) []*registry.RuleDef {
	seen := make(map[string]bool)
	var out []*registry.RuleDef
	add := func(defs []*registry.RuleDef) {
		for _, d := range defs {
			if !seen[d.Name] {
				seen[d.Name] = true
				out = append(out, d)
			}
		}
	}
	for t := range types {
		add(reg.Rules.AutoRulesAffecting(t))
	}
	for t := range edgeTypes {
		add(reg.Rules.AutoRulesAffectingEdge(t))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Declared < out[j].Declared
	})
	return out
}

// stateHash digests a binding's variable->ref assignments together with
// each bound entity's current attribute state. Binding on state rather
// than bare ids is what lets a counter-increment rule fire once per
// distinct value (its own SET makes the next round's hash fresh) while a
// rule whose production leaves its match unchanged reaches the same hash
// again and is skipped.
func (e *Engine) stateHash(b pattern.Binding) string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		ref := b[k]
		fmt.Fprintf(h, "%s=", k)
		if ref.IsEdge {
			fmt.Fprintf(h, "e:%s;", ref.Edge)
			if ed, ok := e.Store.GetEdge(e.Buf, ref.Edge); ok {
				hashAttrs(h, ed.Version, ed.Attrs)
			}
		} else {
			fmt.Fprintf(h, "n:%s;", ref.Node)
			if n, ok := e.Store.GetNode(e.Buf, ref.Node); ok {
				hashAttrs(h, n.Version, n.Attrs)
			}
		}
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return fmt.Sprintf("%x", binary.BigEndian.Uint64(sum[:8]))
}

func hashAttrs(h io.Writer, version uint64, attrs map[graphdata.AttrID]graphdata.Value) {
	fmt.Fprintf(h, "v%d{", version)
	ids := make([]int, 0, len(attrs))
	for id := range attrs {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(h, "%d=%s;", id, attrs[graphdata.AttrID(id)].String())
	}
	fmt.Fprintf(h, "}")
}
