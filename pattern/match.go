package pattern

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/registry"
)

// Compiled is a pattern compiled against a specific Registries snapshot:
// node variable type constraints and edge pattern type constraints
// resolved to integer handles.
type Compiled struct {
	P *ast.Pattern

	nodeTypes map[string]map[graphdata.TypeID]bool // var -> allowed (sub)types; nil means "any non-abstract type"
	edgeTypes []map[graphdata.EdgeTypeID]bool       // parallel to P.Edges; nil entry means "any"
}

// Compile resolves a pattern's type names into registry handles.
func Compile(reg *registry.Registries, p *ast.Pattern) *Compiled {
	c := &Compiled{P: p, nodeTypes: make(map[string]map[graphdata.TypeID]bool)}
	for _, nv := range p.Nodes {
		if nv.Any || nv.TypeName == "" {
			c.nodeTypes[nv.Var] = nil
			continue
		}
		if td, ok := reg.Types.ByName(nv.TypeName); ok {
			c.nodeTypes[nv.Var] = reg.Types.Subtypes(td.ID)
		} else {
			c.nodeTypes[nv.Var] = map[graphdata.TypeID]bool{}
		}
	}
	c.edgeTypes = make([]map[graphdata.EdgeTypeID]bool, len(p.Edges))
	for i, ep := range p.Edges {
		if ep.AnyType || ep.TypeName == "" {
			c.edgeTypes[i] = nil
			continue
		}
		if ed, ok := reg.EdgeTypes.ByName(ep.TypeName); ok {
			c.edgeTypes[i] = map[graphdata.EdgeTypeID]bool{ed.ID: true}
		} else {
			c.edgeTypes[i] = map[graphdata.EdgeTypeID]bool{}
		}
	}
	return c
}

func allNonAbstractTypes(reg *registry.Registries) map[graphdata.TypeID]bool {
	out := make(map[graphdata.TypeID]bool)
	for _, td := range reg.Types.All() {
		if !td.Abstract {
			out[td.ID] = true
		}
	}
	return out
}

func allEdgeTypes(reg *registry.Registries) map[graphdata.EdgeTypeID]bool {
	out := make(map[graphdata.EdgeTypeID]bool)
	for _, ed := range reg.EdgeTypes.All() {
		out[ed.ID] = true
	}
	return out
}

// matcher carries the mutable search state for one Match call.
type matcher struct {
	ctx    *EvalCtx
	c      *Compiled
	visit  func(Binding) bool
	domain map[string][]graphdata.NodeID // node var -> candidate ids
}

// Match streams every binding that satisfies the pattern's node/edge
// constraints and WHERE filters to visit, stopping early if visit
// returns false. Pre-existing entries in ctx.Binding are treated as
// already resolved (used by EXISTS sub-patterns and by RETURNING
// clauses sharing the outer binding).
func Match(ctx *EvalCtx, c *Compiled, visit func(Binding) bool) {
	m := &matcher{ctx: ctx, c: c, visit: visit, domain: make(map[string][]graphdata.NodeID)}

	vars := make([]string, 0, len(c.P.Nodes))
	for _, nv := range c.P.Nodes {
		if nv.Var == "" || nv.Var == "_" {
			continue // anonymous node var: never iterated, never bound
		}
		if _, already := ctx.Binding[nv.Var]; already {
			continue
		}
		vars = append(vars, nv.Var)
		m.domain[nv.Var] = m.candidates(nv)
	}

	base := ctx.Binding.Clone()
	m.backtrack(vars, 0, base)
}

func (m *matcher) candidates(nv ast.NodePatternVar) []graphdata.NodeID {
	types := m.c.nodeTypes[nv.Var]
	if types == nil {
		types = allNonAbstractTypes(m.ctx.Reg)
	}
	nodes := m.ctx.Store.NodesOfTypes(m.ctx.Buf, types)
	out := make([]graphdata.NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// backtrack assigns node variables one at a time; edge/filter
// consistency is checked only once every variable is bound, which is
// correct (if slower than incremental pruning) for the pattern sizes
// this kernel targets.
func (m *matcher) backtrack(vars []string, i int, b Binding) bool {
	if i == len(vars) {
		return m.completeBinding(b)
	}
	v := vars[i]
	for _, id := range m.domain[v] {
		next := b.Clone()
		next[v] = graphdata.NodeRef(id)
		if !m.backtrack(vars, i+1, next) {
			return false
		}
	}
	return true
}

// completeBinding checks every edge pattern and filter against a fully
// node-bound assignment, branching further over edge alias candidates
// when an edge pattern has more than one satisfying edge instance.
func (m *matcher) completeBinding(b Binding) bool {
	return m.checkEdges(0, b)
}

func (m *matcher) checkEdges(i int, b Binding) bool {
	if i == len(m.c.P.Edges) {
		ok, err := evalFilters(m.ctx, b, m.c.P.Filters)
		if err != nil || !ok {
			return true
		}
		return m.visit(b)
	}
	ep := m.c.P.Edges[i]

	if ep.Transitive != ast.TransitiveNone {
		ok, err := m.checkTransitive(i, ep, b)
		if err != nil {
			return true
		}
		if ok == !ep.Negated {
			return m.checkEdges(i+1, b)
		}
		return true
	}

	matches := m.candidateEdges(i, ep, b)
	if ep.Negated {
		if len(matches) == 0 {
			return m.checkEdges(i+1, b)
		}
		return true
	}
	if len(matches) == 0 {
		return true
	}
	for _, e := range matches {
		next := b
		if ep.Alias != "" {
			next = b.Clone()
			next[ep.Alias] = graphdata.EdgeRef(e.ID)
		}
		if !m.checkEdges(i+1, next) {
			return false
		}
	}
	return true
}

// candidateEdges finds edges of ep's type whose target positions agree
// with already-bound variables in b; "_" positions accept anything.
// Symmetric edge types also try the reversed target order.
func (m *matcher) candidateEdges(i int, ep ast.EdgePattern, b Binding) []*graphdata.Edge {
	typeIDs := m.edgeTypesFor(i)

	// Find the first bound, non-anonymous position to drive an index
	// lookup; fall back to a full type scan otherwise.
	boundPos, boundRef, haveBound := -1, graphdata.Ref{}, false
	for pos, varName := range ep.Positions {
		if varName == "_" {
			continue
		}
		if ref, ok := b[varName]; ok {
			boundPos, boundRef, haveBound = pos, ref, true
			break
		}
	}

	var pool []*graphdata.Edge
	if haveBound {
		for t := range typeIDs {
			pool = append(pool, m.ctx.Store.EdgesByTarget(m.ctx.Buf, t, boundPos, boundRef)...)
		}
	} else {
		pool = m.ctx.Store.EdgesOfTypes(m.ctx.Buf, typeIDs)
	}

	var out []*graphdata.Edge
	for _, e := range pool {
		if targetsMatch(ep, b, e.Targets, false) {
			out = append(out, e)
			continue
		}
		if symmetricEdge(m.ctx.Reg, e.TypeID) && targetsMatch(ep, b, e.Targets, true) {
			out = append(out, e)
		}
	}
	return out
}

func (m *matcher) edgeTypesFor(i int) map[graphdata.EdgeTypeID]bool {
	if m.c.edgeTypes[i] != nil {
		return m.c.edgeTypes[i]
	}
	return allEdgeTypes(m.ctx.Reg)
}

func symmetricEdge(reg *registry.Registries, t graphdata.EdgeTypeID) bool {
	ed, ok := reg.EdgeTypes.ByID(t)
	return ok && ed.Symmetric
}

func targetsMatch(ep ast.EdgePattern, b Binding, targets []graphdata.Ref, reversed bool) bool {
	if len(ep.Positions) != len(targets) {
		return false
	}
	positions := ep.Positions
	if reversed {
		positions = reverseStrings(positions)
	}
	for pos, varName := range positions {
		if varName == "_" {
			continue
		}
		ref, ok := b[varName]
		if !ok {
			continue // unbound var in this position: any value matches; caller must bind afterward
		}
		if !ref.Equal(targets[pos]) {
			return false
		}
	}
	return true
}

func reverseStrings(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func evalFilters(ctx *EvalCtx, b Binding, filters []ast.Expr) (bool, error) {
	scoped := &EvalCtx{Store: ctx.Store, Buf: ctx.Buf, Reg: ctx.Reg, Params: ctx.Params, Binding: b, Now: ctx.Now}
	for _, f := range filters {
		v, err := Eval(scoped, f)
		if err != nil {
			return false, err
		}
		if !Truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// existsSubPattern evaluates an EXISTS/NOT EXISTS sub-pattern under the
// current binding: variables already bound in the outer scope constrain
// the sub-pattern's search; the call exports no bindings.
func existsSubPattern(ctx *EvalCtx, p *ast.Pattern) (bool, error) {
	compiled := Compile(ctx.Reg, p)
	inner := &EvalCtx{Store: ctx.Store, Buf: ctx.Buf, Reg: ctx.Reg, Params: ctx.Params, Binding: ctx.Binding.Clone(), Now: ctx.Now}
	found := false
	Match(inner, compiled, func(Binding) bool {
		found = true
		return false // first match suffices for a boolean-valued EXISTS
	})
	return found, nil
}
