/*
 * MEW
 *
 * Package mutate implements the five mutation primitives SPAWN, KILL,
 * LINK, UNLINK and SET. Every primitive validates first, then writes to
 * the transaction buffer; none of them touch the authoritative Store
 * directly — that only happens at commit via Store.Apply, called by
 * package txn.
 */
package mutate

import (
	"regexp"

	"github.com/krotik/common/stringutil"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/pattern"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// Ctx bundles the resources a mutation primitive needs: the store and the
// caller's open transaction buffer, the published registries, bound
// statement parameters and the pattern-matching binding in scope (e.g.
// `t` inside a rule production), a deterministic clock, and the
// `max_cascade_count` resource limit.
type Ctx struct {
	Store      *store.Store
	Buf        *store.Buffer
	Reg        *registry.Registries
	Params     map[string]graphdata.Value
	Binding    pattern.Binding
	Now        func() int64
	MaxCascade int
}

func (c *Ctx) evalCtx() *pattern.EvalCtx {
	return &pattern.EvalCtx{Store: c.Store, Buf: c.Buf, Reg: c.Reg, Params: c.Params, Binding: c.Binding, Now: c.Now}
}

// Counts mirrors the Transformation result envelope's counts field.
// Counts partitions what a primitive did: Deleted covers only the
// entities the statement targeted directly; removals pulled in by
// on_kill policies and higher-order unlinks land in Cascaded.
type Counts struct {
	Created  int
	Deleted  int
	Modified int
	Cascaded int
}

// Outcome is what a mutation primitive returns: enough to populate the
// Transformation result envelope and an optional RETURNING projection.
type Outcome struct {
	Ref       graphdata.Ref
	Refs      []graphdata.Ref
	Created   bool // LINK IF NOT EXISTS: false when an existing edge was reused
	Counts    Counts
	Returning map[string]graphdata.Value
}

func validationErr(code, detail string, loc ast.Location) *mewerr.Error {
	return mewerr.New(code, mewerr.CategoryConstraint, mewerr.ErrRequiredMissing, detail).WithLoc(loc)
}

func typeErr(code, detail string, loc ast.Location) *mewerr.Error {
	return mewerr.New(code, mewerr.CategoryType, mewerr.ErrTypeMismatch, detail).WithLoc(loc)
}

// checkValue validates one attribute value against its declared
// definition: runtime kind subtypes the declared kind, and range/enum/
// pattern/length modifiers hold where non-null.
func checkValue(def *registry.AttrDef, v graphdata.Value, loc ast.Location) error {
	if v.IsNull() {
		if def.Required {
			return validationErr("E4001", "required attribute \""+def.Name+"\" is null", loc)
		}
		return nil
	}
	if def.Kind != registry.KindAny && registry.ValueKind(v.Kind) != def.Kind {
		return typeErr("E4002", "attribute \""+def.Name+"\" has wrong type", loc)
	}
	if def.HasMin || def.HasMax {
		f := v.AsFloat()
		if def.HasMin && f < def.Min {
			return validationErr("E4003", "attribute \""+def.Name+"\" below minimum", loc)
		}
		if def.HasMax && f > def.Max {
			return validationErr("E4003", "attribute \""+def.Name+"\" above maximum", loc)
		}
	}
	if len(def.Enum) > 0 {
		ok := false
		for _, e := range def.Enum {
			if v.Kind == ast.KindString && v.S == e {
				ok = true
				break
			}
		}
		if !ok {
			return validationErr("E4004", "attribute \""+def.Name+"\" not in declared enum", loc)
		}
	}
	if def.Pattern != "" && v.Kind == ast.KindString {
		re, err := globPattern(def.Pattern)
		if err == nil && !re.MatchString(v.S) {
			return validationErr("E4005", "attribute \""+def.Name+"\" does not match declared pattern", loc)
		}
	}
	if def.HasMaxLen && v.Kind == ast.KindString && len(v.S) > def.MaxLen {
		return validationErr("E4006", "attribute \""+def.Name+"\" exceeds declared length", loc)
	}
	return nil
}

// globPattern compiles a declared [pattern] modifier (glob syntax) to a
// regular expression using stringutil.GlobToRegex.
func globPattern(glob string) (*regexp.Regexp, error) {
	restr, err := stringutil.GlobToRegex(glob)
	if err != nil {
		return nil, err
	}
	return regexp.Compile("^" + restr + "$")
}

func evalAttrAssigns(c *Ctx, assigns []ast.AttrAssign) (map[string]graphdata.Value, error) {
	out := make(map[string]graphdata.Value, len(assigns))
	ectx := c.evalCtx()
	for _, a := range assigns {
		v, err := pattern.Eval(ectx, a.Expr)
		if err != nil {
			return nil, err
		}
		out[a.Attr] = v
	}
	return out, nil
}

func buildReturning(c *Ctx, names []string, ref graphdata.Ref) map[string]graphdata.Value {
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]graphdata.Value, len(names))
	for _, n := range names {
		attrID, ok := c.Reg.AttrID(n)
		if !ok {
			out[n] = graphdata.Null
			continue
		}
		if ref.IsEdge {
			if e, ok := c.Store.GetEdge(c.Buf, ref.Edge); ok {
				out[n] = e.Attr(attrID)
				continue
			}
		} else if nd, ok := c.Store.GetNode(c.Buf, ref.Node); ok {
			out[n] = nd.Attr(attrID)
			continue
		}
		out[n] = graphdata.Null
	}
	return out
}
