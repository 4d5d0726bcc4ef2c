package planner

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/pattern"
)

// ExecInspect resolves a single entity by id/var and returns its full
// attribute set as a one-row result: a direct-by-id read that bypasses
// pattern matching entirely. A missing entity is not an error — the row
// simply reports found=false.
func ExecInspect(c *Ctx, in *ast.Inspect) (*Result, error) {
	notFound := &Result{
		Columns: []string{"found"},
		Rows:    []Row{{"found": graphdata.Bool(false)}},
	}

	ref, ok := pattern.ResolveEntityRef(c.evalCtx(nil), in.IDExpr)
	if !ok {
		return notFound, nil
	}

	if ref.IsEdge {
		e, ok := c.Store.GetEdge(c.Buf, ref.Edge)
		if !ok {
			return notFound, nil
		}
		typeName := ""
		ed, edOk := c.Reg.EdgeTypes.ByID(e.TypeID)
		cols := []string{"found", "id", "type"}
		row := Row{"found": graphdata.Bool(true), "id": graphdata.Str(string(e.ID))}
		if edOk {
			typeName = ed.Name
			for attrID, def := range ed.Attrs {
				cols = append(cols, def.Name)
				row[def.Name] = e.Attr(attrID)
			}
		}
		row["type"] = graphdata.Str(typeName)
		return &Result{Columns: cols, Rows: []Row{row}}, nil
	}

	n, ok := c.Store.GetNode(c.Buf, ref.Node)
	if !ok {
		return notFound, nil
	}
	typeName := ""
	if td, ok := c.Reg.Types.ByID(n.TypeID); ok {
		typeName = td.Name
	}
	cols := []string{"found", "id", "type"}
	row := Row{"found": graphdata.Bool(true), "id": graphdata.Str(string(n.ID)), "type": graphdata.Str(typeName)}
	for attrID, def := range c.Reg.Types.AllAttrs(n.TypeID) {
		cols = append(cols, def.Name)
		row[def.Name] = n.Attr(attrID)
	}
	return &Result{Columns: cols, Rows: []Row{row}}, nil
}
