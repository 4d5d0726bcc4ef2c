package journal

import (
	"encoding/binary"
	"math"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
)

// EntityOp is one entity-level effect of a primitive mutation, carried in
// that mutation's WAL record: the staged state (redo) and the committed
// state it replaced (undo). A nil New with Deleted set is a delete; a nil
// Prev means the entity did not exist before the transaction.
type EntityOp struct {
	IsEdge  bool
	NodeID  graphdata.NodeID
	EdgeID  graphdata.EdgeID
	Node    *graphdata.Node
	Edge    *graphdata.Edge
	Deleted bool

	PrevNode *graphdata.Node
	PrevEdge *graphdata.Edge
}

const (
	opFlagEdge    = 1 << 0
	opFlagDeleted = 1 << 1
	opFlagHasNew  = 1 << 2
	opFlagHasPrev = 1 << 3
)

// EncodeOps serializes a primitive mutation's entity ops into a record
// payload.
func EncodeOps(ops []EntityOp) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(ops)))
	for _, op := range ops {
		var flags byte
		if op.IsEdge {
			flags |= opFlagEdge
		}
		if op.Deleted {
			flags |= opFlagDeleted
		}
		if op.Node != nil || op.Edge != nil {
			flags |= opFlagHasNew
		}
		if op.PrevNode != nil || op.PrevEdge != nil {
			flags |= opFlagHasPrev
		}
		buf = append(buf, flags)

		if op.IsEdge {
			buf = appendString(buf, string(op.EdgeID))
			if flags&opFlagHasNew != 0 {
				buf = appendEdge(buf, op.Edge)
			}
			if flags&opFlagHasPrev != 0 {
				buf = appendEdge(buf, op.PrevEdge)
			}
			continue
		}
		buf = appendString(buf, string(op.NodeID))
		if flags&opFlagHasNew != 0 {
			buf = appendNode(buf, op.Node)
		}
		if flags&opFlagHasPrev != 0 {
			buf = appendNode(buf, op.PrevNode)
		}
	}
	return buf
}

// DecodeOps parses a payload produced by EncodeOps. The second return is
// false on any framing violation.
func DecodeOps(buf []byte) ([]EntityOp, bool) {
	d := &decoder{buf: buf}
	n, ok := d.uint32()
	if !ok {
		return nil, false
	}
	ops := make([]EntityOp, 0, n)
	for i := uint32(0); i < n; i++ {
		flags, ok := d.byte()
		if !ok {
			return nil, false
		}
		op := EntityOp{
			IsEdge:  flags&opFlagEdge != 0,
			Deleted: flags&opFlagDeleted != 0,
		}
		id, ok := d.string()
		if !ok {
			return nil, false
		}
		if op.IsEdge {
			op.EdgeID = graphdata.EdgeID(id)
			if flags&opFlagHasNew != 0 {
				if op.Edge, ok = d.edge(); !ok {
					return nil, false
				}
				op.Edge.ID = op.EdgeID
			}
			if flags&opFlagHasPrev != 0 {
				if op.PrevEdge, ok = d.edge(); !ok {
					return nil, false
				}
				op.PrevEdge.ID = op.EdgeID
			}
		} else {
			op.NodeID = graphdata.NodeID(id)
			if flags&opFlagHasNew != 0 {
				if op.Node, ok = d.node(); !ok {
					return nil, false
				}
				op.Node.ID = op.NodeID
			}
			if flags&opFlagHasPrev != 0 {
				if op.PrevNode, ok = d.node(); !ok {
					return nil, false
				}
				op.PrevNode.ID = op.NodeID
			}
		}
		ops = append(ops, op)
	}
	return ops, true
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendValue(buf []byte, v graphdata.Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case ast.KindBool:
		if v.B {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case ast.KindInt, ast.KindTimestamp:
		buf = appendUint64(buf, uint64(v.I))
	case ast.KindFloat:
		buf = appendUint64(buf, math.Float64bits(v.F))
	case ast.KindString:
		buf = appendString(buf, v.S)
	}
	return buf
}

func appendAttrs(buf []byte, attrs map[graphdata.AttrID]graphdata.Value) []byte {
	buf = appendUint32(buf, uint32(len(attrs)))
	for id, v := range attrs {
		buf = appendUint32(buf, uint32(id))
		buf = appendValue(buf, v)
	}
	return buf
}

func appendNode(buf []byte, n *graphdata.Node) []byte {
	buf = appendUint32(buf, uint32(n.TypeID))
	buf = appendUint64(buf, n.Version)
	return appendAttrs(buf, n.Attrs)
}

func appendEdge(buf []byte, e *graphdata.Edge) []byte {
	buf = appendUint32(buf, uint32(e.TypeID))
	buf = appendUint64(buf, e.Version)
	buf = appendUint32(buf, uint32(len(e.Targets)))
	for _, ref := range e.Targets {
		if ref.IsEdge {
			buf = append(buf, 1)
			buf = appendString(buf, string(ref.Edge))
		} else {
			buf = append(buf, 0)
			buf = appendString(buf, string(ref.Node))
		}
	}
	return appendAttrs(buf, e.Attrs)
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) byte() (byte, bool) {
	if d.off+1 > len(d.buf) {
		return 0, false
	}
	b := d.buf[d.off]
	d.off++
	return b, true
}

func (d *decoder) uint32() (uint32, bool) {
	if d.off+4 > len(d.buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, true
}

func (d *decoder) uint64() (uint64, bool) {
	if d.off+8 > len(d.buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, true
}

func (d *decoder) string() (string, bool) {
	n, ok := d.uint32()
	if !ok || d.off+int(n) > len(d.buf) {
		return "", false
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, true
}

func (d *decoder) value() (graphdata.Value, bool) {
	kind, ok := d.byte()
	if !ok {
		return graphdata.Null, false
	}
	v := graphdata.Value{Kind: ast.ValueKind(kind)}
	switch v.Kind {
	case ast.KindBool:
		b, ok := d.byte()
		if !ok {
			return graphdata.Null, false
		}
		v.B = b != 0
	case ast.KindInt, ast.KindTimestamp:
		u, ok := d.uint64()
		if !ok {
			return graphdata.Null, false
		}
		v.I = int64(u)
	case ast.KindFloat:
		u, ok := d.uint64()
		if !ok {
			return graphdata.Null, false
		}
		v.F = math.Float64frombits(u)
	case ast.KindString:
		s, ok := d.string()
		if !ok {
			return graphdata.Null, false
		}
		v.S = s
	}
	return v, true
}

func (d *decoder) attrs() (map[graphdata.AttrID]graphdata.Value, bool) {
	n, ok := d.uint32()
	if !ok {
		return nil, false
	}
	attrs := make(map[graphdata.AttrID]graphdata.Value, n)
	for i := uint32(0); i < n; i++ {
		id, ok := d.uint32()
		if !ok {
			return nil, false
		}
		v, ok := d.value()
		if !ok {
			return nil, false
		}
		attrs[graphdata.AttrID(id)] = v
	}
	return attrs, true
}

func (d *decoder) node() (*graphdata.Node, bool) {
	typeID, ok := d.uint32()
	if !ok {
		return nil, false
	}
	version, ok := d.uint64()
	if !ok {
		return nil, false
	}
	attrs, ok := d.attrs()
	if !ok {
		return nil, false
	}
	return &graphdata.Node{TypeID: graphdata.TypeID(typeID), Version: version, Attrs: attrs}, true
}

func (d *decoder) edge() (*graphdata.Edge, bool) {
	typeID, ok := d.uint32()
	if !ok {
		return nil, false
	}
	version, ok := d.uint64()
	if !ok {
		return nil, false
	}
	nt, ok := d.uint32()
	if !ok {
		return nil, false
	}
	targets := make([]graphdata.Ref, 0, nt)
	for i := uint32(0); i < nt; i++ {
		isEdge, ok := d.byte()
		if !ok {
			return nil, false
		}
		id, ok := d.string()
		if !ok {
			return nil, false
		}
		if isEdge != 0 {
			targets = append(targets, graphdata.EdgeRef(graphdata.EdgeID(id)))
		} else {
			targets = append(targets, graphdata.NodeRef(graphdata.NodeID(id)))
		}
	}
	attrs, ok := d.attrs()
	if !ok {
		return nil, false
	}
	return &graphdata.Edge{TypeID: graphdata.EdgeTypeID(typeID), Version: version, Targets: targets, Attrs: attrs}, true
}
