package graphdata

import "github.com/google/uuid"

// NodeID is an opaque, stable identifier, comparable for equality only.
type NodeID string

// EdgeID is an opaque, stable identifier, comparable for equality only.
type EdgeID string

// NewNodeID mints a fresh node id.
func NewNodeID() NodeID { return NodeID(uuid.NewString()) }

// NewEdgeID mints a fresh edge id.
func NewEdgeID() EdgeID { return EdgeID(uuid.NewString()) }

// Ref is a polymorphic reference to either a node or an edge, used for
// higher-order edge targets: each target is a NodeID or, for
// higher-order edges, an EdgeID.
type Ref struct {
	IsEdge bool
	Node   NodeID
	Edge   EdgeID
}

func NodeRef(id NodeID) Ref { return Ref{IsEdge: false, Node: id} }
func EdgeRef(id EdgeID) Ref { return Ref{IsEdge: true, Edge: id} }

func (r Ref) String() string {
	if r.IsEdge {
		return string(r.Edge)
	}
	return string(r.Node)
}

func (r Ref) Equal(o Ref) bool {
	return r.IsEdge == o.IsEdge && r.Node == o.Node && r.Edge == o.Edge
}
