package mutate

import (
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

// cascadeState tracks everything a KILL/UNLINK cascade has already
// scheduled, so a node or edge already queued for deletion is never
// rescheduled.
type cascadeState struct {
	killedNodes  map[graphdata.NodeID]bool
	deletedEdges map[graphdata.EdgeID]bool
	maxCascade   int
	cascaded     int
}

func newCascadeState(maxCascade int) *cascadeState {
	if maxCascade <= 0 {
		maxCascade = 10000
	}
	return &cascadeState{
		killedNodes:  make(map[graphdata.NodeID]bool),
		deletedEdges: make(map[graphdata.EdgeID]bool),
		maxCascade:   maxCascade,
	}
}

// killNode buffers the deletion of node id and every edge incident on
// it, following each incident edge's effective on-kill policy.
// cascadeOverride forces cascade through positions whose declared
// policy is `prevent`.
func (cs *cascadeState) killNode(c *Ctx, id graphdata.NodeID, cascadeOverride bool, loc ast.Location) error {
	if cs.killedNodes[id] {
		return nil
	}
	if _, ok := c.Store.GetNode(c.Buf, id); !ok {
		return nil // already gone; nothing to do
	}
	cs.killedNodes[id] = true

	for _, dir := range [2]bool{true, false} {
		edges := adjacentBoth(c, id, dir)
		for _, e := range edges {
			if cs.deletedEdges[e.ID] {
				continue
			}
			ed, ok := c.Reg.EdgeTypes.ByID(e.TypeID)
			if !ok {
				continue
			}
			pos := positionOf(e, id)
			if pos < 0 {
				continue
			}
			policy := ed.Params[pos].OnKill
			if policy == registry.OnKillPrevent {
				if !cascadeOverride {
					return mewerr.New("E4040", mewerr.CategoryConstraint, mewerr.ErrPrevented,
						"KILL prevented by on_kill policy on edge").WithLoc(loc)
				}
				policy = registry.OnKillCascade
			}
			if policy == registry.OnKillCascade {
				for p, t := range e.Targets {
					if p == pos || t.IsEdge {
						continue
					}
					if err := cs.killNode(c, t.Node, cascadeOverride, loc); err != nil {
						return err
					}
				}
			}
			if err := cs.deleteEdge(c, e.ID, loc); err != nil {
				return err
			}
		}
	}

	c.Buf.StageNodeDelete(id)
	cs.cascaded++
	if cs.cascaded > cs.maxCascade {
		return mewerr.LimitExceeded("E5001", mewerr.ErrCascadeLimit, "max_cascade_count exceeded")
	}
	return nil
}

// deleteEdge buffers an edge deletion and cascades to any higher-order
// edge that lists it among its own targets; higher-order cascades are
// unconditional, with no on_kill override.
func (cs *cascadeState) deleteEdge(c *Ctx, id graphdata.EdgeID, loc ast.Location) error {
	if cs.deletedEdges[id] {
		return nil
	}
	if _, ok := c.Store.GetEdge(c.Buf, id); !ok {
		return nil
	}
	cs.deletedEdges[id] = true
	c.Buf.StageEdgeDelete(id)
	cs.cascaded++
	if cs.cascaded > cs.maxCascade {
		return mewerr.LimitExceeded("E5001", mewerr.ErrCascadeLimit, "max_cascade_count exceeded")
	}
	for _, referrer := range c.Store.HigherOrderReferrers(c.Buf, id) {
		if err := cs.deleteEdge(c, referrer, loc); err != nil {
			return err
		}
	}
	return nil
}

func positionOf(e *graphdata.Edge, id graphdata.NodeID) int {
	for i, t := range e.Targets {
		if !t.IsEdge && t.Node == id {
			return i
		}
	}
	return -1
}

func adjacentBoth(c *Ctx, id graphdata.NodeID, outbound bool) []*graphdata.Edge {
	dir := store.Outbound
	if !outbound {
		dir = store.Inbound
	}
	return c.Store.Adjacent(c.Buf, id, nil, dir)
}
