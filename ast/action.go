package ast

// Action is the closed sum of mutation primitives: used both as top-level
// transformation statements and as the ordered production list of a rule.
type Action interface {
	actionNode()
	Location() Location
}

// AttrAssign is a single `attr = expr` pair used by SPAWN/SET/LINK.
type AttrAssign struct {
	Attr string
	Expr Expr
}

// Spawn creates a new node of TypeName.
type Spawn struct {
	Var       string // optional binding for use by later actions in the same statement/production
	TypeName  string
	Attrs     []AttrAssign
	Returning []string
	Loc       Location
}

func (*Spawn) actionNode()           {}
func (s *Spawn) Location() Location { return s.Loc }

// KillTarget selects victims for KILL: either a direct id/var reference or
// a MATCH sub-pattern whose bound variable denotes the victim set.
type KillTarget struct {
	IDExpr  Expr    // set when killing by id/variable
	Pattern *Pattern // set when killing by subquery
	Var     string   // pattern variable denoting the victim when Pattern is set
}

// Kill destroys one or more nodes/edges, cascading per on-kill policy.
type Kill struct {
	Target         KillTarget
	CascadeOverride bool // force cascade even where policy is `prevent`
	Returning      []string
	Loc            Location
}

func (*Kill) actionNode()           {}
func (k *Kill) Location() Location { return k.Loc }

// LinkTargetExpr is one positional target of a LINK: either a reference to
// an existing entity or an inline SPAWN to create one first.
type LinkTargetExpr struct {
	Ref         Expr
	InlineSpawn *Spawn
}

// Link creates a new edge.
type Link struct {
	EdgeType      string
	Targets       []LinkTargetExpr
	Attrs         []AttrAssign
	IfNotExists   bool
	Returning     []string
	Loc           Location
}

func (*Link) actionNode()           {}
func (l *Link) Location() Location { return l.Loc }

// UnlinkTarget selects the edge(s) to remove.
type UnlinkTarget struct {
	IDExpr  Expr
	Pattern *Pattern
	Var     string
}

// Unlink destroys one or more edges.
type Unlink struct {
	Target    UnlinkTarget
	Returning []string
	Loc       Location
}

func (*Unlink) actionNode()           {}
func (u *Unlink) Location() Location { return u.Loc }

// SetTarget selects the node/edge whose attribute(s) are being changed.
type SetTarget struct {
	IDExpr  Expr
	Pattern *Pattern
	Var     string
}

// Set changes one or more attributes of a target.
type Set struct {
	Target    SetTarget
	Attrs     []AttrAssign
	Returning []string
	Loc       Location
}

func (*Set) actionNode()           {}
func (s *Set) Location() Location { return s.Loc }
