package ast

// TransitiveMode marks an edge pattern as a transitive-closure traversal.
type TransitiveMode int

const (
	TransitiveNone TransitiveMode = iota
	TransitivePlus                // `+` one-or-more
	TransitiveStar                // `*` zero-or-more
)

// NodePatternVar is a node variable with an optional type constraint. An
// empty TypeName with Any set matches any non-abstract type.
type NodePatternVar struct {
	Var      string
	TypeName string
	Any      bool
	Loc      Location
}

// EdgePattern constrains two (or, for higher-order edges, more) target
// variable positions through an edge type.
type EdgePattern struct {
	Alias      string // optional edge variable binding
	TypeName   string
	AnyType    bool // `edge<any>`
	Positions  []string
	Negated    bool
	Transitive TransitiveMode
	MinDepth   int // default 1
	MaxDepth   int // default 100
	Loc        Location
}

// Pattern is a compiled-from-text pattern: node variables, edge patterns
// and filter expressions, shared by MATCH, constraints and rules.
type Pattern struct {
	Nodes   []NodePatternVar
	Edges   []EdgePattern
	Filters []Expr
	Loc     Location
}
