package ast

// Modifier is a declared attribute or edge modifier from ontology text,
// expanded by the compiler into explicit constraints.
type Modifier struct {
	Name string // "required", "unique", "indexed", ">=", "<=", "enum", "pattern", "length"
	Args []Literal
	Loc  Location
}

// AttrDecl declares a single attribute of a node or edge type.
type AttrDecl struct {
	Name      string
	TypeName  string // one of the scalar kinds, case-insensitive
	Optional  bool   // trailing `?`
	Modifiers []Modifier
	Loc       Location
}

// TypeDecl declares a node type.
type TypeDecl struct {
	Name      string
	Parents   []string
	Abstract  bool
	Attrs     []AttrDecl
	Loc       Location
}

// EdgeParam is one positional parameter of an edge type's signature.
type EdgeParam struct {
	Role     string // positional role name, e.g. "a" in depends_on(a: Task, b: Task)
	TypeName string // node type name, or edge type name (for higher-order edges)
	IsEdge   bool
	Loc      Location
}

// EdgeTypeDecl declares an edge type.
type EdgeTypeDecl struct {
	Name      string
	Params    []EdgeParam
	Attrs     []AttrDecl
	Modifiers []Modifier // unique, symmetric, no_self, acyclic, cardinality, on_kill_<role>
	Loc       Location
}

// RuleDecl declares a reactive rule.
type RuleDecl struct {
	Name     string
	Auto     bool
	Priority int
	Pattern  *Pattern
	Actions  []Action
	Loc      Location
}

// ConstraintDecl declares a named standalone constraint (beyond the ones
// implied by attribute/edge modifiers).
type ConstraintDecl struct {
	Name    string
	Pattern *Pattern
	Cond    Expr
	Soft    bool
	Message string
	Loc     Location
}

// Ontology is the full AST for a LOAD/EXTEND ONTOLOGY statement.
type Ontology struct {
	Types       []TypeDecl
	EdgeTypes   []EdgeTypeDecl
	Constraints []ConstraintDecl
	Rules       []RuleDecl
	Loc         Location
}
