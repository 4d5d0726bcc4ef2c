package registry

import (
	"sync/atomic"
)

// Registries bundles the four immutable repositories published together
// after ontology compilation. In-flight transactions keep a reference to
// the Registries they began with; EXTEND publishes a new Registries by
// copy-on-write without disturbing them.
type Registries struct {
	Types       *TypeRegistry
	EdgeTypes   *EdgeTypeRegistry
	Constraints *ConstraintRegistry
	Rules       *RuleRegistry

	attrNames *names
	version   int
}

// New creates an empty Registries, used before the first LOAD ONTOLOGY.
func New() *Registries {
	return &Registries{
		Types:       newTypeRegistry(),
		EdgeTypes:   newEdgeTypeRegistry(),
		Constraints: newConstraintRegistry(),
		Rules:       newRuleRegistry(),
		attrNames:   newNames(),
	}
}

// Clone returns a deep, independent copy suitable for mutation by EXTEND
// before being published via a Publisher.
func (r *Registries) Clone() *Registries {
	return &Registries{
		Types:       r.Types.clone(),
		EdgeTypes:   r.EdgeTypes.clone(),
		Constraints: r.Constraints.clone(),
		Rules:       r.Rules.clone(),
		attrNames:   r.attrNames.clone(),
		version:     r.version + 1,
	}
}

// Finalize precomputes transitive type closures. Call after all types
// are declared (initial load, or after EXTEND adds new ones).
func (r *Registries) Finalize() {
	r.Types.Finalize()
}

// Version returns a monotonic generation counter, bumped on every Clone.
func (r *Registries) Version() int { return r.version }

// Publisher atomically swaps the active Registries on ontology
// extension; readers never block since they always see a complete,
// immutable snapshot.
type Publisher struct {
	v atomic.Value
}

// NewPublisher creates a Publisher holding the given initial Registries.
func NewPublisher(r *Registries) *Publisher {
	p := &Publisher{}
	p.v.Store(r)
	return p
}

// Load returns the currently published Registries. Never blocks.
func (p *Publisher) Load() *Registries {
	return p.v.Load().(*Registries)
}

// Publish atomically swaps in a new Registries.
func (p *Publisher) Publish(r *Registries) {
	p.v.Store(r)
}
