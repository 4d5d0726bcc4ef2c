/*
 * MEW
 *
 * Package txn implements the Transaction Manager: BEGIN opens a
 * transaction buffer over a pinned Registries snapshot, every Transform
 * statement executes through Execute — primitive first, then the
 * immediate constraints it could have invalidated, then the rule engine
 * to quiescence — and is WAL-logged with its exact entity effects as it
 * happens. COMMIT validates deferred constraints, durably records the
 * commit (append + fsync) and only then applies the buffer to the
 * store; ROLLBACK (whole or to a named savepoint) discards buffered
 * writes without ever touching committed state. Serializable isolation
 * adds a single coarse commit lock on top of that, since package
 * store's own Apply critical section only serializes the
 * index-mutation step, not a transaction's full read-modify-write
 * lifetime.
 */
package txn

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/constraint"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/journal"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/mutate"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/rule"
	"github.com/bdjafer/mew/store"
)

// Limits bundles the resource bounds placed on a transaction's lifecycle
// that aren't specific to planning (those live in planner.Ctx) or a
// single mutation primitive (mutate.Ctx.MaxCascade).
type Limits struct {
	MaxCascade     int
	MaxRuleDepth   int
	MaxRuleActions int
}

// Manager owns the durable store, the published ontology, and the WAL,
// and mints transactions against them.
type Manager struct {
	Store  *store.Store
	RegPub *registry.Publisher
	Log    *journal.Journal
	Now    func() int64
	Limits Limits
	Logger zerolog.Logger // defaults to zerolog.Nop(); set via kernel.WithLogger

	serialMu sync.Mutex // held for the full lifetime of a Serializable txn
}

// NewManager creates a Manager over already-opened storage.
func NewManager(s *store.Store, regPub *registry.Publisher, log *journal.Journal, now func() int64, limits Limits) *Manager {
	return &Manager{Store: s, RegPub: regPub, Log: log, Now: now, Limits: limits, Logger: zerolog.Nop()}
}

type savepoint struct {
	bufMark  int
	ruleMark int
}

// Txn is one open transaction.
type Txn struct {
	id         string
	mgr        *Manager
	buf        *store.Buffer
	reg        *registry.Registries // pinned snapshot from Begin, read-your-writes consistent
	eng        *rule.Engine         // lives for the whole transaction: dedup set and counters
	isolation  ast.IsolationLevel
	savepoints map[string]savepoint
	lastLSN    uint64
	locked     bool // holds mgr.serialMu, for Serializable isolation
	soft       []constraint.Violation
	closed     bool
}

// Begin opens a new transaction. Serializable transactions take the
// Manager's commit-ordering lock for their whole lifetime, so no other
// Serializable transaction can interleave with them; ReadCommitted
// transactions do not take that lock and run concurrently with
// transactions of either isolation level, relying on Store's own
// per-operation locking plus each transaction seeing only state committed
// before its reads (read-your-writes via the buffer on top of that).
func (m *Manager) Begin(isolation ast.IsolationLevel) (*Txn, error) {
	t := &Txn{
		id:         uuid.NewString(),
		mgr:        m,
		buf:        store.NewBuffer(),
		reg:        m.RegPub.Load(),
		isolation:  isolation,
		savepoints: make(map[string]savepoint),
	}
	t.eng = rule.NewEngine(m.Store, t.buf, t.reg, nil, m.Now, rule.Limits{
		MaxDepth: m.Limits.MaxRuleDepth, MaxActions: m.Limits.MaxRuleActions,
		MaxCascade: m.Limits.MaxCascade,
	})
	t.eng.OnApply = func(a ast.Action, ops []store.StagedOp) {
		t.appendMutationRecord(a, ops)
	}
	t.eng.OnFire = func(ruleName string) {
		m.Logger.Debug().Str("txn", t.id).Str("rule", ruleName).Msg("rule fired")
	}
	if isolation == ast.Serializable {
		m.serialMu.Lock()
		t.locked = true
	}

	lsn, err := m.Log.Append(t.id, 0, journal.KindBegin, nil)
	if err != nil {
		t.unlock()
		return nil, err
	}
	t.lastLSN = lsn
	return t, nil
}

// Registries returns the ontology snapshot this transaction reads and
// writes against.
func (t *Txn) Registries() *registry.Registries { return t.reg }

// Buffer exposes the transaction's staging area, e.g. for the planner to
// read pending writes back (read-your-writes).
func (t *Txn) Buffer() *store.Buffer { return t.buf }

// Closed reports whether this transaction has committed or aborted. A
// hard constraint violation or a rule limit closes the transaction from
// inside Execute; callers holding the Txn must not reuse it after that.
func (t *Txn) Closed() bool { return t.closed }

// Execute runs one mutation primitive against this transaction's buffer:
// the primitive validates and stages its effects, the immediate
// constraints its touched types select are re-checked, and the rule
// engine runs to quiescence over whatever changed (with rule-triggered
// writes checked the same way). Each primitive — direct or
// rule-triggered — is WAL-logged with its exact entity effects, chained
// to the transaction's prior LSN.
//
// A failed primitive (TypeError, NotFound) aborts only this statement:
// its partial effects are rolled back and the transaction stays open. A
// constraint violation or an exceeded rule limit aborts the whole
// transaction.
func (t *Txn) Execute(params map[string]graphdata.Value, a ast.Action) (*mutate.Outcome, error) {
	if t.closed {
		return nil, mewerr.TransactionErr("E5010", mewerr.ErrInternal, "transaction already closed")
	}
	c := &mutate.Ctx{
		Store: t.mgr.Store, Buf: t.buf, Reg: t.reg, Params: params,
		Now: t.mgr.Now, MaxCascade: t.mgr.Limits.MaxCascade,
	}

	mark := t.buf.Mark()
	outcome, err := dispatch(c, a)
	if err != nil {
		t.buf.RollbackTo(mark)
		return nil, err
	}
	if jerr := t.appendMutationRecord(a, t.buf.OpsSince(mark)); jerr != nil {
		return nil, jerr
	}

	if err := t.checkImmediate(); err != nil {
		t.abort()
		t.finish()
		return nil, err
	}
	t.eng.Params = params
	if err := t.eng.Run(); err != nil {
		t.abort()
		t.finish()
		return nil, err
	}
	if err := t.checkImmediate(); err != nil {
		t.abort()
		t.finish()
		return nil, err
	}
	return outcome, nil
}

func dispatch(c *mutate.Ctx, a ast.Action) (*mutate.Outcome, error) {
	switch act := a.(type) {
	case *ast.Spawn:
		return mutate.Spawn(c, act)
	case *ast.Kill:
		return mutate.Kill(c, act)
	case *ast.Link:
		return mutate.Link(c, act)
	case *ast.Unlink:
		return mutate.Unlink(c, act)
	case *ast.Set:
		return mutate.Set(c, act)
	}
	return nil, mewerr.Internal("unknown action kind in Transform")
}

// appendMutationRecord writes one WAL record for a primitive mutation,
// carrying the exact staged entity states (redo) and the committed
// states they replace (undo).
func (t *Txn) appendMutationRecord(a ast.Action, ops []store.StagedOp) error {
	entityOps := make([]journal.EntityOp, 0, len(ops))
	for _, op := range ops {
		eo := journal.EntityOp{
			IsEdge: op.IsEdge, NodeID: op.NodeID, EdgeID: op.EdgeID,
			Node: op.Node, Edge: op.Edge, Deleted: op.Deleted,
		}
		if op.IsEdge {
			if prev, ok := t.mgr.Store.GetEdge(nil, op.EdgeID); ok {
				eo.PrevEdge = prev
			}
		} else {
			if prev, ok := t.mgr.Store.GetNode(nil, op.NodeID); ok {
				eo.PrevNode = prev
			}
		}
		entityOps = append(entityOps, eo)
	}

	lsn, err := t.mgr.Log.Append(t.id, t.lastLSN, journalKind(a), journal.EncodeOps(entityOps))
	if err != nil {
		return err
	}
	t.lastLSN = lsn
	return nil
}

func journalKind(a ast.Action) journal.Kind {
	switch a.(type) {
	case *ast.Spawn:
		return journal.KindSpawn
	case *ast.Kill:
		return journal.KindKill
	case *ast.Link:
		return journal.KindLink
	case *ast.Unlink:
		return journal.KindUnlink
	case *ast.Set:
		return journal.KindSet
	}
	return journal.KindSet
}

// checkImmediate re-validates every non-deferred hard constraint whose
// affected types the buffer currently touches. Soft constraints are
// evaluated once at commit instead, so one logical violation is reported
// once rather than per statement.
func (t *Txn) checkImmediate() error {
	touched, touchedEdges := constraint.TouchedTypes(t.buf, t.mgr.Store)
	affected := constraint.Affected(t.reg, touched, touchedEdges)
	immediate := affected[:0:0]
	for _, def := range affected {
		if !def.Deferred && !def.Soft {
			immediate = append(immediate, def)
		}
	}
	if len(immediate) == 0 {
		return nil
	}
	violations, err := constraint.Check(t.mgr.Store, t.buf, t.reg, t.mgr.Now, immediate)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		v := violations[0]
		t.mgr.Logger.Warn().Str("txn", t.id).Str("constraint", v.Constraint.Name).Msg("constraint violation, aborting")
		return constraint.Error(v)
	}
	return nil
}

// Savepoint marks the current position in the buffer's undo log and the
// rule-dedup set under name, to be targeted by a later RollbackTo.
func (t *Txn) Savepoint(name string) {
	t.savepoints[name] = savepoint{bufMark: t.buf.Mark(), ruleMark: t.eng.Mark()}
}

// RollbackTo undoes every buffered change and rule-dedup entry made
// since the named savepoint, without ending the transaction. The
// truncation is WAL-logged too: mutation records for the undone ops are
// already on disk, so recovery needs the mark to discard them the same
// way.
func (t *Txn) RollbackTo(name string) error {
	sp, ok := t.savepoints[name]
	if !ok {
		return mewerr.TransactionErr("E5011", mewerr.ErrInternal, "unknown savepoint \""+name+"\"")
	}
	t.buf.RollbackTo(sp.bufMark)
	t.eng.TruncateTo(sp.ruleMark)

	var payload [8]byte
	binary.BigEndian.PutUint64(payload[:], uint64(sp.bufMark))
	lsn, err := t.mgr.Log.Append(t.id, t.lastLSN, journal.KindRollbackTo, payload[:])
	if err != nil {
		return err
	}
	t.lastLSN = lsn
	return nil
}

// SoftViolations returns the non-aborting constraint violations recorded
// by the most recent Commit, for the result envelope's warnings.
func (t *Txn) SoftViolations() []constraint.Violation { return t.soft }

// Commit validates every constraint the transaction's buffer could have
// invalidated — the deferred ones for the first time, the immediate ones
// as a final whole-buffer assurance — then durably records the commit
// (WAL append + fsync) and only afterwards applies the buffer to the
// store and its indexes in one critical section. A hard violation rolls
// the transaction back: commit fails atomically, no partial apply is
// ever visible.
func (t *Txn) Commit() error {
	if t.closed {
		return mewerr.TransactionErr("E5010", mewerr.ErrInternal, "transaction already closed")
	}
	defer t.finish()

	touched, touchedEdges := constraint.TouchedTypes(t.buf, t.mgr.Store)
	if err := constraint.CheckCardinality(t.mgr.Store, t.buf, t.reg, touched, touchedEdges); err != nil {
		t.mgr.Logger.Warn().Str("txn", t.id).Err(err).Msg("cardinality bound violated, aborting")
		t.abort()
		return err
	}
	affected := constraint.Affected(t.reg, touched, touchedEdges)
	violations, err := constraint.Check(t.mgr.Store, t.buf, t.reg, t.mgr.Now, affected)
	if err != nil {
		t.abort()
		return err
	}
	hard, soft := constraint.Split(violations)
	if len(hard) > 0 {
		t.mgr.Logger.Warn().Str("txn", t.id).Str("constraint", hard[0].Constraint.Name).Msg("constraint violation, aborting")
		t.abort()
		return constraint.Error(hard[0])
	}
	for _, v := range soft {
		t.mgr.Logger.Info().Str("txn", t.id).Str("constraint", v.Constraint.Name).Msg("soft constraint violation")
	}
	t.soft = soft

	if _, err := t.mgr.Log.Append(t.id, t.lastLSN, journal.KindCommit, nil); err != nil {
		t.abort()
		return err
	}
	if err := t.mgr.Log.Sync(); err != nil {
		t.abort()
		return err
	}
	t.mgr.Logger.Debug().Str("txn", t.id).Uint64("lsn", t.lastLSN).Msg("wal fsync complete")

	t.mgr.Store.Apply(t.buf, AttrsOf(t.reg))
	return nil
}

// Rollback discards every buffered change and ends the transaction.
func (t *Txn) Rollback() error {
	if t.closed {
		return mewerr.TransactionErr("E5010", mewerr.ErrInternal, "transaction already closed")
	}
	t.abort()
	t.finish()
	return nil
}

func (t *Txn) abort() {
	t.buf.Reset()
	t.mgr.Log.Append(t.id, t.lastLSN, journal.KindAbort, nil)
}

func (t *Txn) finish() {
	t.closed = true
	t.unlock()
}

func (t *Txn) unlock() {
	if t.locked {
		t.mgr.serialMu.Unlock()
		t.locked = false
	}
}

// AttrsOf adapts the registries' per-type attribute set to the plain
// function Store.Apply needs for index maintenance.
func AttrsOf(reg *registry.Registries) func(graphdata.TypeID) []graphdata.AttrID {
	return func(t graphdata.TypeID) []graphdata.AttrID {
		defs := reg.Types.AllAttrs(t)
		out := make([]graphdata.AttrID, 0, len(defs))
		for id := range defs {
			out = append(out, id)
		}
		return out
	}
}
