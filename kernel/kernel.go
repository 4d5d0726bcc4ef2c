/*
 * MEW
 *
 * Package kernel is the top-level execution core: it wires together the
 * compiler, registries, store, journal, transaction manager, pattern/
 * planner and rule/constraint engines into a single Engine that accepts
 * parsed statements and executes them. Session handling, the
 * lexer/parser, and any wire protocol remain out of scope — callers hand
 * the kernel an already-parsed ast.Statement.
 */
package kernel

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krotik/common/errorutil"
	"github.com/rs/zerolog"

	"github.com/bdjafer/mew/analyzer"
	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/compiler"
	"github.com/bdjafer/mew/constraint"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/journal"
	"github.com/bdjafer/mew/mewerr"
	"github.com/bdjafer/mew/mutate"
	"github.com/bdjafer/mew/planner"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
	"github.com/bdjafer/mew/txn"
)

// Config bundles the kernel's tunables: resource limits and the
// journal's on-disk path, held as typed constants rather than a generic
// settings bag.
type Config struct {
	JournalPath         string
	MaxCascadeCount     int
	MaxRuleDepth        int
	MaxRuleActions      int
	MaxUnboundedResults int
	MaxCollectSize      int
}

// DefaultConfig returns the kernel's resource-limit defaults.
func DefaultConfig(journalPath string) Config {
	return Config{
		JournalPath:         journalPath,
		MaxCascadeCount:     10000,
		MaxRuleDepth:        100,
		MaxRuleActions:      10000,
		MaxUnboundedResults: 10000,
		MaxCollectSize:      10000,
	}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger injects a zerolog.Logger the kernel logs structured events
// through (WAL fsync, rule firing, constraint violation, commit/rollback,
// recovery). The kernel never creates its own sink; callers that don't
// supply one get zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the kernel: one store, one published ontology, one journal,
// one transaction manager, and (optionally) one open transaction awaiting
// COMMIT/ROLLBACK.
type Engine struct {
	Store  *store.Store
	RegPub *registry.Publisher
	Log    *journal.Journal
	Txns   *txn.Manager
	Now    func() int64

	cfg     Config
	log     zerolog.Logger
	current *txn.Txn // open explicit transaction, nil outside BEGIN..COMMIT/ROLLBACK
}

// New opens (or creates) the journal at cfg.JournalPath, replays it into a
// fresh Store, and returns a ready Engine whose published ontology is the
// one the replayed journal recorded (empty for a new journal).
// now is the deterministic clock every component reads committed time
// from; callers pass a real clock in production and a fixed one in
// tests.
func New(cfg Config, now func() int64, opts ...Option) (*Engine, error) {
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Store:  store.New(),
		RegPub: registry.NewPublisher(registry.New()),
		Log:    j,
		Now:    now,
		cfg:    cfg,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Txns = txn.NewManager(e.Store, e.RegPub, e.Log, e.Now, txn.Limits{
		MaxCascade: cfg.MaxCascadeCount, MaxRuleDepth: cfg.MaxRuleDepth, MaxRuleActions: cfg.MaxRuleActions,
	})
	e.Txns.Logger = e.log

	if err := e.recover(); err != nil {
		return nil, err
	}
	return e, nil
}

// recover replays the journal's committed transactions into the store,
// in commit order: ontology records recompile and republish the
// registries, mutation records redo their logged entity effects.
// Uncommitted and aborted transactions are skipped, since their buffered
// writes never reached the store.
func (e *Engine) recover() error {
	outcomes, err := e.Log.Recover()
	if err != nil {
		return err
	}
	errs := errorutil.NewCompositeError()
	for _, o := range outcomes {
		if !o.Committed {
			continue
		}
		var ops []journal.EntityOp
		for _, rec := range o.Records {
			switch rec.Kind {
			case journal.KindOntology:
				onto, derr := journal.DecodeOntology(rec.Payload)
				if derr != nil {
					errs.Add(derr)
					continue
				}
				reg := e.RegPub.Load().Clone()
				if cerr := compiler.Compile(onto, reg); cerr != nil {
					errs.Add(cerr)
					continue
				}
				e.publishOntology(reg)
			case journal.KindRollbackTo:
				// replays a ROLLBACK TO savepoint: discard the ops the
				// live transaction discarded
				if len(rec.Payload) == 8 {
					if mark := int(binary.BigEndian.Uint64(rec.Payload)); mark < len(ops) {
						ops = ops[:mark]
					}
				}
			default:
				recOps, ok := journal.DecodeOps(rec.Payload)
				if !ok {
					errs.Add(mewerr.New("E6011", mewerr.CategoryStorage, mewerr.ErrStorage,
						"journal: undecodable mutation payload at LSN "+strconv.FormatUint(rec.LSN, 10)))
					continue
				}
				ops = append(ops, recOps...)
			}
		}
		if len(ops) > 0 {
			buf := store.NewBuffer()
			for _, op := range ops {
				if op.IsEdge {
					if op.Deleted {
						buf.StageEdgeDelete(op.EdgeID)
					} else {
						buf.StageEdge(op.Edge)
					}
					continue
				}
				if op.Deleted {
					buf.StageNodeDelete(op.NodeID)
				} else {
					buf.StageNode(op.Node)
				}
			}
			e.Store.Apply(buf, txn.AttrsOf(e.RegPub.Load()))
		}
		e.log.Info().Str("txn", o.TxnID).Int("records", len(o.Records)).Msg("replayed committed transaction")
	}
	if errs.HasErrors() {
		return mewerr.New("E6010", mewerr.CategoryStorage, mewerr.ErrStorage, errs.Error())
	}
	return nil
}

// Result is what Execute returns for any statement kind: an observation's
// rows and stats, a transformation's mutation outcome, or neither for a
// bare admin acknowledgement.
type Result struct {
	Columns []string
	Rows    []planner.Row
	Stats   planner.Stats
	Outcome *mutate.Outcome
	Soft    []constraint.Violation
	Message string
}

// Execute analyzes then runs one statement, auto-committing a lone
// Transform in an implicit single-statement transaction when no explicit
// BEGIN is in effect.
func (e *Engine) Execute(stmt ast.Statement, params map[string]graphdata.Value) (*Result, error) {
	reg := e.activeRegistries()
	if err := analyzer.AnalyzeStatement(reg, stmt); err != nil {
		return nil, err
	}

	switch s := stmt.(type) {
	case *ast.Match:
		return e.execObservation(func(c *planner.Ctx) (*planner.Result, error) { return planner.ExecMatch(c, s) }, params)
	case *ast.Walk:
		return e.execObservation(func(c *planner.Ctx) (*planner.Result, error) { return planner.ExecWalk(c, s) }, params)
	case *ast.Inspect:
		return e.execObservation(func(c *planner.Ctx) (*planner.Result, error) { return planner.ExecInspect(c, s) }, params)
	case *ast.Transform:
		return e.execTransform(s, params)
	case *ast.Begin:
		return e.execBegin(s)
	case *ast.Commit:
		return e.execCommit()
	case *ast.Rollback:
		return e.execRollback()
	case *ast.Savepoint:
		return e.execSavepoint(s)
	case *ast.RollbackTo:
		return e.execRollbackTo(s)
	case *ast.LoadOntology:
		return e.execLoadOntology(s)
	case *ast.ExtendOntology:
		return e.execExtendOntology(s)
	case *ast.Show:
		return e.execShow(s)
	case *ast.CreateIndex:
		return e.execCreateIndex(s)
	case *ast.DropIndex:
		return e.execDropIndex(s)
	case *ast.Explain:
		return e.execExplain(s, params)
	case *ast.DryRun:
		return e.execDryRun(s, params)
	case *ast.Snapshot, *ast.Checkout, *ast.Diff, *ast.Branch, *ast.Merge:
		return nil, mewerr.New("E1900", mewerr.CategorySyntax, mewerr.ErrUnsupported,
			"versioning statements are not supported by this kernel").WithLoc(stmt.Location()).
			WithHints("SNAPSHOT/CHECKOUT/DIFF/BRANCH/MERGE require a versioning layer above the kernel")
	}
	errorutil.AssertTrue(false, "kernel: unreachable statement kind in Execute")
	return nil, nil
}

// activeRegistries returns the transaction's pinned snapshot if one is
// open, or the currently published one otherwise.
func (e *Engine) activeRegistries() *registry.Registries {
	if e.current != nil {
		return e.current.Registries()
	}
	return e.RegPub.Load()
}

func (e *Engine) activeBuffer() *store.Buffer {
	if e.current != nil {
		return e.current.Buffer()
	}
	return nil
}

func (e *Engine) plannerCtx(params map[string]graphdata.Value) *planner.Ctx {
	return &planner.Ctx{
		Store: e.Store, Buf: e.activeBuffer(), Reg: e.activeRegistries(), Params: params,
		Now: e.Now, MaxResults: e.cfg.MaxUnboundedResults, MaxCollect: e.cfg.MaxCollectSize,
	}
}

func (e *Engine) execObservation(run func(*planner.Ctx) (*planner.Result, error), params map[string]graphdata.Value) (*Result, error) {
	start := time.Now()
	res, err := run(e.plannerCtx(params))
	if err != nil {
		return nil, err
	}
	res.Stats.Ms = time.Since(start).Milliseconds()
	return &Result{Columns: res.Columns, Rows: res.Rows, Stats: res.Stats}, nil
}

// execExplain describes the plan without executing; PROFILE executes the
// inner statement instead and reports its stats on the result envelope.
func (e *Engine) execExplain(s *ast.Explain, params map[string]graphdata.Value) (*Result, error) {
	if s.Profile {
		return e.Execute(s.Inner, params)
	}
	res := planner.Describe(e.plannerCtx(params), s.Inner)
	return &Result{Columns: res.Columns, Rows: res.Rows}, nil
}

// execTransform runs a single mutation action, auto-committing it in its
// own transaction unless an explicit one is already open.
func (e *Engine) execTransform(s *ast.Transform, params map[string]graphdata.Value) (*Result, error) {
	t := e.current
	owned := false
	if t == nil {
		var err error
		t, err = e.Txns.Begin(ast.ReadCommitted)
		if err != nil {
			return nil, err
		}
		owned = true
	}

	outcome, err := t.Execute(params, s.Action)
	if err != nil {
		// A constraint violation or rule limit closes the transaction
		// from inside Execute; a statement-level failure leaves it open.
		if t.Closed() {
			if !owned {
				e.current = nil
			}
		} else if owned {
			t.Rollback()
		}
		return nil, err
	}

	if !owned {
		return &Result{Outcome: outcome}, nil
	}

	if err := t.Commit(); err != nil {
		e.log.Warn().Err(err).Msg("transform commit failed")
		return nil, err
	}
	e.log.Debug().Interface("counts", outcome.Counts).Msg("transform committed")
	return &Result{Outcome: outcome, Soft: t.SoftViolations()}, nil
}

func (e *Engine) execDryRun(s *ast.DryRun, params map[string]graphdata.Value) (*Result, error) {
	tr, ok := s.Inner.(*ast.Transform)
	if !ok {
		return nil, mewerr.New("E5020", mewerr.CategorySyntax, mewerr.ErrAmbiguous, "DRY RUN requires a transformation statement")
	}
	t, err := e.Txns.Begin(ast.ReadCommitted)
	if err != nil {
		return nil, err
	}
	outcome, err := t.Execute(params, tr.Action)
	t.Rollback()
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: outcome, Message: "dry run: no change committed"}, nil
}

func (e *Engine) execBegin(s *ast.Begin) (*Result, error) {
	if e.current != nil {
		return nil, mewerr.TransactionErr("E5030", mewerr.ErrInternal, "a transaction is already open")
	}
	t, err := e.Txns.Begin(s.Isolation)
	if err != nil {
		return nil, err
	}
	e.current = t
	return &Result{Message: "transaction started"}, nil
}

func (e *Engine) execCommit() (*Result, error) {
	t := e.current
	if t == nil {
		return nil, mewerr.TransactionErr("E5031", mewerr.ErrInternal, "no open transaction")
	}
	e.current = nil
	if err := t.Commit(); err != nil {
		e.log.Warn().Err(err).Msg("commit failed")
		return nil, err
	}
	return &Result{Message: "committed", Soft: t.SoftViolations()}, nil
}

func (e *Engine) execRollback() (*Result, error) {
	t := e.current
	if t == nil {
		return nil, mewerr.TransactionErr("E5031", mewerr.ErrInternal, "no open transaction")
	}
	e.current = nil
	if err := t.Rollback(); err != nil {
		return nil, err
	}
	return &Result{Message: "rolled back"}, nil
}

func (e *Engine) execSavepoint(s *ast.Savepoint) (*Result, error) {
	if e.current == nil {
		return nil, mewerr.TransactionErr("E5031", mewerr.ErrInternal, "no open transaction")
	}
	e.current.Savepoint(s.Name)
	return &Result{Message: "savepoint \"" + s.Name + "\" set"}, nil
}

func (e *Engine) execRollbackTo(s *ast.RollbackTo) (*Result, error) {
	if e.current == nil {
		return nil, mewerr.TransactionErr("E5031", mewerr.ErrInternal, "no open transaction")
	}
	if err := e.current.RollbackTo(s.Name); err != nil {
		return nil, err
	}
	return &Result{Message: "rolled back to \"" + s.Name + "\""}, nil
}

// execLoadOntology compiles onto into a brand new Registries (the first
// ontology of the kernel's lifetime) and publishes it. Loading when an
// ontology is already published is rejected; use EXTEND ONTOLOGY instead.
func (e *Engine) execLoadOntology(s *ast.LoadOntology) (*Result, error) {
	cur := e.RegPub.Load()
	if len(cur.Types.All()) > 0 || len(cur.EdgeTypes.All()) > 0 {
		return nil, mewerr.New("E2020", mewerr.CategoryType, mewerr.ErrAmbiguous,
			"an ontology is already loaded; use EXTEND ONTOLOGY").WithLoc(s.Loc)
	}
	return e.loadOrExtend(s.Ontology, cur.Clone())
}

// execExtendOntology compiles onto into a clone of the currently published
// Registries and publishes the clone atomically.
func (e *Engine) execExtendOntology(s *ast.ExtendOntology) (*Result, error) {
	return e.loadOrExtend(s.Ontology, e.RegPub.Load().Clone())
}

func (e *Engine) loadOrExtend(onto *ast.Ontology, reg *registry.Registries) (*Result, error) {
	if err := compiler.Compile(onto, reg); err != nil {
		return nil, err
	}
	if err := analyzer.AnalyzeOntology(reg, onto); err != nil {
		return nil, err
	}

	// The ontology is durable state: journal it as its own committed
	// mini-transaction (the compiled-ontology blob of the persisted
	// layout) before publishing, so recovery can rebuild the registries
	// ahead of the data records that depend on them.
	payload, err := journal.EncodeOntology(onto)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	lsn, err := e.Log.Append(id, 0, journal.KindOntology, payload)
	if err != nil {
		return nil, err
	}
	if _, err := e.Log.Append(id, lsn, journal.KindCommit, nil); err != nil {
		return nil, err
	}
	if err := e.Log.Sync(); err != nil {
		return nil, err
	}
	e.log.Debug().Uint64("lsn", lsn).Msg("wal fsync complete")

	e.publishOntology(reg)
	return &Result{Message: "ontology loaded"}, nil
}

// publishOntology swaps the registries, materializes declared indexes,
// and refreshes the Layer-0 mirror. Shared between the statement path
// and recovery replay.
func (e *Engine) publishOntology(reg *registry.Registries) {
	for _, td := range reg.Types.All() {
		for attrID, def := range td.OwnAttrs {
			if def.Indexed || def.Unique {
				e.Store.DeclareAttrIndex(td.ID, attrID, def.Unique)
			}
		}
	}
	e.RegPub.Publish(reg)
	compiler.EmitLayer0(reg, e.Store)
	e.log.Info().Int("version", reg.Version()).Msg("ontology published")
}

func (e *Engine) execCreateIndex(s *ast.CreateIndex) (*Result, error) {
	reg := e.activeRegistries()
	td, ok := reg.Types.ByName(s.TypeName)
	if !ok {
		return nil, mewerr.New("E2005", mewerr.CategoryType, mewerr.ErrUnknownType, "unknown type \""+s.TypeName+"\"").WithLoc(s.Loc)
	}
	attrID, ok := reg.AttrID(s.AttrName)
	if !ok {
		return nil, mewerr.New("E2006", mewerr.CategoryType, mewerr.ErrUnknownAttribute, "unknown attribute \""+s.AttrName+"\"").WithLoc(s.Loc)
	}
	e.Store.DeclareAttrIndex(td.ID, attrID, s.Unique)
	return &Result{Message: "index created"}, nil
}

func (e *Engine) execDropIndex(s *ast.DropIndex) (*Result, error) {
	reg := e.activeRegistries()
	td, ok := reg.Types.ByName(s.TypeName)
	if !ok {
		return nil, mewerr.New("E2005", mewerr.CategoryType, mewerr.ErrUnknownType, "unknown type \""+s.TypeName+"\"").WithLoc(s.Loc)
	}
	attrID, ok := reg.AttrID(s.AttrName)
	if !ok {
		return nil, mewerr.New("E2006", mewerr.CategoryType, mewerr.ErrUnknownAttribute, "unknown attribute \""+s.AttrName+"\"").WithLoc(s.Loc)
	}
	e.Store.DropAttrIndex(td.ID, attrID)
	return &Result{Message: "index dropped"}, nil
}

// execShow answers the introspection queries grouped under SHOW.
// Layer-0 meta declarations (names beginning `_`) are elided: they are
// reachable through MATCH over the mirror, not through the user-facing
// catalog listings.
func (e *Engine) execShow(s *ast.Show) (*Result, error) {
	reg := e.activeRegistries()
	switch s.Target {
	case ast.ShowTypes:
		rows := make([]planner.Row, 0, len(reg.Types.All()))
		for _, td := range reg.Types.All() {
			if strings.HasPrefix(td.Name, "_") {
				continue
			}
			rows = append(rows, planner.Row{"name": graphdata.Str(td.Name), "abstract": graphdata.Bool(td.Abstract)})
		}
		return &Result{Columns: []string{"name", "abstract"}, Rows: rows}, nil
	case ast.ShowEdges:
		rows := make([]planner.Row, 0, len(reg.EdgeTypes.All()))
		for _, ed := range reg.EdgeTypes.All() {
			if strings.HasPrefix(ed.Name, "_") {
				continue
			}
			rows = append(rows, planner.Row{"name": graphdata.Str(ed.Name), "arity": graphdata.Int(int64(len(ed.Params)))})
		}
		return &Result{Columns: []string{"name", "arity"}, Rows: rows}, nil
	case ast.ShowConstraints:
		rows := make([]planner.Row, 0, len(reg.Constraints.All()))
		for _, cd := range reg.Constraints.All() {
			rows = append(rows, planner.Row{
				"name":     graphdata.Str(cd.Name),
				"soft":     graphdata.Bool(cd.Soft),
				"deferred": graphdata.Bool(cd.Deferred),
			})
		}
		return &Result{Columns: []string{"name", "soft", "deferred"}, Rows: rows}, nil
	case ast.ShowRules:
		rows := make([]planner.Row, 0, len(reg.Rules.All()))
		for _, rd := range reg.Rules.All() {
			rows = append(rows, planner.Row{"name": graphdata.Str(rd.Name), "auto": graphdata.Bool(rd.Auto), "priority": graphdata.Int(int64(rd.Priority))})
		}
		return &Result{Columns: []string{"name", "auto", "priority"}, Rows: rows}, nil
	case ast.ShowStatistics:
		rows := make([]planner.Row, 0, len(reg.Types.All()))
		for _, td := range reg.Types.All() {
			if strings.HasPrefix(td.Name, "_") {
				continue
			}
			count := len(e.Store.NodesOfTypes(nil, map[graphdata.TypeID]bool{td.ID: true}))
			rows = append(rows, planner.Row{"type": graphdata.Str(td.Name), "nodes": graphdata.Int(int64(count))})
		}
		return &Result{Columns: []string{"type", "nodes"}, Rows: rows}, nil
	case ast.ShowStatus:
		rows := []planner.Row{{
			"nodes":            graphdata.Int(int64(e.Store.NodeCount())),
			"edges":            graphdata.Int(int64(e.Store.EdgeCount())),
			"wal_lsn":          graphdata.Int(int64(e.Log.NextLSN() - 1)),
			"ontology_version": graphdata.Int(int64(e.RegPub.Load().Version())),
			"txn_open":         graphdata.Bool(e.current != nil),
		}}
		return &Result{Columns: []string{"nodes", "edges", "wal_lsn", "ontology_version", "txn_open"}, Rows: rows}, nil
	case ast.ShowIndexes:
		rows := make([]planner.Row, 0)
		for _, ix := range e.Store.ListAttrIndexes() {
			typeName := "?"
			if td, ok := reg.Types.ByID(ix.Type); ok {
				typeName = td.Name
			}
			attrName, _ := reg.AttrName(ix.Attr)
			rows = append(rows, planner.Row{
				"type":   graphdata.Str(typeName),
				"attr":   graphdata.Str(attrName),
				"unique": graphdata.Bool(ix.Unique),
			})
		}
		return &Result{Columns: []string{"type", "attr", "unique"}, Rows: rows}, nil
	}
	errorutil.AssertTrue(false, "kernel: unreachable SHOW target")
	return nil, nil
}
