package txn

import (
	"path/filepath"
	"testing"

	"github.com/bdjafer/mew/ast"
	"github.com/bdjafer/mew/graphdata"
	"github.com/bdjafer/mew/journal"
	"github.com/bdjafer/mew/registry"
	"github.com/bdjafer/mew/store"
)

func newTestManager(t *testing.T, reg *registry.Registries) *Manager {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "test.mwl"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	pub := registry.NewPublisher(reg)
	return NewManager(store.New(), pub, j, func() int64 { return 1000 }, Limits{})
}

func TestCommitAppliesSpawnToStore(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Person", false, nil)
	reg.Types.Finalize()

	mgr := newTestManager(t, reg)
	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	out, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person"})
	if err != nil {
		t.Fatalf("Execute(Spawn): %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, ok := mgr.Store.GetNode(nil, out.Ref.Node); !ok {
		t.Error("committed node should be visible in the store")
	}
}

func TestRollbackDiscardsBufferedWrites(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Person", false, nil)
	reg.Types.Finalize()

	mgr := newTestManager(t, reg)
	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	out, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, ok := mgr.Store.GetNode(nil, out.Ref.Node); ok {
		t.Error("rolled-back node should never reach the store")
	}
}

func TestSavepointRollbackToUndoesLaterWrites(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Person", false, nil)
	reg.Types.Finalize()

	mgr := newTestManager(t, reg)
	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	first, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person"})
	if err != nil {
		t.Fatalf("Execute 1: %v", err)
	}
	tx.Savepoint("sp1")
	second, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person"})
	if err != nil {
		t.Fatalf("Execute 2: %v", err)
	}

	if err := tx.RollbackTo("sp1"); err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, ok := mgr.Store.GetNode(nil, first.Ref.Node); !ok {
		t.Error("the pre-savepoint spawn should survive commit")
	}
	if _, ok := mgr.Store.GetNode(nil, second.Ref.Node); ok {
		t.Error("the post-savepoint spawn should have been undone")
	}
}

func adultOnlyConstraint(reg *registry.Registries, td *registry.TypeDef, deferred bool) {
	reg.Constraints.Add(&registry.ConstraintDef{
		Name:     "adult-only",
		Deferred: deferred,
		Pattern:  &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "p", TypeName: "Person"}}},
		Cond: &ast.BinaryExpr{
			Op:    ast.OpGeq,
			Left:  &ast.AttrRef{Var: "p", Attr: "age"},
			Right: &ast.LiteralExpr{Lit: ast.Literal{Kind: ast.KindInt, I: 18}},
		},
		AffectedTypes: map[graphdata.TypeID]bool{td.ID: true},
	})
}

func TestImmediateConstraintViolationAbortsAtExecute(t *testing.T) {
	reg := registry.New()
	td := reg.Types.Declare("Person", false, nil)
	ageAttr := reg.AttrHandle("age")
	td.OwnAttrs[ageAttr] = &registry.AttrDef{ID: ageAttr, Name: "age", Kind: registry.KindInt}
	reg.Types.Finalize()
	adultOnlyConstraint(reg, td, false)

	mgr := newTestManager(t, reg)
	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	out, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person", Attrs: []ast.AttrAssign{
		{Attr: "age", Expr: &ast.LiteralExpr{Lit: ast.Literal{Kind: ast.KindInt, I: 5}}},
	}})
	if err == nil {
		t.Fatal("Execute should fail: the spawned node violates adult-only immediately")
	}
	if !tx.Closed() {
		t.Error("an immediate hard violation should abort the whole transaction")
	}
	if out != nil {
		t.Errorf("Execute outcome = %+v, want nil on abort", out)
	}
	if mgr.Store.NodeCount() != 0 {
		t.Error("a hard constraint violation must leave the store untouched")
	}
}

func TestDeferredConstraintViolationAbortsAtCommit(t *testing.T) {
	reg := registry.New()
	td := reg.Types.Declare("Person", false, nil)
	ageAttr := reg.AttrHandle("age")
	td.OwnAttrs[ageAttr] = &registry.AttrDef{ID: ageAttr, Name: "age", Kind: registry.KindInt}
	reg.Types.Finalize()
	adultOnlyConstraint(reg, td, true)

	mgr := newTestManager(t, reg)
	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	out, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person", Attrs: []ast.AttrAssign{
		{Attr: "age", Expr: &ast.LiteralExpr{Lit: ast.Literal{Kind: ast.KindInt, I: 5}}},
	}})
	if err != nil {
		t.Fatalf("Execute should defer the check to commit: %v", err)
	}

	if err := tx.Commit(); err == nil {
		t.Fatal("Commit should fail: the spawned node violates adult-only")
	}
	if _, ok := mgr.Store.GetNode(nil, out.Ref.Node); ok {
		t.Error("a hard constraint violation must leave the store untouched")
	}
}

func TestSoftConstraintViolationDoesNotAbort(t *testing.T) {
	reg := registry.New()
	td := reg.Types.Declare("Person", false, nil)
	ageAttr := reg.AttrHandle("age")
	td.OwnAttrs[ageAttr] = &registry.AttrDef{ID: ageAttr, Name: "age", Kind: registry.KindInt}
	reg.Types.Finalize()

	def := &registry.ConstraintDef{
		Name:    "should-have-age",
		Soft:    true,
		Pattern: &ast.Pattern{Nodes: []ast.NodePatternVar{{Var: "p", TypeName: "Person"}}},
		Cond: &ast.BinaryExpr{
			Op:    ast.OpNeq,
			Left:  &ast.AttrRef{Var: "p", Attr: "age"},
			Right: &ast.LiteralExpr{Lit: ast.Literal{Kind: ast.KindNull}},
		},
		AffectedTypes: map[graphdata.TypeID]bool{td.ID: true},
	}
	reg.Constraints.Add(def)

	mgr := newTestManager(t, reg)
	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	out, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit should succeed despite the soft violation: %v", err)
	}
	if _, ok := mgr.Store.GetNode(nil, out.Ref.Node); !ok {
		t.Error("committed node should be visible despite the soft violation")
	}
	if len(tx.SoftViolations()) != 1 {
		t.Errorf("SoftViolations() = %v, want 1 entry", tx.SoftViolations())
	}
}

func TestExecuteAfterCloseFails(t *testing.T) {
	reg := registry.New()
	reg.Types.Declare("Person", false, nil)
	reg.Types.Finalize()

	mgr := newTestManager(t, reg)
	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := tx.Execute(nil, &ast.Spawn{TypeName: "Person"}); err == nil {
		t.Error("Execute on a closed transaction should fail")
	}
}

func minCardFixture(t *testing.T) *registry.Registries {
	t.Helper()
	reg := registry.New()
	taskType := reg.Types.Declare("Task", false, nil)
	projType := reg.Types.Declare("Project", false, nil)
	reg.Types.Finalize()

	ed := reg.EdgeTypes.Declare("belongs_to")
	ed.Params = []registry.EdgeParamDef{
		{Role: "t", TypeID: taskType.ID},
		{Role: "p", TypeID: projType.ID},
	}
	ed.HasMinCard, ed.MinCard = true, 1
	return reg
}

func TestCommitRejectsUnmetMinCardinality(t *testing.T) {
	reg := minCardFixture(t)
	mgr := newTestManager(t, reg)

	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx.Execute(nil, &ast.Spawn{TypeName: "Task"}); err != nil {
		t.Fatalf("Execute(Spawn): %v", err)
	}

	if err := tx.Commit(); err == nil {
		t.Fatal("Commit should fail: the task has no belongs_to edge and min_cardinality is 1")
	}
	if mgr.Store.NodeCount() != 0 {
		t.Error("an aborted commit must leave the store untouched")
	}
}

func TestCommitAcceptsSatisfiedMinCardinality(t *testing.T) {
	reg := minCardFixture(t)
	mgr := newTestManager(t, reg)

	tx, err := mgr.Begin(ast.ReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	task, err := tx.Execute(nil, &ast.Spawn{TypeName: "Task"})
	if err != nil {
		t.Fatalf("spawn task: %v", err)
	}
	proj, err := tx.Execute(nil, &ast.Spawn{TypeName: "Project"})
	if err != nil {
		t.Fatalf("spawn project: %v", err)
	}
	_, err = tx.Execute(nil, &ast.Link{EdgeType: "belongs_to", Targets: []ast.LinkTargetExpr{
		{Ref: &ast.IDRef{ID: string(task.Ref.Node)}},
		{Ref: &ast.IDRef{ID: string(proj.Ref.Node)}},
	}})
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit should succeed once every bound is satisfied: %v", err)
	}
	if mgr.Store.NodeCount() != 2 || mgr.Store.EdgeCount() != 1 {
		t.Errorf("store has %d nodes / %d edges, want 2 / 1", mgr.Store.NodeCount(), mgr.Store.EdgeCount())
	}
}
