package journal

import (
	"path/filepath"
	"testing"
)

func TestAppendAssignsMonotonicLSN(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "test.mwl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	lsn1, err := j.Append("txn-1", 0, KindBegin, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	lsn2, err := j.Append("txn-1", lsn1, KindSpawn, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if lsn2 <= lsn1 {
		t.Errorf("second LSN (%d) should be greater than first (%d)", lsn2, lsn1)
	}
}

func TestRecoverClassifiesCommittedAndAborted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mwl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	lsn, _ := j.Append("committed-txn", 0, KindBegin, nil)
	lsn, _ = j.Append("committed-txn", lsn, KindSpawn, nil)
	j.Append("committed-txn", lsn, KindCommit, nil)

	lsn2, _ := j.Append("aborted-txn", 0, KindBegin, nil)
	lsn2, _ = j.Append("aborted-txn", lsn2, KindSpawn, nil)
	j.Append("aborted-txn", lsn2, KindAbort, nil)

	j.Append("uncommitted-txn", 0, KindBegin, nil)

	outcomes, err := j.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}

	byID := make(map[string]TxnOutcome)
	for _, o := range outcomes {
		byID[o.TxnID] = o
	}

	if _, ok := byID["aborted-txn"]; ok {
		t.Error("an explicitly aborted transaction should not appear in Recover's outcomes")
	}
	committed, ok := byID["committed-txn"]
	if !ok || !committed.Committed {
		t.Errorf("committed-txn should be classified as committed, got %+v, ok=%v", committed, ok)
	}
	uncommitted, ok := byID["uncommitted-txn"]
	if !ok || uncommitted.Committed {
		t.Errorf("uncommitted-txn should appear but not be marked committed, got %+v", uncommitted)
	}

	j.Close()
}

func TestOpenReopenPreservesMagicAndAppendsAfterExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mwl")
	j1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	j1.Append("txn-1", 0, KindBegin, nil)
	j1.Append("txn-1", 1, KindCommit, nil)
	if err := j1.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	j1.Close()

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopening an existing journal should succeed: %v", err)
	}
	defer j2.Close()

	outcomes, err := j2.Recover()
	if err != nil {
		t.Fatalf("Recover after reopen: %v", err)
	}
	if len(outcomes) != 1 || !outcomes[0].Committed {
		t.Fatalf("Recover after reopen = %+v, want one committed transaction", outcomes)
	}

	lsn, err := j2.Append("txn-2", 0, KindBegin, nil)
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if lsn != 3 {
		t.Errorf("LSN after reopen = %d, want 3 (continuing past the two prior records)", lsn)
	}
}
