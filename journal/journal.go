package journal

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/bdjafer/mew/mewerr"
)

// Journal is the durable write-ahead log. One writer appends records
// behind a single critical section, and group commit (batching several
// transactions' records into one fsync) is permitted; Sync forces those
// records to stable storage before the caller may acknowledge a commit.
type Journal struct {
	mu   sync.Mutex
	file *os.File

	nextLSN       uint64
	checkpointLSN uint64
}

// Open opens (creating if necessary) the journal segment at path. If the
// file is empty, the magic header is written; if it already has content,
// the header is validated.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, storageErr("E6001", "journal: open failed: "+path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, storageErr("E6002", "journal: stat failed")
	}

	j := &Journal{file: f, nextLSN: 1}

	if info.Size() == 0 {
		if _, err := f.Write(magic[:]); err != nil {
			f.Close()
			return nil, storageErr("E6003", "journal: header write failed")
		}
	} else {
		var hdr [2]byte
		if _, err := f.ReadAt(hdr[:], 0); err != nil || hdr != magic {
			f.Close()
			return nil, storageErr("E6004", "journal: bad magic")
		}
	}

	return j, nil
}

// Append writes one record and returns its assigned LSN in O(1)
// amortized time. It does not by itself guarantee durability; callers
// that need fsync semantics (e.g. committing a transaction) must call
// Sync afterward.
func (j *Journal) Append(txnID string, prevLSN uint64, kind Kind, payload []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	lsn := j.nextLSN
	j.nextLSN++

	rec := Record{LSN: lsn, TxnID: txnID, PrevLSN: prevLSN, Kind: kind, Payload: payload}
	body := encode(rec)

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))

	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return 0, storageErr("E6005", "journal: seek failed")
	}
	if _, err := j.file.Write(lenPrefix[:]); err != nil {
		return 0, storageErr("E6006", "journal: append failed")
	}
	if _, err := j.file.Write(body); err != nil {
		return 0, storageErr("E6006", "journal: append failed")
	}

	return lsn, nil
}

// Sync flushes buffered writes to stable storage. The Transaction
// Manager must call this before acknowledging a commit.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Sync(); err != nil {
		return storageErr("E6007", "journal: sync failed")
	}
	return nil
}

// TxnOutcome is the replay classification of one transaction's records:
// committed or uncommitted. Aborted transactions are not reported.
type TxnOutcome struct {
	TxnID     string
	Committed bool
	Records   []Record // mutation records only, in LSN order
}

// Recover reads the whole segment, from just after the magic header, and
// classifies every transaction touched, discarding any record whose
// checksum fails as the torn tail of an unclean shutdown. Checkpoint
// markers only update the recorded checkpoint LSN; records written before
// the most recent checkpoint are returned like any other. Committed
// transactions come first, in the order of their commit records, then
// uncommitted ones in order of first appearance. Whether to fall back to
// read-only mode on unrecoverable corruption is left to the caller once
// Recover returns.
func (j *Journal) Recover() ([]TxnOutcome, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(int64(len(magic)), io.SeekStart); err != nil {
		return nil, storageErr("E6008", "journal: seek failed")
	}

	byTxn := make(map[string][]Record)
	order := []string{}
	committed := make(map[string]bool)
	commitOrder := []string{}
	aborted := make(map[string]bool)
	var maxLSN uint64
	var lastCheckpoint uint64

	for {
		var lenPrefix [4]byte
		n, err := io.ReadFull(j.file, lenPrefix[:])
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			break // torn write at EOF; stop replay here
		}
		recLen := binary.BigEndian.Uint32(lenPrefix[:])
		raw := make([]byte, recLen)
		if _, err := io.ReadFull(j.file, raw); err != nil {
			break // torn record; discard the rest
		}
		rec, ok := decode(raw)
		if !ok {
			break // checksum mismatch marks the torn tail
		}

		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}

		switch rec.Kind {
		case KindCheckpoint:
			lastCheckpoint = rec.LSN
			continue
		case KindCommit:
			if !committed[rec.TxnID] {
				commitOrder = append(commitOrder, rec.TxnID)
			}
			committed[rec.TxnID] = true
			continue
		case KindAbort:
			aborted[rec.TxnID] = true
			continue
		case KindBegin:
			// marks the transaction's existence; carries nothing to replay
			if _, seen := byTxn[rec.TxnID]; !seen {
				order = append(order, rec.TxnID)
				byTxn[rec.TxnID] = nil
			}
			continue
		}

		if _, seen := byTxn[rec.TxnID]; !seen {
			order = append(order, rec.TxnID)
		}
		byTxn[rec.TxnID] = append(byTxn[rec.TxnID], rec)
	}

	j.nextLSN = maxLSN + 1
	j.checkpointLSN = lastCheckpoint

	outcomes := make([]TxnOutcome, 0, len(order))
	for _, id := range commitOrder {
		if aborted[id] {
			continue
		}
		outcomes = append(outcomes, TxnOutcome{TxnID: id, Committed: true, Records: byTxn[id]})
	}
	for _, id := range order {
		if aborted[id] || committed[id] {
			continue
		}
		outcomes = append(outcomes, TxnOutcome{TxnID: id, Committed: false, Records: byTxn[id]})
	}
	return outcomes, nil
}

// Checkpoint appends a checkpoint marker at the current LSN. It flushes
// no pages and does not truncate the segment: MEW keeps its authoritative
// state in memory (package store) rather than in paged files of its own,
// and Recover still returns the records written before the marker.
func (j *Journal) Checkpoint() (uint64, error) {
	return j.Append("", 0, KindCheckpoint, nil)
}

// NextLSN previews the LSN the next Append call will assign.
func (j *Journal) NextLSN() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextLSN
}

// Close releases the underlying file handle.
func (j *Journal) Close() error {
	return j.file.Close()
}

func storageErr(code, detail string) *mewerr.Error {
	return mewerr.New(code, mewerr.CategoryStorage, mewerr.ErrStorage, detail)
}
