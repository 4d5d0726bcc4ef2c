/*
 * MEW
 *
 * Package journal is the write-ahead log: append-only records of begin,
 * commit, abort and per-mutation entries, replayed on recovery.
 */
package journal

import (
	"encoding/binary"

	"github.com/krotik/common/bitutil"
)

// checksumSeed is an arbitrary fixed seed for the MurMurHash3 record
// checksum.
const checksumSeed = 0x4d455721 // "MEW!"

func checksum(data []byte) uint32 {
	// MurMurHashData rejects a range whose 4-byte-aligned end reaches
	// len(data), which happens whenever len(data) is a multiple of 4.
	// Hashing the same range out of a copy one byte longer leaves the sum
	// unchanged and keeps every record length valid.
	padded := make([]byte, len(data)+1)
	copy(padded, data)
	sum, err := bitutil.MurMurHashData(padded, 0, len(data), checksumSeed)
	if err != nil {
		panic(err.Error())
	}
	return sum
}

// Kind is the record discriminator: begin, commit, abort, and one record
// per primitive mutation.
type Kind byte

const (
	KindBegin Kind = iota + 1
	KindCommit
	KindAbort
	KindSpawn
	KindKill
	KindLink
	KindUnlink
	KindSet
	KindCheckpoint
	KindOntology
	KindRollbackTo
)

// Record is one WAL entry. LSN is assigned by the Journal on Append;
// PrevLSN chains records belonging to the same transaction so recovery
// can walk a transaction's records without a separate index.
type Record struct {
	LSN     uint64
	TxnID   string
	PrevLSN uint64
	Kind    Kind
	Payload []byte
}

// magic identifies a MEW journal segment: two sentinel bytes at the
// front of the log file.
var magic = [2]byte{0x4d, 0x57} // "MW"

func encode(r Record) []byte {
	txn := []byte(r.TxnID)
	buf := make([]byte, 0, 8+8+1+2+len(txn)+4+len(r.Payload)+4)

	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], r.LSN)
	buf = append(buf, tmp[:]...)
	binary.BigEndian.PutUint64(tmp[:], r.PrevLSN)
	buf = append(buf, tmp[:]...)
	buf = append(buf, byte(r.Kind))

	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], uint16(len(txn)))
	buf = append(buf, tmp2[:]...)
	buf = append(buf, txn...)

	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], uint32(len(r.Payload)))
	buf = append(buf, tmp4[:]...)
	buf = append(buf, r.Payload...)

	sum := checksum(buf)
	binary.BigEndian.PutUint32(tmp4[:], sum)
	buf = append(buf, tmp4[:]...)

	// length prefix for framing, written by the caller ahead of buf
	return buf
}

// decode parses a single record body (without the outer length frame)
// and verifies its trailing checksum.
func decode(raw []byte) (Record, bool) {
	if len(raw) < 8+8+1+2+4+4 {
		return Record{}, false
	}
	body := raw[:len(raw)-4]
	wantSum := binary.BigEndian.Uint32(raw[len(raw)-4:])
	if checksum(body) != wantSum {
		return Record{}, false
	}

	var r Record
	off := 0
	r.LSN = binary.BigEndian.Uint64(raw[off:])
	off += 8
	r.PrevLSN = binary.BigEndian.Uint64(raw[off:])
	off += 8
	r.Kind = Kind(raw[off])
	off++
	tl := int(binary.BigEndian.Uint16(raw[off:]))
	off += 2
	r.TxnID = string(raw[off : off+tl])
	off += tl
	pl := int(binary.BigEndian.Uint32(raw[off:]))
	off += 4
	r.Payload = append([]byte(nil), raw[off:off+pl]...)

	return r, true
}
