package journal

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := Record{LSN: 42, TxnID: "txn-1", PrevLSN: 41, Kind: KindSpawn, Payload: []byte("hello")}
	raw := encode(r)
	got, ok := decode(raw)
	if !ok {
		t.Fatal("decode should succeed on an encoded record")
	}
	if got.LSN != r.LSN || got.TxnID != r.TxnID || got.PrevLSN != r.PrevLSN || got.Kind != r.Kind || string(got.Payload) != string(r.Payload) {
		t.Errorf("decode(encode(r)) = %+v, want %+v", got, r)
	}
}

func TestDecodeRejectsCorruptedChecksum(t *testing.T) {
	r := Record{LSN: 1, TxnID: "t", Kind: KindCommit}
	raw := encode(r)
	raw[0] ^= 0xff // corrupt a byte inside the body covered by the checksum
	if _, ok := decode(raw); ok {
		t.Error("decode should reject a record whose checksum no longer matches")
	}
}

func TestDecodeRejectsTooShortInput(t *testing.T) {
	if _, ok := decode([]byte{1, 2, 3}); ok {
		t.Error("decode should reject input shorter than the minimum record size")
	}
}
