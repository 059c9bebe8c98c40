package internal

import (
	"bytes"
	"errors"
	"testing"
)

func openTestStore(t *testing.T, cfg StoreConfig) *Store {
	t.Helper()
	if cfg.Schema == "" {
		cfg.Schema = "chain"
	}
	s, err := OpenStore(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fillBlocks writes received_block, block_info, one row and one trace for
// each block in [from, to] and returns the resulting status.
func fillBlocks(t *testing.T, s *Store, status FillStatus, from, to uint32) FillStatus {
	t.Helper()
	txn := s.Begin(true)
	for n := from; n <= to; n++ {
		if err := txn.PutReceivedBlock(n, id(byte(n))); err != nil {
			t.Fatal(err)
		}
		if err := txn.PutBlockInfo(&BlockInfo{BlockNum: n, BlockID: id(byte(n))}); err != nil {
			t.Fatal(err)
		}
		if err := txn.PutTableRow(n, "account", 0, true, []byte{byte(n)}); err != nil {
			t.Fatal(err)
		}
		if err := txn.PutTrace(n, 0, []byte{byte(n)}); err != nil {
			t.Fatal(err)
		}
		if status.First == 0 {
			status.First = n
		}
		status.Head = n
		status.HeadID = id(byte(n))
	}
	if err := txn.PutFillStatus(status); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return status
}

func countKind(t *testing.T, s *Store, kind byte) int {
	t.Helper()
	lower, upper := s.ks.blockRange(kind, 0, 1<<32)
	iter, err := s.db.NewIter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer iter.Close()
	n := 0
	for iter.SeekGE(lower); iter.Valid() && bytes.Compare(iter.Key(), upper) < 0; iter.Next() {
		n++
	}
	return n
}

func TestEmptyStoreStatus(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	txn := s.Begin(false)
	defer txn.Abort()
	status, err := txn.LoadFillStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status != (FillStatus{}) {
		t.Errorf("status = %+v, want zero", status)
	}
}

func TestTruncateMovesHeadBack(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	status := fillBlocks(t, s, FillStatus{}, 1, 100)

	txn := s.Begin(true)
	status, err := txn.Truncate(status, 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.PutFillStatus(status); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	if status.Head != 49 || status.HeadID != id(49) || status.First != 1 {
		t.Errorf("status = %+v", status)
	}
	for _, kind := range blockKinds {
		if n := countKind(t, s, kind); n != 49 {
			t.Errorf("kind %#x has %d records, want 49", kind, n)
		}
	}
}

func TestTruncateEverything(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	status := fillBlocks(t, s, FillStatus{Irreversible: 3}, 10, 20)

	txn := s.Begin(true)
	defer txn.Abort()
	status, err := txn.Truncate(status, 5)
	if err != nil {
		t.Fatal(err)
	}
	if status.Head != 0 || !status.HeadID.IsZero() || status.First != 0 {
		t.Errorf("status = %+v, want head, head_id and first cleared", status)
	}
	if status.Irreversible != 3 {
		t.Errorf("irreversible = %d, want unchanged", status.Irreversible)
	}
}

func TestTruncatePastHeadIsNoop(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	status := fillBlocks(t, s, FillStatus{}, 1, 10)

	txn := s.Begin(true)
	defer txn.Abort()
	got, err := txn.Truncate(status, 11)
	if err != nil {
		t.Fatal(err)
	}
	if got != status {
		t.Errorf("got %+v, want %+v", got, status)
	}
}

func TestTrim(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	status := fillBlocks(t, s, FillStatus{}, 1, 30)
	status.Irreversible = 20

	txn := s.Begin(true)
	status, trimmed, err := txn.Trim(status)
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if trimmed != 19 || status.First != 20 {
		t.Errorf("trimmed=%d first=%d, want 19 and 20", trimmed, status.First)
	}
	if n := countKind(t, s, KindReceivedBlock); n != 11 {
		t.Errorf("received blocks = %d, want 11", n)
	}

	txn = s.Begin(true)
	defer txn.Abort()
	if _, trimmed, _ := txn.Trim(status); trimmed != 0 {
		t.Errorf("second trim released %d blocks", trimmed)
	}
}

func TestPositions(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	status := fillBlocks(t, s, FillStatus{}, 1, 10)
	status.Irreversible = 7

	txn := s.Begin(false)
	defer txn.Abort()
	positions, err := txn.Positions(status)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 4 {
		t.Fatalf("got %d positions, want 4", len(positions))
	}
	for i, p := range positions {
		want := uint32(7 + i)
		if p.BlockNum != want || p.BlockID != id(byte(want)) {
			t.Errorf("positions[%d] = %v", i, p)
		}
	}

	if positions, _ := txn.Positions(FillStatus{}); positions != nil {
		t.Errorf("empty store positions = %v", positions)
	}
}

func TestUncommittedTxnLeavesStoreUnchanged(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	status := fillBlocks(t, s, FillStatus{}, 1, 5)

	txn := s.Begin(true)
	if _, err := txn.Truncate(status, 1); err != nil {
		t.Fatal(err)
	}
	if err := txn.PutFillStatus(FillStatus{}); err != nil {
		t.Fatal(err)
	}
	txn.Abort()

	read := s.Begin(false)
	defer read.Abort()
	got, err := read.LoadFillStatus()
	if err != nil {
		t.Fatal(err)
	}
	if got != status {
		t.Errorf("status = %+v, want %+v", got, status)
	}
	if n := countKind(t, s, KindBlockInfo); n != 5 {
		t.Errorf("block_info records = %d, want 5", n)
	}
}

func TestReadOnlyTxn(t *testing.T) {
	s := openTestStore(t, StoreConfig{})
	txn := s.Begin(false)
	if err := txn.PutFillStatus(FillStatus{Head: 1}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("put err = %v, want ErrReadOnly", err)
	}
	if err := txn.Commit(); !errors.Is(err, ErrReadOnly) {
		t.Errorf("commit err = %v, want ErrReadOnly", err)
	}
}

func TestSizeLimit(t *testing.T) {
	s := openTestStore(t, StoreConfig{SizeLimitMB: 1})
	txn := s.Begin(true)
	big := make([]byte, 2<<20)
	if err := txn.PutTableRow(1, "account", 0, true, big); err != nil {
		t.Fatal(err)
	}
	err := txn.Commit()
	if !errors.Is(err, ErrStoreFull) || Classify(err) != "persistence" {
		t.Errorf("err = %v, want ErrStoreFull", err)
	}
}

func TestRowCompression(t *testing.T) {
	s := openTestStore(t, StoreConfig{CompressRows: true})
	data := bytes.Repeat([]byte("eosio.token "), 100)

	txn := s.Begin(true)
	if err := txn.PutTableRow(3, "contract_row", 2, false, data); err != nil {
		t.Fatal(err)
	}
	if err := txn.PutTrace(3, 0, data); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn = s.Begin(false)
	defer txn.Abort()
	raw, ok, err := txn.get(s.ks.tableRowKey(3, "contract_row", 2))
	if err != nil || !ok {
		t.Fatalf("raw get: %v %v", ok, err)
	}
	if raw[0]&rowFlagZstd == 0 || len(raw) >= len(data) {
		t.Errorf("row stored uncompressed (%d bytes)", len(raw))
	}
	present, got, found, err := txn.GetTableRow(3, "contract_row", 2)
	if err != nil || !found || present || !bytes.Equal(got, data) {
		t.Errorf("GetTableRow = %v %v %v", present, found, err)
	}
	trace, found, err := txn.GetTrace(3, 0)
	if err != nil || !found || !bytes.Equal(trace, data) {
		t.Errorf("GetTrace = %v %v", found, err)
	}
}

func TestDropKeepsOtherSchemas(t *testing.T) {
	dir := t.TempDir()
	a, err := OpenStore(dir, StoreConfig{Schema: "a"})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	fillBlocks(t, a, FillStatus{}, 1, 3)
	b := &Store{db: a.db, ks: NewKeyspace("b")}
	fillBlocks(t, b, FillStatus{}, 1, 3)

	txn := a.Begin(true)
	if err := txn.Drop(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	if n := countKind(t, a, KindReceivedBlock); n != 0 {
		t.Errorf("schema a has %d received blocks after drop", n)
	}
	if n := countKind(t, b, KindReceivedBlock); n != 3 {
		t.Errorf("schema b has %d received blocks, want 3", n)
	}
	read := a.Begin(false)
	defer read.Abort()
	if status, _ := read.LoadFillStatus(); status != (FillStatus{}) {
		t.Errorf("schema a status = %+v after drop", status)
	}
}
