package internal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/bloom"
	"github.com/cockroachdb/pebble/v2/sstable/block"
	"github.com/greymass/roborovski/libraries/abi"
	"github.com/greymass/roborovski/libraries/compression"
	"github.com/greymass/roborovski/libraries/logger"
)

type StoreConfig struct {
	Schema       string
	SizeLimitMB  uint64 // 0 means unlimited
	CacheSizeMB  int64
	CompressRows bool
}

// Rows and traces smaller than this are stored as is even when compression
// is enabled.
const compressMinSize = 128

// Store is the Pebble database shipfill writes into. All changes go through
// a Txn; a Txn maps to one indexed batch and commits atomically.
type Store struct {
	db        *pebble.DB
	ks        Keyspace
	sizeLimit uint64
	compress  bool
}

func OpenStore(path string, cfg StoreConfig) (*Store, error) {
	logger.Printf("startup", "Opening Pebble database: %s", path)

	cacheSize := cfg.CacheSizeMB << 20
	if cacheSize < 64<<20 {
		cacheSize = 64 << 20
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	snappy := func() *block.CompressionProfile { return block.SnappyCompression }
	opts := &pebble.Options{
		Logger:        pebbleLogger{},
		EventListener: storeEventListener(),
		Cache:         cache,
		MemTableSize:  64 << 20,
	}
	for i := range opts.Levels {
		opts.Levels[i] = pebble.LevelOptions{FilterPolicy: bloom.FilterPolicy(10), Compression: snappy}
	}

	start := time.Now()
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, persistenceError("open", err)
	}
	logger.Printf("startup", "Pebble database opened in %v", time.Since(start))

	return &Store{
		db:        db,
		ks:        NewKeyspace(cfg.Schema),
		sizeLimit: cfg.SizeLimitMB << 20,
		compress:  cfg.CompressRows,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Size() uint64 {
	return s.db.Metrics().DiskSpaceUsage()
}

func (s *Store) LogMetrics() {
	m := s.db.Metrics()
	logger.Printf("debug-pebble", "memtables=%d (%s) l0=%d disk=%s",
		m.MemTable.Count, logger.FormatBytes(int64(m.MemTable.Size)),
		m.Levels[0].TablesCount, logger.FormatBytes(int64(m.DiskSpaceUsage())))
}

// Begin starts a transaction. Reads inside it observe its own writes.
func (s *Store) Begin(write bool) *Txn {
	return &Txn{store: s, batch: s.db.NewIndexedBatch(), write: write}
}

type Txn struct {
	store *Store
	batch *pebble.Batch
	write bool
	done  bool
}

func (t *Txn) ks() Keyspace { return t.store.ks }

func (t *Txn) Commit() error {
	if t.done {
		return persistenceError("commit", ErrClosed)
	}
	defer t.Abort()
	if !t.write {
		return ErrReadOnly
	}
	if limit := t.store.sizeLimit; limit > 0 {
		if t.store.Size()+uint64(t.batch.Len()) > limit {
			return ErrStoreFull
		}
	}
	if err := t.batch.Commit(pebble.Sync); err != nil {
		return persistenceError("commit", err)
	}
	return nil
}

// Abort discards the transaction. It is a no-op after Commit or Abort.
func (t *Txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.batch.Close()
}

func (t *Txn) get(key []byte) ([]byte, bool, error) {
	val, closer, err := t.batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, persistenceError("get", err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

func (t *Txn) set(key, value []byte) error {
	if !t.write {
		return ErrReadOnly
	}
	if err := t.batch.Set(key, value, nil); err != nil {
		return persistenceError("set", err)
	}
	return nil
}

func (t *Txn) deleteRange(lower, upper []byte) error {
	if !t.write {
		return ErrReadOnly
	}
	if err := t.batch.DeleteRange(lower, upper, nil); err != nil {
		return persistenceError("delete range", err)
	}
	return nil
}

// LoadFillStatus returns the stored status, or the zero status for an empty
// store.
func (t *Txn) LoadFillStatus() (FillStatus, error) {
	val, ok, err := t.get(t.ks().fillStatusKey())
	if err != nil || !ok {
		return FillStatus{}, err
	}
	status, err := decodeFillStatus(val)
	if err != nil {
		return FillStatus{}, persistenceError("decode fill_status", err)
	}
	return status, nil
}

func (t *Txn) PutFillStatus(status FillStatus) error {
	val, err := status.encode()
	if err != nil {
		return persistenceError("encode fill_status", err)
	}
	return t.set(t.ks().fillStatusKey(), val)
}

func (t *Txn) PutReceivedBlock(blockNum uint32, id abi.Checksum256) error {
	val, err := encodeReceivedBlock(id)
	if err != nil {
		return persistenceError("encode received_block", err)
	}
	return t.set(t.ks().receivedBlockKey(blockNum), val)
}

func (t *Txn) GetReceivedBlock(blockNum uint32) (abi.Checksum256, bool, error) {
	val, ok, err := t.get(t.ks().receivedBlockKey(blockNum))
	if err != nil || !ok {
		return abi.Checksum256{}, false, err
	}
	id, err := decodeReceivedBlock(val)
	if err != nil {
		return abi.Checksum256{}, false, persistenceError("decode received_block", err)
	}
	return id, true, nil
}

func (t *Txn) PutBlockInfo(info *BlockInfo) error {
	val, err := info.encode()
	if err != nil {
		return persistenceError("encode block_info", err)
	}
	return t.set(t.ks().blockInfoKey(info.BlockNum), val)
}

func (t *Txn) GetBlockInfo(blockNum uint32) (*BlockInfo, error) {
	val, ok, err := t.get(t.ks().blockInfoKey(blockNum))
	if err != nil || !ok {
		return nil, err
	}
	info, err := decodeBlockInfo(val)
	if err != nil {
		return nil, persistenceError("decode block_info", err)
	}
	return info, nil
}

func (t *Txn) PutTableRow(blockNum uint32, table string, rowIdx uint32, present bool, data []byte) error {
	data, compressed, err := t.store.maybeCompress(data)
	if err != nil {
		return err
	}
	return t.set(t.ks().tableRowKey(blockNum, table, rowIdx), makeRowValue(present, compressed, data))
}

// GetTableRow returns a stored row with its payload decompressed.
func (t *Txn) GetTableRow(blockNum uint32, table string, rowIdx uint32) (present bool, data []byte, found bool, err error) {
	val, ok, err := t.get(t.ks().tableRowKey(blockNum, table, rowIdx))
	if err != nil || !ok {
		return false, nil, false, err
	}
	present, compressed, data, ok := parseRowValue(val)
	if !ok {
		return false, nil, false, persistenceError("decode row", fmt.Errorf("empty value"))
	}
	if data, err = decompress(data, compressed); err != nil {
		return false, nil, false, err
	}
	return present, data, true, nil
}

func (t *Txn) PutTrace(blockNum uint32, traceIdx uint32, data []byte) error {
	data, compressed, err := t.store.maybeCompress(data)
	if err != nil {
		return err
	}
	return t.set(t.ks().traceKey(blockNum, traceIdx), makeRowValue(true, compressed, data))
}

func (t *Txn) GetTrace(blockNum uint32, traceIdx uint32) ([]byte, bool, error) {
	val, ok, err := t.get(t.ks().traceKey(blockNum, traceIdx))
	if err != nil || !ok {
		return nil, false, err
	}
	_, compressed, data, ok := parseRowValue(val)
	if !ok {
		return nil, false, persistenceError("decode trace", fmt.Errorf("empty value"))
	}
	data, err = decompress(data, compressed)
	return data, err == nil, err
}

func (s *Store) maybeCompress(data []byte) ([]byte, bool, error) {
	if !s.compress || len(data) < compressMinSize {
		return data, false, nil
	}
	out, err := compression.ZstdCompressLevel(nil, data, 3)
	if err != nil {
		return nil, false, persistenceError("compress", err)
	}
	if len(out) >= len(data) {
		return data, false, nil
	}
	return out, true, nil
}

func decompress(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	out, err := compression.ZstdDecompress(nil, data)
	if err != nil {
		return nil, persistenceError("decompress", err)
	}
	return out, nil
}

// Truncate removes every block record numbered blockNum or higher and moves
// head back to the highest block still stored. With nothing left the
// returned status has head, head_id and first cleared.
func (t *Txn) Truncate(status FillStatus, blockNum uint32) (FillStatus, error) {
	for _, kind := range blockKinds {
		lower, upper := t.ks().blockRange(kind, blockNum, math.MaxUint32+1)
		if err := t.deleteRange(lower, upper); err != nil {
			return status, err
		}
	}

	lower, upper := t.ks().blockRange(KindReceivedBlock, 0, uint64(blockNum))
	iter, err := t.batch.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return status, persistenceError("iterate", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return status, persistenceError("iterate", err)
		}
		status.Head = 0
		status.HeadID = abi.Checksum256{}
		status.First = 0
		return status, nil
	}

	num, ok := t.ks().parseBlockKey(KindReceivedBlock, iter.Key())
	if !ok {
		return status, persistenceError("truncate", fmt.Errorf("malformed key %x", iter.Key()))
	}
	id, err := decodeReceivedBlock(iter.Value())
	if err != nil {
		return status, persistenceError("decode received_block", err)
	}
	status.Head = num
	status.HeadID = id
	return status, nil
}

// Trim removes block records below min(head, irreversible) and advances
// first to that block. It returns the number of block numbers released.
func (t *Txn) Trim(status FillStatus) (FillStatus, uint32, error) {
	end := min(status.Head, status.Irreversible)
	if status.First >= end {
		return status, 0, nil
	}
	for _, kind := range blockKinds {
		lower, upper := t.ks().blockRange(kind, status.First, uint64(end))
		if err := t.deleteRange(lower, upper); err != nil {
			return status, 0, err
		}
	}
	trimmed := end - status.First
	status.First = end
	return status, trimmed, nil
}

// Positions lists the retained received blocks from max(first,
// irreversible) through head in ascending order. The node uses them to
// detect a fork that happened while shipfill was not connected.
func (t *Txn) Positions(status FillStatus) ([]Position, error) {
	if status.Head == 0 {
		return nil, nil
	}
	from := max(status.First, status.Irreversible)
	if from > status.Head {
		return nil, nil
	}
	lower, upper := t.ks().blockRange(KindReceivedBlock, from, uint64(status.Head)+1)
	iter, err := t.batch.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, persistenceError("iterate", err)
	}
	defer iter.Close()

	var out []Position
	for iter.First(); iter.Valid(); iter.Next() {
		num, ok := t.ks().parseBlockKey(KindReceivedBlock, iter.Key())
		if !ok {
			continue
		}
		id, err := decodeReceivedBlock(iter.Value())
		if err != nil {
			return nil, persistenceError("decode received_block", err)
		}
		out = append(out, Position{BlockNum: num, BlockID: id})
	}
	if err := iter.Error(); err != nil {
		return nil, persistenceError("iterate", err)
	}
	return out, nil
}

// Drop deletes everything stored under the schema, fill status included.
func (t *Txn) Drop() error {
	lower, upper := t.ks().bounds()
	return t.deleteRange(lower, upper)
}
