package internal

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Record kinds. Every key is namespace|0x00|kind|suffix, with block numbers
// big-endian so that key order is block order.
const (
	KindFillStatus    = 0x01
	KindReceivedBlock = 0x02
	KindBlockInfo     = 0x03
	KindTableRow      = 0x04
	KindTrace         = 0x05
)

// blockKinds are the record kinds keyed by block number, removed together
// by truncate and trim.
var blockKinds = []byte{KindReceivedBlock, KindBlockInfo, KindTableRow, KindTrace}

const (
	rowFlagPresent = 0x01
	rowFlagZstd    = 0x02
)

type Keyspace struct {
	prefix []byte
}

func NewKeyspace(schema string) Keyspace {
	p := make([]byte, 0, len(schema)+1)
	p = append(p, schema...)
	p = append(p, 0x00)
	return Keyspace{prefix: p}
}

func (ks Keyspace) key(kind byte, size int) []byte {
	buf := make([]byte, len(ks.prefix)+1, len(ks.prefix)+1+size)
	copy(buf, ks.prefix)
	buf[len(ks.prefix)] = kind
	return buf
}

func (ks Keyspace) fillStatusKey() []byte {
	return ks.key(KindFillStatus, 0)
}

func (ks Keyspace) blockKey(kind byte, blockNum uint32) []byte {
	return binary.BigEndian.AppendUint32(ks.key(kind, 4), blockNum)
}

func (ks Keyspace) receivedBlockKey(blockNum uint32) []byte {
	return ks.blockKey(KindReceivedBlock, blockNum)
}

func (ks Keyspace) blockInfoKey(blockNum uint32) []byte {
	return ks.blockKey(KindBlockInfo, blockNum)
}

func (ks Keyspace) tableRowKey(blockNum uint32, table string, rowIdx uint32) []byte {
	buf := ks.key(KindTableRow, 4+len(table)+1+4)
	buf = binary.BigEndian.AppendUint32(buf, blockNum)
	buf = append(buf, table...)
	buf = append(buf, 0x00)
	return binary.BigEndian.AppendUint32(buf, rowIdx)
}

func (ks Keyspace) traceKey(blockNum uint32, traceIdx uint32) []byte {
	buf := ks.key(KindTrace, 8)
	buf = binary.BigEndian.AppendUint32(buf, blockNum)
	return binary.BigEndian.AppendUint32(buf, traceIdx)
}

// blockRange returns the key bounds covering blocks [from, to) of a kind.
// A to above the largest block number extends to the end of the kind.
func (ks Keyspace) blockRange(kind byte, from uint32, to uint64) (lower, upper []byte) {
	lower = ks.blockKey(kind, from)
	if to > math.MaxUint32 {
		return lower, ks.key(kind+1, 0)
	}
	return lower, ks.blockKey(kind, uint32(to))
}

// bounds covers every key of the namespace.
func (ks Keyspace) bounds() (lower, upper []byte) {
	lower = append([]byte(nil), ks.prefix...)
	upper = append([]byte(nil), ks.prefix...)
	upper[len(upper)-1] = 0x01
	return lower, upper
}

func (ks Keyspace) parseBlockKey(kind byte, key []byte) (uint32, bool) {
	n := len(ks.prefix)
	if len(key) < n+5 || !bytes.Equal(key[:n], ks.prefix) || key[n] != kind {
		return 0, false
	}
	return binary.BigEndian.Uint32(key[n+1 : n+5]), true
}

func (ks Keyspace) parseTableRowKey(key []byte) (blockNum uint32, table string, rowIdx uint32, ok bool) {
	blockNum, ok = ks.parseBlockKey(KindTableRow, key)
	if !ok {
		return 0, "", 0, false
	}
	rest := key[len(ks.prefix)+5:]
	if len(rest) < 5 || rest[len(rest)-5] != 0x00 {
		return 0, "", 0, false
	}
	return blockNum, string(rest[:len(rest)-5]), binary.BigEndian.Uint32(rest[len(rest)-4:]), true
}

func makeRowValue(present bool, compressed bool, data []byte) []byte {
	var flags byte
	if present {
		flags |= rowFlagPresent
	}
	if compressed {
		flags |= rowFlagZstd
	}
	buf := make([]byte, 0, 1+len(data))
	buf = append(buf, flags)
	return append(buf, data...)
}

func parseRowValue(val []byte) (present bool, compressed bool, data []byte, ok bool) {
	if len(val) < 1 {
		return false, false, nil, false
	}
	return val[0]&rowFlagPresent != 0, val[0]&rowFlagZstd != 0, val[1:], true
}
