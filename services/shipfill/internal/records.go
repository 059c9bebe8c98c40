package internal

import (
	"fmt"

	"github.com/greymass/go-eosio/pkg/chain"
	"github.com/greymass/roborovski/libraries/abi"
)

// recordABI describes the values shipfill persists. It is independent of
// the ABI the node sends so stored records stay readable across node
// upgrades.
const recordABI = `{
	"version": "eosio::abi/1.1",
	"structs": [
		{"name": "fill_status", "base": "", "fields": [
			{"name": "head", "type": "uint32"},
			{"name": "head_id", "type": "checksum256"},
			{"name": "irreversible", "type": "uint32"},
			{"name": "irreversible_id", "type": "checksum256"},
			{"name": "first", "type": "uint32"}
		]},
		{"name": "received_block", "base": "", "fields": [
			{"name": "block_id", "type": "checksum256"}
		]},
		{"name": "producer_key", "base": "", "fields": [
			{"name": "producer_name", "type": "name"},
			{"name": "block_signing_key", "type": "public_key"}
		]},
		{"name": "producer_schedule", "base": "", "fields": [
			{"name": "version", "type": "uint32"},
			{"name": "producers", "type": "producer_key[]"}
		]},
		{"name": "block_info", "base": "", "fields": [
			{"name": "block_num", "type": "uint32"},
			{"name": "block_id", "type": "checksum256"},
			{"name": "timestamp", "type": "block_timestamp_type"},
			{"name": "producer", "type": "name"},
			{"name": "confirmed", "type": "uint16"},
			{"name": "previous", "type": "checksum256"},
			{"name": "transaction_mroot", "type": "checksum256"},
			{"name": "action_mroot", "type": "checksum256"},
			{"name": "schedule_version", "type": "uint32"},
			{"name": "new_producers", "type": "producer_schedule?"}
		]}
	]
}`

var (
	recordTypes       = mustLoadRecordABI()
	fillStatusType    = recordTypes.MustResolve("fill_status")
	receivedBlockType = recordTypes.MustResolve("received_block")
	blockInfoType     = recordTypes.MustResolve("block_info")
)

func mustLoadRecordABI() *abi.Registry {
	r, err := abi.Load([]byte(recordABI))
	if err != nil {
		panic(err)
	}
	return r
}

// FillStatus is the persisted ingestion progress. The zero value is the
// state of an empty store.
type FillStatus struct {
	Head           uint32
	HeadID         abi.Checksum256
	Irreversible   uint32
	IrreversibleID abi.Checksum256
	First          uint32
}

func (s FillStatus) encode() ([]byte, error) {
	return abi.Encode(fillStatusType, map[string]any{
		"head":            s.Head,
		"head_id":         s.HeadID,
		"irreversible":    s.Irreversible,
		"irreversible_id": s.IrreversibleID,
		"first":           s.First,
	})
}

func decodeFillStatus(data []byte) (FillStatus, error) {
	v, err := abi.Decode(fillStatusType, data)
	if err != nil {
		return FillStatus{}, err
	}
	m := v.(map[string]any)
	return FillStatus{
		Head:           m["head"].(uint32),
		HeadID:         m["head_id"].(abi.Checksum256),
		Irreversible:   m["irreversible"].(uint32),
		IrreversibleID: m["irreversible_id"].(abi.Checksum256),
		First:          m["first"].(uint32),
	}, nil
}

type Position struct {
	BlockNum uint32
	BlockID  abi.Checksum256
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%s", p.BlockNum, p.BlockID)
}

func (p Position) value() map[string]any {
	return map[string]any{"block_num": p.BlockNum, "block_id": p.BlockID}
}

func positionFrom(v any) (Position, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Position{}, protocolError("block_position is %T", v)
	}
	num, ok1 := m["block_num"].(uint32)
	id, ok2 := m["block_id"].(abi.Checksum256)
	if !ok1 || !ok2 {
		return Position{}, protocolError("block_position has unexpected field types")
	}
	return Position{BlockNum: num, BlockID: id}, nil
}

func encodeReceivedBlock(id abi.Checksum256) ([]byte, error) {
	return abi.Encode(receivedBlockType, map[string]any{"block_id": id})
}

func decodeReceivedBlock(data []byte) (abi.Checksum256, error) {
	v, err := abi.Decode(receivedBlockType, data)
	if err != nil {
		return abi.Checksum256{}, err
	}
	return v.(map[string]any)["block_id"].(abi.Checksum256), nil
}

type ProducerKey struct {
	ProducerName    chain.Name
	BlockSigningKey abi.PublicKey
}

type ProducerSchedule struct {
	Version   uint32
	Producers []ProducerKey
}

// BlockInfo is the header summary stored for every block with a body.
type BlockInfo struct {
	BlockNum         uint32
	BlockID          abi.Checksum256
	Timestamp        uint32
	Producer         chain.Name
	Confirmed        uint16
	Previous         abi.Checksum256
	TransactionMroot abi.Checksum256
	ActionMroot      abi.Checksum256
	ScheduleVersion  uint32
	NewProducers     *ProducerSchedule
}

func (b *BlockInfo) encode() ([]byte, error) {
	var producers any
	if b.NewProducers != nil {
		keys := make([]any, len(b.NewProducers.Producers))
		for i, k := range b.NewProducers.Producers {
			keys[i] = map[string]any{"producer_name": k.ProducerName, "block_signing_key": k.BlockSigningKey}
		}
		producers = map[string]any{"version": b.NewProducers.Version, "producers": keys}
	}
	return abi.Encode(blockInfoType, map[string]any{
		"block_num":         b.BlockNum,
		"block_id":          b.BlockID,
		"timestamp":         b.Timestamp,
		"producer":          b.Producer,
		"confirmed":         b.Confirmed,
		"previous":          b.Previous,
		"transaction_mroot": b.TransactionMroot,
		"action_mroot":      b.ActionMroot,
		"schedule_version":  b.ScheduleVersion,
		"new_producers":     producers,
	})
}

func decodeBlockInfo(data []byte) (*BlockInfo, error) {
	v, err := abi.Decode(blockInfoType, data)
	if err != nil {
		return nil, err
	}
	m := v.(map[string]any)
	info, err := blockInfoFromHeader(m)
	if err != nil {
		return nil, err
	}
	info.BlockNum = m["block_num"].(uint32)
	info.BlockID = m["block_id"].(abi.Checksum256)
	return info, nil
}

// blockInfoFromHeader reads the block_header fields shared by the node's
// header and the stored block_info record.
func blockInfoFromHeader(m map[string]any) (*BlockInfo, error) {
	var info BlockInfo
	var ok [7]bool
	info.Timestamp, ok[0] = m["timestamp"].(uint32)
	info.Producer, ok[1] = m["producer"].(chain.Name)
	info.Confirmed, ok[2] = m["confirmed"].(uint16)
	info.Previous, ok[3] = m["previous"].(abi.Checksum256)
	info.TransactionMroot, ok[4] = m["transaction_mroot"].(abi.Checksum256)
	info.ActionMroot, ok[5] = m["action_mroot"].(abi.Checksum256)
	info.ScheduleVersion, ok[6] = m["schedule_version"].(uint32)
	for i, good := range ok {
		if !good {
			return nil, protocolError("block_header field %d has an unexpected type", i)
		}
	}

	if raw := m["new_producers"]; raw != nil {
		sched, err := scheduleFrom(raw)
		if err != nil {
			return nil, err
		}
		info.NewProducers = sched
	}
	return &info, nil
}

func scheduleFrom(v any) (*ProducerSchedule, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, protocolError("producer_schedule is %T", v)
	}
	version, _ := m["version"].(uint32)
	list, _ := m["producers"].([]any)
	sched := &ProducerSchedule{Version: version, Producers: make([]ProducerKey, 0, len(list))}
	for _, item := range list {
		pk, ok := item.(map[string]any)
		if !ok {
			return nil, protocolError("producer_key is %T", item)
		}
		name, _ := pk["producer_name"].(chain.Name)
		key, _ := pk["block_signing_key"].(abi.PublicKey)
		sched.Producers = append(sched.Producers, ProducerKey{ProducerName: name, BlockSigningKey: key})
	}
	return sched, nil
}
