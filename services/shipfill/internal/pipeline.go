package internal

import (
	"fmt"
	"math"
	"time"

	"github.com/greymass/roborovski/libraries/abi"
	"github.com/greymass/roborovski/libraries/logger"
	"github.com/greymass/roborovski/services/shipfill/internal/metrics"
	"golang.org/x/time/rate"
)

const storeMetricsInterval = 30 * time.Second

type Outcome int

const (
	// OutcomeApplied means a block was committed.
	OutcomeApplied Outcome = iota
	// OutcomeNoBlock means the message carried no block; nothing changed.
	OutcomeNoBlock
	// OutcomeStop means the block reached the configured stop height.
	OutcomeStop
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoBlock:
		return "no block"
	case OutcomeStop:
		return "stop"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type PipelineConfig struct {
	Schema       string
	SkipTo       uint32
	StopBefore   uint32 // 0 never stops
	Trim         bool
	ProgressRows uint32 // 0 disables progress lines
}

// Pipeline applies get_blocks_result_v0 messages to the store. It is bound
// to the ABI of one connection.
type Pipeline struct {
	cfg   PipelineConfig
	store *Store
	reg   *abi.Registry

	request          *abi.Type
	result           *abi.Type
	blockHeader      *abi.Type
	tableDelta       *abi.Type
	transactionTrace *abi.Type

	tables map[string]tableRowType

	storeMetrics rate.Sometimes
}

type tableRowType struct {
	variant *abi.Type
	row     *abi.Type
}

// NewPipeline prepares the node's ABI for streaming. The traces and deltas
// of get_blocks_result_v0 are marked compressed before anything resolves
// the result type.
func NewPipeline(reg *abi.Registry, store *Store, cfg PipelineConfig) (*Pipeline, error) {
	if err := reg.MarkCompressed("get_blocks_result_v0", "traces", "deltas"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	p := &Pipeline{
		cfg:          cfg,
		store:        store,
		reg:          reg,
		tables:       make(map[string]tableRowType),
		storeMetrics: rate.Sometimes{Interval: storeMetricsInterval},
	}
	for name, dst := range map[string]**abi.Type{
		"request":           &p.request,
		"result":            &p.result,
		"block_header":      &p.blockHeader,
		"table_delta":       &p.tableDelta,
		"transaction_trace": &p.transactionTrace,
	} {
		t, err := reg.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		*dst = t
	}
	return p, nil
}

// Start loads the fill status, collects resume positions and removes any
// block written past head by an earlier unclean shutdown, all in one
// transaction. It returns the status and the first request to send.
func (p *Pipeline) Start() (FillStatus, []byte, error) {
	txn := p.store.Begin(true)
	defer txn.Abort()

	status, err := txn.LoadFillStatus()
	if err != nil {
		return FillStatus{}, nil, err
	}
	positions, err := txn.Positions(status)
	if err != nil {
		return FillStatus{}, nil, err
	}
	if status.Head < math.MaxUint32 {
		if status, err = txn.Truncate(status, status.Head+1); err != nil {
			return FillStatus{}, nil, err
		}
	}
	if err := txn.PutFillStatus(status); err != nil {
		return FillStatus{}, nil, err
	}
	if err := txn.Commit(); err != nil {
		return FillStatus{}, nil, err
	}

	logger.Printf("session", "resume: head=%d irreversible=%d first=%d positions=%d",
		status.Head, status.Irreversible, status.First, len(positions))
	req, err := NewBlocksRequest(status, p.cfg.SkipTo, positions).Encode(p.request)
	return status, req, err
}

// NextRequest builds the request sent after a handled message.
func (p *Pipeline) NextRequest(status FillStatus) ([]byte, error) {
	txn := p.store.Begin(false)
	defer txn.Abort()
	positions, err := txn.Positions(status)
	if err != nil {
		return nil, err
	}
	return NewBlocksRequest(status, p.cfg.SkipTo, positions).Encode(p.request)
}

// HandleResult decodes one result message and applies it. On error the
// store and the returned status are unchanged.
func (p *Pipeline) HandleResult(data []byte, status FillStatus) (FillStatus, Outcome, error) {
	d := abi.NewDecoder(data)
	resultType, err := d.ExpectVariant(p.result, "get_blocks_result_v0")
	if err != nil {
		return status, 0, err
	}
	v, err := d.Decode(resultType)
	if err != nil {
		return status, 0, err
	}
	result := v.(map[string]any)

	if result["this_block"] == nil {
		return status, OutcomeNoBlock, nil
	}
	this, err := positionFrom(result["this_block"])
	if err != nil {
		return status, 0, err
	}
	if p.cfg.StopBefore != 0 && this.BlockNum >= p.cfg.StopBefore {
		logger.Printf("session", "block %d: stop requested", this.BlockNum)
		return status, OutcomeStop, nil
	}
	irreversible, err := positionFrom(result["last_irreversible"])
	if err != nil {
		return status, 0, err
	}

	next, err := p.apply(status, this, irreversible, result)
	if err != nil {
		return status, 0, err
	}
	return next, OutcomeApplied, nil
}

func (p *Pipeline) apply(status FillStatus, this, irreversible Position, result map[string]any) (FillStatus, error) {
	txn := p.store.Begin(true)
	defer txn.Abort()

	var err error
	num := this.BlockNum
	forked := num <= status.Head
	if forked {
		logger.Printf("fork", "switch forks at block %d (head %d)", num, status.Head)
		if status, err = txn.Truncate(status, num); err != nil {
			return status, err
		}
	}

	if !status.HeadID.IsZero() {
		prev, err := positionFrom(result["prev_block"])
		if result["prev_block"] == nil || err != nil || prev.BlockID != status.HeadID {
			return status, fmt.Errorf("%w: block %d: prev_block does not match head %d %s",
				ErrConsistency, num, status.Head, status.HeadID)
		}
	}

	if block, ok := result["block"].([]byte); ok {
		if err := p.applyBlock(txn, this, block); err != nil {
			return status, err
		}
	}
	var rows, traces int
	tableRows := make(map[string]int)
	if deltas, ok := result["deltas"].([]byte); ok {
		if rows, err = p.applyDeltas(txn, num, deltas, tableRows); err != nil {
			return status, fmt.Errorf("block %d deltas: %w", num, err)
		}
	}
	if data, ok := result["traces"].([]byte); ok {
		if traces, err = p.applyTraces(txn, num, data); err != nil {
			return status, fmt.Errorf("block %d traces: %w", num, err)
		}
	}

	status.Head = num
	status.HeadID = this.BlockID
	status.Irreversible = irreversible.BlockNum
	status.IrreversibleID = irreversible.BlockID
	if status.First == 0 {
		status.First = num
	}

	var trimmed uint32
	if p.cfg.Trim {
		from := status.First
		if status, trimmed, err = txn.Trim(status); err != nil {
			return status, err
		}
		if trimmed > 0 {
			logger.Printf("trim", "trim %d - %d", from, status.First)
		}
	}

	if err := txn.PutFillStatus(status); err != nil {
		return status, err
	}
	if err := txn.PutReceivedBlock(num, this.BlockID); err != nil {
		return status, err
	}
	if err := txn.Commit(); err != nil {
		return status, err
	}

	logger.Printf("block", "block %d: %d rows, %d traces", num, rows, traces)
	schema := p.cfg.Schema
	metrics.BlocksApplied.WithLabelValues(schema).Inc()
	for table, n := range tableRows {
		metrics.RowsWritten.WithLabelValues(schema, table).Add(float64(n))
	}
	metrics.TracesWritten.WithLabelValues(schema).Add(float64(traces))
	metrics.HeadBlock.WithLabelValues(schema).Set(float64(status.Head))
	metrics.IrreversibleBlock.WithLabelValues(schema).Set(float64(status.Irreversible))
	if forked {
		metrics.ForkSwitches.WithLabelValues(schema).Inc()
	}
	if trimmed > 0 {
		metrics.BlocksTrimmed.WithLabelValues(schema).Add(float64(trimmed))
	}
	p.storeMetrics.Do(p.store.LogMetrics)
	return status, nil
}

// applyBlock stores the header summary. Only the block_header prefix of the
// signed block is decoded.
func (p *Pipeline) applyBlock(txn *Txn, this Position, block []byte) error {
	v, err := abi.Decode(p.blockHeader, block)
	if err != nil {
		return fmt.Errorf("block %d header: %w", this.BlockNum, err)
	}
	info, err := blockInfoFromHeader(v.(map[string]any))
	if err != nil {
		return err
	}
	info.BlockNum = this.BlockNum
	info.BlockID = this.BlockID
	return txn.PutBlockInfo(info)
}

// applyDeltas writes every table delta and adds the rows written per table
// to tableRows.
func (p *Pipeline) applyDeltas(txn *Txn, blockNum uint32, data []byte, tableRows map[string]int) (int, error) {
	d := abi.NewDecoder(data)
	count, err := d.ReadVarUint32()
	if err != nil {
		return 0, err
	}
	var rows int
	for i := uint32(0); i < count; i++ {
		deltaType, err := d.ExpectVariant(p.tableDelta, "table_delta_v0")
		if err != nil {
			return rows, err
		}
		table, n, err := p.applyDelta(txn, blockNum, d, deltaType)
		rows += n
		tableRows[table] += n
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

// applyDelta streams the rows of one table delta into the transaction,
// checking each against the table's row type.
func (p *Pipeline) applyDelta(txn *Txn, blockNum uint32, d *abi.Decoder, deltaType *abi.Type) (string, int, error) {
	var table string
	var written int
	for _, f := range deltaType.Fields {
		if f.Name != "rows" {
			v, err := d.Decode(f.Type)
			if err != nil {
				return table, written, err
			}
			if f.Name == "name" {
				table, _ = v.(string)
			}
			continue
		}

		if table == "" || f.Type.Kind != abi.KindArray {
			return table, written, protocolError("malformed %s", deltaType.Name)
		}
		rowType, err := p.rowType(table)
		if err != nil {
			return table, written, err
		}
		count, err := d.ReadVarUint32()
		if err != nil {
			return table, written, err
		}
		progress := p.cfg.ProgressRows
		for i := uint32(0); i < count; i++ {
			if progress > 0 && count > progress && i%progress == 0 {
				logger.Printf("block", "block %d %s %d of %d", blockNum, table, i, count)
			}
			v, err := d.Decode(f.Type.Elem)
			if err != nil {
				return table, written, err
			}
			row := v.(map[string]any)
			present, _ := row["present"].(bool)
			data, ok := row["data"].([]byte)
			if !ok {
				return table, written, protocolError("%s row %d has no data", table, i)
			}
			if err := rowType.check(data); err != nil {
				return table, written, fmt.Errorf("%s row %d: %w", table, i, err)
			}
			if err := txn.PutTableRow(blockNum, table, i, present, data); err != nil {
				return table, written, err
			}
			written++
		}
	}
	return table, written, nil
}

// rowType resolves the row variant of a table. Only variants with a single
// struct alternative are understood.
func (p *Pipeline) rowType(table string) (tableRowType, error) {
	if rt, ok := p.tables[table]; ok {
		return rt, nil
	}
	t, err := p.reg.Resolve(p.reg.TableType(table))
	if err != nil {
		return tableRowType{}, err
	}
	if t.Kind != abi.KindVariant || len(t.Alternatives) != 1 || t.Alternatives[0].Type.Kind != abi.KindStruct {
		return tableRowType{}, protocolError("don't know how to process %s", t.Name)
	}
	rt := tableRowType{variant: t, row: t.Alternatives[0].Type}
	p.tables[table] = rt
	return rt, nil
}

func (rt tableRowType) check(data []byte) error {
	d := abi.NewDecoder(data)
	if _, err := d.ExpectVariantIndex(rt.variant, 0); err != nil {
		return err
	}
	if _, err := d.Decode(rt.row); err != nil {
		return err
	}
	if d.Remaining() != 0 {
		return protocolError("%d trailing bytes after %s", d.Remaining(), rt.row.Name)
	}
	return nil
}

func (p *Pipeline) applyTraces(txn *Txn, blockNum uint32, data []byte) (int, error) {
	d := abi.NewDecoder(data)
	count, err := d.ReadVarUint32()
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < count; i++ {
		start := d.Pos()
		traceType, err := d.ExpectVariant(p.transactionTrace, "transaction_trace_v0")
		if err != nil {
			return int(i), err
		}
		if _, err := d.Decode(traceType); err != nil {
			return int(i), err
		}
		if err := txn.PutTrace(blockNum, i, d.Since(start)); err != nil {
			return int(i), err
		}
	}
	return int(count), nil
}
