package internal

import (
	"math"

	"github.com/greymass/roborovski/libraries/abi"
)

// BlocksRequest mirrors get_blocks_request_v0.
type BlocksRequest struct {
	StartBlockNum       uint32
	EndBlockNum         uint32
	MaxMessagesInFlight uint32
	HavePositions       []Position
	IrreversibleOnly    bool
	FetchBlock          bool
	FetchTraces         bool
	FetchDeltas         bool
}

// NewBlocksRequest asks for every block after head, or from skipTo if that
// is further along. The range and in-flight window are unbounded; the
// session reads one message at a time.
func NewBlocksRequest(status FillStatus, skipTo uint32, positions []Position) BlocksRequest {
	start := status.Head + 1
	if status.Head == math.MaxUint32 {
		start = status.Head
	}
	return BlocksRequest{
		StartBlockNum:       max(skipTo, start),
		EndBlockNum:         math.MaxUint32,
		MaxMessagesInFlight: math.MaxUint32,
		HavePositions:       positions,
		FetchBlock:          true,
		FetchTraces:         true,
		FetchDeltas:         true,
	}
}

func (r BlocksRequest) variant() abi.Variant {
	positions := make([]any, len(r.HavePositions))
	for i, p := range r.HavePositions {
		positions[i] = p.value()
	}
	return abi.Variant{
		Name: "get_blocks_request_v0",
		Value: map[string]any{
			"start_block_num":        r.StartBlockNum,
			"end_block_num":          r.EndBlockNum,
			"max_messages_in_flight": r.MaxMessagesInFlight,
			"have_positions":         positions,
			"irreversible_only":      r.IrreversibleOnly,
			"fetch_block":            r.FetchBlock,
			"fetch_traces":           r.FetchTraces,
			"fetch_deltas":           r.FetchDeltas,
		},
	}
}

// Encode serializes the request through the node's request variant.
func (r BlocksRequest) Encode(request *abi.Type) ([]byte, error) {
	data, err := abi.Encode(request, r.variant())
	if err != nil {
		return nil, protocolError("encode request: %v", err)
	}
	return data, nil
}
