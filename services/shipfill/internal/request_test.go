package internal

import (
	"math"
	"os"
	"testing"

	"github.com/greymass/roborovski/libraries/abi"
)

func loadShipABI(t *testing.T) []byte {
	t.Helper()
	doc, err := os.ReadFile("testdata/ship_abi.json")
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func shipRegistry(t *testing.T) *abi.Registry {
	t.Helper()
	reg, err := abi.Load(loadShipABI(t))
	if err != nil {
		t.Fatalf("load ship abi: %v", err)
	}
	return reg
}

func TestNewBlocksRequestStart(t *testing.T) {
	tests := []struct {
		name   string
		head   uint32
		skipTo uint32
		want   uint32
	}{
		{"empty store", 0, 0, 1},
		{"resume", 100, 0, 101},
		{"skip ahead", 100, 500, 500},
		{"skip behind head", 100, 50, 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewBlocksRequest(FillStatus{Head: tt.head}, tt.skipTo, nil)
			if req.StartBlockNum != tt.want {
				t.Errorf("start = %d, want %d", req.StartBlockNum, tt.want)
			}
			if req.EndBlockNum != math.MaxUint32 || req.MaxMessagesInFlight != math.MaxUint32 {
				t.Errorf("range not unbounded: %+v", req)
			}
			if req.IrreversibleOnly || !req.FetchBlock || !req.FetchTraces || !req.FetchDeltas {
				t.Errorf("unexpected flags: %+v", req)
			}
		})
	}
}

func TestBlocksRequestEncode(t *testing.T) {
	reg := shipRegistry(t)
	request := reg.MustResolve("request")

	positions := []Position{{BlockNum: 9, BlockID: id(9)}, {BlockNum: 10, BlockID: id(10)}}
	data, err := NewBlocksRequest(FillStatus{Head: 10}, 0, positions).Encode(request)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 1 {
		t.Fatalf("variant tag = %d, want 1 (get_blocks_request_v0)", data[0])
	}

	v, err := abi.Decode(request, data)
	if err != nil {
		t.Fatal(err)
	}
	m := v.(abi.Variant).Value.(map[string]any)
	if m["start_block_num"] != uint32(11) {
		t.Errorf("start_block_num = %v", m["start_block_num"])
	}
	got := m["have_positions"].([]any)
	if len(got) != 2 {
		t.Fatalf("have_positions = %v", got)
	}
	if p, _ := positionFrom(got[1]); p != positions[1] {
		t.Errorf("have_positions[1] = %v", p)
	}
}
