package encoding

import "errors"

var (
	ErrVarintOverflow  = errors.New("varuint32 overflows 32 bits")
	ErrVarintTruncated = errors.New("truncated varuint32")
)

// MaxVarUint32Len is the longest LEB128 encoding of a uint32.
const MaxVarUint32Len = 5

func AppendVarUint32(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ReadVarUint32 decodes a LEB128 value from the front of data and returns it
// with the number of bytes consumed.
func ReadVarUint32(data []byte) (uint32, int, error) {
	var result uint32
	var shift uint
	for i, b := range data {
		if i == MaxVarUint32Len {
			return 0, 0, ErrVarintOverflow
		}
		chunk := uint32(b & 0x7f)
		if shift == 28 && chunk > 0x0f {
			return 0, 0, ErrVarintOverflow
		}
		result |= chunk << shift
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrVarintTruncated
}

func AppendVarInt32(dst []byte, v int32) []byte {
	return AppendVarUint32(dst, uint32((v<<1)^(v>>31)))
}

func ReadVarInt32(data []byte) (int32, int, error) {
	u, n, err := ReadVarUint32(data)
	if err != nil {
		return 0, 0, err
	}
	return int32(u>>1) ^ -int32(u&1), n, nil
}

func VarUint32Len(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
