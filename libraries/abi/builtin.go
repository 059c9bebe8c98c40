package abi

import (
	"fmt"
	"math"

	"github.com/greymass/go-eosio/pkg/chain"
)

type builtin struct {
	decode func(d *Decoder) (any, error)
	encode func(e *Encoder, v any) error
}

const (
	keyTypeK1 = 0
	keyTypeR1 = 1
	keyTypeWA = 2
)

var builtins = map[string]*builtin{
	"bool": {
		decode: func(d *Decoder) (any, error) { return d.ReadBool() },
		encode: func(e *Encoder, v any) error {
			b, ok := v.(bool)
			if !ok {
				return mismatch("bool", v)
			}
			if b {
				e.buf = append(e.buf, 1)
			} else {
				e.buf = append(e.buf, 0)
			}
			return nil
		},
	},

	"int8":   intBuiltin("int8", 8),
	"int16":  intBuiltin("int16", 16),
	"int32":  intBuiltin("int32", 32),
	"int64":  intBuiltin("int64", 64),
	"uint8":  uintBuiltin("uint8", 8),
	"uint16": uintBuiltin("uint16", 16),
	"uint32": uintBuiltin("uint32", 32),
	"uint64": uintBuiltin("uint64", 64),

	"varuint32": {
		decode: func(d *Decoder) (any, error) { return d.ReadVarUint32() },
		encode: func(e *Encoder, v any) error {
			n, ok := toUint64(v)
			if !ok || n > math.MaxUint32 {
				return mismatch("varuint32", v)
			}
			e.AppendVarUint32(uint32(n))
			return nil
		},
	},
	"varint32": {
		decode: func(d *Decoder) (any, error) { return d.ReadVarInt32() },
		encode: func(e *Encoder, v any) error {
			n, ok := toInt64(v)
			if !ok || n < math.MinInt32 || n > math.MaxInt32 {
				return mismatch("varint32", v)
			}
			e.AppendVarInt32(int32(n))
			return nil
		},
	},

	"float32": {
		decode: func(d *Decoder) (any, error) {
			u, err := d.ReadUint32()
			return math.Float32frombits(u), err
		},
		encode: func(e *Encoder, v any) error {
			f, ok := v.(float32)
			if !ok {
				return mismatch("float32", v)
			}
			e.AppendUint32(math.Float32bits(f))
			return nil
		},
	},
	"float64": {
		decode: func(d *Decoder) (any, error) {
			u, err := d.ReadUint64()
			return math.Float64frombits(u), err
		},
		encode: func(e *Encoder, v any) error {
			f, ok := v.(float64)
			if !ok {
				return mismatch("float64", v)
			}
			e.AppendUint64(math.Float64bits(f))
			return nil
		},
	},

	"int128":   fixedBuiltin("int128", 16, func(b []byte) any { return Int128(b) }),
	"uint128":  fixedBuiltin("uint128", 16, func(b []byte) any { return Uint128(b) }),
	"float128": fixedBuiltin("float128", 16, func(b []byte) any { return Float128(b) }),

	"time_point":           intBuiltin("time_point", 64),
	"time_point_sec":       uintBuiltin("time_point_sec", 32),
	"block_timestamp_type": uintBuiltin("block_timestamp_type", 32),

	"name": {
		decode: func(d *Decoder) (any, error) {
			u, err := d.ReadUint64()
			return chain.Name(u), err
		},
		encode: func(e *Encoder, v any) error {
			switch n := v.(type) {
			case chain.Name:
				e.AppendUint64(uint64(n))
			case string:
				e.AppendUint64(uint64(chain.N(n)))
			case uint64:
				e.AppendUint64(n)
			default:
				return mismatch("name", v)
			}
			return nil
		},
	},

	"bytes": {
		decode: func(d *Decoder) (any, error) { return d.ReadBytes() },
		encode: func(e *Encoder, v any) error {
			b, ok := asBytes(v)
			if !ok {
				return mismatch("bytes", v)
			}
			e.AppendBytes(b)
			return nil
		},
	},
	"string": {
		decode: func(d *Decoder) (any, error) { return d.ReadString() },
		encode: func(e *Encoder, v any) error {
			s, ok := v.(string)
			if !ok {
				return mismatch("string", v)
			}
			e.AppendBytes([]byte(s))
			return nil
		},
	},

	"checksum160": fixedBuiltin("checksum160", 20, func(b []byte) any { return Checksum160(b) }),
	"checksum256": fixedBuiltin("checksum256", 32, func(b []byte) any { return Checksum256(b) }),
	"checksum512": fixedBuiltin("checksum512", 64, func(b []byte) any { return Checksum512(b) }),

	"public_key": {
		decode: func(d *Decoder) (any, error) {
			start := d.Pos()
			if err := skipKey(d, 33, "public_key", func() error {
				if _, err := d.ReadUint8(); err != nil {
					return err
				}
				_, err := d.ReadBytes()
				return err
			}); err != nil {
				return nil, err
			}
			return PublicKey(clone(d.Since(start))), nil
		},
		encode: func(e *Encoder, v any) error {
			k, ok := v.(PublicKey)
			if !ok {
				return mismatch("public_key", v)
			}
			e.buf = append(e.buf, k...)
			return nil
		},
	},
	"signature": {
		decode: func(d *Decoder) (any, error) {
			start := d.Pos()
			if err := skipKey(d, 65, "signature", func() error {
				if _, err := d.ReadBytes(); err != nil {
					return err
				}
				_, err := d.ReadBytes()
				return err
			}); err != nil {
				return nil, err
			}
			return Signature(clone(d.Since(start))), nil
		},
		encode: func(e *Encoder, v any) error {
			s, ok := v.(Signature)
			if !ok {
				return mismatch("signature", v)
			}
			e.buf = append(e.buf, s...)
			return nil
		},
	},

	"symbol":      uintBuiltin("symbol", 64),
	"symbol_code": uintBuiltin("symbol_code", 64),
}

// builtinStructs are used when a document refers to them without
// defining them.
var builtinStructs = map[string]*structDef{
	"asset": {fields: []fieldDef{
		{name: "amount", typ: "int64"},
		{name: "symbol", typ: "symbol"},
	}},
	"extended_asset": {fields: []fieldDef{
		{name: "quantity", typ: "asset"},
		{name: "contract", typ: "name"},
	}},
}

// skipKey consumes a key or signature: a varuint32 key type, the fixed
// curve data, and for WebAuthn the extra fields read by webauthn.
func skipKey(d *Decoder, size int, typ string, webauthn func() error) error {
	kind, err := d.ReadVarUint32()
	if err != nil {
		return err
	}
	switch kind {
	case keyTypeK1, keyTypeR1:
		_, err = d.take(size, typ)
		return err
	case keyTypeWA:
		if _, err = d.take(size, typ); err != nil {
			return err
		}
		return webauthn()
	}
	return &DecodeError{Type: typ, Offset: d.Pos(), Err: fmt.Errorf("unknown key type %d", kind)}
}

func fixedBuiltin(name string, size int, wrap func([]byte) any) *builtin {
	return &builtin{
		decode: func(d *Decoder) (any, error) {
			b, err := d.take(size, name)
			if err != nil {
				return nil, err
			}
			return wrap(b), nil
		},
		encode: func(e *Encoder, v any) error {
			b, ok := fixedBytes(v)
			if !ok || len(b) != size {
				return mismatch(name, v)
			}
			e.buf = append(e.buf, b...)
			return nil
		},
	}
}

func intBuiltin(name string, bits int) *builtin {
	return &builtin{
		decode: func(d *Decoder) (any, error) {
			b, err := d.take(bits/8, name)
			if err != nil {
				return nil, err
			}
			switch bits {
			case 8:
				return int8(b[0]), nil
			case 16:
				return int16(uint16(b[0]) | uint16(b[1])<<8), nil
			case 32:
				return int32(le32(b)), nil
			}
			return int64(le64(b)), nil
		},
		encode: func(e *Encoder, v any) error {
			n, ok := toInt64(v)
			if !ok || bits < 64 && (n < -(1<<(bits-1)) || n >= 1<<(bits-1)) {
				return mismatch(name, v)
			}
			e.appendLE(uint64(n), bits/8)
			return nil
		},
	}
}

func uintBuiltin(name string, bits int) *builtin {
	return &builtin{
		decode: func(d *Decoder) (any, error) {
			b, err := d.take(bits/8, name)
			if err != nil {
				return nil, err
			}
			switch bits {
			case 8:
				return b[0], nil
			case 16:
				return uint16(b[0]) | uint16(b[1])<<8, nil
			case 32:
				return le32(b), nil
			}
			return le64(b), nil
		},
		encode: func(e *Encoder, v any) error {
			n, ok := toUint64(v)
			if !ok || bits < 64 && n >= 1<<bits {
				return mismatch(name, v)
			}
			e.appendLE(n, bits/8)
			return nil
		},
	}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	return uint64(le32(b)) | uint64(le32(b[4:]))<<32
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

func mismatch(typ string, v any) error {
	return fmt.Errorf("%w: %T for %s", ErrInvalidValue, v, typ)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case chain.Name:
		return uint64(n), true
	case int, int8, int16, int32, int64:
		i, _ := toInt64(n)
		if i >= 0 {
			return uint64(i), true
		}
	}
	return 0, false
}

func asBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		return []byte(b), true
	}
	return nil, false
}

func fixedBytes(v any) ([]byte, bool) {
	switch b := v.(type) {
	case Checksum160:
		return b[:], true
	case Checksum256:
		return b[:], true
	case Checksum512:
		return b[:], true
	case Int128:
		return b[:], true
	case Uint128:
		return b[:], true
	case Float128:
		return b[:], true
	case []byte:
		return b, true
	}
	return nil, false
}
