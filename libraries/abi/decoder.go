package abi

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/greymass/roborovski/libraries/compression"
	"github.com/greymass/roborovski/libraries/encoding"
)

const (
	// MaxDepth bounds how deeply Decode nests structs, variants and
	// containers.
	MaxDepth = 32
	// maxZeroWidthElems bounds arrays whose elements may occupy no bytes.
	maxZeroWidthElems = 1 << 16
)

// Decoder reads values from a byte slice. Decoded bytes, strings excepted,
// alias the input; callers that keep them past the input's lifetime copy.
type Decoder struct {
	data  []byte
	pos   int
	depth int
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) Pos() int       { return d.pos }
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

// Since returns the bytes consumed from start up to the current position.
func (d *Decoder) Since(start int) []byte {
	return d.data[start:d.pos]
}

func (d *Decoder) short(typ string) error {
	return &DecodeError{Type: typ, Offset: d.pos, Err: ErrShortRead}
}

func (d *Decoder) take(n int, typ string) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, d.short(typ)
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadUint8() (uint8, error) {
	b, err := d.take(1, "uint8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.take(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) ReadVarUint32() (uint32, error) {
	v, n, err := encoding.ReadVarUint32(d.data[d.pos:])
	if err != nil {
		return 0, &DecodeError{Type: "varuint32", Offset: d.pos, Err: shortOr(err)}
	}
	d.pos += n
	return v, nil
}

func (d *Decoder) ReadVarInt32() (int32, error) {
	v, n, err := encoding.ReadVarInt32(d.data[d.pos:])
	if err != nil {
		return 0, &DecodeError{Type: "varint32", Offset: d.pos, Err: shortOr(err)}
	}
	d.pos += n
	return v, nil
}

func shortOr(err error) error {
	if err == encoding.ErrVarintTruncated {
		return ErrShortRead
	}
	return err
}

// ReadBytes reads a varuint32 length followed by that many bytes.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadVarUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > math.MaxInt32 {
		return nil, d.short("bytes")
	}
	return d.take(int(n), "bytes")
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.take(1, "bool")
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// Decode reads one value of type t.
func (d *Decoder) Decode(t *Type) (any, error) {
	if d.depth >= MaxDepth {
		return nil, &DecodeError{Type: t.Name, Offset: d.pos, Err: ErrTooDeep}
	}
	d.depth++
	defer func() { d.depth-- }()

	switch t.Kind {
	case KindBuiltin:
		return t.builtin.decode(d)

	case KindStruct:
		return d.decodeStruct(t)

	case KindVariant:
		tag, err := d.ReadVarUint32()
		if err != nil {
			return nil, err
		}
		if int(tag) >= len(t.Alternatives) {
			return nil, &VariantError{Variant: t.Name, Index: tag}
		}
		alt := t.Alternatives[tag]
		v, err := d.Decode(alt.Type)
		if err != nil {
			return nil, err
		}
		return Variant{Name: alt.Name, Index: tag, Value: v}, nil

	case KindArray:
		n, err := d.ReadVarUint32()
		if err != nil {
			return nil, err
		}
		// every element takes at least one byte
		if zeroWidth(t.Elem) {
			if n > maxZeroWidthElems {
				return nil, &DecodeError{Type: t.Name, Offset: d.pos, Err: fmt.Errorf("%w: %d elements", ErrInvalidValue, n)}
			}
		} else if uint64(n) > uint64(d.Remaining()) {
			return nil, d.short(t.Name)
		}
		out := make([]any, 0, min(int(n), d.Remaining()+1))
		for i := uint32(0); i < n; i++ {
			v, err := d.Decode(t.Elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case KindOptional:
		present, err := d.ReadBool()
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, nil
		}
		return d.Decode(t.Elem)

	case KindExtension:
		if d.Remaining() == 0 {
			return nil, nil
		}
		return d.Decode(t.Elem)
	}
	return nil, fmt.Errorf("abi: cannot decode %s of kind %s", t.Name, t.Kind)
}

func (d *Decoder) decodeStruct(t *Type) (map[string]any, error) {
	out := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		start := d.pos
		v, err := d.Decode(f.Type)
		if err != nil {
			return nil, err
		}
		if f.compressed {
			if v, err = inflate(v); err != nil {
				return nil, &DecodeError{Type: t.Name + "." + f.Name, Offset: start, Err: fmt.Errorf("%w: %w", ErrCorrupt, err)}
			}
		}
		out[f.Name] = v
	}
	return out, nil
}

func inflate(v any) (any, error) {
	b, ok := v.([]byte)
	if !ok {
		return v, nil
	}
	return compression.ZlibInflate(b)
}

// zeroWidth reports whether a value of t can occupy no bytes.
func zeroWidth(t *Type) bool {
	switch t.Kind {
	case KindExtension:
		return true
	case KindStruct:
		for _, f := range t.Fields {
			if !zeroWidth(f.Type) {
				return false
			}
		}
		return true
	case KindArray:
		return false
	}
	return false
}

// ExpectVariant reads a variant tag of t and checks it names the expected
// alternative. It returns the alternative's type; the payload is left for
// the caller to decode.
func (d *Decoder) ExpectVariant(t *Type, expected string) (*Type, error) {
	if t.Kind != KindVariant {
		return nil, fmt.Errorf("%s is not a variant", t.Name)
	}
	tag, err := d.ReadVarUint32()
	if err != nil {
		return nil, err
	}
	if int(tag) >= len(t.Alternatives) {
		return nil, &VariantError{Variant: t.Name, Expected: expected, Index: tag}
	}
	alt := t.Alternatives[tag]
	if alt.Name != expected {
		return nil, &VariantError{Variant: t.Name, Expected: expected, Actual: alt.Name, Index: tag}
	}
	return alt.Type, nil
}

// ExpectVariantIndex is ExpectVariant for a required alternative index.
func (d *Decoder) ExpectVariantIndex(t *Type, expected int) (*Type, error) {
	if t.Kind != KindVariant {
		return nil, fmt.Errorf("%s is not a variant", t.Name)
	}
	if expected < 0 || expected >= len(t.Alternatives) {
		return nil, fmt.Errorf("%s has no alternative %d", t.Name, expected)
	}
	want := t.Alternatives[expected].Name
	tag, err := d.ReadVarUint32()
	if err != nil {
		return nil, err
	}
	if int(tag) >= len(t.Alternatives) {
		return nil, &VariantError{Variant: t.Name, Expected: want, Index: tag}
	}
	if int(tag) != expected {
		return nil, &VariantError{Variant: t.Name, Expected: want, Actual: t.Alternatives[tag].Name, Index: tag}
	}
	return t.Alternatives[tag].Type, nil
}

// Decode is shorthand for decoding one value from the front of data.
func Decode(t *Type, data []byte) (any, error) {
	return NewDecoder(data).Decode(t)
}
