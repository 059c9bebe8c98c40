package abi

import (
	"fmt"
	"reflect"

	"github.com/greymass/roborovski/libraries/compression"
	"github.com/greymass/roborovski/libraries/encoding"
)

// Encoder appends the binary form of values to an internal buffer.
//
// Struct values are map[string]any keyed by field name. Variant values are
// Variant, matched by Name when set and by Index otherwise. Arrays accept
// any slice. A nil value encodes an absent optional; a missing or nil
// binary extension ends the struct, so every later field must be absent too.
type Encoder struct {
	buf []byte
}

func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: buf[:0]}
}

func (e *Encoder) Bytes() []byte { return e.buf }
func (e *Encoder) Reset()        { e.buf = e.buf[:0] }

func (e *Encoder) AppendVarUint32(v uint32) { e.buf = encoding.AppendVarUint32(e.buf, v) }
func (e *Encoder) AppendVarInt32(v int32)   { e.buf = encoding.AppendVarInt32(e.buf, v) }
func (e *Encoder) AppendUint32(v uint32)    { e.appendLE(uint64(v), 4) }
func (e *Encoder) AppendUint64(v uint64)    { e.appendLE(v, 8) }

func (e *Encoder) AppendBytes(b []byte) {
	e.AppendVarUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) appendLE(v uint64, size int) {
	for i := 0; i < size; i++ {
		e.buf = append(e.buf, byte(v>>(8*i)))
	}
}

func (e *Encoder) Encode(t *Type, v any) error {
	switch t.Kind {
	case KindBuiltin:
		if err := t.builtin.encode(e, v); err != nil {
			return fmt.Errorf("encode %s: %w", t.Name, err)
		}
		return nil

	case KindStruct:
		return e.encodeStruct(t, v)

	case KindVariant:
		variant, ok := v.(Variant)
		if !ok {
			return fmt.Errorf("encode %s: %w", t.Name, mismatch("variant", v))
		}
		idx := int(variant.Index)
		if variant.Name != "" {
			if idx, _, ok = t.Alternative(variant.Name); !ok {
				return fmt.Errorf("encode %s: no alternative %q", t.Name, variant.Name)
			}
		}
		if idx >= len(t.Alternatives) {
			return &VariantError{Variant: t.Name, Index: uint32(idx)}
		}
		e.AppendVarUint32(uint32(idx))
		return e.Encode(t.Alternatives[idx].Type, variant.Value)

	case KindArray:
		if v == nil {
			e.AppendVarUint32(0)
			return nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Errorf("encode %s: %w", t.Name, mismatch("array", v))
		}
		e.AppendVarUint32(uint32(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			if err := e.Encode(t.Elem, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil

	case KindOptional:
		if isNil(v) {
			e.buf = append(e.buf, 0)
			return nil
		}
		e.buf = append(e.buf, 1)
		return e.Encode(t.Elem, v)

	case KindExtension:
		if isNil(v) {
			return nil
		}
		return e.Encode(t.Elem, v)
	}
	return fmt.Errorf("abi: cannot encode %s of kind %s", t.Name, t.Kind)
}

func (e *Encoder) encodeStruct(t *Type, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("encode %s: %w", t.Name, mismatch("struct", v))
	}
	ended := false
	for _, f := range t.Fields {
		fv, present := m[f.Name]
		if f.Type.Kind == KindExtension && isNil(fv) {
			ended = true
			continue
		}
		if ended {
			return fmt.Errorf("encode %s: field %s follows an absent binary extension", t.Name, f.Name)
		}
		if !present && f.Type.Kind != KindOptional {
			return fmt.Errorf("encode %s: missing field %s", t.Name, f.Name)
		}
		if f.compressed {
			if b, ok := fv.([]byte); ok {
				deflated, err := compression.ZlibDeflate(b)
				if err != nil {
					return fmt.Errorf("encode %s.%s: %w", t.Name, f.Name, err)
				}
				fv = deflated
			}
		}
		if err := e.Encode(f.Type, fv); err != nil {
			return err
		}
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func Encode(t *Type, v any) ([]byte, error) {
	e := NewEncoder(nil)
	if err := e.Encode(t, v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}
