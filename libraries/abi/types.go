package abi

import (
	"encoding/hex"
	"strings"
)

type Kind uint8

const (
	KindBuiltin Kind = iota
	KindStruct
	KindVariant
	KindArray
	KindOptional
	KindExtension
)

func (k Kind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindStruct:
		return "struct"
	case KindVariant:
		return "variant"
	case KindArray:
		return "array"
	case KindOptional:
		return "optional"
	case KindExtension:
		return "extension"
	}
	return "unknown"
}

// Type is a resolved type descriptor. Struct fields include the fields of
// every base, outermost base first. Array, optional and extension types
// carry their element in Elem.
type Type struct {
	Name         string
	Kind         Kind
	Fields       []Field
	Alternatives []Alternative
	Elem         *Type

	builtin *builtin
}

type Field struct {
	Name string
	Type *Type

	// compressed bytes are zlib-inflated when decoded and deflated when
	// encoded
	compressed bool
}

// Alternative is one case of a variant. Name is the name the variant
// declares, which differs from Type.Name when the case is an alias.
type Alternative struct {
	Name string
	Type *Type
}

// Alternative returns the index and type of the named variant alternative.
func (t *Type) Alternative(name string) (int, *Type, bool) {
	for i, alt := range t.Alternatives {
		if alt.Name == name {
			return i, alt.Type, true
		}
	}
	return -1, nil, false
}

func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Variant is the decoded form of a variant value.
type Variant struct {
	Name  string
	Index uint32
	Value any
}

type Checksum160 [20]byte
type Checksum256 [32]byte
type Checksum512 [64]byte

func (c Checksum256) String() string { return hex.EncodeToString(c[:]) }
func (c Checksum256) IsZero() bool   { return c == Checksum256{} }

func ParseChecksum256(s string) (Checksum256, error) {
	var c Checksum256
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return c, err
	}
	if len(b) != len(c) {
		return c, ErrInvalidValue
	}
	copy(c[:], b)
	return c, nil
}

// Int128, Uint128 and Float128 are kept as their little-endian bytes.
type Int128 [16]byte
type Uint128 [16]byte
type Float128 [16]byte

// PublicKey and Signature hold the full wire form, including the leading
// key type.
type PublicKey []byte
type Signature []byte
