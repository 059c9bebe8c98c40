package abi

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported abi version")
	ErrShortRead          = errors.New("read past end of data")
	ErrTypeCycle          = errors.New("type cycle")
	ErrInvalidValue       = errors.New("invalid value")
	ErrTooDeep            = errors.New("nesting too deep")
	ErrCorrupt            = errors.New("corrupt compressed data")
)

type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Name)
}

// VariantError reports a variant tag that is out of range or is not the
// alternative the caller required.
type VariantError struct {
	Variant  string
	Expected string
	Actual   string
	Index    uint32
}

func (e *VariantError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("%s: invalid variant index %d", e.Variant, e.Index)
	}
	actual := e.Actual
	if actual == "" {
		actual = fmt.Sprintf("%d", e.Index)
	}
	return fmt.Sprintf("expected %s got %s", e.Expected, actual)
}

type DecodeError struct {
	Type   string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.Type, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
