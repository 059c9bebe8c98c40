package internal

import (
	"errors"
	"fmt"

	"github.com/greymass/roborovski/libraries/abi"
)

var (
	ErrTransport     = errors.New("transport failure")
	ErrProtocol      = errors.New("protocol violation")
	ErrConsistency   = errors.New("chain consistency failure")
	ErrPersistence   = errors.New("persistence failure")
	ErrStoreFull     = fmt.Errorf("%w: store size limit reached", ErrPersistence)
	ErrReadOnly      = fmt.Errorf("%w: transaction is read-only", ErrPersistence)
	ErrSessionActive = errors.New("session already active")
	ErrClosed        = errors.New("session closed")
)

// StepError names the network step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *StepError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

func persistenceError(op string, err error) error {
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Classify names the failure class of err for logs and metrics.
func Classify(err error) string {
	var variant *abi.VariantError
	var unknown *abi.UnknownTypeError
	var decode *abi.DecodeError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrProtocol),
		errors.Is(err, abi.ErrShortRead),
		errors.Is(err, abi.ErrUnsupportedVersion),
		errors.Is(err, abi.ErrInvalidValue),
		errors.Is(err, abi.ErrTypeCycle),
		errors.Is(err, abi.ErrTooDeep),
		errors.Is(err, abi.ErrCorrupt),
		errors.As(err, &decode),
		errors.As(err, &variant),
		errors.As(err, &unknown):
		return "protocol"
	}
	return "internal"
}
