package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOp   = errors.New("unknown operation")
	ErrNotLoaded   = errors.New("provider library not loaded")
	ErrNilCallback = errors.New("callback is required")

	errSyncOnly  = errors.New("operation is synchronous; use CallSync")
	errAsyncOnly = errors.New("operation is asynchronous; use Submit")
)

// ArgumentError is raised synchronously when a call has the wrong number of
// arguments or an argument of the wrong type. No task is created for it and
// the callback is never invoked.
type ArgumentError struct {
	Op    Op
	Index int // -1 when the argument count is wrong
	Param string
	Want  Kind
	Err   error
}

func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: expected argument %q to be %s", e.Op, e.Param, e.Want)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

func arityError(op Op, got int) *ArgumentError {
	return &ArgumentError{
		Op:    op,
		Index: -1,
		Err:   fmt.Errorf("wrong number of arguments: expected %d, got %d", op.Arity(), got),
	}
}

// ResolutionError is returned by Load when no candidate library could be
// opened. The previously active provider stays in place.
type ResolutionError struct {
	Dir string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("error loading provider library from %q: %v", e.Dir, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ProviderError carries the message a provider wrote into its result buffer
// when it returned ERROR. Its Error text is that message, unchanged. Err is
// set when the bridge itself produced the error: ErrNotLoaded or
// provider.ErrSymbolNotBound.
type ProviderError struct {
	Op      Op
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Message }

func (e *ProviderError) Unwrap() error { return e.Err }

func absentMessage(op Op) string {
	return fmt.Sprintf("%s is not available: provider does not export %s", op, catalog[op].symbol)
}
