// Package xerrors provides error construction and wrapping helpers that
// capture caller program counters. The log package pulls those PCs back
// out to render stacks for error-level records.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

type stacked struct {
	err error
	pcs []uintptr
}

func (e *stacked) Error() string       { return e.err.Error() }
func (e *stacked) Unwrap() error       { return e.err }
func (e *stacked) StackPCs() []uintptr { return e.pcs }

type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (e *wrapped) Error() string { return e.msg + ": " + e.err.Error() }
func (e *wrapped) Unwrap() error { return e.err }
func (e *wrapped) PC() uintptr   { return e.pc }

func capturePCs(skip int) []uintptr {
	const depth = 64
	pcs := make([]uintptr, depth)
	// +2 skips runtime.Callers and capturePCs itself
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New returns a new error with the caller's stack attached.
func New(msg string) error {
	return &stacked{err: errors.New(msg), pcs: capturePCs(1)}
}

// Newf is New with fmt.Errorf formatting.
func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: capturePCs(1)}
}

// Wrap annotates err with a message and the wrapping call site.
// Returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: callerPC(1)}
}

// Wrapf is Wrap with fmt.Sprintf formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// WithStack attaches the caller's stack to err unconditionally.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: capturePCs(1)}
}

// EnsureTrace attaches a stack only if no error in the chain carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: capturePCs(1)}
}
