package reactive

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// ErrDisposed is returned for any read, write or subscription against a
	// node that has been disposed, including reads through a retained
	// reference.
	ErrDisposed = errors.New("cascade: node disposed")

	// ErrReadOnly is returned when writing to a computed signal.
	ErrReadOnly = errors.New("cascade: computed signal is read-only")

	// ErrCycle is returned when a computed signal is constructed while an
	// effect body is running, or when a computed signal is asked for its
	// value while it is already computing it.
	ErrCycle = errors.New("cascade: cycle detected")

	// ErrMaxUpdateDepth is returned when a single flush recomputes the same
	// computation more times than the system allows. This is how indirect
	// cycles (an effect writing something it depends on) surface.
	ErrMaxUpdateDepth = errors.New("cascade: maximum update depth exceeded")
)

// Op names the operation that failed.
type Op string

const (
	OpRead        Op = "read"
	OpReadThrough Op = "read-through-dependency"
	OpWrite       Op = "write"
	OpSubscribe   Op = "subscribe"
	OpConstruct   Op = "construct"
	OpCompute     Op = "compute"
	OpEffect      Op = "effect"
	OpFlush       Op = "flush"
)

// Error describes a failure attributed to a node of the graph.
type Error struct {
	Op   Op
	Node string
	Err  error
}

func (e *Error) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Node, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PanicError wraps a panic value that was not an error, or a runtime error,
// recovered at an API boundary.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("cascade: panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsCycle reports whether err was caused by direct or indirect cycle
// detection.
func IsCycle(err error) bool {
	return errors.Is(err, ErrCycle) || errors.Is(err, ErrMaxUpdateDepth)
}

// IsDisposed reports whether err was caused by touching a disposed node.
func IsDisposed(err error) bool {
	return errors.Is(err, ErrDisposed)
}

func asError(r any) error {
	switch v := r.(type) {
	case *Error:
		return v
	case *PanicError:
		return v
	case runtime.Error:
		return &PanicError{Value: v, Stack: debug.Stack()}
	case error:
		return v
	default:
		return &PanicError{Value: r, Stack: debug.Stack()}
	}
}

// catch converts a panic raised inside the graph into an error at an API
// boundary. It must be deferred directly.
func catch(err *error) {
	if r := recover(); r != nil {
		*err = asError(r)
	}
}
