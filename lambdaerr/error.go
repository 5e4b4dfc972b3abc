// Package lambdaerr defines the error taxonomy shared by the runtime API
// client, the dispatch pipeline, and the lifecycle driver.
package lambdaerr

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind tags a RuntimeError with one of the categories the Runtime API
// protocol distinguishes. Invocation-scoped kinds are reported to
// invocation/{id}/error; HandlerInitFailure is reported once to init/error
// and then the process exits; ProtocolViolation is always fatal.
type Kind int

const (
	// KindUnknown is never constructed directly; it is the zero value so a
	// missing Kind() check is easy to spot in tests.
	KindUnknown Kind = iota
	KindRequestDecoding
	KindResponseEncoding
	KindHandlerFailure
	KindHandlerInitFailure
	KindProtocolViolation
	KindTransport
	KindTraceIDInvalidLength
	KindTraceIDInvalidVersion
	KindTraceIDInvalidFormat
)

func (k Kind) String() string {
	switch k {
	case KindRequestDecoding:
		return "RequestDecoding"
	case KindResponseEncoding:
		return "ResponseEncoding"
	case KindHandlerFailure:
		return "HandlerFailure"
	case KindHandlerInitFailure:
		return "HandlerInitFailure"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindTransport:
		return "Transport"
	case KindTraceIDInvalidLength:
		return "TraceIDInvalidLength"
	case KindTraceIDInvalidVersion:
		return "TraceIDInvalidVersion"
	case KindTraceIDInvalidFormat:
		return "TraceIDInvalidFormat"
	default:
		return "Unknown"
	}
}

// Fatal reports whether an error of this kind must terminate the process
// after being reported, per spec.md §7's propagation policy.
func (k Kind) Fatal() bool {
	switch k {
	case KindHandlerInitFailure, KindProtocolViolation:
		return true
	default:
		return false
	}
}

// RuntimeError is the single error type used across the core. It carries a
// Kind for dispatch, a cockroachdb/errors-wrapped cause for stack capture,
// and an optional stack trace rendered in the AWS invocation-error JSON
// shape (errorType/errorMessage/stackTrace).
type RuntimeError struct {
	kind  Kind
	cause error
	frame []*StackFrame
}

// StackFrame is one frame of a captured Go call stack, matching the shape
// the Runtime API's optional "stackTrace" array expects.
type StackFrame struct {
	Path  string `json:"path"`
	Line  int    `json:"line"`
	Label string `json:"label"`
}

// New wraps cause with kind, capturing a stack trace rooted at the caller.
func New(kind Kind, cause error) *RuntimeError {
	return &RuntimeError{
		kind:  kind,
		cause: errors.WithStack(cause),
		frame: captureStack(3),
	}
}

// Newf is like New but builds the cause from a format string.
func Newf(kind Kind, format string, args ...any) *RuntimeError {
	return New(kind, errors.Newf(format, args...)) //nolint:errorlint
}

func (e *RuntimeError) Kind() Kind { return e.kind }

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.cause.Error())
}

func (e *RuntimeError) Unwrap() error { return e.cause }

// ErrorType is the fully-qualified type tag reported to the Runtime API as
// "errorType" — the Kind name, per spec.md §8's literal scenarios (e.g.
// "RequestDecoding", "HandlerInitFailure").
func (e *RuntimeError) ErrorType() string {
	return e.kind.String()
}

// ErrorMessage is the human-readable "errorMessage" field.
func (e *RuntimeError) ErrorMessage() string {
	return e.cause.Error()
}

// StackTrace returns the captured frames, possibly empty.
func (e *RuntimeError) StackTrace() []*StackFrame { return e.frame }

// FromPanic builds a RuntimeError of the given kind from a recovered panic
// value, capturing the stack at the point of recovery. A recovered
// *RuntimeError is returned as it is.
func FromPanic(kind Kind, recovered any) *RuntimeError {
	if re, ok := recovered.(*RuntimeError); ok {
		return re
	}
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	} else {
		cause = errors.Newf("%v", recovered)
	}
	return &RuntimeError{
		kind:  kind,
		cause: cause,
		frame: captureStack(4),
	}
}

func captureStack(skip int) []*StackFrame {
	pc := make([]uintptr, 32)
	n := runtime.Callers(skip, pc)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pc[:n])
	var out []*StackFrame
	for {
		frame, more := frames.Next()
		out = append(out, formatFrame(frame))
		if !more {
			break
		}
	}
	return out
}

func formatFrame(f runtime.Frame) *StackFrame {
	path := f.File
	label := f.Function

	i := len(path)
	for n, g := 0, strings.Count(label, "/")+2; n < g; n++ {
		idx := strings.LastIndex(path[:i], "/")
		if idx == -1 {
			break
		}
		i = idx
	}
	path = path[i+1:]
	label = label[strings.LastIndex(label, "/")+1:]
	label = label[strings.Index(label, ".")+1:]

	return &StackFrame{Path: path, Line: f.Line, Label: label}
}
