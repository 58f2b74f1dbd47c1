package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atlas-lang/atlas/bytecode"
)

// ErrorKind categorizes runtime errors.
type ErrorKind int

const (
	TypeError ErrorKind = iota
	StackUnderflow
	StackOverflow
	IndexOutOfBounds
	InvalidOpcode
	TruncatedInstruction
	InvalidJump
	OperandOutOfBounds
	UndefinedGlobal
	NotCallable
	ArityMismatch
	NativeError
	PermissionDenied
	ExecutionLimit
	InvalidBytecode
	Internal
)

var errorKindNames = [...]string{
	TypeError:            "type error",
	StackUnderflow:       "stack underflow",
	StackOverflow:        "stack overflow",
	IndexOutOfBounds:     "index out of bounds",
	InvalidOpcode:        "invalid opcode",
	TruncatedInstruction: "truncated instruction",
	InvalidJump:          "invalid jump",
	OperandOutOfBounds:   "operand out of bounds",
	UndefinedGlobal:      "undefined global",
	NotCallable:          "not callable",
	ArityMismatch:        "arity mismatch",
	NativeError:          "native error",
	PermissionDenied:     "permission denied",
	ExecutionLimit:       "execution limit",
	InvalidBytecode:      "invalid bytecode",
	Internal:             "internal error",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// TraceEntry is one frame of a runtime error's call trace, innermost first.
type TraceEntry struct {
	Function string
	IP       int
	Span     bytecode.Span
}

// RuntimeError reports a failed run. All frames have been unwound by the
// time the caller sees it.
type RuntimeError struct {
	Kind  ErrorKind
	Msg   string
	IP    int           // offset of the failing instruction
	Span  bytecode.Span // zero when the bytecode carries no debug info
	Trace []TraceEntry
	Cause error // native or operator error, if any
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at %04d", e.Kind, e.IP)
	if e.Span.Line > 0 {
		fmt.Fprintf(&sb, " (line %d:%d)", e.Span.Line, e.Span.Column)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	return sb.String()
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// FormatTrace renders the call trace one frame per line.
func (e *RuntimeError) FormatTrace() string {
	var sb strings.Builder
	for _, t := range e.Trace {
		fmt.Fprintf(&sb, "  at %s (%04d", t.Function, t.IP)
		if t.Span.Line > 0 {
			fmt.Fprintf(&sb, ", line %d", t.Span.Line)
		}
		sb.WriteString(")\n")
	}
	return sb.String()
}

// IsKind reports whether err is a *RuntimeError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *RuntimeError
	return errors.As(err, &re) && re.Kind == kind
}

func (v *VM) fail(kind ErrorKind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Msg: fmt.Sprintf(format, args...), IP: v.cur}
}

func (v *VM) failWith(kind ErrorKind, cause error, format string, args ...any) *RuntimeError {
	e := v.fail(kind, format, args...)
	e.Cause = cause
	return e
}

// trace fills in the span and call trace of e from the current frames.
func (v *VM) trace(e *RuntimeError) {
	e.Span, _ = v.bc.SpanAt(e.IP)
	ip := e.IP
	for i := len(v.frames) - 1; i >= 0; i-- {
		f := v.frames[i]
		span, _ := v.bc.SpanAt(ip)
		e.Trace = append(e.Trace, TraceEntry{Function: f.Name, IP: ip, Span: span})
		// The caller resumes after its Call instruction.
		ip = f.ReturnIP - bytecode.OpCall.Size()
	}
}
