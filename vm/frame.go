package vm

import (
	"errors"

	"github.com/atlas-lang/atlas/security"
	"github.com/atlas-lang/atlas/value"
)

// ---------------------------------------------------------------------------
// Frame: execution state for a function invocation
// ---------------------------------------------------------------------------

// Frame is one activation on the frame stack. Its locals live on the shared
// value stack from StackBase; the callee value sits just below them.
type Frame struct {
	Name       string
	ReturnIP   int // where the caller resumes; -1 for the top-level frame
	StackBase  int
	LocalCount int
}

func (v *VM) frame() *Frame {
	return &v.frames[len(v.frames)-1]
}

// floor is the lowest stack index the current frame may pop.
func (v *VM) floor() int {
	f := v.frame()
	return f.StackBase + f.LocalCount
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (v *VM) push(x value.Value) *RuntimeError {
	if len(v.stack) >= v.maxStack {
		return v.fail(StackOverflow, "value stack exceeds %d entries", v.maxStack)
	}
	v.stack = append(v.stack, x)
	return nil
}

func (v *VM) pop() (value.Value, *RuntimeError) {
	if len(v.stack) <= v.floor() {
		return value.Null, v.fail(StackUnderflow, "pop from empty operand stack")
	}
	x := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return x, nil
}

func (v *VM) peek() (value.Value, *RuntimeError) {
	if len(v.stack) <= v.floor() {
		return value.Null, v.fail(StackUnderflow, "read from empty operand stack")
	}
	return v.stack[len(v.stack)-1], nil
}

// require checks that n values are above the frame's locals.
func (v *VM) require(n int) *RuntimeError {
	if len(v.stack)-v.floor() < n {
		return v.fail(StackUnderflow, "need %d operands, have %d", n, len(v.stack)-v.floor())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Calls and returns
// ---------------------------------------------------------------------------

// call invokes the callee sitting below argc arguments.
func (v *VM) call(argc int) *RuntimeError {
	if err := v.require(argc + 1); err != nil {
		return err
	}
	if err := v.checkBudget(); err != nil {
		return err
	}
	calleeAt := len(v.stack) - argc - 1
	callee := v.stack[calleeAt]
	if !callee.IsCallable() {
		return v.fail(NotCallable, "cannot call %s %v", callee.Kind(), callee)
	}
	if callee.Kind() == value.KindNative {
		return v.callNative(callee.AsNative(), calleeAt, argc)
	}
	return v.callFunction(callee.AsFunction(), argc)
}

func (v *VM) callFunction(fn *value.Function, argc int) *RuntimeError {
	if argc != fn.Arity {
		return v.fail(ArityMismatch, "%s expects %d arguments, got %d", fn.Name, fn.Arity, argc)
	}
	if len(v.frames) >= v.maxFrames {
		return v.fail(StackOverflow, "call depth exceeds %d frames", v.maxFrames)
	}
	if fn.Entry < 0 || fn.Entry >= len(v.code) {
		return v.fail(InvalidJump, "%s enters at %d, outside the code", fn.Name, fn.Entry)
	}
	locals := max(fn.LocalCount, argc)
	if len(v.stack)+locals-argc > v.maxStack {
		return v.fail(StackOverflow, "value stack exceeds %d entries", v.maxStack)
	}
	if v.profiler != nil {
		v.profiler.RecordCall(fn)
	}

	base := len(v.stack) - argc
	for i := argc; i < locals; i++ {
		v.stack = append(v.stack, value.Null)
	}
	v.frames = append(v.frames, Frame{
		Name:       fn.Name,
		ReturnIP:   v.ip,
		StackBase:  base,
		LocalCount: locals,
	})
	v.ip = fn.Entry
	return nil
}

func (v *VM) callNative(n *value.Native, calleeAt, argc int) *RuntimeError {
	if n.Arity >= 0 && argc != n.Arity {
		return v.fail(ArityMismatch, "%s expects %d arguments, got %d", n.Name, n.Arity, argc)
	}
	if err := v.security.Check(n.Capability); err != nil {
		return v.failWith(PermissionDenied, err, "%s: %v", n.Name, err)
	}
	if v.profiler != nil {
		v.profiler.RecordNative(n.Name)
	}

	result, err := n.Fn(v.stack[calleeAt+1:])
	if err != nil {
		kind := NativeError
		if errors.Is(err, security.ErrDenied) {
			kind = PermissionDenied
		}
		return v.failWith(kind, err, "%s: %v", n.Name, err)
	}
	v.stack = v.stack[:calleeAt]
	return v.push(result)
}

// ret leaves the current frame. The value above the frame's locals, if any,
// is the result; otherwise the result is null. In the top-level frame the
// run ends.
func (v *VM) ret() *RuntimeError {
	if len(v.frames) == 1 {
		v.finish()
		return nil
	}
	f := v.frame()
	result := value.Null
	if len(v.stack) > v.floor() {
		result = v.stack[len(v.stack)-1]
	}
	v.stack = v.stack[:f.StackBase-1]
	v.ip = f.ReturnIP
	v.frames = v.frames[:len(v.frames)-1]
	v.stack = append(v.stack, result)
	return nil
}
