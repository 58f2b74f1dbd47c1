package vm

import (
	"errors"
	"math"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

// handler executes one instruction. When it runs, v.ip already points at
// the following instruction; jumps overwrite it.
type handler func(v *VM, operand int) *RuntimeError

// handlers is indexed by opcode byte. A nil entry is an invalid opcode.
var handlers [256]handler

func init() {
	handlers[bytecode.OpConstant] = opConstant
	handlers[bytecode.OpNull] = pushValue(value.Null)
	handlers[bytecode.OpTrue] = pushValue(value.True)
	handlers[bytecode.OpFalse] = pushValue(value.False)

	handlers[bytecode.OpGetLocal] = opGetLocal
	handlers[bytecode.OpSetLocal] = opSetLocal
	handlers[bytecode.OpGetGlobal] = opGetGlobal
	handlers[bytecode.OpSetGlobal] = opSetGlobal

	for _, op := range []bytecode.Opcode{
		bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpEqual, bytecode.OpNotEqual, bytecode.OpLess, bytecode.OpLessEqual,
		bytecode.OpGreater, bytecode.OpGreaterEqual,
	} {
		f, _ := bytecode.Binary(op)
		handlers[op] = binary(op, f)
	}
	for _, op := range []bytecode.Opcode{bytecode.OpNegate, bytecode.OpNot} {
		f, _ := bytecode.Unary(op)
		handlers[op] = unary(op, f)
	}
	handlers[bytecode.OpAnd] = skipIf(true)
	handlers[bytecode.OpOr] = skipIf(false)

	handlers[bytecode.OpJump] = opJump
	handlers[bytecode.OpJumpIfFalse] = opJumpIfFalse
	handlers[bytecode.OpLoop] = opLoop

	handlers[bytecode.OpCall] = func(v *VM, argc int) *RuntimeError { return v.call(argc) }
	handlers[bytecode.OpReturn] = func(v *VM, _ int) *RuntimeError { return v.ret() }

	handlers[bytecode.OpArray] = opArray
	handlers[bytecode.OpGetIndex] = opGetIndex
	handlers[bytecode.OpSetIndex] = opSetIndex

	handlers[bytecode.OpPop] = opPop
	handlers[bytecode.OpDup] = opDup
	handlers[bytecode.OpHalt] = func(v *VM, _ int) *RuntimeError {
		v.finish()
		return nil
	}
}

// ---------------------------------------------------------------------------
// Constants, locals and globals
// ---------------------------------------------------------------------------

func pushValue(x value.Value) handler {
	return func(v *VM, _ int) *RuntimeError { return v.push(x) }
}

func opConstant(v *VM, idx int) *RuntimeError {
	if idx >= len(v.constants) {
		return v.fail(OperandOutOfBounds, "constant %d of %d", idx, len(v.constants))
	}
	return v.push(v.constants[idx])
}

func (v *VM) localIndex(slot int) (int, *RuntimeError) {
	f := v.frame()
	if slot >= f.LocalCount {
		return 0, v.fail(OperandOutOfBounds, "local %d of %d in %s", slot, f.LocalCount, f.Name)
	}
	return f.StackBase + slot, nil
}

func opGetLocal(v *VM, slot int) *RuntimeError {
	i, err := v.localIndex(slot)
	if err != nil {
		return err
	}
	return v.push(v.stack[i])
}

func opSetLocal(v *VM, slot int) *RuntimeError {
	i, err := v.localIndex(slot)
	if err != nil {
		return err
	}
	top, err := v.peek()
	if err != nil {
		return err
	}
	v.stack[i] = top
	return nil
}

func (v *VM) globalName(idx int) (string, *RuntimeError) {
	if idx >= len(v.constants) {
		return "", v.fail(OperandOutOfBounds, "global name %d of %d", idx, len(v.constants))
	}
	name := v.constants[idx]
	if !name.IsString() {
		return "", v.fail(OperandOutOfBounds, "global name %d is a %s", idx, name.Kind())
	}
	return name.AsString(), nil
}

func opGetGlobal(v *VM, idx int) *RuntimeError {
	name, err := v.globalName(idx)
	if err != nil {
		return err
	}
	if g, ok := v.globals[name]; ok {
		return v.push(g)
	}
	if v.natives != nil {
		if n, ok := v.natives.Lookup(name); ok {
			return v.push(value.FromNative(n))
		}
	}
	return v.fail(UndefinedGlobal, "undefined global %q", name)
}

func opSetGlobal(v *VM, idx int) *RuntimeError {
	name, err := v.globalName(idx)
	if err != nil {
		return err
	}
	top, err := v.peek()
	if err != nil {
		return err
	}
	v.globals[name] = top
	return nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (v *VM) operatorError(op bytecode.Opcode, err error) *RuntimeError {
	if errors.Is(err, value.ErrTypeMismatch) {
		return v.failWith(TypeError, err, "%s: %v", op, err)
	}
	return v.failWith(Internal, err, "%s: %v", op, err)
}

func binary(op bytecode.Opcode, f bytecode.BinaryFunc) handler {
	return func(v *VM, _ int) *RuntimeError {
		if err := v.require(2); err != nil {
			return err
		}
		n := len(v.stack)
		r, err := f(v.stack[n-2], v.stack[n-1])
		if err != nil {
			return v.operatorError(op, err)
		}
		v.stack[n-2] = r
		v.stack = v.stack[:n-1]
		return nil
	}
}

func unary(op bytecode.Opcode, f bytecode.UnaryFunc) handler {
	return func(v *VM, _ int) *RuntimeError {
		if err := v.require(1); err != nil {
			return err
		}
		n := len(v.stack)
		r, err := f(v.stack[n-1])
		if err != nil {
			return v.operatorError(op, err)
		}
		v.stack[n-1] = r
		return nil
	}
}

// skipIf skips the next instruction when the truthiness of the top value
// equals truthy: And skips on truthy, Or on falsy. The operand stays on the
// stack. Without a skip, execution continues with the next instruction,
// normally a Jump past the right-hand side.
func skipIf(truthy bool) handler {
	return func(v *VM, _ int) *RuntimeError {
		top, err := v.peek()
		if err != nil {
			return err
		}
		if top.Truthy() != truthy {
			return nil
		}
		if v.ip >= len(v.code) {
			return v.fail(InvalidJump, "nothing to skip at end of code")
		}
		next, ok := bytecode.Lookup(v.code[v.ip])
		if !ok {
			return v.fail(InvalidOpcode, "skipped byte 0x%02X is not an opcode", v.code[v.ip])
		}
		v.ip += next.Size()
		return nil
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func (v *VM) jumpTo(target int) *RuntimeError {
	if target < 0 || target > len(v.code) {
		return v.fail(InvalidJump, "target %d outside 0..%d", target, len(v.code))
	}
	v.ip = target
	return nil
}

// backward charges a backward Jump against the budget like a Loop.
func (v *VM) backward(offset int) *RuntimeError {
	if offset < 0 {
		return v.checkBudget()
	}
	return nil
}

func opJump(v *VM, offset int) *RuntimeError {
	if err := v.backward(offset); err != nil {
		return err
	}
	return v.jumpTo(v.ip + offset)
}

func opJumpIfFalse(v *VM, offset int) *RuntimeError {
	cond, err := v.pop()
	if err != nil {
		return err
	}
	if cond.Truthy() {
		return nil
	}
	if err := v.backward(offset); err != nil {
		return err
	}
	return v.jumpTo(v.ip + offset)
}

func opLoop(v *VM, offset int) *RuntimeError {
	if err := v.checkBudget(); err != nil {
		return err
	}
	return v.jumpTo(v.ip - offset)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

func opArray(v *VM, n int) *RuntimeError {
	if err := v.require(n); err != nil {
		return err
	}
	start := len(v.stack) - n
	elems := make([]value.Value, n)
	copy(elems, v.stack[start:])
	v.stack = v.stack[:start]
	return v.push(value.FromArray(value.NewArray(elems)))
}

// index validates an array access and returns the element position.
func (v *VM) index(target, idx value.Value) (*value.Array, int, *RuntimeError) {
	arr := target.AsArray()
	if arr == nil {
		return nil, 0, v.fail(TypeError, "cannot index %s", target.Kind())
	}
	if !idx.IsNumber() {
		return nil, 0, v.fail(TypeError, "array index must be a number, got %s", idx.Kind())
	}
	n := idx.AsNumber()
	if n != math.Trunc(n) || math.IsInf(n, 0) {
		return nil, 0, v.fail(IndexOutOfBounds, "array index %v is not an integer", idx)
	}
	if n < 0 || n >= float64(arr.Len()) {
		return nil, 0, v.fail(IndexOutOfBounds, "index %v out of bounds for length %d", idx, arr.Len())
	}
	return arr, int(n), nil
}

func opGetIndex(v *VM, _ int) *RuntimeError {
	if err := v.require(2); err != nil {
		return err
	}
	n := len(v.stack)
	arr, i, err := v.index(v.stack[n-2], v.stack[n-1])
	if err != nil {
		return err
	}
	elem, _ := arr.Get(i)
	v.stack[n-2] = elem
	v.stack = v.stack[:n-1]
	return nil
}

func opSetIndex(v *VM, _ int) *RuntimeError {
	if err := v.require(3); err != nil {
		return err
	}
	n := len(v.stack)
	arr, i, err := v.index(v.stack[n-3], v.stack[n-2])
	if err != nil {
		return err
	}
	x := v.stack[n-1]
	arr.Set(i, x)
	v.stack[n-3] = x
	v.stack = v.stack[:n-2]
	return nil
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func opPop(v *VM, _ int) *RuntimeError {
	_, err := v.pop()
	return err
}

func opDup(v *VM, _ int) *RuntimeError {
	top, err := v.peek()
	if err != nil {
		return err
	}
	return v.push(top)
}
