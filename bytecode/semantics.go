package bytecode

import "github.com/atlas-lang/atlas/value"

// BinaryFunc is the evaluation rule of a two-operand opcode.
type BinaryFunc func(a, b value.Value) (value.Value, error)

// UnaryFunc is the evaluation rule of a one-operand opcode.
type UnaryFunc func(a value.Value) (value.Value, error)

// binaryOps and unaryOps are the single source of operator semantics: the VM
// executes them and the constant folder evaluates them at compile time.
var binaryOps = map[Opcode]BinaryFunc{
	OpAdd:          value.Add,
	OpSub:          value.Sub,
	OpMul:          value.Mul,
	OpDiv:          value.Div,
	OpMod:          value.Mod,
	OpEqual:        value.EqualOp,
	OpNotEqual:     value.NotEqualOp,
	OpLess:         value.Less,
	OpLessEqual:    value.LessEqual,
	OpGreater:      value.Greater,
	OpGreaterEqual: value.GreaterEqual,
}

var unaryOps = map[Opcode]UnaryFunc{
	OpNegate: value.Negate,
	OpNot:    value.Not,
}

// Binary returns the operator implementing op.
func Binary(op Opcode) (BinaryFunc, bool) {
	f, ok := binaryOps[op]
	return f, ok
}

// Unary returns the operator implementing op.
func Unary(op Opcode) (UnaryFunc, bool) {
	f, ok := unaryOps[op]
	return f, ok
}
