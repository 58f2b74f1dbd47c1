// Package bytecode defines the Atlas instruction set and the Bytecode
// container shared by the compiler, optimizer, validator and VM.
package bytecode

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Constants
const (
	OpConstant Opcode = 0x01 // push constant (16-bit index)
	OpNull     Opcode = 0x02 // push null
	OpTrue     Opcode = 0x03 // push true
	OpFalse    Opcode = 0x04 // push false
)

// Locals and globals
const (
	OpGetLocal  Opcode = 0x10 // push local slot (16-bit index)
	OpSetLocal  Opcode = 0x11 // store top into local slot, value stays (16-bit index)
	OpGetGlobal Opcode = 0x12 // push global named by a string constant (16-bit index)
	OpSetGlobal Opcode = 0x13 // store top into global, value stays (16-bit index)
)

// Arithmetic
const (
	OpAdd    Opcode = 0x20
	OpSub    Opcode = 0x21
	OpMul    Opcode = 0x22
	OpDiv    Opcode = 0x23
	OpMod    Opcode = 0x24
	OpNegate Opcode = 0x25
)

// Comparison
const (
	OpEqual        Opcode = 0x30
	OpNotEqual     Opcode = 0x31
	OpLess         Opcode = 0x32
	OpLessEqual    Opcode = 0x33
	OpGreater      Opcode = 0x34
	OpGreaterEqual Opcode = 0x35
)

// Logical
const (
	OpNot Opcode = 0x40
	OpAnd Opcode = 0x41 // skip next instruction unless top is falsy
	OpOr  Opcode = 0x42 // skip next instruction unless top is truthy
)

// Control flow
const (
	OpJump        Opcode = 0x50 // unconditional jump (signed 16-bit offset from next instruction)
	OpJumpIfFalse Opcode = 0x51 // pop, jump if falsy (signed 16-bit offset)
	OpLoop        Opcode = 0x52 // backward jump (offset subtracted from next instruction)
)

// Functions
const (
	OpCall   Opcode = 0x60 // call callee below argc arguments (8-bit argc)
	OpReturn Opcode = 0x61 // return from the current frame
)

// Arrays
const (
	OpArray    Opcode = 0x70 // build array from top n values (16-bit count)
	OpGetIndex Opcode = 0x71
	OpSetIndex Opcode = 0x72
)

// Stack
const (
	OpPop Opcode = 0x80
	OpDup Opcode = 0x81
)

// Special
const (
	OpHalt Opcode = 0xFF
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes how the operand bytes of an opcode are read.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandU8
	OperandU16
	OperandI16
)

// Width returns the number of operand bytes.
func (k OperandKind) Width() int {
	switch k {
	case OperandU8:
		return 1
	case OperandU16, OperandI16:
		return 2
	}
	return 0
}

// Variable is the StackEffect marker for opcodes whose pops depend on the operand.
const Variable = -1

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string      // human-readable name
	Operand OperandKind // operand encoding
	Pops    int         // values consumed (Variable = operand dependent)
	Pushes  int         // values produced
}

// opcodeTable is indexed by opcode byte. Entries with an empty Name are
// undefined opcodes.
var opcodeTable [256]OpcodeInfo

func init() {
	defs := map[Opcode]OpcodeInfo{
		OpConstant: {"CONSTANT", OperandU16, 0, 1},
		OpNull:     {"NULL", OperandNone, 0, 1},
		OpTrue:     {"TRUE", OperandNone, 0, 1},
		OpFalse:    {"FALSE", OperandNone, 0, 1},

		OpGetLocal:  {"GET_LOCAL", OperandU16, 0, 1},
		OpSetLocal:  {"SET_LOCAL", OperandU16, 1, 1},
		OpGetGlobal: {"GET_GLOBAL", OperandU16, 0, 1},
		OpSetGlobal: {"SET_GLOBAL", OperandU16, 1, 1},

		OpAdd:    {"ADD", OperandNone, 2, 1},
		OpSub:    {"SUB", OperandNone, 2, 1},
		OpMul:    {"MUL", OperandNone, 2, 1},
		OpDiv:    {"DIV", OperandNone, 2, 1},
		OpMod:    {"MOD", OperandNone, 2, 1},
		OpNegate: {"NEGATE", OperandNone, 1, 1},

		OpEqual:        {"EQUAL", OperandNone, 2, 1},
		OpNotEqual:     {"NOT_EQUAL", OperandNone, 2, 1},
		OpLess:         {"LESS", OperandNone, 2, 1},
		OpLessEqual:    {"LESS_EQUAL", OperandNone, 2, 1},
		OpGreater:      {"GREATER", OperandNone, 2, 1},
		OpGreaterEqual: {"GREATER_EQUAL", OperandNone, 2, 1},

		OpNot: {"NOT", OperandNone, 1, 1},
		OpAnd: {"AND", OperandNone, 1, 1},
		OpOr:  {"OR", OperandNone, 1, 1},

		OpJump:        {"JUMP", OperandI16, 0, 0},
		OpJumpIfFalse: {"JUMP_IF_FALSE", OperandI16, 1, 0},
		OpLoop:        {"LOOP", OperandI16, 0, 0},

		OpCall:   {"CALL", OperandU8, Variable, 1},
		OpReturn: {"RETURN", OperandNone, 0, 0},

		OpArray:    {"ARRAY", OperandU16, Variable, 1},
		OpGetIndex: {"GET_INDEX", OperandNone, 2, 1},
		OpSetIndex: {"SET_INDEX", OperandNone, 3, 1},

		OpPop: {"POP", OperandNone, 1, 0},
		OpDup: {"DUP", OperandNone, 1, 2},

		OpHalt: {"HALT", OperandNone, 0, 0},
	}
	for op, info := range defs {
		opcodeTable[op] = info
	}
}

// Lookup decodes a byte into an opcode. Undefined bytes report false.
func Lookup(b byte) (Opcode, bool) {
	if opcodeTable[b].Name == "" {
		return 0, false
	}
	return Opcode(b), true
}

// Opcodes returns every defined opcode in byte order.
func Opcodes() []Opcode {
	var ops []Opcode
	for b := 0; b < len(opcodeTable); b++ {
		if opcodeTable[b].Name != "" {
			ops = append(ops, Opcode(b))
		}
	}
	return ops
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info := opcodeTable[op]; info.Name != "" {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool { return opcodeTable[op].Name != "" }

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string { return op.Info().Name }

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int { return opcodeTable[op].Operand.Width() }

// Size is the encoded length of the instruction: opcode plus operands.
func (op Opcode) Size() int { return 1 + op.OperandBytes() }

// String implements the Stringer interface.
func (op Opcode) String() string { return op.Name() }

// IsJump reports whether op carries a relative jump offset.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse || op == OpLoop
}

// IsSkip reports whether op conditionally skips the following instruction.
func (op Opcode) IsSkip() bool { return op == OpAnd || op == OpOr }

// Terminates reports whether control never falls through op.
func (op Opcode) Terminates() bool {
	switch op {
	case OpJump, OpLoop, OpReturn, OpHalt:
		return true
	}
	return false
}

// StackEffect returns the values popped and pushed by op with the given
// operand. Return and Halt report zero: an empty frame returns null.
func StackEffect(op Opcode, operand int) (pops, pushes int) {
	info := opcodeTable[op]
	switch op {
	case OpCall:
		return operand + 1, info.Pushes
	case OpArray:
		return operand, info.Pushes
	}
	return info.Pops, info.Pushes
}
