package bytecode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/atlas-lang/atlas/value"
)

// ---------------------------------------------------------------------------
// Opcode metadata tests
// ---------------------------------------------------------------------------

func TestOpcodeInfo(t *testing.T) {
	tests := []struct {
		op           Opcode
		b            byte
		name         string
		operandBytes int
	}{
		{OpConstant, 0x01, "CONSTANT", 2},
		{OpNull, 0x02, "NULL", 0},
		{OpTrue, 0x03, "TRUE", 0},
		{OpFalse, 0x04, "FALSE", 0},
		{OpGetLocal, 0x10, "GET_LOCAL", 2},
		{OpSetLocal, 0x11, "SET_LOCAL", 2},
		{OpGetGlobal, 0x12, "GET_GLOBAL", 2},
		{OpSetGlobal, 0x13, "SET_GLOBAL", 2},
		{OpAdd, 0x20, "ADD", 0},
		{OpNegate, 0x25, "NEGATE", 0},
		{OpEqual, 0x30, "EQUAL", 0},
		{OpGreaterEqual, 0x35, "GREATER_EQUAL", 0},
		{OpNot, 0x40, "NOT", 0},
		{OpAnd, 0x41, "AND", 0},
		{OpOr, 0x42, "OR", 0},
		{OpJump, 0x50, "JUMP", 2},
		{OpJumpIfFalse, 0x51, "JUMP_IF_FALSE", 2},
		{OpLoop, 0x52, "LOOP", 2},
		{OpCall, 0x60, "CALL", 1},
		{OpReturn, 0x61, "RETURN", 0},
		{OpArray, 0x70, "ARRAY", 2},
		{OpGetIndex, 0x71, "GET_INDEX", 0},
		{OpSetIndex, 0x72, "SET_INDEX", 0},
		{OpPop, 0x80, "POP", 0},
		{OpDup, 0x81, "DUP", 0},
		{OpHalt, 0xFF, "HALT", 0},
	}

	for _, tt := range tests {
		if byte(tt.op) != tt.b {
			t.Errorf("%s: byte = 0x%02X, want 0x%02X", tt.name, byte(tt.op), tt.b)
		}
		info := tt.op.Info()
		if info.Name != tt.name {
			t.Errorf("%s: Name = %q, want %q", tt.op, info.Name, tt.name)
		}
		if got := tt.op.OperandBytes(); got != tt.operandBytes {
			t.Errorf("%s: OperandBytes = %d, want %d", tt.op, got, tt.operandBytes)
		}
	}
}

func TestOpcodeRoundTrip(t *testing.T) {
	defined := 0
	for b := 0; b < 256; b++ {
		op, ok := Lookup(byte(b))
		if !ok {
			if Opcode(b).Valid() {
				t.Errorf("0x%02X: Lookup failed for a valid opcode", b)
			}
			continue
		}
		defined++
		if byte(op) != byte(b) {
			t.Errorf("0x%02X: re-encoded as 0x%02X", b, byte(op))
		}
	}
	if defined != len(Opcodes()) {
		t.Errorf("defined = %d, Opcodes() = %d", defined, len(Opcodes()))
	}
	if _, ok := Lookup(0x00); ok {
		t.Error("0x00 should not decode")
	}
	if _, ok := Lookup(0x26); ok {
		t.Error("0x26 should not decode")
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0x99)
	if !strings.HasPrefix(op.Info().Name, "UNKNOWN_") {
		t.Errorf("unknown opcode should have UNKNOWN_ prefix, got %q", op.Info().Name)
	}
}

func TestStackEffect(t *testing.T) {
	tests := []struct {
		op           Opcode
		operand      int
		pops, pushes int
	}{
		{OpCall, 2, 3, 1},
		{OpArray, 4, 4, 1},
		{OpAdd, 0, 2, 1},
		{OpSetIndex, 0, 3, 1},
		{OpDup, 0, 1, 2},
		{OpAnd, 0, 1, 1},
	}
	for _, tt := range tests {
		pops, pushes := StackEffect(tt.op, tt.operand)
		if pops != tt.pops || pushes != tt.pushes {
			t.Errorf("%s(%d) = %d/%d, want %d/%d", tt.op, tt.operand, pops, pushes, tt.pops, tt.pushes)
		}
	}
}

// ---------------------------------------------------------------------------
// Container tests
// ---------------------------------------------------------------------------

func TestEmitOperandsLittleEndian(t *testing.T) {
	b := New()
	b.Emit(OpConstant, Span{})
	b.EmitU16(0x1234)
	b.Emit(OpJump, Span{})
	b.EmitI16(-2)
	b.Emit(OpCall, Span{})
	b.EmitU8(7)

	want := []byte{0x01, 0x34, 0x12, 0x50, 0xFE, 0xFF, 0x60, 7}
	if string(b.Code) != string(want) {
		t.Errorf("code = % X, want % X", b.Code, want)
	}
}

func TestAddConstantDedup(t *testing.T) {
	b := New()
	i1, _ := b.AddConstant(value.Number(1))
	i2, _ := b.AddConstant(value.String("x"))
	i3, _ := b.AddConstant(value.Number(1))
	if i1 != i3 {
		t.Errorf("duplicate number got index %d, want %d", i3, i1)
	}
	if i2 != 1 {
		t.Errorf("string index = %d, want 1", i2)
	}
	f := value.FromFunction(&value.Function{Name: "f"})
	j1, _ := b.AddConstant(f)
	j2, _ := b.AddConstant(f)
	if j1 == j2 {
		t.Error("functions are not deduplicated")
	}
}

func TestConstantPoolFull(t *testing.T) {
	b := New()
	for i := 0; i < MaxConstants; i++ {
		if _, err := b.AddConstant(value.Number(float64(i))); err != nil {
			t.Fatalf("AddConstant(%d): %v", i, err)
		}
	}
	if _, err := b.AddConstant(value.Number(-1)); !errors.Is(err, ErrConstantPoolFull) {
		t.Errorf("err = %v, want ErrConstantPoolFull", err)
	}
}

func TestDebugSpansSparse(t *testing.T) {
	b := New()
	s1 := Span{Start: 0, End: 5, Line: 1, Column: 1}
	s2 := Span{Start: 6, End: 9, Line: 2, Column: 1}
	b.Emit(OpNull, s1)
	b.Emit(OpPop, s1)
	b.Emit(OpTrue, s2)

	if len(b.Debug) != 2 {
		t.Fatalf("debug entries = %d, want 2", len(b.Debug))
	}
	if sp, ok := b.SpanAt(1); !ok || sp != s1 {
		t.Errorf("SpanAt(1) = %v, %v; want %v", sp, ok, s1)
	}
	if sp, ok := b.SpanAt(2); !ok || sp != s2 {
		t.Errorf("SpanAt(2) = %v, %v; want %v", sp, ok, s2)
	}
}

func TestLabelsForwardAndBackward(t *testing.T) {
	b := New()
	end := b.NewLabel()
	b.Emit(OpTrue, Span{})
	if err := b.EmitJump(OpJumpIfFalse, end, Span{}); err != nil {
		t.Fatal(err)
	}
	b.Emit(OpNull, Span{})
	b.Emit(OpPop, Span{})
	if err := b.Mark(end); err != nil {
		t.Fatal(err)
	}
	b.Emit(OpHalt, Span{})

	in, err := Decode(b.Code, 1)
	if err != nil {
		t.Fatal(err)
	}
	if in.Operand != 2 || in.Target() != 6 {
		t.Errorf("forward jump operand = %d target = %d, want 2 and 6", in.Operand, in.Target())
	}
	if err := b.Mark(end); !errors.Is(err, ErrLabelResolved) {
		t.Errorf("second Mark err = %v", err)
	}

	if err := b.EmitLoop(0, Span{}); err != nil {
		t.Fatal(err)
	}
	loop, err := Decode(b.Code, 7)
	if err != nil {
		t.Fatal(err)
	}
	if loop.Op != OpLoop || loop.Target() != 0 {
		t.Errorf("loop = %v target %d, want LOOP -> 0", loop.Op, loop.Target())
	}
}

func TestJumpTooFar(t *testing.T) {
	b := New()
	l := b.NewLabel()
	_ = b.EmitJump(OpJump, l, Span{})
	b.Code = append(b.Code, make([]byte, 40000)...)
	if err := b.Mark(l); !errors.Is(err, ErrJumpTooFar) {
		t.Errorf("err = %v, want ErrJumpTooFar", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte{0x00}, 0); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("err = %v, want ErrUnknownOpcode", err)
	}
	if _, err := Decode([]byte{byte(OpConstant), 1}, 0); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
	if _, err := Decode([]byte{byte(OpPop)}, 3); !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	ins := []Instruction{
		{Op: OpConstant, Operand: 513},
		{Op: OpJump, Operand: -300},
		{Op: OpCall, Operand: 255},
		{Op: OpHalt},
	}
	var code []byte
	for _, in := range ins {
		code = Encode(code, in)
	}
	got, err := DecodeAll(code)
	if err != nil {
		t.Fatal(err)
	}
	for i := range ins {
		if got[i].Op != ins[i].Op || got[i].Operand != ins[i].Operand {
			t.Errorf("instruction %d = %v %d, want %v %d", i, got[i].Op, got[i].Operand, ins[i].Op, ins[i].Operand)
		}
	}
}

// FuzzDecode checks that whatever prefix of a stream decodes re-encodes to
// the same bytes.
func FuzzDecode(f *testing.F) {
	f.Add([]byte{byte(OpConstant), 1, 0, byte(OpHalt)})
	f.Add([]byte{byte(OpJump), 0xFE, 0xFF})
	f.Add([]byte{byte(OpCall)})
	f.Fuzz(func(t *testing.T, code []byte) {
		ins, err := DecodeAll(code)
		var again []byte
		for _, in := range ins {
			again = Encode(again, in)
		}
		if !bytes.HasPrefix(code, again) {
			t.Fatalf("re-encoded %x is not a prefix of %x", again, code)
		}
		if err == nil && len(again) != len(code) {
			t.Fatalf("decoded %d of %d bytes without error", len(again), len(code))
		}
	})
}

// ---------------------------------------------------------------------------
// Assembler tests
// ---------------------------------------------------------------------------

const countdown = `
.locals 1
.const number 3
.const number 1
.const function twice 1 1 body
    CONSTANT 0
    SET_LOCAL 0
    POP
top:
    GET_LOCAL 0
    CONSTANT 1
    GREATER_EQUAL
    JUMP_IF_FALSE done
    GET_LOCAL 0
    CONSTANT 1
    SUB
    SET_LOCAL 0
    POP
    LOOP top
done:
    GET_LOCAL 0
    HALT
body:
    GET_LOCAL 0
    DUP
    ADD
    RETURN
`

func TestAssembleLabels(t *testing.T) {
	b, err := Assemble(countdown)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if b.LocalCount != 1 || len(b.Constants) != 3 {
		t.Fatalf("locals = %d constants = %d", b.LocalCount, len(b.Constants))
	}
	ins, err := DecodeAll(b.Code)
	if err != nil {
		t.Fatal(err)
	}
	var loop, jif Instruction
	for _, in := range ins {
		switch in.Op {
		case OpLoop:
			loop = in
		case OpJumpIfFalse:
			jif = in
		}
	}
	if loop.Target() != 7 {
		t.Errorf("LOOP target = %d, want 7", loop.Target())
	}
	if got := b.Code[jif.Target()]; Opcode(got) != OpGetLocal {
		t.Errorf("JUMP_IF_FALSE lands on %v", Opcode(got))
	}
	fn := b.Constants[2].AsFunction()
	if fn == nil || Opcode(b.Code[fn.Entry]) != OpGetLocal || fn.Entry != len(b.Code)-6 {
		t.Errorf("function entry = %+v", fn)
	}
}

func TestDisassembleRoundTrip(t *testing.T) {
	b, err := Assemble(countdown)
	if err != nil {
		t.Fatal(err)
	}
	b.Constants = append(b.Constants, value.String("semi;colon \"q\""), value.Null, value.True)

	listing := Disassemble(b)
	again, err := Assemble(listing)
	if err != nil {
		t.Fatalf("re-assemble: %v\n%s", err, listing)
	}
	if string(again.Code) != string(b.Code) {
		t.Errorf("code differs after round trip:\n%s", listing)
	}
	if len(again.Constants) != len(b.Constants) {
		t.Fatalf("constants = %d, want %d", len(again.Constants), len(b.Constants))
	}
	for i := range b.Constants {
		if !value.Identical(again.Constants[i], b.Constants[i]) {
			t.Errorf("constant %d = %v, want %v", i, again.Constants[i], b.Constants[i])
		}
	}
	if !strings.Contains(listing, "LOOP") || !strings.Contains(listing, "; -> ") {
		t.Errorf("listing lacks jump annotation:\n%s", listing)
	}
}

func TestDisassembleKeepsInconsistentFunctions(t *testing.T) {
	b := New()
	b.Emit(OpHalt, Span{})
	b.Constants = append(b.Constants,
		value.FromFunction(&value.Function{Name: "short", Arity: 2, LocalCount: 0, Entry: 0}),
		value.FromFunction(&value.Function{Name: "odd", Arity: -1, LocalCount: 3, Entry: 0}))

	listing := Disassemble(b)
	again, err := Assemble(listing)
	if err != nil {
		t.Fatalf("re-assemble: %v\n%s", err, listing)
	}
	for i, c := range b.Constants {
		got := again.Constants[i].AsFunction()
		if got == nil || *got != *c.AsFunction() {
			t.Errorf("constant %d = %v, want %+v", i, again.Constants[i], *c.AsFunction())
		}
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []string{
		"FROB",
		"CONSTANT",
		"CALL 300",
		"JUMP nowhere",
		"a:\na:",
		".const widget 1",
		".const function f x 1 0",
	}
	for _, src := range tests {
		if _, err := Assemble(src); err == nil {
			t.Errorf("Assemble(%q) should fail", src)
		}
	}
}

func TestAssembleRawBytes(t *testing.T) {
	b, err := Assemble(".byte 0x00\n.byte 0x01")
	if err != nil {
		t.Fatal(err)
	}
	if string(b.Code) != "\x00\x01" {
		t.Errorf("code = % X", b.Code)
	}
}

func TestBinaryAndUnaryTables(t *testing.T) {
	for _, op := range []Opcode{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual} {
		if _, ok := Binary(op); !ok {
			t.Errorf("%s has no binary rule", op)
		}
	}
	for _, op := range []Opcode{OpNegate, OpNot} {
		if _, ok := Unary(op); !ok {
			t.Errorf("%s has no unary rule", op)
		}
	}
}
