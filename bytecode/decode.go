package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrUnknownOpcode = errors.New("unknown opcode")
	ErrTruncated     = errors.New("truncated operand")
)

// Instruction is one decoded instruction.
type Instruction struct {
	Offset  int
	Op      Opcode
	Operand int // zero when the opcode has no operand; signed for jumps
}

// Size is the encoded length of the instruction.
func (in Instruction) Size() int { return in.Op.Size() }

// Next is the offset of the following instruction.
func (in Instruction) Next() int { return in.Offset + in.Op.Size() }

// Target returns the absolute destination of a jump instruction.
func (in Instruction) Target() int {
	if in.Op == OpLoop {
		return in.Next() - in.Operand
	}
	return in.Next() + in.Operand
}

// Decode reads the instruction at offset at.
func Decode(code []byte, at int) (Instruction, error) {
	if at < 0 || at >= len(code) {
		return Instruction{}, fmt.Errorf("offset %d: %w", at, ErrTruncated)
	}
	op, ok := Lookup(code[at])
	if !ok {
		return Instruction{}, fmt.Errorf("offset %d: %w 0x%02X", at, ErrUnknownOpcode, code[at])
	}
	in := Instruction{Offset: at, Op: op}
	info := opcodeTable[op]
	if at+1+info.Operand.Width() > len(code) {
		return Instruction{}, fmt.Errorf("offset %d: %s: %w", at, op, ErrTruncated)
	}
	switch info.Operand {
	case OperandU8:
		in.Operand = int(code[at+1])
	case OperandU16:
		in.Operand = int(binary.LittleEndian.Uint16(code[at+1:]))
	case OperandI16:
		in.Operand = int(int16(binary.LittleEndian.Uint16(code[at+1:])))
	}
	return in, nil
}

// DecodeAll decodes a whole instruction stream, stopping at the first error.
func DecodeAll(code []byte) ([]Instruction, error) {
	var out []Instruction
	for at := 0; at < len(code); {
		in, err := Decode(code, at)
		if err != nil {
			return out, err
		}
		out = append(out, in)
		at = in.Next()
	}
	return out, nil
}

// Encode appends the encoding of in to dst.
func Encode(dst []byte, in Instruction) []byte {
	dst = append(dst, byte(in.Op))
	switch opcodeTable[in.Op].Operand {
	case OperandU8:
		dst = append(dst, byte(in.Operand))
	case OperandU16, OperandI16:
		v := uint16(in.Operand)
		dst = append(dst, byte(v), byte(v>>8))
	}
	return dst
}
