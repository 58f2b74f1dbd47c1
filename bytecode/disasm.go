package bytecode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atlas-lang/atlas/value"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at offset and returns the
// offset of the next one. Malformed bytes are rendered as a single raw byte.
func DisassembleInstruction(b *Bytecode, offset int) (string, int) {
	in, err := Decode(b.Code, offset)
	if err != nil {
		return fmt.Sprintf("%04d  .byte 0x%02X  ; %v", offset, b.Code[offset], err), offset + 1
	}

	switch in.Op.Info().Operand {
	case OperandNone:
		return fmt.Sprintf("%04d  %s", offset, in.Op), in.Next()
	case OperandI16:
		return fmt.Sprintf("%04d  %s %d  ; -> %04d", offset, in.Op, in.Operand, in.Target()), in.Next()
	}

	line := fmt.Sprintf("%04d  %s %d", offset, in.Op, in.Operand)
	switch in.Op {
	case OpConstant, OpGetGlobal, OpSetGlobal:
		if in.Operand < len(b.Constants) {
			line += "  ; " + describeConstant(b.Constants[in.Operand])
		}
	}
	return line, in.Next()
}

// Disassemble returns a listing of b that Assemble accepts.
func Disassemble(b *Bytecode) string {
	var sb strings.Builder
	if b.LocalCount > 0 {
		fmt.Fprintf(&sb, ".locals %d\n", b.LocalCount)
	}
	for _, c := range b.Constants {
		sb.WriteString(".const ")
		sb.WriteString(constantDirective(c))
		sb.WriteByte('\n')
	}
	for offset := 0; offset < len(b.Code); {
		var line string
		line, offset = DisassembleInstruction(b, offset)
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func describeConstant(c value.Value) string {
	if c.IsString() {
		return strconv.Quote(c.AsString())
	}
	return c.String()
}

func constantDirective(c value.Value) string {
	switch c.Kind() {
	case value.KindNull:
		return "null"
	case value.KindBool:
		return "bool " + strconv.FormatBool(c.AsBool())
	case value.KindNumber:
		return "number " + strconv.FormatFloat(c.AsNumber(), 'g', -1, 64)
	case value.KindString:
		return "string " + strconv.Quote(c.AsString())
	case value.KindFunction:
		f := c.AsFunction()
		return fmt.Sprintf("function %s %d %d %d", f.Name, f.Arity, f.LocalCount, f.Entry)
	}
	return "null  ; unsupported " + c.Kind().String()
}
