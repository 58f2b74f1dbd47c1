package bytecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/atlas-lang/atlas/value"
)

// mnemonics maps upper-case opcode names back to opcodes.
var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode)
	for _, op := range Opcodes() {
		m[op.Name()] = op
	}
	return m
}()

type asmLine struct {
	num    int
	fields []string
	raw    string // text after the directive keyword, for string constants
}

// Assemble builds a Bytecode from the textual form produced by Disassemble.
//
//	.locals 1
//	.const number 3
//	.const string "counter"
//	.const function add 2 2 addBody
//	top:
//	  CONSTANT 0
//	  JUMP_IF_FALSE done
//	  LOOP top
//	done:
//	  HALT
//
// Jump operands are either labels or raw relative offsets. A leading offset
// column (as printed by Disassemble) and ";" comments are ignored. ".byte N"
// emits a raw byte, which is how malformed streams are written in tests.
func Assemble(src string) (*Bytecode, error) {
	var lines []asmLine
	labels := make(map[string]int)
	pc := 0

	for i, text := range strings.Split(src, "\n") {
		num := i + 1
		raw := strings.TrimSpace(text)
		if strings.HasPrefix(raw, ".const") {
			lines = append(lines, asmLine{num: num, fields: strings.Fields(stripComment(raw)), raw: raw})
			continue
		}
		fields := strings.Fields(stripComment(raw))
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 1 && isDigits(fields[0]) {
			fields = fields[1:]
		}
		head := fields[0]
		switch {
		case len(fields) == 1 && strings.HasSuffix(head, ":"):
			name := strings.TrimSuffix(head, ":")
			if _, dup := labels[name]; dup {
				return nil, fmt.Errorf("asm line %d: duplicate label %q", num, name)
			}
			labels[name] = pc
			continue
		case head == ".locals":
		case head == ".byte":
			pc++
		default:
			op, ok := mnemonics[strings.ToUpper(head)]
			if !ok {
				return nil, fmt.Errorf("asm line %d: unknown mnemonic %q", num, head)
			}
			pc += op.Size()
		}
		lines = append(lines, asmLine{num: num, fields: fields})
	}

	b := New()
	for _, l := range lines {
		if err := assembleLine(b, l, labels); err != nil {
			return nil, fmt.Errorf("asm line %d: %w", l.num, err)
		}
	}
	return b, nil
}

func assembleLine(b *Bytecode, l asmLine, labels map[string]int) error {
	head := l.fields[0]
	switch head {
	case ".locals":
		if len(l.fields) != 2 {
			return fmt.Errorf(".locals takes one operand")
		}
		n, err := strconv.Atoi(l.fields[1])
		if err != nil || n < 0 {
			return fmt.Errorf("bad local count %q", l.fields[1])
		}
		b.LocalCount = n
		return nil
	case ".const":
		c, err := parseConstant(l, labels)
		if err != nil {
			return err
		}
		// Appended directly: the listing fixes every index, so no dedup.
		if len(b.Constants) >= MaxConstants {
			return ErrConstantPoolFull
		}
		b.Constants = append(b.Constants, c)
		return nil
	case ".byte":
		if len(l.fields) != 2 {
			return fmt.Errorf(".byte takes one operand")
		}
		v, err := strconv.ParseUint(l.fields[1], 0, 8)
		if err != nil {
			return fmt.Errorf("bad byte %q", l.fields[1])
		}
		b.Code = append(b.Code, byte(v))
		return nil
	}

	op := mnemonics[strings.ToUpper(head)]
	span := Span{Line: l.num, Column: 1}
	kind := op.Info().Operand
	if kind == OperandNone {
		if len(l.fields) != 1 {
			return fmt.Errorf("%s takes no operand", op)
		}
		b.Emit(op, span)
		return nil
	}
	if len(l.fields) != 2 {
		return fmt.Errorf("%s takes one operand", op)
	}
	arg := l.fields[1]
	at := b.Emit(op, span)
	next := at + op.Size()

	if kind == OperandI16 {
		var offset int
		if target, ok := labels[arg]; ok {
			offset = target - next
			if op == OpLoop {
				offset = next - target
			}
		} else {
			n, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("unknown label %q", arg)
			}
			offset = n
		}
		if offset < math.MinInt16 || offset > math.MaxInt16 {
			return ErrJumpTooFar
		}
		b.EmitI16(int16(offset))
		return nil
	}

	n, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return fmt.Errorf("bad operand %q for %s", arg, op)
	}
	if kind == OperandU8 {
		if n > math.MaxUint8 {
			return fmt.Errorf("operand %d out of range for %s", n, op)
		}
		b.EmitU8(uint8(n))
		return nil
	}
	b.EmitU16(uint16(n))
	return nil
}

func parseConstant(l asmLine, labels map[string]int) (value.Value, error) {
	if len(l.fields) < 2 {
		return value.Null, fmt.Errorf(".const needs a kind")
	}
	args := l.fields[2:]
	switch l.fields[1] {
	case "null":
		return value.Null, nil
	case "bool":
		if len(args) != 1 {
			return value.Null, fmt.Errorf("bool constant takes one operand")
		}
		v, err := strconv.ParseBool(args[0])
		if err != nil {
			return value.Null, fmt.Errorf("bad bool %q", args[0])
		}
		return value.Bool(v), nil
	case "number":
		if len(args) != 1 {
			return value.Null, fmt.Errorf("number constant takes one operand")
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return value.Null, fmt.Errorf("bad number %q", args[0])
		}
		return value.Number(v), nil
	case "string":
		rest := strings.TrimSpace(strings.TrimPrefix(l.raw, ".const"))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "string"))
		quoted, err := strconv.QuotedPrefix(rest)
		if err != nil {
			return value.Null, fmt.Errorf("bad string constant: %w", err)
		}
		s, _ := strconv.Unquote(quoted)
		return value.String(s), nil
	case "function":
		if len(args) != 4 {
			return value.Null, fmt.Errorf("function constant takes name, arity, locals and entry")
		}
		arity, err1 := strconv.Atoi(args[1])
		locals, err2 := strconv.Atoi(args[2])
		// Inconsistent signatures are kept as written; the validator and
		// the VM report them.
		if err1 != nil || err2 != nil {
			return value.Null, fmt.Errorf("bad function signature %v", args)
		}
		entry, ok := labels[args[3]]
		if !ok {
			n, err := strconv.Atoi(args[3])
			if err != nil {
				return value.Null, fmt.Errorf("unknown label %q", args[3])
			}
			entry = n
		}
		return value.FromFunction(&value.Function{Name: args[0], Arity: arity, LocalCount: locals, Entry: entry}), nil
	}
	return value.Null, fmt.Errorf("unknown constant kind %q", l.fields[1])
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return s[:i]
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
