// Package validator statically checks a finished Bytecode for structural
// problems. It is advisory: callers decide whether findings are fatal, and
// the VM checks everything again at run time anyway.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

// Kind categorizes a finding.
type Kind int

const (
	InvalidOpcode Kind = iota
	TruncatedInstruction
	InvalidJumpTarget
	OperandOutOfBounds
	StackUnderflow
)

var kindNames = [...]string{
	InvalidOpcode:        "invalid opcode",
	TruncatedInstruction: "truncated instruction",
	InvalidJumpTarget:    "invalid jump target",
	OperandOutOfBounds:   "operand out of bounds",
	StackUnderflow:       "stack underflow",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Finding is one problem found at an instruction offset.
type Finding struct {
	Kind   Kind
	Offset int
	Msg    string
}

func (f Finding) String() string {
	return fmt.Sprintf("%04d: %s: %s", f.Offset, f.Kind, f.Msg)
}

// Error joins findings into one error, or returns nil when there are none.
func Error(findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = f.String()
	}
	return errors.New(strings.Join(lines, "\n"))
}

// Validate runs the four checks in order: decoding, jump targets, operand
// bounds, stack depth. Later checks need instruction boundaries, so when
// decoding fails only the decoding findings are returned.
func Validate(bc *bytecode.Bytecode) []Finding {
	instrs, findings := decode(bc.Code)
	if len(findings) > 0 {
		return findings
	}
	boundary := make(map[int]bool, len(instrs))
	for _, in := range instrs {
		boundary[in.Offset] = true
	}

	findings = append(findings, checkJumps(bc, instrs, boundary)...)
	findings = append(findings, checkOperands(bc, instrs)...)
	if len(findings) > 0 {
		// The depth walk follows jumps; broken targets would only add noise.
		return findings
	}
	return checkDepth(bc, instrs)
}

// decode is check 1: every byte belongs to a known opcode with its full
// operand.
func decode(code []byte) ([]bytecode.Instruction, []Finding) {
	var instrs []bytecode.Instruction
	var findings []Finding
	for at := 0; at < len(code); {
		in, err := bytecode.Decode(code, at)
		switch {
		case errors.Is(err, bytecode.ErrUnknownOpcode):
			findings = append(findings, Finding{InvalidOpcode, at, fmt.Sprintf("byte 0x%02X is not an opcode", code[at])})
			at++
			continue
		case errors.Is(err, bytecode.ErrTruncated):
			op, _ := bytecode.Lookup(code[at])
			findings = append(findings, Finding{TruncatedInstruction, at,
				fmt.Sprintf("%s needs %d operand bytes, %d remain", op, op.OperandBytes(), len(code)-at-1)})
			return instrs, findings
		}
		instrs = append(instrs, in)
		at = in.Next()
	}
	return instrs, findings
}

// checkJumps is check 2: jumps, skips and function entries land on
// instruction boundaries inside the stream.
func checkJumps(bc *bytecode.Bytecode, instrs []bytecode.Instruction, boundary map[int]bool) []Finding {
	var findings []Finding
	for i, in := range instrs {
		switch {
		case in.Op.IsJump():
			t := in.Target()
			if t < 0 || t >= len(bc.Code) || !boundary[t] {
				findings = append(findings, Finding{InvalidJumpTarget, in.Offset,
					fmt.Sprintf("%s lands on %d, not an instruction boundary", in.Op, t)})
			}
		case in.Op.IsSkip():
			if i+1 >= len(instrs) {
				findings = append(findings, Finding{InvalidJumpTarget, in.Offset,
					fmt.Sprintf("%s has no instruction to skip", in.Op)})
			}
		}
	}
	for i, c := range bc.Constants {
		f := c.AsFunction()
		if f == nil {
			continue
		}
		if f.Entry < 0 || f.Entry >= len(bc.Code) || !boundary[f.Entry] {
			findings = append(findings, Finding{InvalidJumpTarget, f.Entry,
				fmt.Sprintf("function %s (constant %d) enters at %d, not an instruction boundary", f.Name, i, f.Entry)})
		}
	}
	return findings
}

// checkOperands is check 3: constant and global-name indexes resolve.
func checkOperands(bc *bytecode.Bytecode, instrs []bytecode.Instruction) []Finding {
	var findings []Finding
	for _, in := range instrs {
		switch in.Op {
		case bytecode.OpConstant:
			if in.Operand >= len(bc.Constants) {
				findings = append(findings, Finding{OperandOutOfBounds, in.Offset,
					fmt.Sprintf("constant %d of %d", in.Operand, len(bc.Constants))})
			}
		case bytecode.OpGetGlobal, bytecode.OpSetGlobal:
			switch {
			case in.Operand >= len(bc.Constants):
				findings = append(findings, Finding{OperandOutOfBounds, in.Offset,
					fmt.Sprintf("global name %d of %d", in.Operand, len(bc.Constants))})
			case bc.Constants[in.Operand].Kind() != value.KindString:
				findings = append(findings, Finding{OperandOutOfBounds, in.Offset,
					fmt.Sprintf("global name %d is a %s, not a string", in.Operand, bc.Constants[in.Operand].Kind())})
			}
		}
	}
	return findings
}

// checkDepth is check 4: a linear walk tracking how many values are
// provably on the stack. Where paths meet, the smallest incoming depth wins.
// Depth restarts at zero at function entries and after unconditional
// transfers, unless the next instruction is a recorded jump target.
func checkDepth(bc *bytecode.Bytecode, instrs []bytecode.Instruction) []Finding {
	entries := make(map[int]bool)
	for _, f := range bc.Functions() {
		entries[f.Entry] = true
	}
	recorded := make(map[int]int)
	record := func(offset, depth int) {
		if d, ok := recorded[offset]; !ok || depth < d {
			recorded[offset] = depth
		}
	}

	var findings []Finding
	depth := 0
	reachable := true
	for i, in := range instrs {
		switch {
		case entries[in.Offset]:
			depth = 0
		case !reachable:
			depth = recorded[in.Offset]
		default:
			if d, ok := recorded[in.Offset]; ok && d < depth {
				depth = d
			}
		}
		reachable = true

		pops, pushes := bytecode.StackEffect(in.Op, in.Operand)
		if pops > depth {
			findings = append(findings, Finding{StackUnderflow, in.Offset,
				fmt.Sprintf("%s pops %d, only %d on the stack", in.Op, pops, depth)})
			depth = pops
		}
		depth += pushes - pops

		switch {
		case in.Op.IsJump():
			if in.Op != bytecode.OpLoop {
				record(in.Target(), depth)
			}
		case in.Op.IsSkip():
			record(instrs[i+1].Next(), depth)
		}
		if in.Op.Terminates() {
			reachable = false
			depth = 0
		}
	}
	return findings
}
