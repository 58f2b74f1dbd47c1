package optimizer

import (
	"errors"
	"fmt"
	"math"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

var (
	errNotBoundary = errors.New("target is not an instruction boundary")
	errSkipAtEnd   = errors.New("skip instruction has no slot")
)

// item is one instruction of a rewritten stream. It covers the input
// instructions from first to last (input offsets); rewrites that merge a
// window produce one item covering the whole window.
type item struct {
	op      bytecode.Opcode
	operand int
	target  int // jumps: input offset of the destination
	first   int
	last    int
}

// program is the decoded input of a pass with its control-flow landmarks.
type program struct {
	src    *bytecode.Bytecode
	instrs []bytecode.Instruction
	index  map[int]int // input offset -> instruction index

	// leader marks jump targets, skip targets and function entries. A
	// leader may start a rewrite window but never sit inside one.
	leader []bool
	// pinned marks the instruction right after And/Or. The skip only
	// works if that slot stays exactly one instruction, so it is never
	// part of a window.
	pinned []bool
}

func analyze(bc *bytecode.Bytecode) (*program, error) {
	instrs, err := bytecode.DecodeAll(bc.Code)
	if err != nil {
		return nil, err
	}
	p := &program{
		src:    bc,
		instrs: instrs,
		index:  make(map[int]int, len(instrs)),
		leader: make([]bool, len(instrs)),
		pinned: make([]bool, len(instrs)),
	}
	for i, in := range instrs {
		p.index[in.Offset] = i
	}

	mark := func(offset int) error {
		if offset == len(bc.Code) {
			return nil
		}
		i, ok := p.index[offset]
		if !ok {
			return fmt.Errorf("offset %d: %w", offset, errNotBoundary)
		}
		p.leader[i] = true
		return nil
	}

	for i, in := range instrs {
		switch {
		case in.Op.IsJump():
			if err := mark(in.Target()); err != nil {
				return nil, err
			}
		case in.Op.IsSkip():
			if i+1 >= len(instrs) {
				return nil, fmt.Errorf("offset %d: %w", in.Offset, errSkipAtEnd)
			}
			p.pinned[i+1] = true
			if err := mark(instrs[i+1].Next()); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range bc.Functions() {
		if err := mark(f.Entry); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// items returns the input as a rewritable list, one item per instruction.
func (p *program) items() []item {
	out := make([]item, len(p.instrs))
	for i, in := range p.instrs {
		out[i] = item{op: in.Op, operand: in.Operand, first: in.Offset, last: in.Offset}
		if in.Op.IsJump() {
			out[i].target = in.Target()
		}
	}
	return out
}

// clear reports whether the input range from first to last may be rewritten
// as a unit: nothing in it is pinned and only first may be a leader.
func (p *program) clear(first, last int) bool {
	i, ok := p.index[first]
	j, ok2 := p.index[last]
	if !ok || !ok2 || p.pinned[i] {
		return false
	}
	for k := i + 1; k <= j; k++ {
		if p.leader[k] || p.pinned[k] {
			return false
		}
	}
	return true
}

// next returns the input offset following the item.
func (p *program) next(it item) int {
	return p.instrs[p.index[it.last]].Next()
}

// assemble lays out items into dst, which must be a clone of the input.
// Jump operands, function entries and debug spans move with the code.
// Offsets of removed instructions map to the next surviving instruction.
func (p *program) assemble(dst *bytecode.Bytecode, items []item) error {
	newOff := make([]int, len(items)+1)
	for i, it := range items {
		newOff[i+1] = newOff[i] + it.op.Size()
	}

	remap := make(map[int]int, len(p.instrs)+1)
	k := 0
	for _, in := range p.instrs {
		for k < len(items) && items[k].first < in.Offset {
			k++
		}
		remap[in.Offset] = newOff[k]
	}
	remap[len(p.src.Code)] = newOff[len(items)]

	code := make([]byte, 0, newOff[len(items)])
	for i, it := range items {
		in := bytecode.Instruction{Offset: newOff[i], Op: it.op, Operand: it.operand}
		if it.op.IsJump() {
			target, ok := remap[it.target]
			if !ok {
				return fmt.Errorf("offset %d: %w", it.target, errNotBoundary)
			}
			next := newOff[i+1]
			if it.op == bytecode.OpLoop {
				in.Operand = next - target
			} else {
				in.Operand = target - next
			}
			if in.Operand < math.MinInt16 || in.Operand > math.MaxInt16 {
				return bytecode.ErrJumpTooFar
			}
		}
		code = bytecode.Encode(code, in)
	}
	dst.Code = code

	for i, c := range dst.Constants {
		f := c.AsFunction()
		if f == nil {
			continue
		}
		if entry, ok := remap[f.Entry]; ok && entry != f.Entry {
			dst.Constants[i] = value.FromFunction(f.WithEntry(entry))
		}
	}

	var debug []bytecode.DebugEntry
	for _, d := range p.src.Debug {
		off, ok := remap[d.Offset]
		if !ok || off >= len(code) {
			continue
		}
		if n := len(debug); n > 0 && debug[n-1].Offset == off {
			debug[n-1].Span = d.Span
			continue
		}
		debug = append(debug, bytecode.DebugEntry{Offset: off, Span: d.Span})
	}
	dst.Debug = debug[:0]
	for _, d := range debug {
		if n := len(dst.Debug); n > 0 && dst.Debug[n-1].Span == d.Span {
			continue
		}
		dst.Debug = append(dst.Debug, d)
	}
	return nil
}

// rewrite assembles items into a clone of the input, or returns the input
// itself when assembly is impossible.
func (p *program) rewrite(work *bytecode.Bytecode, items []item) (*bytecode.Bytecode, Stats, error) {
	if err := p.assemble(work, items); err != nil {
		return p.src, unchanged(p.src, len(p.instrs)), err
	}
	return work, Stats{
		InstructionsBefore:  len(p.instrs),
		InstructionsAfter:   len(items),
		BytesBefore:         p.src.Len(),
		BytesAfter:          work.Len(),
		InstructionsRemoved: len(p.instrs) - len(items),
	}, nil
}

func unchanged(bc *bytecode.Bytecode, instructions int) Stats {
	return Stats{
		InstructionsBefore: instructions,
		InstructionsAfter:  instructions,
		BytesBefore:        bc.Len(),
		BytesAfter:         bc.Len(),
	}
}

// countInstructions decodes as far as possible; used when a pass gives up.
func countInstructions(bc *bytecode.Bytecode) int {
	instrs, _ := bytecode.DecodeAll(bc.Code)
	return len(instrs)
}
