package optimizer

import "github.com/atlas-lang/atlas/bytecode"

// DeadCodeElimination removes instructions that no path from offset zero or
// from a function entry can reach. Code after an unconditional transfer up
// to the next jump target falls out as a special case.
type DeadCodeElimination struct{}

func (DeadCodeElimination) Name() string { return "dead-code-elimination" }

func (DeadCodeElimination) Run(bc *bytecode.Bytecode) (*bytecode.Bytecode, Stats) {
	p, err := analyze(bc)
	if err != nil {
		return bc, unchanged(bc, countInstructions(bc))
	}

	reached := make([]bool, len(p.instrs))
	var work []int
	visit := func(offset int) {
		if i, ok := p.index[offset]; ok && !reached[i] {
			reached[i] = true
			work = append(work, i)
		}
	}
	visit(0)
	for _, f := range bc.Functions() {
		visit(f.Entry)
	}

	for len(work) > 0 {
		i := work[len(work)-1]
		work = work[:len(work)-1]
		in := p.instrs[i]
		switch in.Op {
		case bytecode.OpJump, bytecode.OpLoop:
			visit(in.Target())
		case bytecode.OpJumpIfFalse:
			visit(in.Next())
			visit(in.Target())
		case bytecode.OpAnd, bytecode.OpOr:
			visit(in.Next())
			if i+1 < len(p.instrs) {
				visit(p.instrs[i+1].Next())
			}
		case bytecode.OpReturn, bytecode.OpHalt:
		default:
			visit(in.Next())
		}
	}

	all := p.items()
	out := make([]item, 0, len(all))
	for i, it := range all {
		if reached[i] {
			out = append(out, it)
		}
	}
	if len(out) == len(all) {
		return bc, unchanged(bc, len(p.instrs))
	}
	res, stats, _ := p.rewrite(bc.Clone(), out)
	return res, stats
}
