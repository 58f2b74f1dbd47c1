package optimizer

import "github.com/atlas-lang/atlas/bytecode"

// Peephole removes instruction pairs with no net effect: Dup Pop, Not Not,
// a side-effect-free push followed by Pop, and jumps to the next
// instruction. Removals cascade, so Null Dup Pop Pop disappears entirely.
type Peephole struct{}

func (Peephole) Name() string { return "peephole" }

func (Peephole) Run(bc *bytecode.Bytecode) (*bytecode.Bytecode, Stats) {
	p, err := analyze(bc)
	if err != nil {
		return bc, unchanged(bc, countInstructions(bc))
	}

	rewrites := 0
	out := make([]item, 0, len(p.instrs))
	for _, it := range p.items() {
		if it.op == bytecode.OpJump && it.target == p.next(it) && p.clear(it.first, it.last) {
			rewrites++
			continue
		}
		out = append(out, it)
		for len(out) >= 2 {
			a, b := out[len(out)-2], out[len(out)-1]
			if !cancels(a.op, b.op) || !p.clear(a.first, b.last) {
				break
			}
			out = out[:len(out)-2]
			rewrites++
		}
	}
	if rewrites == 0 {
		return bc, unchanged(bc, len(p.instrs))
	}

	res, stats, err := p.rewrite(bc.Clone(), out)
	if err != nil {
		return res, stats
	}
	stats.PeepholeRewrites = rewrites
	return res, stats
}

// cancels reports whether a followed by b can be dropped.
func cancels(a, b bytecode.Opcode) bool {
	switch {
	case a == bytecode.OpNot && b == bytecode.OpNot:
		return true
	case b != bytecode.OpPop:
		return false
	}
	switch a {
	case bytecode.OpDup, bytecode.OpConstant, bytecode.OpNull, bytecode.OpTrue,
		bytecode.OpFalse, bytecode.OpGetLocal:
		return true
	}
	return false
}
