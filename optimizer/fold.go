package optimizer

import (
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

// ConstantFolding evaluates operators whose operands are literal pushes and
// replaces them with a single push of the result. Evaluation goes through
// the same operator table as the VM, so folded and unfolded code agree.
// Operations that would fail at run time are left in place.
type ConstantFolding struct{}

func (ConstantFolding) Name() string { return "constant-folding" }

func (ConstantFolding) Run(bc *bytecode.Bytecode) (*bytecode.Bytecode, Stats) {
	p, err := analyze(bc)
	if err != nil {
		return bc, unchanged(bc, countInstructions(bc))
	}
	work := bc.Clone()

	folded := 0
	out := make([]item, 0, len(p.instrs))
	for _, it := range p.items() {
		out = append(out, it)
		for {
			n := len(out)
			if n >= 3 {
				if push, ok := foldBinary(p, work, out[n-3], out[n-2], out[n-1]); ok {
					out = append(out[:n-3], push)
					folded++
					continue
				}
			}
			if n >= 2 {
				if push, ok := foldUnary(p, work, out[n-2], out[n-1]); ok {
					out = append(out[:n-2], push)
					folded++
					continue
				}
			}
			break
		}
	}
	if folded == 0 {
		return bc, unchanged(bc, len(p.instrs))
	}

	res, stats, err := p.rewrite(work, out)
	if err != nil {
		return res, stats
	}
	stats.ConstantsFolded = folded
	return res, stats
}

func foldBinary(p *program, work *bytecode.Bytecode, a, b, op item) (item, bool) {
	f, ok := bytecode.Binary(op.op)
	if !ok {
		return item{}, false
	}
	x, ok := literal(work, a)
	if !ok {
		return item{}, false
	}
	y, ok := literal(work, b)
	if !ok || !p.clear(a.first, op.last) {
		return item{}, false
	}
	r, err := f(x, y)
	if err != nil {
		return item{}, false
	}
	return pushOf(work, r, a.first, op.last)
}

func foldUnary(p *program, work *bytecode.Bytecode, a, op item) (item, bool) {
	f, ok := bytecode.Unary(op.op)
	if !ok {
		return item{}, false
	}
	x, ok := literal(work, a)
	if !ok || !p.clear(a.first, op.last) {
		return item{}, false
	}
	r, err := f(x)
	if err != nil {
		return item{}, false
	}
	return pushOf(work, r, a.first, op.last)
}

// literal returns the scalar pushed by a literal instruction.
func literal(work *bytecode.Bytecode, it item) (value.Value, bool) {
	switch it.op {
	case bytecode.OpNull:
		return value.Null, true
	case bytecode.OpTrue:
		return value.True, true
	case bytecode.OpFalse:
		return value.False, true
	case bytecode.OpConstant:
		if it.operand >= len(work.Constants) {
			return value.Null, false
		}
		v := work.Constants[it.operand]
		switch v.Kind() {
		case value.KindNumber, value.KindString, value.KindBool, value.KindNull:
			return v, true
		}
	}
	return value.Null, false
}

// pushOf builds the instruction pushing v, covering first..last.
func pushOf(work *bytecode.Bytecode, v value.Value, first, last int) (item, bool) {
	it := item{first: first, last: last}
	switch v.Kind() {
	case value.KindNull:
		it.op = bytecode.OpNull
	case value.KindBool:
		it.op = bytecode.OpFalse
		if v.AsBool() {
			it.op = bytecode.OpTrue
		}
	case value.KindNumber, value.KindString:
		idx, err := work.AddConstant(v)
		if err != nil {
			return item{}, false
		}
		it.op = bytecode.OpConstant
		it.operand = int(idx)
	default:
		return item{}, false
	}
	return it, true
}
