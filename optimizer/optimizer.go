// Package optimizer rewrites compiled bytecode into smaller equivalent
// bytecode. Every pass returns a new Bytecode and leaves its input untouched.
package optimizer

import (
	"github.com/tliron/commonlog"

	"github.com/atlas-lang/atlas/bytecode"
)

// Stats reports what a pass or pipeline changed.
type Stats struct {
	InstructionsBefore  int
	InstructionsAfter   int
	BytesBefore         int
	BytesAfter          int
	ConstantsFolded     int
	InstructionsRemoved int
	PeepholeRewrites    int
}

// Pass is one optimization over a whole unit.
type Pass interface {
	Name() string
	Run(bc *bytecode.Bytecode) (*bytecode.Bytecode, Stats)
}

// DefaultPasses returns constant folding, dead-code elimination and the
// peephole pass, in the order the pipeline runs them.
func DefaultPasses() []Pass {
	return []Pass{ConstantFolding{}, DeadCodeElimination{}, Peephole{}}
}

// Pipeline runs passes in order, feeding each the previous output.
type Pipeline struct {
	passes []Pass
	log    commonlog.Logger
}

// NewPipeline creates a pipeline. Without passes it runs DefaultPasses.
func NewPipeline(passes ...Pass) *Pipeline {
	if len(passes) == 0 {
		passes = DefaultPasses()
	}
	return &Pipeline{passes: passes, log: commonlog.GetLogger("atlas.optimizer")}
}

// Run optimizes bc and returns the aggregated statistics.
func (p *Pipeline) Run(bc *bytecode.Bytecode) (*bytecode.Bytecode, Stats) {
	total := Stats{BytesBefore: bc.Len(), BytesAfter: bc.Len()}
	for i, pass := range p.passes {
		out, s := pass.Run(bc)
		p.log.Debugf("%s: %d -> %d instructions, %d -> %d bytes",
			pass.Name(), s.InstructionsBefore, s.InstructionsAfter, s.BytesBefore, s.BytesAfter)
		if i == 0 {
			total.InstructionsBefore = s.InstructionsBefore
		}
		total.InstructionsAfter = s.InstructionsAfter
		total.BytesAfter = s.BytesAfter
		total.ConstantsFolded += s.ConstantsFolded
		total.InstructionsRemoved += s.InstructionsRemoved
		total.PeepholeRewrites += s.PeepholeRewrites
		bc = out
	}
	return bc, total
}

// Optimize runs the default pipeline over bc.
func Optimize(bc *bytecode.Bytecode) (*bytecode.Bytecode, Stats) {
	return NewPipeline().Run(bc)
}
