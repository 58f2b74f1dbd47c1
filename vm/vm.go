// Package vm executes Atlas bytecode on a value stack with explicit call
// frames.
//
// A VM owns its stacks and globals and must be used from one goroutine at a
// time. Any number of VMs may execute the same Bytecode concurrently: the
// VM never writes to it.
package vm

import (
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/security"
	"github.com/atlas-lang/atlas/validator"
	"github.com/atlas-lang/atlas/value"
)

// Default limits.
const (
	DefaultMaxFrames = 1024
	DefaultMaxStack  = 1 << 16
)

// Natives is the name to native function table consulted when a global is
// not defined.
type Natives interface {
	Lookup(name string) (*value.Native, bool)
}

// ValidationPolicy decides what happens to validator findings before a run.
type ValidationPolicy int

const (
	// ValidationAdvisory logs findings and runs anyway.
	ValidationAdvisory ValidationPolicy = iota
	// ValidationOff skips the validator.
	ValidationOff
	// ValidationStrict refuses to run bytecode with findings.
	ValidationStrict
)

var policyNames = map[string]ValidationPolicy{
	"advisory": ValidationAdvisory,
	"off":      ValidationOff,
	"strict":   ValidationStrict,
}

// ParseValidationPolicy parses "off", "advisory" or "strict".
func ParseValidationPolicy(s string) (ValidationPolicy, error) {
	if p, ok := policyNames[s]; ok {
		return p, nil
	}
	return ValidationAdvisory, fmt.Errorf("unknown validation policy %q", s)
}

func (p ValidationPolicy) String() string {
	for name, q := range policyNames {
		if p == q {
			return name
		}
	}
	return fmt.Sprintf("ValidationPolicy(%d)", int(p))
}

// Option configures a VM.
type Option func(*VM)

// WithNatives sets the native table used for undefined globals.
func WithNatives(n Natives) Option {
	return func(v *VM) { v.natives = n }
}

// WithSecurity sets the capability policy for natives. Without it every
// native that requires a capability is refused.
func WithSecurity(c *security.Context) Option {
	return func(v *VM) { v.security = c }
}

// WithMaxInstructions bounds the instructions a run may execute. The bound
// is checked at every Call and backward jump. Zero means unlimited.
func WithMaxInstructions(n uint64) Option {
	return func(v *VM) { v.maxInstructions = n }
}

// WithMaxFrames bounds call depth, including the top-level frame.
func WithMaxFrames(n int) Option {
	return func(v *VM) {
		if n > 0 {
			v.maxFrames = n
		}
	}
}

// WithMaxStack bounds the value stack.
func WithMaxStack(n int) Option {
	return func(v *VM) {
		if n > 0 {
			v.maxStack = n
		}
	}
}

// WithValidation sets the validation policy.
func WithValidation(p ValidationPolicy) Option {
	return func(v *VM) { v.validation = p }
}

// WithProfiler records calls and opcodes into p. A profiler may be shared
// by several VMs.
func WithProfiler(p *Profiler) Option {
	return func(v *VM) { v.profiler = p }
}

// WithGlobals predefines globals. The map is copied at the start of every run.
func WithGlobals(globals map[string]value.Value) Option {
	return func(v *VM) { v.initial = globals }
}

// VM is one execution context for a Bytecode.
type VM struct {
	id  uuid.UUID
	bc  *bytecode.Bytecode
	log commonlog.Logger

	natives         Natives
	security        *security.Context
	profiler        *Profiler
	initial         map[string]value.Value
	validation      ValidationPolicy
	validated       bool
	maxInstructions uint64
	maxFrames       int
	maxStack        int

	// Execution state
	code      []byte
	constants []value.Value
	stack     []value.Value
	frames    []Frame
	globals   map[string]value.Value
	ip        int // next instruction; handlers overwrite it to jump
	cur       int // offset of the executing instruction
	executed  uint64

	done      bool
	result    value.Value
	hasResult bool
}

// New creates a VM for bc.
func New(bc *bytecode.Bytecode, opts ...Option) *VM {
	v := &VM{
		id:        uuid.New(),
		bc:        bc,
		log:       commonlog.GetLogger("atlas.vm"),
		maxFrames: DefaultMaxFrames,
		maxStack:  DefaultMaxStack,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ID identifies the VM in log output.
func (v *VM) ID() uuid.UUID { return v.id }

// Global returns a global as left by the last run.
func (v *VM) Global(name string) (value.Value, bool) {
	g, ok := v.globals[name]
	return g, ok
}

// Run executes the bytecode from offset zero. It reports the program result
// and whether there was one; a program that ends with an empty stack has
// none. Each call starts from a fresh stack and fresh globals. The error, if
// any, is a *RuntimeError.
func (v *VM) Run() (result value.Value, ok bool, err error) {
	if rerr := v.validate(); rerr != nil {
		return value.Null, false, rerr
	}
	v.reset()
	v.log.Debugf("vm %s: run %d bytes, %d constants", v.id, len(v.code), len(v.constants))

	if rerr := v.execute(); rerr != nil {
		v.trace(rerr)
		v.log.Debugf("vm %s: %s", v.id, rerr)
		v.unwind()
		return value.Null, false, rerr
	}
	v.log.Debugf("vm %s: finished after %d instructions", v.id, v.executed)
	return v.result, v.hasResult, nil
}

func (v *VM) validate() *RuntimeError {
	if v.validation == ValidationOff || v.validated {
		return nil
	}
	findings := validator.Validate(v.bc)
	if len(findings) == 0 {
		v.validated = true
		return nil
	}
	if v.validation == ValidationStrict {
		return &RuntimeError{
			Kind:  InvalidBytecode,
			Msg:   fmt.Sprintf("%d validation findings", len(findings)),
			IP:    findings[0].Offset,
			Cause: validator.Error(findings),
		}
	}
	for _, f := range findings {
		v.log.Warningf("vm %s: %s", v.id, f)
	}
	v.validated = true
	return nil
}

func (v *VM) reset() {
	v.code = v.bc.Code
	v.constants = v.bc.Constants
	v.stack = v.stack[:0]
	v.frames = v.frames[:0]
	v.globals = make(map[string]value.Value, len(v.initial))
	for k, g := range v.initial {
		v.globals[k] = g
	}
	v.ip, v.cur, v.executed = 0, 0, 0
	v.done, v.result, v.hasResult = false, value.Null, false

	locals := max(v.bc.LocalCount, 0)
	v.frames = append(v.frames, Frame{Name: "<main>", ReturnIP: -1, LocalCount: locals})
	for range locals {
		v.stack = append(v.stack, value.Null)
	}
}

func (v *VM) unwind() {
	v.stack = v.stack[:0]
	v.frames = v.frames[:0]
}

// execute is the dispatch loop. Any panic escaping a handler becomes an
// Internal error so malformed input can never take down the host.
func (v *VM) execute() (rerr *RuntimeError) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Errorf("vm %s: recovered panic at %04d: %v\n%s", v.id, v.cur, r, debug.Stack())
			rerr = v.fail(Internal, "%v", r)
		}
	}()

	for !v.done {
		if v.ip == len(v.code) {
			// Running off the end is an implicit Halt.
			v.finish()
			return nil
		}
		if v.ip < 0 || v.ip > len(v.code) {
			return v.fail(InvalidJump, "instruction pointer %d outside 0..%d", v.ip, len(v.code))
		}

		v.cur = v.ip
		b := v.code[v.ip]
		h := handlers[b]
		if h == nil {
			return v.fail(InvalidOpcode, "byte 0x%02X is not an opcode", b)
		}
		op := bytecode.Opcode(b)
		width := op.OperandBytes()
		if v.ip+1+width > len(v.code) {
			return v.fail(TruncatedInstruction, "%s needs %d operand bytes", op, width)
		}
		var operand int
		switch op.Info().Operand {
		case bytecode.OperandU8:
			operand = int(v.code[v.ip+1])
		case bytecode.OperandU16:
			operand = int(uint16(v.code[v.ip+1]) | uint16(v.code[v.ip+2])<<8)
		case bytecode.OperandI16:
			operand = int(int16(uint16(v.code[v.ip+1]) | uint16(v.code[v.ip+2])<<8))
		}
		v.ip += 1 + width
		v.executed++
		if v.profiler != nil {
			v.profiler.RecordOpcode(op)
		}

		if err := h(v, operand); err != nil {
			return err
		}
	}
	return nil
}

// finish ends the run with the top of the current frame's operand area as
// the result, if there is one.
func (v *VM) finish() {
	v.done = true
	if len(v.frames) > 0 && len(v.stack) > v.floor() {
		v.result = v.stack[len(v.stack)-1]
		v.hasResult = true
	}
}

// checkBudget enforces the instruction limit.
func (v *VM) checkBudget() *RuntimeError {
	if v.maxInstructions > 0 && v.executed > v.maxInstructions {
		return v.fail(ExecutionLimit, "executed %d instructions, limit is %d", v.executed, v.maxInstructions)
	}
	return nil
}
