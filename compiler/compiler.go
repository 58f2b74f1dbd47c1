// Package compiler lowers a typed, bound Atlas AST to bytecode.
package compiler

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/optimizer"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// TargetKind selects what kind of unit is produced.
type TargetKind int

const (
	// TargetScript runs top-level statements and yields the value of the
	// final expression statement.
	TargetScript TargetKind = iota
	// TargetBinary additionally calls the entry function after the
	// top-level statements.
	TargetBinary
)

// Target configures the compilation unit.
type Target struct {
	Kind  TargetKind
	Entry string // entry function for TargetBinary
}

// Builtins reports the names a program may use without declaring them
// (natives provided by the standard library).
type Builtins interface {
	Has(name string) bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithOptimization runs the optimizer pipeline on every compiled unit.
func WithOptimization() Option {
	return func(c *Compiler) { c.optimize = true }
}

// WithTarget sets the compilation target.
func WithTarget(t Target) Option {
	return func(c *Compiler) { c.target = t }
}

// WithModule overrides the module name used in diagnostics.
func WithModule(name string) Option {
	return func(c *Compiler) { c.moduleName = name }
}

// WithBuiltins makes undeclared names an error unless builtins has them.
// Without it, undeclared names are left to run-time global lookup.
func WithBuiltins(b Builtins) Option {
	return func(c *Compiler) { c.builtins = b }
}

// Compiler compiles programs to bytecode. A Compiler may be reused but not
// shared between goroutines.
type Compiler struct {
	optimize   bool
	target     Target
	builtins   Builtins
	moduleName string
	log        commonlog.Logger
	stats      optimizer.Stats

	// Current compilation context
	module  string
	bc      *bytecode.Bytecode
	fn      *funcState
	globals map[string]bool // top-level name -> mutable
	errs    []error
}

// New creates a compiler. Without options it emits unoptimized script bytecode.
func New(opts ...Option) *Compiler {
	c := &Compiler{log: commonlog.GetLogger("atlas.compiler")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the optimizer statistics of the last optimized compilation.
func (c *Compiler) Stats() optimizer.Stats {
	return c.stats
}

// CompilationError describes why a unit could not be lowered.
type CompilationError struct {
	Module   string
	Function string
	Span     ast.Span
	Msg      string
}

func (e *CompilationError) Error() string {
	loc := e.Module
	if e.Span.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.Module, e.Span.Line, e.Span.Column)
	}
	if e.Function != "" {
		return fmt.Sprintf("%s: in %s: %s", loc, e.Function, e.Msg)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

// errorf records a compilation error at span.
func (c *Compiler) errorf(span ast.Span, format string, args ...any) {
	fn := ""
	if c.fn != nil && !c.fn.topLevel {
		fn = c.fn.name
	}
	c.errs = append(c.errs, &CompilationError{
		Module:   c.module,
		Function: fn,
		Span:     span,
		Msg:      fmt.Sprintf(format, args...),
	})
}

// Compile lowers prog. On failure no bytecode is returned and the error
// joins every *CompilationError found.
func (c *Compiler) Compile(prog *ast.Program) (*bytecode.Bytecode, error) {
	c.module = prog.Module
	if c.moduleName != "" {
		c.module = c.moduleName
	}
	if c.module == "" {
		c.module = "main"
	}
	c.bc = bytecode.New()
	c.fn = newFuncState("<main>", nil, true)
	c.globals = make(map[string]bool)
	c.errs = nil
	c.stats = optimizer.Stats{}

	c.checkTarget(prog)
	if len(c.errs) > 0 {
		return nil, errors.Join(c.errs...)
	}

	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *ast.VarDecl:
			c.globals[s.Name] = s.Mutable
		case *ast.FunctionDecl:
			c.globals[s.Name] = false
		}
	}

	c.compileStatements(prog.Statements, true)

	end := ast.Span{}
	if c.target.Kind == TargetBinary {
		c.emitGlobal(bytecode.OpGetGlobal, c.target.Entry, end)
		c.emitU8(bytecode.OpCall, 0, end)
	}
	c.emit(bytecode.OpHalt, end)
	c.bc.LocalCount = c.fn.maxSlot

	if len(c.errs) > 0 {
		c.log.Debugf("compile %s failed with %d errors", c.module, len(c.errs))
		return nil, errors.Join(c.errs...)
	}

	bc := c.bc
	c.bc = nil
	c.log.Debugf("compiled %s: %d bytes, %d constants, %d top-level locals",
		c.module, bc.Len(), len(bc.Constants), bc.LocalCount)

	if c.optimize {
		bc, c.stats = optimizer.NewPipeline().Run(bc)
		c.log.Debugf("optimized %s: %d -> %d bytes", c.module, c.stats.BytesBefore, c.stats.BytesAfter)
	}
	return bc, nil
}

func (c *Compiler) checkTarget(prog *ast.Program) {
	switch c.target.Kind {
	case TargetScript:
		if c.target.Entry != "" {
			c.errorf(ast.Span{}, "invalid target configuration: script targets take no entry point (got %q)", c.target.Entry)
		}
	case TargetBinary:
		if c.target.Entry == "" {
			c.errorf(ast.Span{}, "invalid target configuration: binary target needs an entry point")
			return
		}
		for _, stmt := range prog.Statements {
			if fn, ok := stmt.(*ast.FunctionDecl); ok && fn.Name == c.target.Entry {
				if len(fn.Params) != 0 {
					c.errorf(fn.Span, "entry point %q must take no parameters", fn.Name)
				}
				return
			}
		}
		c.errorf(ast.Span{}, "unresolved entry point %q", c.target.Entry)
	default:
		c.errorf(ast.Span{}, "invalid target configuration: unknown target kind %d", c.target.Kind)
	}
}

// ---------------------------------------------------------------------------
// Emit helpers
// ---------------------------------------------------------------------------

func toSpan(s ast.Span) bytecode.Span { return bytecode.Span(s) }

func (c *Compiler) emit(op bytecode.Opcode, span ast.Span) {
	c.bc.Emit(op, toSpan(span))
}

func (c *Compiler) emitU8(op bytecode.Opcode, operand uint8, span ast.Span) {
	c.bc.Emit(op, toSpan(span))
	c.bc.EmitU8(operand)
}

func (c *Compiler) emitU16(op bytecode.Opcode, operand uint16, span ast.Span) {
	c.bc.Emit(op, toSpan(span))
	c.bc.EmitU16(operand)
}

func (c *Compiler) emitJump(op bytecode.Opcode, label *bytecode.Label, span ast.Span) {
	if err := c.bc.EmitJump(op, label, toSpan(span)); err != nil {
		c.errorf(span, "%v", err)
	}
}

func (c *Compiler) mark(label *bytecode.Label, span ast.Span) {
	if err := c.bc.Mark(label); err != nil {
		c.errorf(span, "%v", err)
	}
}

func (c *Compiler) emitLoop(target int, span ast.Span) {
	if err := c.bc.EmitLoop(target, toSpan(span)); err != nil {
		c.errorf(span, "%v", err)
	}
}
