package compiler

import (
	"math"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

// local is a variable living in a frame slot.
type local struct {
	slot    int
	mutable bool
}

// loopContext tracks jump targets for break and continue.
type loopContext struct {
	breakLabel *bytecode.Label
	// continueLabel is set for loops whose continue target comes after
	// the body (for loops); otherwise continueAt is the backward target.
	continueLabel *bytecode.Label
	continueAt    int
}

// funcState is the per-function compilation context. Slots are allocated
// in declaration order and never reused, so maxSlot is the frame size.
type funcState struct {
	name      string
	enclosing *funcState
	topLevel  bool

	scopes  []map[string]local
	maxSlot int
	loops   []*loopContext

	// self lets a nested function call itself without capturing the
	// enclosing frame.
	self      *value.Function
	selfConst uint16
	nested    bool
}

func newFuncState(name string, enclosing *funcState, topLevel bool) *funcState {
	return &funcState{name: name, enclosing: enclosing, topLevel: topLevel}
}

// atGlobalScope reports whether declarations go to globals.
func (f *funcState) atGlobalScope() bool {
	return f.topLevel && len(f.scopes) == 0
}

func (f *funcState) lookup(name string) (local, bool) {
	for i := len(f.scopes) - 1; i >= 0; i-- {
		if l, ok := f.scopes[i][name]; ok {
			return l, true
		}
	}
	return local{}, false
}

func (c *Compiler) beginScope() {
	c.fn.scopes = append(c.fn.scopes, make(map[string]local))
}

func (c *Compiler) endScope() {
	c.fn.scopes = c.fn.scopes[:len(c.fn.scopes)-1]
}

// declareLocal allocates a fresh slot in the innermost scope.
func (c *Compiler) declareLocal(name string, mutable bool, span ast.Span) int {
	slot := c.fn.maxSlot
	if slot > math.MaxUint16 {
		c.errorf(span, "too many local variables in %s", c.fn.name)
		return 0
	}
	c.fn.maxSlot++
	if name != "" {
		scope := c.fn.scopes[len(c.fn.scopes)-1]
		if _, dup := scope[name]; dup {
			c.errorf(span, "%q is already declared in this scope", name)
		}
		scope[name] = local{slot: slot, mutable: mutable}
	}
	return slot
}

// hiddenLocal allocates an unnamed slot for compiler temporaries.
func (c *Compiler) hiddenLocal(span ast.Span) int {
	return c.declareLocal("", true, span)
}

// binding is the resolution of an identifier.
type bindingKind int

const (
	bindLocal bindingKind = iota
	bindGlobal
	bindSelf
	bindUnknown
)

type binding struct {
	kind     bindingKind
	slot     int
	mutable  bool
	declared bool // declared in the program rather than provided by the host
}

// resolve finds name from the innermost scope outwards. Locals of an
// enclosing function are not reachable: there are no closures.
func (c *Compiler) resolve(name string, span ast.Span) binding {
	if l, ok := c.fn.lookup(name); ok {
		return binding{kind: bindLocal, slot: l.slot, mutable: l.mutable, declared: true}
	}
	if c.fn.nested && c.fn.self != nil && c.fn.name == name {
		return binding{kind: bindSelf}
	}
	for f := c.fn.enclosing; f != nil; f = f.enclosing {
		if _, ok := f.lookup(name); ok {
			c.errorf(span, "cannot capture %q from an enclosing function", name)
			return binding{kind: bindUnknown}
		}
	}
	if mutable, ok := c.globals[name]; ok {
		return binding{kind: bindGlobal, mutable: mutable, declared: true}
	}
	if c.builtins == nil || c.builtins.Has(name) {
		return binding{kind: bindGlobal}
	}
	c.errorf(span, "undefined variable %q", name)
	return binding{kind: bindUnknown}
}

// emitGlobal emits a global access whose operand names the global through
// the constant pool.
func (c *Compiler) emitGlobal(op bytecode.Opcode, name string, span ast.Span) {
	idx, err := c.bc.AddConstant(value.String(name))
	if err != nil {
		c.errorf(span, "%v", err)
		return
	}
	c.emitU16(op, idx, span)
}

func (c *Compiler) emitConstant(v value.Value, span ast.Span) {
	idx, err := c.bc.AddConstant(v)
	if err != nil {
		c.errorf(span, "%v", err)
		return
	}
	c.emitU16(bytecode.OpConstant, idx, span)
}
