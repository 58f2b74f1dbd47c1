package compiler

import (
	"math"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

// ---------------------------------------------------------------------------
// Expression compilation
// ---------------------------------------------------------------------------

var binaryOpcodes = map[ast.BinaryOp]bytecode.Opcode{
	ast.Add:          bytecode.OpAdd,
	ast.Sub:          bytecode.OpSub,
	ast.Mul:          bytecode.OpMul,
	ast.Div:          bytecode.OpDiv,
	ast.Mod:          bytecode.OpMod,
	ast.Equal:        bytecode.OpEqual,
	ast.NotEqual:     bytecode.OpNotEqual,
	ast.Less:         bytecode.OpLess,
	ast.LessEqual:    bytecode.OpLessEqual,
	ast.Greater:      bytecode.OpGreater,
	ast.GreaterEqual: bytecode.OpGreaterEqual,
}

// compileExpr emits code leaving exactly one value on the stack.
func (c *Compiler) compileExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.NumberLiteral:
		c.emitConstant(value.Number(e.Value), e.Span)
	case *ast.StringLiteral:
		c.emitConstant(value.String(e.Value), e.Span)
	case *ast.BoolLiteral:
		if e.Value {
			c.emit(bytecode.OpTrue, e.Span)
		} else {
			c.emit(bytecode.OpFalse, e.Span)
		}
	case *ast.NullLiteral:
		c.emit(bytecode.OpNull, e.Span)
	case *ast.Identifier:
		c.compileIdentifier(e)
	case *ast.Unary:
		c.compileExpr(e.Operand)
		switch e.Op {
		case ast.Negate:
			c.emit(bytecode.OpNegate, e.Span)
		case ast.Not:
			c.emit(bytecode.OpNot, e.Span)
		default:
			c.errorf(e.Span, "unknown unary operator %d", e.Op)
		}
	case *ast.Binary:
		c.compileBinary(e)
	case *ast.Call:
		c.compileCall(e)
	case *ast.ArrayLiteral:
		if len(e.Elements) > math.MaxUint16 {
			c.errorf(e.Span, "array literal has %d elements, the limit is %d", len(e.Elements), math.MaxUint16)
			return
		}
		for _, elem := range e.Elements {
			c.compileExpr(elem)
		}
		c.emitU16(bytecode.OpArray, uint16(len(e.Elements)), e.Span)
	case *ast.Index:
		c.compileExpr(e.Target)
		c.compileExpr(e.Index)
		c.emit(bytecode.OpGetIndex, e.Span)
	case *ast.Assign:
		c.compileAssign(e)
	case nil:
		c.errorf(ast.Span{}, "missing expression")
	default:
		c.errorf(expr.Pos(), "unsupported expression %T", expr)
	}
}

func (c *Compiler) compileIdentifier(e *ast.Identifier) {
	b := c.resolve(e.Name, e.Span)
	switch b.kind {
	case bindLocal:
		c.emitU16(bytecode.OpGetLocal, uint16(b.slot), e.Span)
	case bindGlobal:
		c.emitGlobal(bytecode.OpGetGlobal, e.Name, e.Span)
	case bindSelf:
		c.emitU16(bytecode.OpConstant, c.fn.selfConst, e.Span)
	}
}

// compileBinary emits both operands then the operator. && and || use the
// skip pattern, leaving the deciding operand on the stack:
//
//	<a> And Jump END Pop <b> END:
func (c *Compiler) compileBinary(e *ast.Binary) {
	switch e.Op {
	case ast.And, ast.Or:
		c.compileExpr(e.Left)
		if e.Op == ast.And {
			c.emit(bytecode.OpAnd, e.Span)
		} else {
			c.emit(bytecode.OpOr, e.Span)
		}
		end := c.bc.NewLabel()
		c.emitJump(bytecode.OpJump, end, e.Span)
		c.emit(bytecode.OpPop, e.Span)
		c.compileExpr(e.Right)
		c.mark(end, e.Span)
		return
	}

	op, ok := binaryOpcodes[e.Op]
	if !ok {
		c.errorf(e.Span, "unknown binary operator %s", e.Op)
		return
	}
	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	c.emit(op, e.Span)
}

func (c *Compiler) compileCall(e *ast.Call) {
	if len(e.Args) > math.MaxUint8 {
		c.errorf(e.Span, "call has %d arguments, the limit is %d", len(e.Args), math.MaxUint8)
		return
	}
	c.compileExpr(e.Callee)
	for _, arg := range e.Args {
		c.compileExpr(arg)
	}
	c.emitU8(bytecode.OpCall, uint8(len(e.Args)), e.Span)
}

// compileAssign stores into a variable or array element. The assigned value
// stays on the stack as the value of the expression.
func (c *Compiler) compileAssign(e *ast.Assign) {
	switch target := e.Target.(type) {
	case *ast.Identifier:
		b := c.resolve(target.Name, target.Span)
		switch b.kind {
		case bindUnknown:
			return
		case bindSelf:
			c.errorf(e.Span, "cannot assign to function %q", target.Name)
			return
		}
		if !b.declared {
			c.errorf(e.Span, "assignment to undeclared variable %q", target.Name)
			return
		}
		if !b.mutable {
			c.errorf(e.Span, "cannot assign to immutable %q", target.Name)
			return
		}
		c.compileExpr(e.Value)
		if b.kind == bindLocal {
			c.emitU16(bytecode.OpSetLocal, uint16(b.slot), e.Span)
		} else {
			c.emitGlobal(bytecode.OpSetGlobal, target.Name, e.Span)
		}
	case *ast.Index:
		c.compileExpr(target.Target)
		c.compileExpr(target.Index)
		c.compileExpr(e.Value)
		c.emit(bytecode.OpSetIndex, e.Span)
	default:
		c.errorf(e.Span, "invalid assignment target %T", e.Target)
	}
}
