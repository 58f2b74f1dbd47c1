package compiler

import (
	"math"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

// ---------------------------------------------------------------------------
// Statement compilation
// ---------------------------------------------------------------------------

// compileStatements compiles a statement list. Function declarations are
// hoisted to the front of the list. When program is set and the last
// statement is an expression statement, its value stays on the stack as
// the result of the unit.
func (c *Compiler) compileStatements(stmts []ast.Stmt, program bool) {
	for _, stmt := range stmts {
		if fn, ok := stmt.(*ast.FunctionDecl); ok {
			c.compileFunction(fn)
		}
	}

	last := -1
	if program && len(stmts) > 0 {
		if _, ok := stmts[len(stmts)-1].(*ast.ExprStmt); ok {
			last = len(stmts) - 1
		}
	}

	for i, stmt := range stmts {
		if _, ok := stmt.(*ast.FunctionDecl); ok {
			continue
		}
		if i == last {
			c.compileExpr(stmt.(*ast.ExprStmt).Expr)
			continue
		}
		c.compileStmt(stmt)
	}
}

func (c *Compiler) compileStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		c.compileVarDecl(s)
	case *ast.ExprStmt:
		c.compileExpr(s.Expr)
		c.emit(bytecode.OpPop, s.Span)
	case *ast.Block:
		c.compileBlock(s)
	case *ast.If:
		c.compileIf(s)
	case *ast.While:
		c.compileWhile(s)
	case *ast.For:
		c.compileFor(s)
	case *ast.Break:
		c.compileBreak(s)
	case *ast.Continue:
		c.compileContinue(s)
	case *ast.Return:
		if s.Value != nil {
			c.compileExpr(s.Value)
		} else {
			c.emit(bytecode.OpNull, s.Span)
		}
		c.emit(bytecode.OpReturn, s.Span)
	case *ast.FunctionDecl:
		c.compileFunction(s)
	case *ast.Match:
		c.compileMatch(s)
	case nil:
		c.errorf(ast.Span{}, "missing statement")
	default:
		c.errorf(stmt.Pos(), "unsupported statement %T", stmt)
	}
}

func (c *Compiler) compileBlock(b *ast.Block) {
	if b == nil {
		return
	}
	c.beginScope()
	c.compileStatements(b.Statements, false)
	c.endScope()
}

func (c *Compiler) compileVarDecl(s *ast.VarDecl) {
	if s.Init != nil {
		c.compileExpr(s.Init)
	} else {
		c.emit(bytecode.OpNull, s.Span)
	}
	if c.fn.atGlobalScope() {
		c.emitGlobal(bytecode.OpSetGlobal, s.Name, s.Span)
	} else {
		// Declared after the initializer so it can read a shadowed name.
		slot := c.declareLocal(s.Name, s.Mutable, s.Span)
		c.emitU16(bytecode.OpSetLocal, uint16(slot), s.Span)
	}
	c.emit(bytecode.OpPop, s.Span)
}

// compileIf emits:
//
//	<cond> JumpIfFalse ELSE <then> Jump END ELSE: <else> END:
func (c *Compiler) compileIf(s *ast.If) {
	c.compileExpr(s.Cond)
	elseLabel := c.bc.NewLabel()
	c.emitJump(bytecode.OpJumpIfFalse, elseLabel, s.Span)
	c.compileBlock(s.Then)
	if s.Else == nil {
		c.mark(elseLabel, s.Span)
		return
	}
	end := c.bc.NewLabel()
	c.emitJump(bytecode.OpJump, end, s.Span)
	c.mark(elseLabel, s.Span)
	c.compileStmt(s.Else)
	c.mark(end, s.Span)
}

// compileWhile emits:
//
//	START: <cond> JumpIfFalse END <body> Loop START END:
func (c *Compiler) compileWhile(s *ast.While) {
	start := c.bc.Len()
	exit := c.bc.NewLabel()
	c.compileExpr(s.Cond)
	c.emitJump(bytecode.OpJumpIfFalse, exit, s.Span)

	c.fn.loops = append(c.fn.loops, &loopContext{breakLabel: exit, continueAt: start})
	c.compileBlock(s.Body)
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]

	c.emitLoop(start, s.Span)
	c.mark(exit, s.Span)
}

// compileFor emits:
//
//	<init> START: <cond> JumpIfFalse END <body> NEXT: <step> Pop Loop START END:
func (c *Compiler) compileFor(s *ast.For) {
	c.beginScope()
	defer c.endScope()

	if s.Init != nil {
		c.compileStmt(s.Init)
	}
	start := c.bc.Len()
	exit := c.bc.NewLabel()
	if s.Cond != nil {
		c.compileExpr(s.Cond)
		c.emitJump(bytecode.OpJumpIfFalse, exit, s.Span)
	}

	loop := &loopContext{breakLabel: exit, continueLabel: c.bc.NewLabel()}
	c.fn.loops = append(c.fn.loops, loop)
	c.compileBlock(s.Body)
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]

	c.mark(loop.continueLabel, s.Span)
	if s.Step != nil {
		c.compileExpr(s.Step)
		c.emit(bytecode.OpPop, s.Span)
	}
	c.emitLoop(start, s.Span)
	c.mark(exit, s.Span)
}

func (c *Compiler) compileBreak(s *ast.Break) {
	if len(c.fn.loops) == 0 {
		c.errorf(s.Span, "break outside of a loop")
		return
	}
	loop := c.fn.loops[len(c.fn.loops)-1]
	c.emitJump(bytecode.OpJump, loop.breakLabel, s.Span)
}

func (c *Compiler) compileContinue(s *ast.Continue) {
	if len(c.fn.loops) == 0 {
		c.errorf(s.Span, "continue outside of a loop")
		return
	}
	loop := c.fn.loops[len(c.fn.loops)-1]
	if loop.continueLabel != nil {
		c.emitJump(bytecode.OpJump, loop.continueLabel, s.Span)
		return
	}
	c.emitLoop(loop.continueAt, s.Span)
}

// compileFunction emits the body in line, guarded by a jump, then binds
// the function value:
//
//	Jump OVER ENTRY: <body> Null Return OVER: Constant fn SetGlobal|SetLocal Pop
func (c *Compiler) compileFunction(fn *ast.FunctionDecl) {
	if len(fn.Params) > math.MaxUint8 {
		c.errorf(fn.Span, "function %q has %d parameters, the limit is %d", fn.Name, len(fn.Params), math.MaxUint8)
		return
	}
	global := c.fn.atGlobalScope()

	f := &value.Function{Name: fn.Name, Arity: len(fn.Params)}
	idx, err := c.bc.AddConstant(value.FromFunction(f))
	if err != nil {
		c.errorf(fn.Span, "%v", err)
		return
	}

	over := c.bc.NewLabel()
	c.emitJump(bytecode.OpJump, over, fn.Span)
	entry := c.bc.Len()

	outer := c.fn
	c.fn = newFuncState(fn.Name, outer, false)
	c.fn.nested = !global
	c.fn.self = f
	c.fn.selfConst = idx

	c.beginScope()
	for _, p := range fn.Params {
		c.declareLocal(p, true, fn.Span)
	}
	if fn.Body != nil {
		c.compileBlock(fn.Body)
	}
	c.emit(bytecode.OpNull, fn.Span)
	c.emit(bytecode.OpReturn, fn.Span)
	c.endScope()

	f.LocalCount = c.fn.maxSlot
	f.Entry = entry
	c.fn = outer

	c.mark(over, fn.Span)
	c.emitU16(bytecode.OpConstant, idx, fn.Span)
	if global {
		c.emitGlobal(bytecode.OpSetGlobal, fn.Name, fn.Span)
	} else {
		slot := c.declareLocal(fn.Name, false, fn.Span)
		c.emitU16(bytecode.OpSetLocal, uint16(slot), fn.Span)
	}
	c.emit(bytecode.OpPop, fn.Span)
}

// compileMatch stores the subject in a hidden slot and tests the arms in
// order:
//
//	<subject> SetLocal S Pop
//	GetLocal S <pattern> Equal JumpIfFalse NEXT <body> Jump END NEXT: ...
//	END:
func (c *Compiler) compileMatch(s *ast.Match) {
	c.compileExpr(s.Subject)
	slot := uint16(c.hiddenLocal(s.Span))
	c.emitU16(bytecode.OpSetLocal, slot, s.Span)
	c.emit(bytecode.OpPop, s.Span)

	end := c.bc.NewLabel()
	for i, arm := range s.Arms {
		if arm.Pattern == nil {
			c.compileBlock(arm.Body)
			if i != len(s.Arms)-1 {
				c.errorf(s.Arms[i+1].Span, "unreachable match arm after wildcard")
			}
			break
		}
		next := c.bc.NewLabel()
		c.emitU16(bytecode.OpGetLocal, slot, arm.Span)
		c.compileExpr(arm.Pattern)
		c.emit(bytecode.OpEqual, arm.Span)
		c.emitJump(bytecode.OpJumpIfFalse, next, arm.Span)
		c.compileBlock(arm.Body)
		c.emitJump(bytecode.OpJump, end, arm.Span)
		c.mark(next, arm.Span)
	}
	c.mark(end, s.Span)
}
