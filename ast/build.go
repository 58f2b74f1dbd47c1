package ast

// Shorthand constructors for hand-built trees. Nodes created here carry zero
// spans.

func Num(v float64) *NumberLiteral { return &NumberLiteral{Value: v} }
func Str(v string) *StringLiteral  { return &StringLiteral{Value: v} }
func Bool(v bool) *BoolLiteral     { return &BoolLiteral{Value: v} }
func Null() *NullLiteral           { return &NullLiteral{} }
func Ident(name string) *Identifier {
	return &Identifier{Name: name}
}

func Bin(op BinaryOp, l, r Expr) *Binary { return &Binary{Op: op, Left: l, Right: r} }
func Neg(x Expr) *Unary                  { return &Unary{Op: Negate, Operand: x} }
func Bang(x Expr) *Unary                 { return &Unary{Op: Not, Operand: x} }

func CallOf(callee Expr, args ...Expr) *Call { return &Call{Callee: callee, Args: args} }
func CallName(name string, args ...Expr) *Call {
	return &Call{Callee: Ident(name), Args: args}
}

func Arr(elems ...Expr) *ArrayLiteral      { return &ArrayLiteral{Elements: elems} }
func Idx(target, index Expr) *Index        { return &Index{Target: target, Index: index} }
func Set(target, val Expr) *Assign         { return &Assign{Target: target, Value: val} }
func SetVar(name string, val Expr) *Assign { return &Assign{Target: Ident(name), Value: val} }

func Var(name string, init Expr) *VarDecl { return &VarDecl{Name: name, Mutable: true, Init: init} }
func Let(name string, init Expr) *VarDecl { return &VarDecl{Name: name, Init: init} }
func Expression(e Expr) *ExprStmt         { return &ExprStmt{Expr: e} }
func Blk(stmts ...Stmt) *Block            { return &Block{Statements: stmts} }
func Ret(e Expr) *Return                  { return &Return{Value: e} }

func IfElse(cond Expr, then *Block, els Stmt) *If { return &If{Cond: cond, Then: then, Else: els} }
func Loop(cond Expr, body ...Stmt) *While         { return &While{Cond: cond, Body: Blk(body...)} }

func Func(name string, params []string, body ...Stmt) *FunctionDecl {
	return &FunctionDecl{Name: name, Params: params, Body: Blk(body...)}
}

// Prog wraps statements into a Program.
func Prog(stmts ...Stmt) *Program { return &Program{Module: "main", Statements: stmts} }
