// Package ast defines the typed, bound syntax tree handed to the bytecode
// compiler. Parsing, binding and type checking happen upstream; this package
// only fixes the shape of their output.
package ast

// ---------------------------------------------------------------------------
// AST: nodes consumed by the bytecode compiler
// ---------------------------------------------------------------------------

// Span represents a range in source code.
type Span struct {
	Start  int // byte offset
	End    int // byte offset past the end
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Pos() Span
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Program is one compilation unit.
type Program struct {
	Module     string // module name used in diagnostics
	Statements []Stmt
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// NumberLiteral is a numeric literal. Atlas numbers are float64.
type NumberLiteral struct {
	Span  Span
	Value float64
}

// StringLiteral is a string literal.
type StringLiteral struct {
	Span  Span
	Value string
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	Span  Span
	Value bool
}

// NullLiteral is null.
type NullLiteral struct {
	Span Span
}

// Identifier references a variable, function or native by name.
type Identifier struct {
	Span Span
	Name string
}

// UnaryOp enumerates prefix operators.
type UnaryOp int

const (
	Negate UnaryOp = iota // -x
	Not                   // !x
)

// Unary is a prefix operation.
type Unary struct {
	Span    Span
	Op      UnaryOp
	Operand Expr
}

// BinaryOp enumerates infix operators, including the short-circuit ones.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Equal
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
	And // &&
	Or  // ||
)

var binaryNames = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%",
	Equal: "==", NotEqual: "!=", Less: "<", LessEqual: "<=",
	Greater: ">", GreaterEqual: ">=", And: "&&", Or: "||",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return "?"
}

// Binary is an infix operation.
type Binary struct {
	Span  Span
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Call invokes a callee value with arguments.
type Call struct {
	Span   Span
	Callee Expr
	Args   []Expr
}

// ArrayLiteral builds a new array.
type ArrayLiteral struct {
	Span     Span
	Elements []Expr
}

// Index reads target[index].
type Index struct {
	Span   Span
	Target Expr
	Index  Expr
}

// Assign stores into an Identifier or Index target and yields the value.
type Assign struct {
	Span   Span
	Target Expr
	Value  Expr
}

func (n *NumberLiteral) Pos() Span { return n.Span }
func (n *StringLiteral) Pos() Span { return n.Span }
func (n *BoolLiteral) Pos() Span   { return n.Span }
func (n *NullLiteral) Pos() Span   { return n.Span }
func (n *Identifier) Pos() Span    { return n.Span }
func (n *Unary) Pos() Span         { return n.Span }
func (n *Binary) Pos() Span        { return n.Span }
func (n *Call) Pos() Span          { return n.Span }
func (n *ArrayLiteral) Pos() Span  { return n.Span }
func (n *Index) Pos() Span         { return n.Span }
func (n *Assign) Pos() Span        { return n.Span }

func (*NumberLiteral) expr() {}
func (*StringLiteral) expr() {}
func (*BoolLiteral) expr()   {}
func (*NullLiteral) expr()   {}
func (*Identifier) expr()    {}
func (*Unary) expr()         {}
func (*Binary) expr()        {}
func (*Call) expr()          {}
func (*ArrayLiteral) expr()  {}
func (*Index) expr()         {}
func (*Assign) expr()        {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// VarDecl declares a variable. Let bindings (Mutable false) reject assignment.
type VarDecl struct {
	Span    Span
	Name    string
	Mutable bool
	Init    Expr // nil initializes to null
}

// ExprStmt evaluates an expression for its effect.
type ExprStmt struct {
	Span Span
	Expr Expr
}

// Block introduces a lexical scope.
type Block struct {
	Span       Span
	Statements []Stmt
}

// If is a two-way branch. Else may be nil.
type If struct {
	Span Span
	Cond Expr
	Then *Block
	Else Stmt // *Block or *If
}

// While loops while Cond is truthy.
type While struct {
	Span Span
	Cond Expr
	Body *Block
}

// For is a C-style loop. Any of Init, Cond and Step may be nil.
type For struct {
	Span Span
	Init Stmt
	Cond Expr
	Step Expr
	Body *Block
}

// Break leaves the innermost loop.
type Break struct {
	Span Span
}

// Continue jumps to the next iteration of the innermost loop.
type Continue struct {
	Span Span
}

// Return leaves the current function. Value may be nil.
type Return struct {
	Span  Span
	Value Expr
}

// FunctionDecl declares a named function.
type FunctionDecl struct {
	Span   Span
	Name   string
	Params []string
	Body   *Block
}

// MatchArm is one arm of a match. A nil Pattern is the wildcard arm.
type MatchArm struct {
	Span    Span
	Pattern Expr // literal expression compared with ==
	Body    *Block
}

// Match selects the first arm whose pattern equals the subject.
type Match struct {
	Span    Span
	Subject Expr
	Arms    []MatchArm
}

func (n *VarDecl) Pos() Span      { return n.Span }
func (n *ExprStmt) Pos() Span     { return n.Span }
func (n *Block) Pos() Span        { return n.Span }
func (n *If) Pos() Span           { return n.Span }
func (n *While) Pos() Span        { return n.Span }
func (n *For) Pos() Span          { return n.Span }
func (n *Break) Pos() Span        { return n.Span }
func (n *Continue) Pos() Span     { return n.Span }
func (n *Return) Pos() Span       { return n.Span }
func (n *FunctionDecl) Pos() Span { return n.Span }
func (n *Match) Pos() Span        { return n.Span }

func (*VarDecl) stmt()      {}
func (*ExprStmt) stmt()     {}
func (*Block) stmt()        {}
func (*If) stmt()           {}
func (*While) stmt()        {}
func (*For) stmt()          {}
func (*Break) stmt()        {}
func (*Continue) stmt()     {}
func (*Return) stmt()       {}
func (*FunctionDecl) stmt() {}
func (*Match) stmt()        {}
