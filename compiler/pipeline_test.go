package compiler_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/compiler"
	"github.com/atlas-lang/atlas/security"
	"github.com/atlas-lang/atlas/stdlib"
	"github.com/atlas-lang/atlas/validator"
	"github.com/atlas-lang/atlas/value"
	"github.com/atlas-lang/atlas/vm"
)

// program is one entry of the end-to-end corpus. want is checked when err
// is false; kind when err is true.
type program struct {
	name  string
	stmts []ast.Stmt
	want  value.Value
	err   bool
	kind  vm.ErrorKind
	out   string
}

func corpus() []program {
	i, j, n, x := ast.Ident("i"), ast.Ident("j"), ast.Ident("n"), ast.Ident("x")
	num := ast.Num
	bin := ast.Bin

	return []program{
		{
			name:  "precedence",
			stmts: []ast.Stmt{ast.Expression(bin(ast.Add, num(1), bin(ast.Mul, num(2), num(3))))},
			want:  value.Number(7),
		},
		{
			name:  "concat",
			stmts: []ast.Stmt{ast.Expression(bin(ast.Add, ast.Str("ab"), ast.Str("cd")))},
			want:  value.String("abcd"),
		},
		{
			name: "while",
			stmts: []ast.Stmt{
				ast.Var("i", num(0)),
				ast.Loop(bin(ast.Less, i, num(3)), ast.Expression(ast.SetVar("i", bin(ast.Add, i, num(1))))),
				ast.Expression(i),
			},
			want: value.Number(3),
		},
		{
			name: "for with continue and break",
			stmts: []ast.Stmt{
				ast.Var("sum", num(0)),
				&ast.For{
					Init: ast.Var("j", num(0)),
					Cond: bin(ast.Less, j, num(10)),
					Step: ast.SetVar("j", bin(ast.Add, j, num(1))),
					Body: ast.Blk(
						ast.IfElse(bin(ast.Equal, j, num(5)), ast.Blk(&ast.Continue{}), nil),
						ast.IfElse(bin(ast.Equal, j, num(8)), ast.Blk(&ast.Break{}), nil),
						ast.Expression(ast.SetVar("sum", bin(ast.Add, ast.Ident("sum"), j))),
					),
				},
				ast.Expression(ast.Ident("sum")),
			},
			want: value.Number(23),
		},
		{
			name: "recursion",
			stmts: []ast.Stmt{
				ast.Func("fib", []string{"n"},
					ast.IfElse(bin(ast.Less, n, num(2)), ast.Blk(ast.Ret(n)), nil),
					ast.Ret(bin(ast.Add,
						ast.CallName("fib", bin(ast.Sub, n, num(1))),
						ast.CallName("fib", bin(ast.Sub, n, num(2)))))),
				ast.Expression(ast.CallName("fib", num(10))),
			},
			want: value.Number(55),
		},
		{
			name: "nested function",
			stmts: []ast.Stmt{
				ast.Func("outer", nil,
					ast.Func("tri", []string{"n"},
						ast.IfElse(bin(ast.Equal, n, num(0)), ast.Blk(ast.Ret(num(0))), nil),
						ast.Ret(bin(ast.Add, n, ast.CallName("tri", bin(ast.Sub, n, num(1)))))),
					ast.Ret(ast.CallName("tri", num(4)))),
				ast.Expression(ast.CallName("outer")),
			},
			want: value.Number(10),
		},
		{
			name: "array aliasing",
			stmts: []ast.Stmt{
				ast.Var("a", ast.Arr(num(1), num(2))),
				ast.Var("b", ast.Ident("a")),
				ast.Expression(ast.Set(ast.Idx(ast.Ident("b"), num(0)), num(9))),
				ast.Expression(bin(ast.Add, ast.Idx(ast.Ident("a"), num(0)), ast.Idx(ast.Ident("a"), num(1)))),
			},
			want: value.Number(11),
		},
		{
			name: "match",
			stmts: []ast.Stmt{
				ast.Var("r", num(0)),
				&ast.Match{Subject: num(2), Arms: []ast.MatchArm{
					{Pattern: num(1), Body: ast.Blk(ast.Expression(ast.SetVar("r", num(10))))},
					{Pattern: num(2), Body: ast.Blk(ast.Expression(ast.SetVar("r", num(20))))},
					{Body: ast.Blk(ast.Expression(ast.SetVar("r", num(30))))},
				}},
				ast.Expression(ast.Ident("r")),
			},
			want: value.Number(20),
		},
		{
			name: "match wildcard",
			stmts: []ast.Stmt{
				ast.Var("r", num(0)),
				&ast.Match{Subject: ast.Str("z"), Arms: []ast.MatchArm{
					{Pattern: ast.Str("a"), Body: ast.Blk(ast.Expression(ast.SetVar("r", num(1))))},
					{Body: ast.Blk(ast.Expression(ast.SetVar("r", num(2))))},
				}},
				ast.Expression(ast.Ident("r")),
			},
			want: value.Number(2),
		},
		{
			name:  "short circuit",
			stmts: []ast.Stmt{ast.Expression(bin(ast.Or, ast.Null(), bin(ast.And, num(1), ast.Str("x"))))},
			want:  value.String("x"),
		},
		{
			name: "dead code after return",
			stmts: []ast.Stmt{
				ast.Func("f", nil, ast.Ret(num(1)), ast.Expression(ast.CallName("print", num(2)))),
				ast.Expression(ast.CallName("f")),
			},
			want: value.Number(1),
		},
		{
			name: "else if chain",
			stmts: []ast.Stmt{
				ast.Var("x", num(5)),
				ast.Var("s", ast.Str("")),
				ast.IfElse(bin(ast.Less, x, num(3)),
					ast.Blk(ast.Expression(ast.SetVar("s", ast.Str("small")))),
					ast.IfElse(bin(ast.Less, x, num(10)),
						ast.Blk(ast.Expression(ast.SetVar("s", ast.Str("medium")))),
						ast.Blk(ast.Expression(ast.SetVar("s", ast.Str("large")))))),
				ast.Expression(ast.Ident("s")),
			},
			want: value.String("medium"),
		},
		{
			name:  "double negation",
			stmts: []ast.Stmt{ast.Expression(bin(ast.Equal, ast.Bang(ast.Bang(ast.Bool(true))), ast.Bang(bin(ast.Less, num(2), num(1)))))},
			want:  value.True,
		},
		{
			name: "print",
			stmts: []ast.Stmt{
				ast.Expression(ast.CallName("print", ast.Str("a"), bin(ast.Add, num(1), num(1)))),
				ast.Expression(ast.CallName("len", ast.Arr(num(1), num(2), num(3)))),
			},
			want: value.Number(3),
			out:  "a 2\n",
		},
		{
			name: "block locals",
			stmts: []ast.Stmt{
				ast.Var("out", num(0)),
				ast.Blk(
					ast.Var("a", num(2)),
					ast.Let("b", bin(ast.Mul, ast.Ident("a"), ast.Ident("a"))),
					ast.Expression(ast.SetVar("out", ast.Ident("b"))),
				),
				ast.Expression(ast.Ident("out")),
			},
			want: value.Number(4),
		},
		{
			name:  "float arithmetic",
			stmts: []ast.Stmt{ast.Let("k", bin(ast.Div, num(10), num(4))), ast.Expression(bin(ast.Mod, ast.Ident("k"), num(2)))},
			want:  value.Number(0.5),
		},
		{
			name: "search loop",
			stmts: []ast.Stmt{
				ast.Func("find", []string{"xs", "x"},
					ast.Var("i", num(0)),
					ast.Loop(bin(ast.Less, i, ast.CallName("len", ast.Ident("xs"))),
						ast.IfElse(bin(ast.Equal, ast.Idx(ast.Ident("xs"), i), x), ast.Blk(ast.Ret(i)), nil),
						ast.Expression(ast.SetVar("i", bin(ast.Add, i, num(1))))),
					ast.Ret(ast.Neg(num(1)))),
				ast.Expression(ast.CallName("find", ast.Arr(num(5), num(6), num(7)), num(7))),
			},
			want: value.Number(2),
		},
		{
			name:  "type error",
			stmts: []ast.Stmt{ast.Expression(bin(ast.Add, num(1), ast.Str("s")))},
			err:   true,
			kind:  vm.TypeError,
		},
		{
			name:  "index out of bounds",
			stmts: []ast.Stmt{ast.Expression(ast.Idx(ast.Arr(num(1)), num(3)))},
			err:   true,
			kind:  vm.IndexOutOfBounds,
		},
		{
			name: "error inside function",
			stmts: []ast.Stmt{
				ast.Func("bad", []string{"v"}, ast.Ret(ast.Neg(ast.Ident("v")))),
				ast.Expression(ast.CallName("bad", ast.Str("q"))),
			},
			err:  true,
			kind: vm.TypeError,
		},
	}
}

type outcome struct {
	val  value.Value
	kind vm.ErrorKind
	err  bool
	out  string
}

func execute(t *testing.T, bc *bytecode.Bytecode) outcome {
	t.Helper()
	var buf bytes.Buffer
	m := vm.New(bc,
		vm.WithNatives(stdlib.New(stdlib.WithStdout(&buf))),
		vm.WithSecurity(security.Permissive()),
		vm.WithValidation(vm.ValidationStrict),
		vm.WithMaxInstructions(1_000_000),
	)
	val, _, err := m.Run()
	if err != nil {
		var re *vm.RuntimeError
		if !errors.As(err, &re) {
			t.Fatalf("error %T is not a *vm.RuntimeError", err)
		}
		if re.Kind == vm.InvalidBytecode {
			t.Fatalf("compiler output rejected: %v", re.Cause)
		}
		return outcome{kind: re.Kind, err: true, out: buf.String()}
	}
	return outcome{val: val, out: buf.String()}
}

func TestPipelineCorpus(t *testing.T) {
	builtins := stdlib.New()
	for _, p := range corpus() {
		t.Run(p.name, func(t *testing.T) {
			prog := ast.Prog(p.stmts...)
			plain, err := compiler.New(compiler.WithBuiltins(builtins)).Compile(prog)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			opt, err := compiler.New(compiler.WithBuiltins(builtins), compiler.WithOptimization()).Compile(prog)
			if err != nil {
				t.Fatalf("Compile optimized: %v", err)
			}

			for _, bc := range []*bytecode.Bytecode{plain, opt} {
				if findings := validator.Validate(bc); len(findings) > 0 {
					t.Fatalf("validator findings: %v\n%s", findings, bytecode.Disassemble(bc))
				}
			}
			if len(opt.Code) > len(plain.Code) {
				t.Errorf("optimized code grew from %d to %d bytes", len(plain.Code), len(opt.Code))
			}

			a, b := execute(t, plain), execute(t, opt)
			if a.err != b.err || a.kind != b.kind || a.out != b.out || !value.Equal(a.val, b.val) {
				t.Fatalf("optimized run differs:\nplain %+v\nopt   %+v\n%s", a, b, bytecode.Disassemble(opt))
			}
			if p.err {
				if !a.err || a.kind != p.kind {
					t.Errorf("outcome = %+v, want %v", a, p.kind)
				}
				return
			}
			if a.err {
				t.Fatalf("run failed with %v", a.kind)
			}
			if !value.Equal(a.val, p.want) {
				t.Errorf("result = %v, want %v", a.val, p.want)
			}
			if a.out != p.out {
				t.Errorf("output = %q, want %q", a.out, p.out)
			}
		})
	}
}

func TestDeadCodeShrinksFunction(t *testing.T) {
	prog := ast.Prog(
		ast.Func("f", nil, ast.Ret(ast.Num(1)), ast.Expression(ast.CallName("print", ast.Num(2)))),
	)
	plain, err := compiler.New().Compile(prog)
	if err != nil {
		t.Fatal(err)
	}
	opt, err := compiler.New(compiler.WithOptimization()).Compile(prog)
	if err != nil {
		t.Fatal(err)
	}
	if len(opt.Code) >= len(plain.Code) {
		t.Errorf("optimized %d bytes, unoptimized %d", len(opt.Code), len(plain.Code))
	}
	for _, fn := range opt.Functions() {
		if fn.Entry < 0 || fn.Entry >= len(opt.Code) {
			t.Errorf("%s entry %d outside code", fn.Name, fn.Entry)
		}
	}
}
