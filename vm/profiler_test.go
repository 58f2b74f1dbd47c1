package vm

import (
	"testing"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

func TestProfilerHotThreshold(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 3

	var hot []string
	p.OnHot = func(fn *value.Function, profile *FunctionProfile) {
		hot = append(hot, fn.Name)
	}

	fn := &value.Function{Name: "f"}
	for i := 0; i < 5; i++ {
		became := p.RecordCall(fn)
		if became != (i == 2) {
			t.Errorf("call %d: RecordCall = %v", i+1, became)
		}
	}
	if len(hot) != 1 || hot[0] != "f" {
		t.Errorf("OnHot calls = %v, want [f]", hot)
	}
	if !p.IsHot(fn) || p.Profile(fn).Calls() != 5 {
		t.Errorf("profile = %+v", p.Profile(fn))
	}
	if p.RecordCall(nil) {
		t.Error("nil function became hot")
	}
}

func TestProfilerDuringRun(t *testing.T) {
	i := ast.Ident("i")
	bc := compile(t,
		ast.Func("tick", nil, ast.Ret(ast.Num(1))),
		ast.Var("i", ast.Num(0)),
		ast.Loop(ast.Bin(ast.Less, i, ast.Num(10)),
			ast.Expression(ast.SetVar("i", ast.Bin(ast.Add, i, ast.CallName("tick")))),
			ast.Expression(ast.CallName("len", ast.Str("ab"))),
		),
		ast.Expression(i),
	)
	p := NewProfiler()
	p.HotThreshold = 10
	var fired int
	p.OnHot = func(*value.Function, *FunctionProfile) { fired++ }

	if _, _, err := New(bc, WithNatives(nil), WithProfiler(p)).Run(); err == nil {
		t.Fatal("len resolved without natives")
	}
	p.Reset()

	wantNumber(t, run(t, bc, WithProfiler(p)), 10)
	if fired != 1 {
		t.Errorf("OnHot fired %d times, want 1", fired)
	}
	if got := p.OpcodeCount(bytecode.OpLoop); got != 10 {
		t.Errorf("LOOP count = %d, want 10", got)
	}
	if got := p.NativeCalls("len"); got != 10 {
		t.Errorf("len calls = %d, want 10", got)
	}
	top := p.TopFunctions(5)
	if len(top) != 1 || top[0].Name != "tick" {
		t.Errorf("TopFunctions = %v", top)
	}
	stats := p.Stats()
	if stats.Functions != 1 || stats.Calls != 10 || stats.HotFunctions != 1 || stats.Instructions == 0 {
		t.Errorf("stats = %+v", stats)
	}
	if hot := p.HotFunctions(); len(hot) != 1 {
		t.Errorf("HotFunctions = %v", hot)
	}
}
