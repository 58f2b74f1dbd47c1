package stdlib

import (
	"bytes"
	"errors"
	"testing"

	"github.com/atlas-lang/atlas/security"
	"github.com/atlas-lang/atlas/value"
)

func call(t *testing.T, tab *Table, name string, args ...value.Value) (value.Value, error) {
	t.Helper()
	n, ok := tab.Lookup(name)
	if !ok {
		t.Fatalf("native %q missing", name)
	}
	if n.Arity >= 0 && n.Arity != len(args) {
		t.Fatalf("%s takes %d arguments", name, n.Arity)
	}
	return n.Fn(args)
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	tab := New(WithStdout(&out))
	arr := value.FromArray(value.NewArray([]value.Value{value.Number(1), value.String("x")}))
	if _, err := call(t, tab, "print", value.String("hi"), value.Number(2.5), arr, value.Null); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "hi 2.5 [1, \"x\"] null\n" {
		t.Errorf("output = %q", got)
	}
	if n, _ := tab.Lookup("print"); n.Capability != security.Stdout {
		t.Errorf("print capability = %q", n.Capability)
	}
}

func TestArrayNatives(t *testing.T) {
	tab := New()
	arr := value.FromArray(value.NewArray(nil))
	if _, err := call(t, tab, "push", arr, value.Number(7)); err != nil {
		t.Fatal(err)
	}
	if n, _ := call(t, tab, "len", arr); n.AsNumber() != 1 {
		t.Errorf("len = %v", n)
	}
	if v, err := call(t, tab, "pop", arr); err != nil || v.AsNumber() != 7 {
		t.Errorf("pop = %v, %v", v, err)
	}
	if _, err := call(t, tab, "pop", arr); !errors.Is(err, ErrBadArgument) {
		t.Errorf("pop on empty: %v", err)
	}
	if _, err := call(t, tab, "push", value.Number(1), value.Null); !errors.Is(err, ErrBadArgument) {
		t.Errorf("push on number: %v", err)
	}
}

func TestScalarNatives(t *testing.T) {
	tab := New()
	tests := []struct {
		name string
		arg  value.Value
		want value.Value
	}{
		{"len", value.String("héllo"), value.Number(5)},
		{"str", value.Number(3), value.String("3")},
		{"str", value.String("s"), value.String("s")},
		{"type_of", value.True, value.String("bool")},
		{"sqrt", value.Number(9), value.Number(3)},
		{"floor", value.Number(-1.5), value.Number(-2)},
	}
	for _, tt := range tests {
		got, err := call(t, tab, tt.name, tt.arg)
		if err != nil {
			t.Errorf("%s(%v): %v", tt.name, tt.arg, err)
			continue
		}
		if !value.Equal(got, tt.want) {
			t.Errorf("%s(%v) = %v, want %v", tt.name, tt.arg, got, tt.want)
		}
	}
	if _, err := call(t, tab, "sqrt", value.String("x")); !errors.Is(err, ErrBadArgument) {
		t.Errorf("sqrt(string): %v", err)
	}
}

func TestRegisterAndNames(t *testing.T) {
	tab := Empty()
	if tab.Has("len") {
		t.Error("empty table has len")
	}
	tab.Register(&value.Native{Name: "b", Fn: func([]value.Value) (value.Value, error) { return value.Null, nil }})
	tab.Register(&value.Native{Name: "a", Fn: func([]value.Value) (value.Value, error) { return value.Null, nil }})
	if got := tab.Names(); len(got) != 2 || got[0] != "a" {
		t.Errorf("Names = %v", got)
	}
}
