// Package stdlib provides the name to native function table the VM falls
// back to when a global is not defined by the program.
package stdlib

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/atlas-lang/atlas/security"
	"github.com/atlas-lang/atlas/value"
)

var ErrBadArgument = errors.New("bad argument")

// Table maps names to natives. It is read-only once handed to a VM.
type Table struct {
	natives map[string]*value.Native
}

// Option configures a Table.
type Option func(*config)

type config struct {
	stdout io.Writer
}

// WithStdout redirects print.
func WithStdout(w io.Writer) Option {
	return func(c *config) { c.stdout = w }
}

// New creates a table holding the standard natives.
func New(opts ...Option) *Table {
	cfg := config{stdout: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}

	t := Empty()
	t.Register(&value.Native{Name: "print", Arity: -1, Capability: security.Stdout, Fn: printTo(cfg.stdout)})
	t.Register(&value.Native{Name: "len", Arity: 1, Fn: length})
	t.Register(&value.Native{Name: "push", Arity: 2, Fn: push})
	t.Register(&value.Native{Name: "pop", Arity: 1, Fn: pop})
	t.Register(&value.Native{Name: "str", Arity: 1, Fn: str})
	t.Register(&value.Native{Name: "type_of", Arity: 1, Fn: typeOf})
	t.Register(&value.Native{Name: "sqrt", Arity: 1, Fn: numeric("sqrt", math.Sqrt)})
	t.Register(&value.Native{Name: "floor", Arity: 1, Fn: numeric("floor", math.Floor)})
	return t
}

// Empty creates a table with no natives.
func Empty() *Table {
	return &Table{natives: make(map[string]*value.Native)}
}

// Register adds or replaces a native.
func (t *Table) Register(n *value.Native) {
	t.natives[n.Name] = n
}

// Lookup finds a native by name.
func (t *Table) Lookup(name string) (*value.Native, bool) {
	n, ok := t.natives[name]
	return n, ok
}

// Has reports whether name is a native.
func (t *Table) Has(name string) bool {
	_, ok := t.natives[name]
	return ok
}

// Names lists the natives in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.natives))
	for name := range t.natives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Natives
// ---------------------------------------------------------------------------

func printTo(w io.Writer) value.NativeFunc {
	return func(args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		if _, err := fmt.Fprintln(w, strings.Join(parts, " ")); err != nil {
			return value.Null, err
		}
		return value.Null, nil
	}
}

func length(args []value.Value) (value.Value, error) {
	switch a := args[0]; a.Kind() {
	case value.KindArray:
		return value.Number(float64(a.AsArray().Len())), nil
	case value.KindString:
		return value.Number(float64(utf8.RuneCountInString(a.AsString()))), nil
	default:
		return value.Null, fmt.Errorf("len: %w: %s has no length", ErrBadArgument, a.Kind())
	}
}

func push(args []value.Value) (value.Value, error) {
	arr := args[0].AsArray()
	if arr == nil {
		return value.Null, fmt.Errorf("push: %w: expected array, got %s", ErrBadArgument, args[0].Kind())
	}
	arr.Append(args[1])
	return args[0], nil
}

func pop(args []value.Value) (value.Value, error) {
	arr := args[0].AsArray()
	if arr == nil {
		return value.Null, fmt.Errorf("pop: %w: expected array, got %s", ErrBadArgument, args[0].Kind())
	}
	v, ok := arr.Pop()
	if !ok {
		return value.Null, fmt.Errorf("pop: %w: empty array", ErrBadArgument)
	}
	return v, nil
}

func str(args []value.Value) (value.Value, error) {
	if args[0].IsString() {
		return args[0], nil
	}
	return value.String(args[0].String()), nil
}

func typeOf(args []value.Value) (value.Value, error) {
	return value.String(args[0].Kind().String()), nil
}

func numeric(name string, f func(float64) float64) value.NativeFunc {
	return func(args []value.Value) (value.Value, error) {
		if !args[0].IsNumber() {
			return value.Null, fmt.Errorf("%s: %w: expected number, got %s", name, ErrBadArgument, args[0].Kind())
		}
		return value.Number(f(args[0].AsNumber())), nil
	}
}
