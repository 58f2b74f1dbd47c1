package value

// Function is a reference to a compiled function body inside a Bytecode
// instruction stream. Calls resolve it from the stack at run time.
type Function struct {
	Name       string
	Arity      int
	LocalCount int // parameters plus locals
	Entry      int // absolute offset of the first body instruction
}

// WithEntry returns a copy of f pointing at a new entry offset. The
// optimizer uses it when instruction offsets move.
func (f *Function) WithEntry(entry int) *Function {
	c := *f
	c.Entry = entry
	return &c
}

// NativeFunc implements a native function. args must not be retained.
type NativeFunc func(args []Value) (Value, error)

// Native is a host function reachable from Atlas code by name.
type Native struct {
	Name  string
	Arity int // -1 accepts any number of arguments

	// Capability names the permission the security context must grant
	// before the VM invokes Fn. Empty means no check.
	Capability string

	Fn NativeFunc
}
