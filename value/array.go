package value

// Array is a shared, mutable sequence. Every Value holding the same *Array
// observes mutations made through any of them.
type Array struct {
	elems []Value
}

// NewArray creates an array that takes ownership of elems.
func NewArray(elems []Value) *Array {
	return &Array{elems: elems}
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.elems) }

// Get returns the element at i and whether i was in range.
func (a *Array) Get(i int) (Value, bool) {
	if i < 0 || i >= len(a.elems) {
		return Null, false
	}
	return a.elems[i], true
}

// Set stores v at i, reporting false when i is out of range.
func (a *Array) Set(i int, v Value) bool {
	if i < 0 || i >= len(a.elems) {
		return false
	}
	a.elems[i] = v
	return true
}

// Append adds v at the end.
func (a *Array) Append(v Value) { a.elems = append(a.elems, v) }

// Pop removes and returns the last element.
func (a *Array) Pop() (Value, bool) {
	if len(a.elems) == 0 {
		return Null, false
	}
	v := a.elems[len(a.elems)-1]
	a.elems = a.elems[:len(a.elems)-1]
	return v, true
}

// Elements exposes the backing slice. Callers must not retain it across
// mutations.
func (a *Array) Elements() []Value { return a.elems }
