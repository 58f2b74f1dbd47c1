// Package value defines the runtime values shared by the Atlas compiler,
// optimizer and virtual machine.
package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the dynamic type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindFunction
	KindNative
)

var kindNames = [...]string{
	KindNull:     "null",
	KindBool:     "bool",
	KindNumber:   "number",
	KindString:   "string",
	KindArray:    "array",
	KindFunction: "function",
	KindNative:   "native",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged Atlas value. The zero Value is null.
//
// Values are small and copied freely. Arrays, functions and natives are held
// by pointer, so copies of an array Value alias the same elements.
type Value struct {
	kind Kind
	num  float64 // Number, and Bool as 0/1
	str  string
	ref  any // *Array, *Function, *Native
}

// Null is the null value.
var Null = Value{}

// Pre-built booleans.
var (
	True  = Value{kind: KindBool, num: 1}
	False = Value{kind: KindBool}
)

// Number returns a number value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns the boolean value for b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromArray wraps an existing array without copying it.
func FromArray(a *Array) Value { return Value{kind: KindArray, ref: a} }

// FromFunction wraps a compiled function reference.
func FromFunction(f *Function) Value { return Value{kind: KindFunction, ref: f} }

// FromNative wraps a native function.
func FromNative(n *Native) Value { return Value{kind: KindNative, ref: n} }

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsArray() bool  { return v.kind == KindArray }

// IsCallable reports whether v can be the callee of a Call instruction.
func (v Value) IsCallable() bool { return v.kind == KindFunction || v.kind == KindNative }

// AsNumber returns the float payload. It is only meaningful for numbers.
func (v Value) AsNumber() float64 { return v.num }

// AsBool returns the boolean payload. It is only meaningful for booleans.
func (v Value) AsBool() bool { return v.num != 0 }

// AsString returns the string payload. It is only meaningful for strings.
func (v Value) AsString() string { return v.str }

// AsArray returns the shared array, or nil when v is not an array.
func (v Value) AsArray() *Array {
	a, _ := v.ref.(*Array)
	return a
}

// AsFunction returns the function reference, or nil when v is not a function.
func (v Value) AsFunction() *Function {
	f, _ := v.ref.(*Function)
	return f
}

// AsNative returns the native, or nil when v is not a native.
func (v Value) AsNative() *Native {
	n, _ := v.ref.(*Native)
	return n
}

// Truthy reports whether v counts as true in a condition. Only false and
// null are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.num != 0
	}
	return true
}

// String renders v the way print shows it.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb, 0)
	return sb.String()
}

// maxFormatDepth stops printing of self-referencing arrays.
const maxFormatDepth = 32

func (v Value) format(sb *strings.Builder, depth int) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.AsBool()))
	case KindNumber:
		sb.WriteString(FormatNumber(v.num))
	case KindString:
		sb.WriteString(v.str)
	case KindArray:
		if depth >= maxFormatDepth {
			sb.WriteString("[...]")
			return
		}
		sb.WriteByte('[')
		for i, e := range v.AsArray().Elements() {
			if i > 0 {
				sb.WriteString(", ")
			}
			if e.kind == KindString {
				sb.WriteString(strconv.Quote(e.str))
				continue
			}
			e.format(sb, depth+1)
		}
		sb.WriteByte(']')
	case KindFunction:
		sb.WriteString("<fn " + v.AsFunction().Name + ">")
	case KindNative:
		sb.WriteString("<native " + v.AsNative().Name + ">")
	}
}

// FormatNumber prints integral numbers without a fractional part.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	case n == math.Trunc(n) && math.Abs(n) < 1e15:
		return strconv.FormatFloat(n, 'f', 0, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
