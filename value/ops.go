package value

import (
	"errors"
	"fmt"
	"math"
)

// ErrTypeMismatch is wrapped by every operator error caused by operand types.
var ErrTypeMismatch = errors.New("type mismatch")

func mismatch(op string, a, b Value) error {
	return fmt.Errorf("%w: cannot apply %s to %s and %s", ErrTypeMismatch, op, a.kind, b.kind)
}

// Add adds two numbers or concatenates two strings.
func Add(a, b Value) (Value, error) {
	switch {
	case a.kind == KindNumber && b.kind == KindNumber:
		return Number(a.num + b.num), nil
	case a.kind == KindString && b.kind == KindString:
		return String(a.str + b.str), nil
	}
	return Null, mismatch("+", a, b)
}

func Sub(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch("-", a, b)
	}
	return Number(a.num - b.num), nil
}

func Mul(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch("*", a, b)
	}
	return Number(a.num * b.num), nil
}

// Div follows IEEE-754: x/0 is ±Inf and 0/0 is NaN.
func Div(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch("/", a, b)
	}
	return Number(a.num / b.num), nil
}

// Mod is the truncated remainder (math.Mod); a zero divisor yields NaN.
func Mod(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch("%", a, b)
	}
	return Number(math.Mod(a.num, b.num)), nil
}

func Less(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch("<", a, b)
	}
	return Bool(a.num < b.num), nil
}

func LessEqual(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch("<=", a, b)
	}
	return Bool(a.num <= b.num), nil
}

func Greater(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch(">", a, b)
	}
	return Bool(a.num > b.num), nil
}

func GreaterEqual(a, b Value) (Value, error) {
	if a.kind != KindNumber || b.kind != KindNumber {
		return Null, mismatch(">=", a, b)
	}
	return Bool(a.num >= b.num), nil
}

// EqualOp is Equal shaped as a binary operator.
func EqualOp(a, b Value) (Value, error) { return Bool(Equal(a, b)), nil }

// NotEqualOp is the negation of EqualOp.
func NotEqualOp(a, b Value) (Value, error) { return Bool(!Equal(a, b)), nil }

// Negate flips the sign of a number.
func Negate(a Value) (Value, error) {
	if a.kind != KindNumber {
		return Null, fmt.Errorf("%w: cannot negate %s", ErrTypeMismatch, a.kind)
	}
	return Number(-a.num), nil
}

// Not inverts a boolean. Other kinds are rejected.
func Not(a Value) (Value, error) {
	if a.kind != KindBool {
		return Null, fmt.Errorf("%w: cannot apply ! to %s", ErrTypeMismatch, a.kind)
	}
	return Bool(!a.AsBool()), nil
}

// Equal reports language-level equality. Numbers compare by IEEE-754 (so
// NaN never equals itself), arrays by identity or element-wise equality.
func Equal(a, b Value) bool {
	return equal(a, b, 0)
}

func equal(a, b Value, depth int) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool, KindNumber:
		return a.num == b.num
	case KindString:
		return a.str == b.str
	case KindArray:
		x, y := a.AsArray(), b.AsArray()
		if x == y {
			return true
		}
		if depth >= maxFormatDepth || x.Len() != y.Len() {
			return false
		}
		for i := range x.elems {
			if !equal(x.elems[i], y.elems[i], depth+1) {
				return false
			}
		}
		return true
	case KindFunction:
		f, g := a.AsFunction(), b.AsFunction()
		return f == g || (f.Name == g.Name && f.Arity == g.Arity && f.Entry == g.Entry)
	case KindNative:
		return a.AsNative() == b.AsNative()
	}
	return false
}

// Identical is a stricter equality used by tests comparing two runs of the
// same program: NaN matches NaN and functions match by name and arity.
func Identical(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNumber:
		if math.IsNaN(a.num) && math.IsNaN(b.num) {
			return true
		}
		return a.num == b.num
	case KindArray:
		x, y := a.AsArray(), b.AsArray()
		if x.Len() != y.Len() {
			return false
		}
		for i := range x.elems {
			if !Identical(x.elems[i], y.elems[i]) {
				return false
			}
		}
		return true
	case KindFunction:
		f, g := a.AsFunction(), b.AsFunction()
		return f.Name == g.Name && f.Arity == g.Arity
	}
	return Equal(a, b)
}
