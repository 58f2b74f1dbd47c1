package bytecode

import (
	"errors"
	"math"
	"sort"

	"github.com/atlas-lang/atlas/value"
)

var (
	ErrConstantPoolFull = errors.New("bytecode: constant pool full")
	ErrJumpTooFar       = errors.New("bytecode: jump distance exceeds 16 bits")
	ErrLabelResolved    = errors.New("bytecode: label already resolved")
)

// MaxConstants is the number of entries a 16-bit index can address.
const MaxConstants = math.MaxUint16 + 1

// Span is a source range attached to instructions for diagnostics.
type Span struct {
	Start  int // byte offset of the first character
	End    int // byte offset past the last character
	Line   int // 1-based line of Start
	Column int // 1-based column of Start
}

// DebugEntry maps the instruction at Offset (and everything up to the next
// entry) to a source span.
type DebugEntry struct {
	Offset int
	Span   Span
}

// Bytecode is one compilation unit: the instruction stream, its constant pool
// and debug table. It is built append-only by the compiler and treated as
// immutable afterwards.
type Bytecode struct {
	Code       []byte
	Constants  []value.Value
	Debug      []DebugEntry // sparse, ordered by Offset
	LocalCount int          // slots of the top-level frame

	dedup map[constKey]uint16
}

type constKey struct {
	kind value.Kind
	bits uint64
	str  string
}

// New creates an empty container.
func New() *Bytecode {
	return &Bytecode{Code: make([]byte, 0, 64)}
}

// Len returns the instruction stream length in bytes.
func (b *Bytecode) Len() int { return len(b.Code) }

// AddConstant appends v to the constant pool and returns its index. Scalar
// constants are deduplicated.
func (b *Bytecode) AddConstant(v value.Value) (uint16, error) {
	key, ok := keyOf(v)
	if ok {
		if b.dedup == nil {
			b.dedup = make(map[constKey]uint16)
		}
		if idx, found := b.dedup[key]; found {
			return idx, nil
		}
	}
	if len(b.Constants) >= MaxConstants {
		return 0, ErrConstantPoolFull
	}
	idx := uint16(len(b.Constants))
	b.Constants = append(b.Constants, v)
	if ok {
		b.dedup[key] = idx
	}
	return idx, nil
}

func keyOf(v value.Value) (constKey, bool) {
	switch v.Kind() {
	case value.KindNull:
		return constKey{kind: value.KindNull}, true
	case value.KindBool:
		k := constKey{kind: value.KindBool}
		if v.AsBool() {
			k.bits = 1
		}
		return k, true
	case value.KindNumber:
		return constKey{kind: value.KindNumber, bits: math.Float64bits(v.AsNumber())}, true
	case value.KindString:
		return constKey{kind: value.KindString, str: v.AsString()}, true
	}
	return constKey{}, false
}

// Emit appends an opcode, records span for it and returns its offset.
// Operands follow through EmitU8, EmitU16 or EmitI16.
func (b *Bytecode) Emit(op Opcode, span Span) int {
	offset := len(b.Code)
	b.Code = append(b.Code, byte(op))
	if n := len(b.Debug); n == 0 || b.Debug[n-1].Span != span {
		b.Debug = append(b.Debug, DebugEntry{Offset: offset, Span: span})
	}
	return offset
}

// EmitU8 appends a single byte operand.
func (b *Bytecode) EmitU8(v uint8) {
	b.Code = append(b.Code, v)
}

// EmitU16 appends a 16-bit operand (little-endian).
func (b *Bytecode) EmitU16(v uint16) {
	b.Code = append(b.Code, byte(v), byte(v>>8))
}

// EmitI16 appends a signed 16-bit operand (little-endian).
func (b *Bytecode) EmitI16(v int16) {
	b.EmitU16(uint16(v))
}

// PatchI16 overwrites the two operand bytes at pos.
func (b *Bytecode) PatchI16(pos int, v int16) {
	b.Code[pos] = byte(v)
	b.Code[pos+1] = byte(uint16(v) >> 8)
}

// SpanAt returns the span covering the instruction at offset.
func (b *Bytecode) SpanAt(offset int) (Span, bool) {
	i := sort.Search(len(b.Debug), func(i int) bool { return b.Debug[i].Offset > offset })
	if i == 0 {
		return Span{}, false
	}
	return b.Debug[i-1].Span, true
}

// Clone returns a deep copy of the code and tables. Constants are values and
// share any referenced functions, which are never mutated. Scalar constants
// added to the clone reuse existing pool entries.
func (b *Bytecode) Clone() *Bytecode {
	c := &Bytecode{
		Code:       append([]byte(nil), b.Code...),
		Constants:  append([]value.Value(nil), b.Constants...),
		Debug:      append([]DebugEntry(nil), b.Debug...),
		LocalCount: b.LocalCount,
	}
	for i, v := range c.Constants {
		if key, ok := keyOf(v); ok {
			if c.dedup == nil {
				c.dedup = make(map[constKey]uint16)
			}
			if _, found := c.dedup[key]; !found {
				c.dedup[key] = uint16(i)
			}
		}
	}
	return c
}

// Functions returns every function referenced from the constant pool.
func (b *Bytecode) Functions() []*value.Function {
	var fns []*value.Function
	for _, c := range b.Constants {
		if f := c.AsFunction(); f != nil {
			fns = append(fns, f)
		}
	}
	return fns
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward reference in bytecode.
type Label struct {
	resolved bool
	position int   // target once resolved
	refs     []int // operand positions waiting for the target
}

// NewLabel creates an unresolved label.
func (b *Bytecode) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// EmitJump emits Jump or JumpIfFalse towards label. Forward references get a
// placeholder operand patched by Mark.
func (b *Bytecode) EmitJump(op Opcode, label *Label, span Span) error {
	b.Emit(op, span)
	if label.resolved {
		offset := label.position - (len(b.Code) + 2)
		if offset < math.MinInt16 {
			return ErrJumpTooFar
		}
		b.EmitI16(int16(offset))
		return nil
	}
	label.refs = append(label.refs, len(b.Code))
	b.EmitI16(0)
	return nil
}

// Mark resolves a label to the current position and patches every forward
// reference to it.
func (b *Bytecode) Mark(label *Label) error {
	if label.resolved {
		return ErrLabelResolved
	}
	label.resolved = true
	label.position = len(b.Code)

	for _, ref := range label.refs {
		offset := label.position - (ref + 2) // offset from after the operand
		if offset > math.MaxInt16 {
			return ErrJumpTooFar
		}
		b.PatchI16(ref, int16(offset))
	}
	label.refs = nil
	return nil
}

// EmitLoop emits a backward jump to the absolute offset target.
func (b *Bytecode) EmitLoop(target int, span Span) error {
	b.Emit(OpLoop, span)
	distance := len(b.Code) + 2 - target
	if distance > math.MaxInt16 {
		return ErrJumpTooFar
	}
	b.EmitI16(int16(distance))
	return nil
}
