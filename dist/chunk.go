// Package dist stores and transfers compiled Atlas bytecode. A unit is
// encoded as canonical CBOR and wrapped in a Chunk that carries the format
// version and the SHA-256 hash of the encoded unit.
package dist

// FormatVersion is the version written into every chunk.
const FormatVersion = 1

// Chunk is the file and wire envelope of one compiled unit.
type Chunk struct {
	Version uint8    `cbor:"1,keyasint"`
	Hash    [32]byte `cbor:"2,keyasint"` // SHA-256 of Payload
	Module  string   `cbor:"3,keyasint,omitempty"`
	Payload []byte   `cbor:"4,keyasint"` // canonical CBOR of a Unit
}

// Unit is the serialized form of a bytecode.Bytecode.
type Unit struct {
	Code       []byte       `cbor:"1,keyasint"`
	Constants  []Constant   `cbor:"2,keyasint"`
	Debug      []DebugEntry `cbor:"3,keyasint,omitempty"`
	LocalCount int          `cbor:"4,keyasint"`
}

// ConstKind tags a serialized constant.
type ConstKind uint8

const (
	ConstNull     ConstKind = 0
	ConstBool     ConstKind = 1
	ConstNumber   ConstKind = 2
	ConstString   ConstKind = 3
	ConstFunction ConstKind = 4
)

// Constant is one constant pool entry. Only the field matching Kind is set.
type Constant struct {
	Kind     ConstKind `cbor:"1,keyasint"`
	Bool     bool      `cbor:"2,keyasint,omitempty"`
	Number   float64   `cbor:"3,keyasint"` // always written so -0 survives
	String   string    `cbor:"4,keyasint,omitempty"`
	Function *Function `cbor:"5,keyasint,omitempty"`
}

// Function is a serialized function reference.
type Function struct {
	Name       string `cbor:"1,keyasint"`
	Arity      int    `cbor:"2,keyasint"`
	LocalCount int    `cbor:"3,keyasint"`
	Entry      int    `cbor:"4,keyasint"`
}

// DebugEntry is a serialized debug table entry.
type DebugEntry struct {
	Offset int `cbor:"1,keyasint"`
	Start  int `cbor:"2,keyasint,omitempty"`
	End    int `cbor:"3,keyasint,omitempty"`
	Line   int `cbor:"4,keyasint,omitempty"`
	Column int `cbor:"5,keyasint,omitempty"`
}
