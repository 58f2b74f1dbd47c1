package dist

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/value"
)

var (
	ErrHashMismatch        = errors.New("dist: content hash mismatch")
	ErrUnsupportedVersion  = errors.New("dist: unsupported format version")
	ErrUnsupportedConstant = errors.New("dist: constant cannot be serialized")
)

// cborEncMode is canonical so equal units always hash the same.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode wraps bc in a chunk. Array and native constants are rejected; the
// compiler never produces them.
func Encode(bc *bytecode.Bytecode, module string) (*Chunk, error) {
	u, err := toUnit(bc)
	if err != nil {
		return nil, err
	}
	payload, err := cborEncMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("dist: marshal unit: %w", err)
	}
	return &Chunk{
		Version: FormatVersion,
		Hash:    sha256.Sum256(payload),
		Module:  module,
		Payload: payload,
	}, nil
}

// Verify checks the chunk version and content hash.
func Verify(c *Chunk) error {
	if c.Version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.Version)
	}
	if computed := sha256.Sum256(c.Payload); computed != c.Hash {
		return fmt.Errorf("%w: declared %x, computed %x", ErrHashMismatch, c.Hash, computed)
	}
	return nil
}

// Decode verifies c and rebuilds its bytecode.
func Decode(c *Chunk) (*bytecode.Bytecode, error) {
	if err := Verify(c); err != nil {
		return nil, err
	}
	var u Unit
	if err := cbor.Unmarshal(c.Payload, &u); err != nil {
		return nil, fmt.Errorf("dist: unmarshal unit: %w", err)
	}
	return fromUnit(&u)
}

// MarshalChunk serializes a Chunk to CBOR bytes.
func MarshalChunk(c *Chunk) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalChunk deserializes a Chunk from CBOR bytes.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("dist: unmarshal chunk: %w", err)
	}
	return &c, nil
}

// Marshal encodes bc straight to chunk bytes.
func Marshal(bc *bytecode.Bytecode, module string) ([]byte, error) {
	c, err := Encode(bc, module)
	if err != nil {
		return nil, err
	}
	return MarshalChunk(c)
}

// Unmarshal decodes chunk bytes into bytecode. The chunk is returned for its
// module name and hash.
func Unmarshal(data []byte) (*bytecode.Bytecode, *Chunk, error) {
	c, err := UnmarshalChunk(data)
	if err != nil {
		return nil, nil, err
	}
	bc, err := Decode(c)
	if err != nil {
		return nil, nil, err
	}
	return bc, c, nil
}

// WriteFile writes bc to path as a chunk.
func WriteFile(path string, bc *bytecode.Bytecode, module string) error {
	data, err := Marshal(bc, module)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile reads a chunk file written by WriteFile.
func ReadFile(path string) (*bytecode.Bytecode, *Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	bc, c, err := Unmarshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return bc, c, nil
}

func toUnit(bc *bytecode.Bytecode) (*Unit, error) {
	u := &Unit{
		Code:       bc.Code,
		Constants:  make([]Constant, len(bc.Constants)),
		LocalCount: bc.LocalCount,
	}
	if u.Code == nil {
		u.Code = []byte{}
	}
	for i, v := range bc.Constants {
		c, err := toConstant(v)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		u.Constants[i] = c
	}
	for _, d := range bc.Debug {
		u.Debug = append(u.Debug, DebugEntry{
			Offset: d.Offset,
			Start:  d.Span.Start,
			End:    d.Span.End,
			Line:   d.Span.Line,
			Column: d.Span.Column,
		})
	}
	return u, nil
}

func toConstant(v value.Value) (Constant, error) {
	switch v.Kind() {
	case value.KindNull:
		return Constant{Kind: ConstNull}, nil
	case value.KindBool:
		return Constant{Kind: ConstBool, Bool: v.AsBool()}, nil
	case value.KindNumber:
		return Constant{Kind: ConstNumber, Number: v.AsNumber()}, nil
	case value.KindString:
		return Constant{Kind: ConstString, String: v.AsString()}, nil
	case value.KindFunction:
		f := v.AsFunction()
		return Constant{Kind: ConstFunction, Function: &Function{
			Name:       f.Name,
			Arity:      f.Arity,
			LocalCount: f.LocalCount,
			Entry:      f.Entry,
		}}, nil
	}
	return Constant{}, fmt.Errorf("%w: %s", ErrUnsupportedConstant, v.Kind())
}

func fromUnit(u *Unit) (*bytecode.Bytecode, error) {
	if len(u.Constants) > bytecode.MaxConstants {
		return nil, bytecode.ErrConstantPoolFull
	}
	bc := &bytecode.Bytecode{
		Code:       u.Code,
		Constants:  make([]value.Value, len(u.Constants)),
		LocalCount: u.LocalCount,
	}
	if bc.Code == nil {
		bc.Code = []byte{}
	}
	for i, c := range u.Constants {
		v, err := fromConstant(c)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		bc.Constants[i] = v
	}
	for _, d := range u.Debug {
		bc.Debug = append(bc.Debug, bytecode.DebugEntry{
			Offset: d.Offset,
			Span:   bytecode.Span{Start: d.Start, End: d.End, Line: d.Line, Column: d.Column},
		})
	}
	// Clone indexes the scalar constants for later AddConstant calls.
	return bc.Clone(), nil
}

func fromConstant(c Constant) (value.Value, error) {
	switch c.Kind {
	case ConstNull:
		return value.Null, nil
	case ConstBool:
		return value.Bool(c.Bool), nil
	case ConstNumber:
		return value.Number(c.Number), nil
	case ConstString:
		return value.String(c.String), nil
	case ConstFunction:
		if c.Function == nil {
			return value.Null, fmt.Errorf("%w: function constant without body", ErrUnsupportedConstant)
		}
		return value.FromFunction(&value.Function{
			Name:       c.Function.Name,
			Arity:      c.Function.Arity,
			LocalCount: c.Function.LocalCount,
			Entry:      c.Function.Entry,
		}), nil
	}
	return value.Null, fmt.Errorf("%w: kind %d", ErrUnsupportedConstant, c.Kind)
}
