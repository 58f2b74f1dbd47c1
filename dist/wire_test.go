package dist

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/atlas-lang/atlas/ast"
	"github.com/atlas-lang/atlas/bytecode"
	"github.com/atlas-lang/atlas/compiler"
	"github.com/atlas-lang/atlas/value"
	"github.com/atlas-lang/atlas/vm"
)

func compileFib(t *testing.T) *bytecode.Bytecode {
	t.Helper()
	n := ast.Ident("n")
	prog := ast.Prog(
		ast.Func("fib", []string{"n"},
			ast.IfElse(ast.Bin(ast.Less, n, ast.Num(2)), ast.Blk(ast.Ret(n)), nil),
			ast.Ret(ast.Bin(ast.Add,
				ast.CallName("fib", ast.Bin(ast.Sub, n, ast.Num(1))),
				ast.CallName("fib", ast.Bin(ast.Sub, n, ast.Num(2)))))),
		ast.Blk(ast.Var("label", ast.Str("fib")), ast.Expression(ast.Ident("label"))),
		ast.Expression(ast.CallName("fib", ast.Num(10))),
	)
	bc, err := compiler.New().Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return bc
}

func TestBytecodeCBORRoundTrip(t *testing.T) {
	bc := compileFib(t)

	data, err := Marshal(bc, "fib")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, chunk, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if chunk.Module != "fib" || chunk.Version != FormatVersion {
		t.Errorf("chunk = %q v%d", chunk.Module, chunk.Version)
	}
	if !bytes.Equal(got.Code, bc.Code) {
		t.Error("Code mismatch")
	}
	if got.LocalCount != bc.LocalCount {
		t.Errorf("LocalCount: got %d, want %d", got.LocalCount, bc.LocalCount)
	}
	if len(got.Debug) != len(bc.Debug) {
		t.Fatalf("Debug: got %d entries, want %d", len(got.Debug), len(bc.Debug))
	}
	for i := range bc.Debug {
		if got.Debug[i] != bc.Debug[i] {
			t.Errorf("Debug[%d]: got %+v, want %+v", i, got.Debug[i], bc.Debug[i])
		}
	}
	if len(got.Constants) != len(bc.Constants) {
		t.Fatalf("Constants: got %d, want %d", len(got.Constants), len(bc.Constants))
	}
	for i, want := range bc.Constants {
		c := got.Constants[i]
		if want.Kind() == value.KindFunction {
			if *c.AsFunction() != *want.AsFunction() {
				t.Errorf("Constants[%d]: got %+v, want %+v", i, *c.AsFunction(), *want.AsFunction())
			}
			continue
		}
		if !value.Identical(c, want) {
			t.Errorf("Constants[%d]: got %v, want %v", i, c, want)
		}
	}

	result, ok, err := vm.New(got).Run()
	if err != nil || !ok || result.AsNumber() != 55 {
		t.Errorf("decoded run = %v, %v, %v", result, ok, err)
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	a, err := Encode(compileFib(t), "m")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(compileFib(t), "m")
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash != b.Hash || !bytes.Equal(a.Payload, b.Payload) {
		t.Error("equal units encoded differently")
	}

	other := compileFib(t)
	other.Code[len(other.Code)-1] = byte(bytecode.OpReturn)
	c, err := Encode(other, "m")
	if err != nil {
		t.Fatal(err)
	}
	if c.Hash == a.Hash {
		t.Error("different code produced the same hash")
	}
}

func TestTamperedPayloadRejected(t *testing.T) {
	c, err := Encode(compileFib(t), "m")
	if err != nil {
		t.Fatal(err)
	}
	c.Payload = append([]byte(nil), c.Payload...)
	c.Payload[len(c.Payload)/2] ^= 0xFF

	if _, err := Decode(c); !errors.Is(err, ErrHashMismatch) {
		t.Errorf("Decode = %v, want ErrHashMismatch", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	c, err := Encode(bytecode.New(), "")
	if err != nil {
		t.Fatal(err)
	}
	c.Version = FormatVersion + 1
	if _, err := Decode(c); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Decode = %v, want ErrUnsupportedVersion", err)
	}
}

func TestUnsupportedConstant(t *testing.T) {
	bc := bytecode.New()
	bc.Constants = append(bc.Constants, value.FromArray(value.NewArray(nil)))
	if _, err := Encode(bc, ""); !errors.Is(err, ErrUnsupportedConstant) {
		t.Errorf("Encode = %v, want ErrUnsupportedConstant", err)
	}

	u := &Unit{Constants: []Constant{{Kind: ConstFunction}}}
	if _, err := fromUnit(u); !errors.Is(err, ErrUnsupportedConstant) {
		t.Errorf("fromUnit = %v, want ErrUnsupportedConstant", err)
	}
}

func TestSpecialNumbers(t *testing.T) {
	bc := bytecode.New()
	nums := []float64{0, math.Copysign(0, -1), math.Inf(1), math.Inf(-1), 1.5, -1e300}
	for _, n := range nums {
		bc.Constants = append(bc.Constants, value.Number(n))
	}
	bc.Constants = append(bc.Constants, value.Number(math.NaN()), value.True, value.Null, value.String(""))

	data, err := Marshal(bc, "")
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	for i, n := range nums {
		c := got.Constants[i]
		if c.AsNumber() != n || math.Signbit(c.AsNumber()) != math.Signbit(n) {
			t.Errorf("constant %d: got %v, want %v", i, c, n)
		}
	}
	if !math.IsNaN(got.Constants[len(nums)].AsNumber()) {
		t.Error("NaN did not survive")
	}
	rest := got.Constants[len(nums)+1:]
	if rest[0] != value.True || !rest[1].IsNull() || !rest[2].IsString() {
		t.Errorf("scalars = %v", rest)
	}
	// Decoded pools keep deduplicating.
	if idx, err := got.AddConstant(value.Number(1.5)); err != nil || idx != 4 {
		t.Errorf("AddConstant(1.5) = %d, %v, want existing index 4", idx, err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fib.atlasc")
	bc := compileFib(t)
	if err := WriteFile(path, bc, "fib"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, chunk, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if chunk.Module != "fib" || !bytes.Equal(got.Code, bc.Code) {
		t.Error("file round trip changed the unit")
	}
	if _, _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file read without error")
	}
}

func TestGarbageRejected(t *testing.T) {
	for _, data := range [][]byte{nil, {0xFF}, []byte("not cbor at all")} {
		if _, _, err := Unmarshal(data); err == nil {
			t.Errorf("Unmarshal(%q) succeeded", data)
		}
	}
}
