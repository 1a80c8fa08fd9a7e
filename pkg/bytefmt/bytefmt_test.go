package bytefmt

import (
	"bytes"
	"testing"

	"github.com/emberlang/ember/pkg/bytecode"
	"github.com/emberlang/ember/pkg/value"
)

func buildFunction() *value.Function {
	chunk := &bytecode.Chunk{}
	chunk.Write(bytecode.OpPush, 0, 1)
	chunk.Write(bytecode.OpPush, 1, 1)
	chunk.Write(bytecode.OpAdd, 0, 2)
	chunk.Write(bytecode.OpReturn, 0, 2)
	name := []byte("answer")
	return &value.Function{
		Name:  "main",
		Arity: 0,
		Chunk: chunk,
		Constants: []value.Value{
			value.NumberValue(40),
			value.NumberValue(2),
			value.ObjectValue(&value.String{Bytes: name, Hash: value.FNV1a32(name)}),
			value.BoolValue(true),
			value.NullValue,
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fn := buildFunction()
	var buf bytes.Buffer
	if err := Encode(fn, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Name != fn.Name || got.Arity != fn.Arity {
		t.Fatalf("name/arity mismatch: got %q/%d, want %q/%d", got.Name, got.Arity, fn.Name, fn.Arity)
	}
	if len(got.Chunk.Code) != len(fn.Chunk.Code) {
		t.Fatalf("instruction count mismatch: got %d, want %d", len(got.Chunk.Code), len(fn.Chunk.Code))
	}
	for i, instr := range fn.Chunk.Code {
		if got.Chunk.Code[i] != instr {
			t.Fatalf("instr %d mismatch: got %#v, want %#v", i, got.Chunk.Code[i], instr)
		}
		if got.Chunk.Line(i) != fn.Chunk.Line(i) {
			t.Fatalf("instr %d line mismatch: got %d, want %d", i, got.Chunk.Line(i), fn.Chunk.Line(i))
		}
	}
	if len(got.Constants) != len(fn.Constants) {
		t.Fatalf("constant count mismatch: got %d, want %d", len(got.Constants), len(fn.Constants))
	}
	if got.Constants[0].AsNumber() != 40 || got.Constants[1].AsNumber() != 2 {
		t.Fatalf("number constants mismatch: %#v", got.Constants[:2])
	}
	s, ok := value.AsString(got.Constants[2])
	if !ok || string(s.Bytes) != "answer" {
		t.Fatalf("string constant mismatch: %#v", got.Constants[2])
	}
	if !got.Constants[3].AsBool() {
		t.Fatalf("boolean constant mismatch: %#v", got.Constants[3])
	}
	if !got.Constants[4].IsNull() {
		t.Fatalf("null constant mismatch: %#v", got.Constants[4])
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("nope!")
	if _, err := Decode(buf); err == nil {
		t.Fatalf("want error for bad magic")
	}
}

func TestEncodeDecodeNestedFunctionConstant(t *testing.T) {
	inner := buildFunction()
	inner.Name = "inner"
	outer := buildFunction()
	outer.Name = "outer"
	outer.Constants = append(outer.Constants, value.ObjectValue(inner))

	var buf bytes.Buffer
	if err := Encode(outer, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	nested, ok := value.AsFunction(got.Constants[len(got.Constants)-1])
	if !ok || nested.Name != "inner" {
		t.Fatalf("want nested function constant named inner, got %#v", got.Constants[len(got.Constants)-1])
	}
}
