// Package bytefmt serializes and deserializes compiled ember functions to
// and from the on-disk bytecode format.
//
// File Format Specification:
//
// A compiled ember unit is one serialized top-level Function, written in
// a binary format designed to be:
//   - Compact: fixed-width fields, run-length-encoded line table
//   - Versioned: a major/minor byte pair so future opcodes don't break
//     readers of older files
//   - Complete: recursively stores every nested Function constant, so a
//     whole module loads from one file with no re-parsing
//
// Binary Format Layout:
//
//	[Header]
//	  Magic Number (5 bytes): 0xB5 'J' 's' 'r' 'C'
//	  Major version (1 byte)
//	  Minor version (1 byte)
//
//	[Function]
//	  Name (string: 4-byte length + UTF-8 bytes)
//	  Arity (1 byte)
//	  Default count (1 byte)
//	  Variadic flag (1 byte: 0 or 1)
//	  Chunk length (4 bytes, little-endian) + chunk bytes
//	  Line-table length (4 bytes, little-endian) + run-length (count,line)
//	    pairs, each a little-endian uint16 pair
//	  Constant count (2 bytes, little-endian)
//	  For each constant: a one-byte kind tag followed by type-specific data
//
// Constant Kinds:
//
//	0x01 = Number (8-byte little-endian IEEE 754 double)
//	0x02 = String (4-byte length + UTF-8 bytes)
//	0x03 = Boolean (1 byte: 0 or 1)
//	0x04 = Null (0 bytes)
//	0x05 = Function (recursive, same shape as the top-level Function)
//
// Reading any other kind byte is a deserialization error.
package bytefmt

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/emberlang/ember/pkg/bytecode"
	"github.com/emberlang/ember/pkg/value"
)

var magic = [5]byte{0xB5, 'J', 's', 'r', 'C'}

const (
	MajorVersion byte = 1
	MinorVersion byte = 0
)

const (
	constNumber  byte = 0x01
	constString  byte = 0x02
	constBoolean byte = 0x03
	constNull    byte = 0x04
	constFunc    byte = 0x05
)

// Encode writes fn to w in the on-disk bytecode format, preceded by the
// file header (magic number + version). Use WriteFunction directly to
// nest a Function inside a larger stream without repeating the header.
func Encode(fn *value.Function, w io.Writer) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("bytefmt: write magic: %w", err)
	}
	if _, err := w.Write([]byte{MajorVersion, MinorVersion}); err != nil {
		return fmt.Errorf("bytefmt: write version: %w", err)
	}
	return WriteFunction(w, fn)
}

// Decode reads a Function previously written by Encode, validating the
// header first.
func Decode(r io.Reader) (*value.Function, error) {
	var got [5]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return nil, fmt.Errorf("bytefmt: read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("bytefmt: bad magic %v (expected %v)", got, magic)
	}
	var ver [2]byte
	if _, err := io.ReadFull(r, ver[:]); err != nil {
		return nil, fmt.Errorf("bytefmt: read version: %w", err)
	}
	if ver[0] != MajorVersion {
		return nil, fmt.Errorf("bytefmt: unsupported major version %d (expected %d)", ver[0], MajorVersion)
	}
	return ReadFunction(r)
}

// WriteFunction writes one Function's serialized form, without the file
// header, so it can be nested as a constant of an enclosing Function.
func WriteFunction(w io.Writer, fn *value.Function) error {
	if err := writeString(w, fn.Name); err != nil {
		return fmt.Errorf("bytefmt: write name: %w", err)
	}
	if err := writeU8(w, uint8(fn.Arity)); err != nil {
		return err
	}
	if err := writeU8(w, uint8(len(fn.Defaults))); err != nil {
		return err
	}
	variadic := uint8(0)
	if fn.Variadic {
		variadic = 1
	}
	if err := writeU8(w, variadic); err != nil {
		return err
	}
	if err := writeChunk(w, fn.Chunk); err != nil {
		return fmt.Errorf("bytefmt: write chunk: %w", err)
	}
	if err := writeLineTable(w, fn.Chunk); err != nil {
		return fmt.Errorf("bytefmt: write line table: %w", err)
	}
	if err := writeU16(w, uint16(len(fn.Constants))); err != nil {
		return err
	}
	for i, c := range fn.Constants {
		if err := writeConstant(w, c); err != nil {
			return fmt.Errorf("bytefmt: write constant %d: %w", i, err)
		}
	}
	return nil
}

// ReadFunction reads one Function previously written by WriteFunction.
// Defaults are not recovered from the wire format (spec.md restricts
// default values to literal constants, which the compiler already folds
// into the enclosing chunk's bytecode at the call site), so the returned
// Function has a nil Defaults and the caller's Arity/Variadic describe
// its call signature.
func ReadFunction(r io.Reader) (*value.Function, error) {
	name, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("bytefmt: read name: %w", err)
	}
	arity, err := readU8(r)
	if err != nil {
		return nil, err
	}
	defaultCount, err := readU8(r)
	if err != nil {
		return nil, err
	}
	variadicByte, err := readU8(r)
	if err != nil {
		return nil, err
	}
	chunk, err := readChunk(r)
	if err != nil {
		return nil, fmt.Errorf("bytefmt: read chunk: %w", err)
	}
	if err := readLineTable(r, chunk); err != nil {
		return nil, fmt.Errorf("bytefmt: read line table: %w", err)
	}
	constCount, err := readU16(r)
	if err != nil {
		return nil, err
	}
	constants := make([]value.Value, constCount)
	for i := range constants {
		c, err := readConstant(r)
		if err != nil {
			return nil, fmt.Errorf("bytefmt: read constant %d: %w", i, err)
		}
		constants[i] = c
	}
	return &value.Function{
		Name:      name,
		Arity:     int(arity),
		Defaults:  make([]value.Value, defaultCount),
		Variadic:  variadicByte != 0,
		Chunk:     chunk,
		Constants: constants,
	}, nil
}

func writeChunk(w io.Writer, c *bytecode.Chunk) error {
	buf := make([]byte, 0, len(c.Code)*5)
	for _, instr := range c.Code {
		buf = append(buf, byte(instr.Op))
		var operand [4]byte
		binary.LittleEndian.PutUint32(operand[:], uint32(int32(instr.Operand)))
		buf = append(buf, operand[:]...)
	}
	if err := writeU32(w, uint32(len(buf))); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

func readChunk(r io.Reader) (*bytecode.Chunk, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	chunk := &bytecode.Chunk{}
	for i := 0; i+5 <= len(buf); i += 5 {
		op := bytecode.Opcode(buf[i])
		operand := int32(binary.LittleEndian.Uint32(buf[i+1 : i+5]))
		chunk.Write(op, int(operand), 0)
	}
	return chunk, nil
}

func writeLineTable(w io.Writer, c *bytecode.Chunk) error {
	runs := c.LineRuns()
	if err := writeU32(w, uint32(len(runs)*4)); err != nil {
		return err
	}
	for _, run := range runs {
		if err := writeU16(w, run[0]); err != nil {
			return err
		}
		if err := writeU16(w, run[1]); err != nil {
			return err
		}
	}
	return nil
}

func readLineTable(r io.Reader, c *bytecode.Chunk) error {
	byteLen, err := readU32(r)
	if err != nil {
		return err
	}
	runs := make([][2]uint16, byteLen/4)
	for i := range runs {
		count, err := readU16(r)
		if err != nil {
			return err
		}
		line, err := readU16(r)
		if err != nil {
			return err
		}
		runs[i] = [2]uint16{count, line}
	}
	c.SetLineRuns(runs)
	return nil
}

func writeConstant(w io.Writer, v value.Value) error {
	switch {
	case v.IsNumber():
		if err := writeU8(w, constNumber); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v.AsNumber())
	case v.IsBool():
		if err := writeU8(w, constBoolean); err != nil {
			return err
		}
		b := uint8(0)
		if v.AsBool() {
			b = 1
		}
		return writeU8(w, b)
	case v.IsNull():
		return writeU8(w, constNull)
	default:
		if s, ok := value.AsString(v); ok {
			if err := writeU8(w, constString); err != nil {
				return err
			}
			return writeString(w, string(s.Bytes))
		}
		if fn, ok := value.AsFunction(v); ok {
			if err := writeU8(w, constFunc); err != nil {
				return err
			}
			return WriteFunction(w, fn)
		}
		return fmt.Errorf("bytefmt: unsupported constant kind %v", v.Kind())
	}
}

func readConstant(r io.Reader) (value.Value, error) {
	tag, err := readU8(r)
	if err != nil {
		return value.NullValue, err
	}
	switch tag {
	case constNumber:
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return value.NullValue, err
		}
		return value.NumberValue(f), nil
	case constString:
		s, err := readString(r)
		if err != nil {
			return value.NullValue, err
		}
		b := []byte(s)
		return value.ObjectValue(&value.String{Bytes: b, Hash: value.FNV1a32(b)}), nil
	case constBoolean:
		b, err := readU8(r)
		if err != nil {
			return value.NullValue, err
		}
		return value.BoolValue(b != 0), nil
	case constNull:
		return value.NullValue, nil
	case constFunc:
		fn, err := ReadFunction(r)
		if err != nil {
			return value.NullValue, err
		}
		return value.ObjectValue(fn), nil
	default:
		return value.NullValue, fmt.Errorf("bytefmt: unknown constant kind 0x%02X", tag)
	}
}

func writeString(w io.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeU8(w io.Writer, v uint8) error  { _, err := w.Write([]byte{v}); return err }
func writeU16(w io.Writer, v uint16) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }

func readU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readU16(r io.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}
