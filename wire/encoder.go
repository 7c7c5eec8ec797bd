package wire

import (
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"
)

// Encoder translates shape-directed calls into the bytes defined by the wire
// format contract (spec.md §4.1). It carries no state beyond the borrowed
// io.Writer and performs no buffering of its own; errors are surfaced
// verbatim from the writer.
//
// An Encoder is built around a single io.Writer, used for one complete value
// traversal, and discarded.
type Encoder struct {
	w   io.Writer
	buf [8]byte
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) write(p []byte) error {
	_, err := e.w.Write(p)
	return err
}

// EmitUnit writes nothing: unit has a zero-byte representation.
func (e *Encoder) EmitUnit() error { return nil }

// EmitBool writes a single byte: 0 for false, 1 for true.
func (e *Encoder) EmitBool(v bool) error {
	if v {
		e.buf[0] = 1
	} else {
		e.buf[0] = 0
	}
	return e.write(e.buf[:1])
}

// EmitU8 writes a single unsigned byte.
func (e *Encoder) EmitU8(v uint8) error {
	e.buf[0] = v
	return e.write(e.buf[:1])
}

// EmitI8 writes a single signed byte.
func (e *Encoder) EmitI8(v int8) error {
	e.buf[0] = byte(v)
	return e.write(e.buf[:1])
}

// EmitU16 writes v big-endian in 2 bytes.
func (e *Encoder) EmitU16(v uint16) error {
	binary.BigEndian.PutUint16(e.buf[:2], v)
	return e.write(e.buf[:2])
}

// EmitI16 writes v big-endian in 2 bytes.
func (e *Encoder) EmitI16(v int16) error { return e.EmitU16(uint16(v)) }

// EmitU32 writes v big-endian in 4 bytes.
func (e *Encoder) EmitU32(v uint32) error {
	binary.BigEndian.PutUint32(e.buf[:4], v)
	return e.write(e.buf[:4])
}

// EmitI32 writes v big-endian in 4 bytes.
func (e *Encoder) EmitI32(v int32) error { return e.EmitU32(uint32(v)) }

// EmitU64 writes v big-endian in 8 bytes.
func (e *Encoder) EmitU64(v uint64) error {
	binary.BigEndian.PutUint64(e.buf[:8], v)
	return e.write(e.buf[:8])
}

// EmitI64 writes v big-endian in 8 bytes.
func (e *Encoder) EmitI64(v int64) error { return e.EmitU64(uint64(v)) }

// EmitF32 writes v's IEEE-754 binary32 bit pattern, big-endian.
func (e *Encoder) EmitF32(v float32) error { return e.EmitU32(math.Float32bits(v)) }

// EmitF64 writes v's IEEE-754 binary64 bit pattern, big-endian.
func (e *Encoder) EmitF64(v float64) error { return e.EmitU64(math.Float64bits(v)) }

// EmitUint writes a platform-width unsigned integer, wire-encoded as u64
// (spec.md §3: "encoded as u64/i64").
func (e *Encoder) EmitUint(v uint64) error { return e.EmitU64(v) }

// EmitInt writes a platform-width signed integer, wire-encoded as i64.
func (e *Encoder) EmitInt(v int64) error { return e.EmitI64(v) }

// EmitChar writes v's UTF-8 encoding: 1-4 bytes, no length prefix. The
// decoder reconstructs the width from the leading byte.
func (e *Encoder) EmitChar(v rune) error {
	n := utf8.EncodeRune(e.buf[:4], v)
	return e.write(e.buf[:n])
}

// EmitStr writes the u64 big-endian byte-length of v, then its raw UTF-8
// bytes. The caller is responsible for v already being valid UTF-8 (spec.md
// §3: "encode assumes input strings are already valid UTF-8").
func (e *Encoder) EmitStr(v string) error {
	if err := e.EmitU64(uint64(len(v))); err != nil {
		return err
	}
	return e.write([]byte(v))
}

// EmitNone writes the 1-byte "none" option tag.
func (e *Encoder) EmitNone() error {
	e.buf[0] = 0
	return e.write(e.buf[:1])
}

// EmitSome writes the 1-byte "some" option tag. The caller must then recurse
// on the payload using the matching Emit* call.
func (e *Encoder) EmitSome() error {
	e.buf[0] = 1
	return e.write(e.buf[:1])
}

// EmitSeqLen writes the u64 big-endian element count of a sequence. The
// caller then recurses on each element, in iteration order.
func (e *Encoder) EmitSeqLen(n int) error { return e.EmitU64(uint64(n)) }

// EmitMapLen writes the u64 big-endian entry count of a map. The caller then
// recurses on each key followed by its value, in iteration order.
func (e *Encoder) EmitMapLen(n int) error { return e.EmitU64(uint64(n)) }

// EmitEnumIndex writes the u32 big-endian variant index of an enum value.
// The caller then recurses on the variant's payload as a tuple/struct.
func (e *Encoder) EmitEnumIndex(index uint32) error { return e.EmitU32(index) }

// Tuples, structs, tuple-structs and newtype-structs carry no framing bytes
// of their own (spec.md §3): the caller's script simply issues one Emit*
// call per field, in declaration order. There is no EmitTuple/EmitStruct
// call to make — Encoder has no state to open or close around a composite's
// fields.
