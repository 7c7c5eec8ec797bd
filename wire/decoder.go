package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/bits"
	"unicode/utf8"
)

// Decoder consumes shape-directed reads from a borrowed io.Reader, validates
// them against the wire format contract (spec.md §4.2), and maintains a
// monotonically non-decreasing byte counter checked against a SizeLimit.
//
// A Decoder never rewinds. Once any Decode* call returns an error,
// the byte stream is left at an arbitrary, unrecoverable position and the
// Decoder must be discarded — it is "poisoned" (spec.md glossary).
type Decoder struct {
	r     io.Reader
	limit SizeLimit
	read  uint64
}

// NewDecoder returns a Decoder that reads from r, enforcing limit.
func NewDecoder(r io.Reader, limit SizeLimit) *Decoder {
	return &Decoder{r: r, limit: limit}
}

// BytesRead returns the number of logical bytes read (or poison-accounted)
// so far.
func (d *Decoder) BytesRead() uint64 { return d.read }

// accountRead advances the running counter by n before a logical read of
// that width is issued, failing with ErrSizeLimit if a bound would be
// exceeded. The counter is advanced even when the caller's subsequent read
// fails: at that point the Decoder is considered poisoned regardless
// (spec.md §4.2).
func (d *Decoder) accountRead(n uint64) error {
	d.read += n
	if d.limit.IsBounded() && d.read > d.limit.Max() {
		return ErrSizeLimit
	}
	return nil
}

// readFull reads exactly len(buf) bytes, translating any end-of-stream
// condition (including a short/partial read) into ErrEndOfStream.
func (d *Decoder) readFull(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	_, err := io.ReadFull(d.r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrEndOfStream
	}
	return err
}

func (d *Decoder) readAccounted(buf []byte) error {
	if err := d.accountRead(uint64(len(buf))); err != nil {
		return err
	}
	return d.readFull(buf)
}

// DecodeBool reads 1 byte; 0 -> false, 1 -> true, anything else fails with
// InvalidEncodingError naming the offending byte.
func (d *Decoder) DecodeBool() (bool, error) {
	var buf [1]byte
	if err := d.readAccounted(buf[:]); err != nil {
		return false, err
	}
	switch buf[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, newInvalidEncoding("invalid u8 when decoding bool",
			fmt.Sprintf("expected 0 or 1, got %d", buf[0]))
	}
}

// DecodeU8 reads a single unsigned byte.
func (d *Decoder) DecodeU8() (uint8, error) {
	var buf [1]byte
	if err := d.readAccounted(buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// DecodeI8 reads a single signed byte.
func (d *Decoder) DecodeI8() (int8, error) {
	v, err := d.DecodeU8()
	return int8(v), err
}

// DecodeU16 reads 2 big-endian bytes.
func (d *Decoder) DecodeU16() (uint16, error) {
	var buf [2]byte
	if err := d.readAccounted(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// DecodeI16 reads 2 big-endian bytes.
func (d *Decoder) DecodeI16() (int16, error) {
	v, err := d.DecodeU16()
	return int16(v), err
}

// DecodeU32 reads 4 big-endian bytes.
func (d *Decoder) DecodeU32() (uint32, error) {
	var buf [4]byte
	if err := d.readAccounted(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// DecodeI32 reads 4 big-endian bytes.
func (d *Decoder) DecodeI32() (int32, error) {
	v, err := d.DecodeU32()
	return int32(v), err
}

// DecodeU64 reads 8 big-endian bytes.
func (d *Decoder) DecodeU64() (uint64, error) {
	var buf [8]byte
	if err := d.readAccounted(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// DecodeI64 reads 8 big-endian bytes.
func (d *Decoder) DecodeI64() (int64, error) {
	v, err := d.DecodeU64()
	return int64(v), err
}

// DecodeF32 reads 4 big-endian bytes and reinterprets them as an IEEE-754
// binary32 value.
func (d *Decoder) DecodeF32() (float32, error) {
	v, err := d.DecodeU32()
	return math.Float32frombits(v), err
}

// DecodeF64 reads 8 big-endian bytes and reinterprets them as an IEEE-754
// binary64 value.
func (d *Decoder) DecodeF64() (float64, error) {
	v, err := d.DecodeU64()
	return math.Float64frombits(v), err
}

// DecodeUint reads a platform-width unsigned integer: 8 bytes on the wire,
// narrowed to the platform's uint width. Fails with SyntaxError if the
// decoded value cannot be represented in that width (spec.md §3, §4.2).
func (d *Decoder) DecodeUint() (uint64, error) {
	v, err := d.DecodeU64()
	if err != nil {
		return 0, err
	}
	if bits.UintSize < 64 {
		if v > uint64(math.MaxUint) {
			return 0, newSyntaxError("platform uint does not fit in native width")
		}
	}
	return v, nil
}

// DecodeInt reads a platform-width signed integer: 8 bytes on the wire,
// narrowed to the platform's int width. Fails with SyntaxError if the
// decoded value cannot be represented in that width.
func (d *Decoder) DecodeInt() (int64, error) {
	v, err := d.DecodeI64()
	if err != nil {
		return 0, err
	}
	if bits.UintSize < 64 {
		if v < int64(math.MinInt) || v > int64(math.MaxInt) {
			return 0, newSyntaxError("platform int does not fit in native width")
		}
	}
	return v, nil
}

// DecodeChar reads 1-4 bytes of UTF-8 for a single code point, using the
// 256-entry static lead-byte-width table.
//
// Size-limit accounting here intentionally mirrors the legacy behavior
// described in spec.md §9 (open question OQ-1, resolved in SPEC_FULL.md):
// the lead byte's read is NOT pre-accounted against the configured limit
// before this call looks at it. Only after the full code point has been
// read and validated is `read` advanced, by the code point's encoded
// width — an asymmetry with every other primitive decode, which
// pre-accounts. This is a known inconsistency in the format this codec
// reproduces, not a defect introduced here.
func (d *Decoder) DecodeChar() (rune, error) {
	invalid := func() error {
		return newInvalidEncoding("invalid char encoding", "")
	}

	var lead [1]byte
	if err := d.readFull(lead[:]); err != nil {
		return 0, err
	}

	width := utf8CharWidth(lead[0])
	if width == 0 {
		return 0, invalid()
	}
	if width == 1 {
		if err := d.accountRead(1); err != nil {
			return 0, err
		}
		return rune(lead[0]), nil
	}

	buf := [4]byte{lead[0], 0, 0, 0}
	start := 1
	for start < width {
		n, err := d.r.Read(buf[start:width])
		if n > 0 {
			start += n
		}
		if err != nil {
			if err == io.EOF {
				return 0, ErrEndOfStream
			}
			return 0, err
		}
	}

	r, size := utf8.DecodeRune(buf[:width])
	if r == utf8.RuneError && size <= 1 {
		return 0, invalid()
	}

	if err := d.accountRead(uint64(size)); err != nil {
		return 0, err
	}
	return r, nil
}

// DecodeStr reads the u64 big-endian length prefix, accounts it against the
// size limit, reads exactly that many bytes, and validates them as UTF-8.
func (d *Decoder) DecodeStr() (string, error) {
	n, err := d.DecodeU64()
	if err != nil {
		return "", err
	}
	if err := d.accountRead(n); err != nil {
		return "", err
	}
	// Read in bounded chunks so an untrusted length prefix cannot force a
	// huge allocation before the stream proves it holds that many bytes.
	const chunk = 64 << 10
	var buf []byte
	for remaining := n; remaining > 0; {
		c := remaining
		if c > chunk {
			c = chunk
		}
		start := len(buf)
		buf = append(buf, make([]byte, c)...)
		if err := d.readFull(buf[start:]); err != nil {
			return "", err
		}
		remaining -= c
	}
	if !utf8.Valid(buf) {
		return "", newInvalidEncoding("error while decoding utf8 string", describeUTF8Error(buf))
	}
	return string(buf), nil
}

// describeUTF8Error locates the first invalid byte in b for diagnostics.
func describeUTF8Error(b []byte) string {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return fmt.Sprintf("invalid utf-8 sequence at byte offset %d", i)
		}
		i += size
	}
	return "invalid utf-8 sequence"
}

// DecodeOptionTag reads the 1-byte option tag: false for none, true for
// some. On true, the caller recurses into the payload using the matching
// Decode* call.
func (d *Decoder) DecodeOptionTag() (bool, error) {
	var buf [1]byte
	if err := d.readAccounted(buf[:]); err != nil {
		return false, err
	}
	switch buf[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, newInvalidEncoding("invalid tag when decoding option",
			fmt.Sprintf("expected 0 or 1, got %d", buf[0]))
	}
}

// DecodeEnumIndex reads the u32 big-endian variant index of an enum value.
func (d *Decoder) DecodeEnumIndex() (uint32, error) {
	return d.DecodeU32()
}

// Seq is a bounded, caller-driven iterator over a sequence, map, tuple, or
// struct's elements (spec.md §4.2, §9 "bounded iterators"). Call Next once
// per element (each time returning whether an element remains to decode),
// decode that element with the matching Decode* call(s), and finally call
// End to verify the declared count was fully consumed.
type Seq struct {
	d         *Decoder
	remaining uint64
}

// Next reports whether another element remains, decrementing the remaining
// count. The caller must decode exactly one element (map: one key and one
// value) per true result before calling Next again.
func (s *Seq) Next() bool {
	if s.remaining == 0 {
		return false
	}
	s.remaining--
	return true
}

// Remaining returns the number of elements not yet consumed.
func (s *Seq) Remaining() uint64 { return s.remaining }

// End verifies the visitor consumed exactly the declared element count,
// failing with SyntaxError("expected end") otherwise.
func (s *Seq) End() error {
	if s.remaining == 0 {
		return nil
	}
	return newSyntaxError("expected end")
}

// DecodeSeq reads the u64 element-count prefix and returns a bounded
// iterator over that many elements.
func (d *Decoder) DecodeSeq() (*Seq, error) {
	n, err := d.DecodeU64()
	if err != nil {
		return nil, err
	}
	return &Seq{d: d, remaining: n}, nil
}

// DecodeMap reads the u64 entry-count prefix and returns a bounded iterator;
// each element the caller consumes is one (key, value) pair.
func (d *Decoder) DecodeMap() (*Seq, error) {
	return d.DecodeSeq()
}

// DecodeFixed returns a bounded iterator over exactly n elements without
// consuming a length prefix from the stream — used for tuples, structs,
// tuple-structs, and newtype-structs, whose element count is supplied by
// the caller's schema rather than framed on the wire (spec.md §4.2).
func (d *Decoder) DecodeFixed(n int) *Seq {
	return &Seq{d: d, remaining: uint64(n)}
}
