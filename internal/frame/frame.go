// Package frame is the on-disk/on-wire envelope wirecache puts around a
// codec-encoded value before handing it to a Provider. It answers two
// questions a bare codec payload can't answer on its own: which generation
// was this value CAS-validated against, and which Codec produced these
// bytes in the first place. The latter lets a cache instance recognize
// (and self-heal) entries written by a different CodecKind — e.g. after a
// deploy changes Options[V].Codec from JSON to the native Wire codec.
//
// Every fixed-width header field is read and written through package wire's
// own Encoder/Decoder — the same big-endian primitives the core codec uses
// — rather than a second, parallel binary.BigEndian implementation. Only
// the genuinely opaque parts (a codec's payload bytes, which may not be
// valid UTF-8 for codecs like CBOR or msgpack) are appended/sliced as raw
// bytes instead of going through wire.Encoder.EmitStr, whose decode side
// UTF-8-validates.
//
// Strict framing: decoders require that a frame consume the entire buffer
// (no trailing bytes), to detect corruption/foreign writers early.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/nodeware/wirecache/wire"
)

// CodecKind identifies which Codec implementation produced a frame's
// payload bytes, so a reader can detect a codec change across deploys
// instead of feeding the wrong decoder garbage.
type CodecKind uint8

const (
	CodecUnknown CodecKind = iota
	CodecWire
	CodecJSON
	CodecCBOR
	CodecMsgpack
)

func (k CodecKind) String() string {
	switch k {
	case CodecWire:
		return "wire"
	case CodecJSON:
		return "json"
	case CodecCBOR:
		return "cbor"
	case CodecMsgpack:
		return "msgpack"
	default:
		return "unknown"
	}
}

const (
	// version is the wire-format version. Bump only on incompatible layout changes.
	version    uint8 = 1
	kindSingle uint8 = 1
	kindBulk   uint8 = 2
)

var (
	// ErrCorrupt is returned when a byte slice doesn't conform to the expected
	// structure (bad magic/version/kind/lengths).
	ErrCorrupt = errors.New("wirecache: corrupt entry")

	// magic is the fixed 4-byte header ("CASC").
	magic = [4]byte{'C', 'A', 'S', 'C'}
)

func writeMagic(enc *wire.Encoder) error {
	for _, b := range magic {
		if err := enc.EmitU8(b); err != nil {
			return err
		}
	}
	return nil
}

func checkMagic(dec *wire.Decoder) error {
	for _, want := range magic {
		got, err := dec.DecodeU8()
		if err != nil || got != want {
			return ErrCorrupt
		}
	}
	return nil
}

// EncodeSingle frames a single codec-encoded value for storage.
//
// Layout, every field issued through wire.Encoder:
//
//	magic(4xu8) | version(u8) | kind=single(u8) | codec(u8) | gen(u64) | vlen(u32) | payload(vlen, raw)
//
// gen is the per-key generation used for read-side CAS validation. payload
// is appended as raw bytes rather than run through EmitStr: it is whatever
// codecKind's Encode produced, which for non-UTF-8 codecs would fail
// EmitStr's (decode-side) UTF-8 validation. Payload length is limited to
// <= 4 GiB (uint32).
func EncodeSingle(gen uint64, codecKind CodecKind, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 1 + 8 + 4 + len(payload))
	enc := wire.NewEncoder(&buf)

	if err := writeMagic(enc); err != nil {
		return nil, err
	}
	if err := enc.EmitU8(version); err != nil {
		return nil, err
	}
	if err := enc.EmitU8(kindSingle); err != nil {
		return nil, err
	}
	if err := enc.EmitU8(uint8(codecKind)); err != nil {
		return nil, err
	}
	if err := enc.EmitU64(gen); err != nil {
		return nil, err
	}
	if err := enc.EmitU32(uint32(len(payload))); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// DecodeSingle parses a single entry written by EncodeSingle, returning the
// generation it was CAS-validated against, the CodecKind its payload was
// produced by, and a zero-copy subslice of b holding the payload.
// The returned payload must be treated as read-only: holding it keeps b's
// backing array alive. Copy it if you need to retain or mutate it beyond
// b's lifetime.
func DecodeSingle(b []byte) (gen uint64, codecKind CodecKind, payload []byte, err error) {
	dec := wire.NewDecoder(bytes.NewReader(b), wire.Unbounded())

	if err := checkMagic(dec); err != nil {
		return 0, 0, nil, err
	}
	ver, err := dec.DecodeU8()
	if err != nil || ver != version {
		return 0, 0, nil, ErrCorrupt
	}
	kind, err := dec.DecodeU8()
	if err != nil || kind != kindSingle {
		return 0, 0, nil, ErrCorrupt
	}
	ck, err := dec.DecodeU8()
	if err != nil {
		return 0, 0, nil, ErrCorrupt
	}
	gen, err = dec.DecodeU64()
	if err != nil {
		return 0, 0, nil, ErrCorrupt
	}
	vlen, err := dec.DecodeU32()
	if err != nil {
		return 0, 0, nil, ErrCorrupt
	}

	off := int(dec.BytesRead())
	if off+int(vlen) != len(b) { // no trailing bytes allowed
		return 0, 0, nil, ErrCorrupt
	}
	return gen, CodecKind(ck), b[off : off+int(vlen)], nil
}

// BulkItem holds one member of a bulk-encoded set.
type BulkItem struct {
	Key     string
	Gen     uint64
	Payload []byte
}

// EncodeBulk encodes a bulk set of items, all sharing one CodecKind, in a
// single value.
//
// Layout, every fixed-width field issued through wire.Encoder:
//
//	magic(4xu8) | version(u8) | kind=bulk(u8) | codec(u8) | n(u32)
//	repeated n times:
//	  keyLen(u16) | key(keyLen, raw) | gen(u64) | vlen(u32) | payload(vlen, raw)
//
// Key and payload bytes are appended raw rather than through EmitStr: keys
// are arbitrary caller-supplied strings (not guaranteed valid UTF-8 as Go
// strings), and payloads are opaque codec output. Returns an error if any
// key length is 0 or > 65535 (u16).
func EncodeBulk(items []BulkItem, codecKind CodecKind) ([]byte, error) {
	total := 4 + 1 + 1 + 1 + 4
	for _, it := range items {
		l := len(it.Key)
		if l == 0 || l > 0xFFFF {
			return nil, fmt.Errorf("wirecache: invalid key length %d", l)
		}
		total += 2 + l + 8 + 4 + len(it.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	enc := wire.NewEncoder(&buf)

	if err := writeMagic(enc); err != nil {
		return nil, err
	}
	if err := enc.EmitU8(version); err != nil {
		return nil, err
	}
	if err := enc.EmitU8(kindBulk); err != nil {
		return nil, err
	}
	if err := enc.EmitU8(uint8(codecKind)); err != nil {
		return nil, err
	}
	if err := enc.EmitU32(uint32(len(items))); err != nil {
		return nil, err
	}

	for _, it := range items {
		if err := enc.EmitU16(uint16(len(it.Key))); err != nil {
			return nil, err
		}
		buf.WriteString(it.Key)
		if err := enc.EmitU64(it.Gen); err != nil {
			return nil, err
		}
		if err := enc.EmitU32(uint32(len(it.Payload))); err != nil {
			return nil, err
		}
		buf.Write(it.Payload)
	}

	return buf.Bytes(), nil
}

// DecodeBulk parses a bulk entry written by EncodeBulk into its items and
// the CodecKind their payloads share. Each item's Payload is a zero-copy
// subslice of b and must be treated as read-only. Key is converted to a
// string (one allocation per item). Duplicate keys in the stored items are
// allowed; the caller decides how to resolve them.
//
// Structured fields (keyLen, gen, vlen, and the header) are read through
// wire.Decoder; raw key/payload bytes are read directly off the same
// underlying *bytes.Reader, which keeps the shared cursor in sync without
// running opaque bytes through wire.Decoder.DecodeStr's UTF-8 validation.
func DecodeBulk(b []byte) ([]BulkItem, CodecKind, error) {
	r := bytes.NewReader(b)
	dec := wire.NewDecoder(r, wire.Unbounded())

	if err := checkMagic(dec); err != nil {
		return nil, 0, err
	}
	ver, err := dec.DecodeU8()
	if err != nil || ver != version {
		return nil, 0, ErrCorrupt
	}
	kind, err := dec.DecodeU8()
	if err != nil || kind != kindBulk {
		return nil, 0, ErrCorrupt
	}
	ck, err := dec.DecodeU8()
	if err != nil {
		return nil, 0, ErrCorrupt
	}
	n32, err := dec.DecodeU32()
	if err != nil {
		return nil, 0, ErrCorrupt
	}
	n := int(n32)

	// cap preallocation by what the buffer could plausibly contain to avoid
	// adversarial OOM if n is bogus. Minimal per-item footprint:
	// klen(2) + min key(1) + gen(8) + vlen(4) + min payload(0) = 15 bytes.
	const minItem = 2 + 1 + 8 + 4
	maxPlausible := 0
	if rem := r.Len(); rem >= minItem {
		maxPlausible = rem / minItem
	}
	capHint := n
	if capHint > maxPlausible {
		capHint = maxPlausible
	}
	items := make([]BulkItem, 0, capHint)

	for i := 0; i < n; i++ {
		klen16, err := dec.DecodeU16()
		if err != nil {
			return nil, 0, ErrCorrupt
		}
		klen := int(klen16)
		if klen <= 0 || klen > r.Len() {
			return nil, 0, ErrCorrupt
		}
		keyBuf := make([]byte, klen)
		if _, err := io.ReadFull(r, keyBuf); err != nil {
			return nil, 0, ErrCorrupt
		}

		gen, err := dec.DecodeU64()
		if err != nil {
			return nil, 0, ErrCorrupt
		}
		vlen32, err := dec.DecodeU32()
		if err != nil {
			return nil, 0, ErrCorrupt
		}
		vlen := int(vlen32)
		if vlen < 0 || vlen > r.Len() {
			return nil, 0, ErrCorrupt
		}

		off := len(b) - r.Len()
		payload := b[off : off+vlen]
		if _, err := r.Seek(int64(vlen), io.SeekCurrent); err != nil {
			return nil, 0, ErrCorrupt
		}

		items = append(items, BulkItem{
			Key:     string(keyBuf), // one expected alloc per item
			Gen:     gen,
			Payload: payload,
		})
	}

	// no trailing bytes allowed (frame must consume entire buffer).
	if r.Len() != 0 {
		return nil, 0, ErrCorrupt
	}

	return items, CodecKind(ck), nil
}
