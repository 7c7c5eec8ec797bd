package codec

import (
	"bytes"

	"github.com/nodeware/wirecache/visitor"
	"github.com/nodeware/wirecache/wire"
)

// Wire is the native Codec of this module: it drives visitor.Marshal and
// visitor.Unmarshal over package wire's Encoder/Decoder. The zero value is
// ready to use with no size limit; set MaxDecode to bound the number of
// logical bytes Decode will read from an untrusted payload (wire.SizeLimit,
// independent of codec.LimitCodec's opaque-byte-length guard).
type Wire[V any] struct {
	// MaxDecode, if > 0, bounds the cumulative logical bytes Decode will
	// read via wire.Decoder before failing with wire.ErrSizeLimit.
	MaxDecode uint64
}

var _ Codec[struct{}] = Wire[struct{}]{}

func (c Wire[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := visitor.Marshal(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Wire[V]) Decode(b []byte) (V, error) {
	var v V
	limit := wire.Unbounded()
	if c.MaxDecode > 0 {
		limit = wire.Bounded(c.MaxDecode)
	}
	err := visitor.Unmarshal(bytes.NewReader(b), limit, &v)
	return v, err
}
