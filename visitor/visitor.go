// Package visitor walks a Go value with reflect and drives package wire's
// shape-directed Encoder/Decoder calls. It is the "tagged-variant event
// stream" producer/emitter spec.md §9 describes for languages without
// zero-cost generic dispatch: a deliberately small, unoptimized reflective
// driver, not a generated or derive-based serializer.
package visitor

import (
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/nodeware/wirecache/wire"
)

// Marshal walks v with reflect and writes it to w using wire's
// shape-directed Encoder calls. v may be a struct, pointer, slice, array,
// map, or any of the primitive kinds wire supports natively.
func Marshal(w io.Writer, v any) error {
	enc := wire.NewEncoder(w)
	return marshalValue(enc, reflect.ValueOf(v))
}

// Unmarshal reads from r (bounded by limit) using wire's shape-directed
// Decoder calls and populates v, which must be a non-nil pointer.
func Unmarshal(r io.Reader, limit wire.SizeLimit, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("visitor: Unmarshal target must be a non-nil pointer, got %T", v)
	}
	dec := wire.NewDecoder(r, limit)
	return unmarshalValue(dec, rv.Elem())
}

func marshalValue(enc *wire.Encoder, rv reflect.Value) error {
	if !rv.IsValid() {
		return enc.EmitUnit()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return enc.EmitBool(rv.Bool())
	case reflect.Int8:
		return enc.EmitI8(int8(rv.Int()))
	case reflect.Int16:
		return enc.EmitI16(int16(rv.Int()))
	case reflect.Int32:
		if rv.Type() == reflect.TypeOf(rune(0)) {
			return enc.EmitChar(rune(rv.Int()))
		}
		return enc.EmitI32(int32(rv.Int()))
	case reflect.Int64:
		return enc.EmitI64(rv.Int())
	case reflect.Int:
		return enc.EmitInt(rv.Int())
	case reflect.Uint8:
		return enc.EmitU8(uint8(rv.Uint()))
	case reflect.Uint16:
		return enc.EmitU16(uint16(rv.Uint()))
	case reflect.Uint32:
		return enc.EmitU32(uint32(rv.Uint()))
	case reflect.Uint64:
		return enc.EmitU64(rv.Uint())
	case reflect.Uint:
		return enc.EmitUint(rv.Uint())
	case reflect.Float32:
		return enc.EmitF32(float32(rv.Float()))
	case reflect.Float64:
		return enc.EmitF64(rv.Float())
	case reflect.String:
		return enc.EmitStr(rv.String())
	case reflect.Ptr:
		if rv.IsNil() {
			return enc.EmitNone()
		}
		if err := enc.EmitSome(); err != nil {
			return err
		}
		return marshalValue(enc, rv.Elem())
	case reflect.Slice, reflect.Array:
		return marshalSeq(enc, rv)
	case reflect.Map:
		return marshalMap(enc, rv)
	case reflect.Struct:
		return marshalStruct(enc, rv)
	case reflect.Interface:
		return marshalValue(enc, rv.Elem())
	default:
		return fmt.Errorf("visitor: unsupported kind %s", rv.Kind())
	}
}

func marshalSeq(enc *wire.Encoder, rv reflect.Value) error {
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return enc.EmitStr(string(rv.Bytes()))
	}
	n := rv.Len()
	if err := enc.EmitSeqLen(n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := marshalValue(enc, rv.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// marshalMap emits entries sorted by formatted key so the same map value
// always produces the same bytes (SPEC_FULL.md OQ-2: Go map iteration order is
// randomized, and determinism is a hard requirement of this format).
func marshalMap(enc *wire.Encoder, rv reflect.Value) error {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	if err := enc.EmitMapLen(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		if err := marshalValue(enc, k); err != nil {
			return err
		}
		if err := marshalValue(enc, rv.MapIndex(k)); err != nil {
			return err
		}
	}
	return nil
}

func marshalStruct(enc *wire.Encoder, rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		if field.Tag.Get("wire") == "-" {
			continue
		}
		if err := marshalValue(enc, rv.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalValue(dec *wire.Decoder, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Bool:
		v, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		rv.SetBool(v)
		return nil
	case reflect.Int8:
		v, err := dec.DecodeI8()
		if err != nil {
			return err
		}
		rv.SetInt(int64(v))
		return nil
	case reflect.Int16:
		v, err := dec.DecodeI16()
		if err != nil {
			return err
		}
		rv.SetInt(int64(v))
		return nil
	case reflect.Int32:
		if rv.Type() == reflect.TypeOf(rune(0)) {
			v, err := dec.DecodeChar()
			if err != nil {
				return err
			}
			rv.SetInt(int64(v))
			return nil
		}
		v, err := dec.DecodeI32()
		if err != nil {
			return err
		}
		rv.SetInt(int64(v))
		return nil
	case reflect.Int64:
		v, err := dec.DecodeI64()
		if err != nil {
			return err
		}
		rv.SetInt(v)
		return nil
	case reflect.Int:
		v, err := dec.DecodeInt()
		if err != nil {
			return err
		}
		rv.SetInt(v)
		return nil
	case reflect.Uint8:
		v, err := dec.DecodeU8()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(v))
		return nil
	case reflect.Uint16:
		v, err := dec.DecodeU16()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(v))
		return nil
	case reflect.Uint32:
		v, err := dec.DecodeU32()
		if err != nil {
			return err
		}
		rv.SetUint(uint64(v))
		return nil
	case reflect.Uint64:
		v, err := dec.DecodeU64()
		if err != nil {
			return err
		}
		rv.SetUint(v)
		return nil
	case reflect.Uint:
		v, err := dec.DecodeUint()
		if err != nil {
			return err
		}
		rv.SetUint(v)
		return nil
	case reflect.Float32:
		v, err := dec.DecodeF32()
		if err != nil {
			return err
		}
		rv.SetFloat(float64(v))
		return nil
	case reflect.Float64:
		v, err := dec.DecodeF64()
		if err != nil {
			return err
		}
		rv.SetFloat(v)
		return nil
	case reflect.String:
		v, err := dec.DecodeStr()
		if err != nil {
			return err
		}
		rv.SetString(v)
		return nil
	case reflect.Ptr:
		some, err := dec.DecodeOptionTag()
		if err != nil {
			return err
		}
		if !some {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		elem := reflect.New(rv.Type().Elem())
		if err := unmarshalValue(dec, elem.Elem()); err != nil {
			return err
		}
		rv.Set(elem)
		return nil
	case reflect.Slice:
		return unmarshalSlice(dec, rv)
	case reflect.Array:
		return unmarshalArray(dec, rv)
	case reflect.Map:
		return unmarshalMap(dec, rv)
	case reflect.Struct:
		return unmarshalStruct(dec, rv)
	default:
		return fmt.Errorf("visitor: unsupported kind %s", rv.Kind())
	}
}

func unmarshalSlice(dec *wire.Decoder, rv reflect.Value) error {
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		s, err := dec.DecodeStr()
		if err != nil {
			return err
		}
		rv.SetBytes([]byte(s))
		return nil
	}
	seq, err := dec.DecodeSeq()
	if err != nil {
		return err
	}
	// the count comes from the stream; cap the preallocation hint so a bogus
	// count fails on end-of-stream instead of panicking in MakeSlice.
	hint := seq.Remaining()
	if hint > 1024 {
		hint = 1024
	}
	out := reflect.MakeSlice(rv.Type(), 0, int(hint))
	for seq.Next() {
		elem := reflect.New(rv.Type().Elem()).Elem()
		if err := unmarshalValue(dec, elem); err != nil {
			return err
		}
		out = reflect.Append(out, elem)
	}
	if err := seq.End(); err != nil {
		return err
	}
	rv.Set(out)
	return nil
}

func unmarshalArray(dec *wire.Decoder, rv reflect.Value) error {
	// marshalSeq writes arrays with a u64 count prefix, like slices.
	seq, err := dec.DecodeSeq()
	if err != nil {
		return err
	}
	if seq.Remaining() != uint64(rv.Len()) {
		return fmt.Errorf("visitor: encoded array has %d elements, target holds %d", seq.Remaining(), rv.Len())
	}
	i := 0
	for seq.Next() {
		if err := unmarshalValue(dec, rv.Index(i)); err != nil {
			return err
		}
		i++
	}
	return seq.End()
}

func unmarshalMap(dec *wire.Decoder, rv reflect.Value) error {
	seq, err := dec.DecodeMap()
	if err != nil {
		return err
	}
	hint := seq.Remaining()
	if hint > 1024 {
		hint = 1024
	}
	out := reflect.MakeMapWithSize(rv.Type(), int(hint))
	kt, vt := rv.Type().Key(), rv.Type().Elem()
	for seq.Next() {
		k := reflect.New(kt).Elem()
		if err := unmarshalValue(dec, k); err != nil {
			return err
		}
		v := reflect.New(vt).Elem()
		if err := unmarshalValue(dec, v); err != nil {
			return err
		}
		out.SetMapIndex(k, v)
	}
	if err := seq.End(); err != nil {
		return err
	}
	rv.Set(out)
	return nil
}

func unmarshalStruct(dec *wire.Decoder, rv reflect.Value) error {
	t := rv.Type()
	n := 0
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" || field.Tag.Get("wire") == "-" {
			continue
		}
		n++
	}
	seq := dec.DecodeFixed(n)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" || field.Tag.Get("wire") == "-" {
			continue
		}
		if !seq.Next() {
			break
		}
		if err := unmarshalValue(dec, rv.Field(i)); err != nil {
			return err
		}
	}
	return seq.End()
}
