package packstream

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/bolt-proto/boltd/boltvalue"
)

// Dehydrate converts a value this encoder does not natively understand into
// a *boltvalue.Struct, or reports ok=false to fall through to the built-in
// type switch. The packer calls it before giving up on a value's type,
// which is how boltvalue.Node, boltvalue.Duration and friends reach the
// wire without packstream importing boltvalue's concrete types directly
// into its core dispatch.
type Dehydrate func(v any) (*boltvalue.Struct, bool, error)

// Packer encodes Go values as PackStream bytes, always choosing the
// narrowest size class that represents the value exactly (§4.1's encoding
// policy). Grounded on the teacher's internal/packstream/packer.go; the
// exhaustive type-switch fast paths and the overflow/size-class logic are
// carried over near verbatim, generalised from the teacher's ad hoc
// Dehydrate function pointer to boltvalue's package-level hooks.
type Packer struct {
	buf       *bytes.Buffer
	dehydrate Dehydrate
}

// NewPacker returns a Packer that appends encoded bytes to buf. buf is
// reused across calls to Pack so a connection can amortise allocation
// across messages (§9 "Buffer reuse").
func NewPacker(buf *bytes.Buffer, dehydrate Dehydrate) *Packer {
	return &Packer{buf: buf, dehydrate: dehydrate}
}

func (p *Packer) writeByte(b byte) { p.buf.WriteByte(b) }

func (p *Packer) writeBytesRaw(b []byte) { p.buf.Write(b) }

// PackStruct writes a structure marker, tag byte, and then each field in
// positional order.
func (p *Packer) PackStruct(tag byte, fields []any) error {
	if len(fields) > 15 {
		return &OverflowError{Msg: "structure field count exceeds 15"}
	}
	p.writeByte(0xB0 | byte(len(fields)))
	p.writeByte(tag)
	for _, f := range fields {
		if err := p.Pack(f); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) writeNil() { p.writeByte(0xC0) }

func (p *Packer) writeBool(b bool) {
	if b {
		p.writeByte(0xC3)
	} else {
		p.writeByte(0xC2)
	}
}

func (p *Packer) writeFloat(f float64) {
	p.writeByte(0xC1)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	p.writeBytesRaw(b[:])
}

// writeInt picks the narrowest of tiny / i8 / i16 / i32 / i64 that
// represents x exactly, per §4.1.
func (p *Packer) writeInt(x int64) {
	switch {
	case x >= -16 && x <= 127:
		p.writeByte(byte(x))
	case x >= math.MinInt8 && x <= math.MaxInt8:
		p.writeByte(0xC8)
		p.writeByte(byte(int8(x)))
	case x >= math.MinInt16 && x <= math.MaxInt16:
		p.writeByte(0xC9)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(int16(x)))
		p.writeBytesRaw(b[:])
	case x >= math.MinInt32 && x <= math.MaxInt32:
		p.writeByte(0xCA)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(x)))
		p.writeBytesRaw(b[:])
	default:
		p.writeByte(0xCB)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(x))
		p.writeBytesRaw(b[:])
	}
}

// writeLengthPrefixed picks the narrowest u8/u16/u32 size class for n and
// writes marker(offset) || length, where offset selects the 8/16/32-bit
// variant of whichever container is being written (string/bytes/list/dict
// all share this shape, only the marker bytes differ).
func (p *Packer) writeLengthPrefixed(n int, tinyNibble byte, tinyMax int, m8, m16, m32 byte) error {
	switch {
	case n <= tinyMax:
		p.writeByte(tinyNibble | byte(n))
	case n <= math.MaxUint8:
		p.writeByte(m8)
		p.writeByte(byte(n))
	case n <= math.MaxUint16:
		p.writeByte(m16)
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(n))
		p.writeBytesRaw(b[:])
	case uint64(n) <= math.MaxUint32:
		p.writeByte(m32)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		p.writeBytesRaw(b[:])
	default:
		return &OverflowError{Msg: "length exceeds 32-bit size class"}
	}
	return nil
}

func (p *Packer) writeString(s string) error {
	if !utf8.ValidString(s) {
		return &InvalidUTF8Error{}
	}
	if err := p.writeLengthPrefixed(len(s), 0x80, 15, 0xD0, 0xD1, 0xD2); err != nil {
		return err
	}
	p.writeBytesRaw([]byte(s))
	return nil
}

func (p *Packer) writeBytes(b []byte) error {
	// Bytes have no tiny form: tinyMax -1 makes even an empty value use 0xCC.
	if err := p.writeLengthPrefixed(len(b), 0, -1, 0xCC, 0xCD, 0xCE); err != nil {
		return err
	}
	p.writeBytesRaw(b)
	return nil
}

func (p *Packer) writeListHeader(n int) error {
	return p.writeLengthPrefixed(n, 0x90, 15, 0xD4, 0xD5, 0xD6)
}

func (p *Packer) writeMapHeader(n int) error {
	return p.writeLengthPrefixed(n, 0xA0, 15, 0xD8, 0xD9, 0xDA)
}

func (p *Packer) writeSlice(s []any) error {
	if err := p.writeListHeader(len(s)); err != nil {
		return err
	}
	for _, v := range s {
		if err := p.Pack(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) writeMap(m map[string]any) error {
	if err := p.writeMapHeader(len(m)); err != nil {
		return err
	}
	for k, v := range m {
		if err := p.writeString(k); err != nil {
			return err
		}
		if err := p.Pack(v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) tryDehydrate(v any) (bool, error) {
	if p.dehydrate == nil {
		return false, nil
	}
	s, ok, err := p.dehydrate(v)
	if err != nil || !ok {
		return ok, err
	}
	return true, p.PackStruct(s.Tag, s.Fields)
}

// Pack encodes v, dispatching fast paths for the common concrete Go types
// produced by the message layer before falling back to reflection — the
// same two-tier strategy as the teacher's Pack(), and for the same reason:
// the fast paths dominate the hot loop (records, parameter dicts) and
// reflection only has to handle the long tail.
func (p *Packer) Pack(v any) error {
	switch x := v.(type) {
	case nil:
		p.writeNil()
		return nil
	case bool:
		p.writeBool(x)
		return nil
	case int:
		p.writeInt(int64(x))
		return nil
	case int8:
		p.writeInt(int64(x))
		return nil
	case int16:
		p.writeInt(int64(x))
		return nil
	case int32:
		p.writeInt(int64(x))
		return nil
	case int64:
		p.writeInt(x)
		return nil
	case uint:
		return p.packUint(uint64(x))
	case uint8:
		p.writeInt(int64(x))
		return nil
	case uint16:
		p.writeInt(int64(x))
		return nil
	case uint32:
		p.writeInt(int64(x))
		return nil
	case uint64:
		return p.packUint(x)
	case float32:
		p.writeFloat(float64(x))
		return nil
	case float64:
		p.writeFloat(x)
		return nil
	case string:
		return p.writeString(x)
	case []byte:
		return p.writeBytes(x)
	case []any:
		return p.writeSlice(x)
	case []string:
		ss := make([]any, len(x))
		for i, s := range x {
			ss[i] = s
		}
		return p.writeSlice(ss)
	case []int64:
		ss := make([]any, len(x))
		for i, n := range x {
			ss[i] = n
		}
		return p.writeSlice(ss)
	case map[string]any:
		return p.writeMap(x)
	case *boltvalue.Struct:
		return p.PackStruct(x.Tag, x.Fields)
	}

	if handled, err := p.tryDehydrate(v); handled {
		return err
	} else if err != nil {
		return err
	}

	return p.packReflect(v)
}

func (p *Packer) packUint(x uint64) error {
	if x > math.MaxInt64 {
		return &OverflowError{Msg: "unsigned value exceeds int64 range"}
	}
	p.writeInt(int64(x))
	return nil
}

// packReflect handles named slice/map types and struct-free generic
// containers that the switch above doesn't name directly.
func (p *Packer) packReflect(v any) error {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		items := make([]any, n)
		for i := 0; i < n; i++ {
			items[i] = rv.Index(i).Interface()
		}
		return p.writeSlice(items)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return &IllegalFormatError{Msg: "map keys must be strings"}
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return p.writeMap(m)
	case reflect.Ptr:
		if rv.IsNil() {
			p.writeNil()
			return nil
		}
		return p.Pack(rv.Elem().Interface())
	default:
		return &UnsupportedTypeError{TypeName: rv.Type().String()}
	}
}
