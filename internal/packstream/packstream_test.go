package packstream

import (
	"bytes"
	"math"
	"testing"
)

func packOne(t *testing.T, v any) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	p := NewPacker(buf, nil)
	if err := p.Pack(v); err != nil {
		t.Fatalf("Pack(%v) failed: %v", v, err)
	}
	return buf.Bytes()
}

func TestPackTinyInts(t *testing.T) {
	cases := []struct {
		in  int64
		out []byte
	}{
		{7, []byte{0x07}},
		{-16, []byte{0xF0}},
		{127, []byte{0x7F}},
		{-1, []byte{0xFF}},
	}
	for _, c := range cases {
		got := packOne(t, c.in)
		if !bytes.Equal(got, c.out) {
			t.Errorf("Pack(%d) = %#x, want %#x", c.in, got, c.out)
		}
	}
}

func TestPackIntSizeClasses(t *testing.T) {
	cases := []struct {
		in  int64
		out []byte
	}{
		{128, []byte{0xC9, 0x00, 0x80}},
		{-128, []byte{0xC8, 0x80}},
		{math.MaxInt16, []byte{0xC9, 0x7F, 0xFF}},
		{math.MaxInt16 + 1, []byte{0xCA, 0x00, 0x00, 0x80, 0x00}},
		{math.MaxInt32, []byte{0xCA, 0x7F, 0xFF, 0xFF, 0xFF}},
		{int64(math.MaxInt32) + 1, []byte{0xCB, 0x00, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00}},
	}
	for _, c := range cases {
		got := packOne(t, c.in)
		if !bytes.Equal(got, c.out) {
			t.Errorf("Pack(%d) = %#x, want %#x", c.in, got, c.out)
		}
	}
}

func TestPackStringSizeClasses(t *testing.T) {
	tiny := packOne(t, "abc")
	if !bytes.Equal(tiny, append([]byte{0x83}, "abc"...)) {
		t.Errorf("tiny string encoding wrong: %#x", tiny)
	}

	s16 := string(make([]byte, 16))
	got := packOne(t, s16)
	if got[0] != 0xD0 || got[1] != 16 {
		t.Errorf("16-byte string should use STRING_8, got %#x", got[:2])
	}

	sBig := string(make([]byte, 256))
	got = packOne(t, sBig)
	if got[0] != 0xD1 {
		t.Errorf("256-byte string should use STRING_16, got marker %#x", got[0])
	}
}

func TestPackFloatBitPattern(t *testing.T) {
	got := packOne(t, math.NaN())
	if got[0] != 0xC1 || len(got) != 9 {
		t.Fatalf("float encoding malformed: %#x", got)
	}
	u := NewUnpacker(got, nil)
	v, err := u.Unpack()
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	f, ok := v.(float64)
	if !ok {
		t.Fatalf("expected float64, got %T", v)
	}
	if math.Float64bits(f) != math.Float64bits(math.NaN()) {
		t.Errorf("NaN did not round-trip with the same bit pattern")
	}
}

func TestPackNegativeZero(t *testing.T) {
	encoded := packOne(t, math.Copysign(0, -1))
	u := NewUnpacker(encoded, nil)
	v, _ := u.Unpack()
	f := v.(float64)
	if math.Signbit(f) != true {
		t.Errorf("-0.0 lost its sign bit across round-trip")
	}
}

func TestRoundTripList(t *testing.T) {
	in := []any{int64(1), "two", true, nil, []any{int64(3)}}
	encoded := packOne(t, in)
	u := NewUnpacker(encoded, nil)
	out, err := u.Unpack()
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	got, ok := out.([]any)
	if !ok || len(got) != len(in) {
		t.Fatalf("round trip shape mismatch: %#v", out)
	}
}

func TestRoundTripDict(t *testing.T) {
	in := map[string]any{"a": int64(1), "b": "two"}
	encoded := packOne(t, in)
	u := NewUnpacker(encoded, nil)
	out, err := u.Unpack()
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	got, ok := out.(map[string]any)
	if !ok || len(got) != 2 {
		t.Fatalf("round trip shape mismatch: %#v", out)
	}
}

func TestUnpackInvalidUTF8(t *testing.T) {
	// Tiny string marker claiming 2 bytes, but the bytes are not valid UTF-8.
	bad := []byte{0x82, 0xFF, 0xFE}
	u := NewUnpacker(bad, nil)
	_, err := u.Unpack()
	if _, ok := err.(*InvalidUTF8Error); !ok {
		t.Fatalf("expected InvalidUTF8Error, got %v", err)
	}
}

func TestUnpackTruncatedInput(t *testing.T) {
	// STRING_16 marker declaring 300 bytes but supplying none.
	bad := []byte{0xD1, 0x01, 0x2C}
	u := NewUnpacker(bad, nil)
	_, err := u.Unpack()
	if _, ok := err.(*TruncatedInputError); !ok {
		t.Fatalf("expected TruncatedInputError, got %v", err)
	}
}

func TestUnpackOversizedCollection(t *testing.T) {
	// LIST_32 declaring far more elements than remain in the buffer.
	bad := []byte{0xD6, 0xFF, 0xFF, 0xFF, 0xFF}
	u := NewUnpacker(bad, nil)
	_, err := u.Unpack()
	if _, ok := err.(*OversizedCollectionError); !ok {
		t.Fatalf("expected OversizedCollectionError, got %v", err)
	}
}

func TestUnpackInvalidMarker(t *testing.T) {
	// 0xC4..0xC7 are unassigned in the marker table.
	bad := []byte{0xC5}
	u := NewUnpacker(bad, nil)
	_, err := u.Unpack()
	if _, ok := err.(*InvalidMarkerError); !ok {
		t.Fatalf("expected InvalidMarkerError, got %v", err)
	}
}

func TestPackStructRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPacker(buf, nil)
	if err := p.PackStruct(0x4E, []any{int64(1), []any{"Person"}, map[string]any{"name": "Ann"}, "n-1"}); err != nil {
		t.Fatalf("PackStruct failed: %v", err)
	}
	hydrated := false
	u := NewUnpacker(buf.Bytes(), func(tag byte, fields []any) (any, error) {
		hydrated = true
		if tag != 0x4E || len(fields) != 4 {
			t.Errorf("hydrate got tag %#x with %d fields", tag, len(fields))
		}
		return fields, nil
	})
	if _, err := u.Unpack(); err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if !hydrated {
		t.Error("hydrate hook was never called")
	}
}
