package message

import (
	"bytes"
	"testing"

	"github.com/bolt-proto/boltd/internal/testsupport"
)

func TestDecodeRun(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, Success{Metadata: map[string]any{"x": int64(1)}}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Encode is server-only; build a RUN by hand to exercise Decode.
	raw := []byte{0xB3, TagRun, 0x8D}
	raw = append(raw, "RETURN 1 AS x"...)
	raw = append(raw, 0xA0, 0xA0) // empty parameters, empty extra
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	run, ok := msg.(Run)
	if !ok {
		t.Fatalf("expected Run, got %T", msg)
	}
	if run.Query != "RETURN 1 AS x" {
		t.Errorf("query = %q", run.Query)
	}
}

func TestEncodeDecodeFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	want := Failure{Metadata: map[string]any{"code": "Neo.ClientError.Request.Invalid", "message": "bad"}}
	if err := Encode(buf, want); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Bytes()[0] != 0xB1 || buf.Bytes()[1] != TagFailure {
		t.Fatalf("unexpected FAILURE header: %#x", buf.Bytes()[:2])
	}
}

func TestEncodeRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, Record{Fields: []any{int64(1), "two"}}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Bytes()[0] != 0xB1 || buf.Bytes()[1] != TagRecord {
		t.Fatalf("unexpected RECORD header: %#x", buf.Bytes()[:2])
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	raw := []byte{0xB0, 0xAB}
	if _, err := Decode(raw); err == nil {
		t.Error("expected an error decoding an unrecognised structure tag")
	}
}

func TestDecodeHelloExtra(t *testing.T) {
	raw := []byte{0xB1, TagHello, 0xA1, 0x8A}
	raw = append(raw, "user_agent"...)
	raw = append(raw, 0x85)
	raw = append(raw, "boltd"...)
	msg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	hello, ok := msg.(Hello)
	if !ok {
		t.Fatalf("expected Hello, got %T", msg)
	}
	testsupport.AssertLen(t, hello.Extra, 1)
	testsupport.AssertMapKeyValue(t, hello.Extra, "user_agent", "boltd")
}

func TestExtraIntDefault(t *testing.T) {
	if got := ExtraInt(map[string]any{}, "n", -1); got != -1 {
		t.Errorf("ExtraInt default = %d, want -1", got)
	}
	if got := ExtraInt(map[string]any{"n": int64(5)}, "n", -1); got != 5 {
		t.Errorf("ExtraInt = %d, want 5", got)
	}
}
