package server

import (
	"bufio"
	"bytes"
	"testing"
)

func wordFor(major, minor, rng byte) [4]byte {
	return [4]byte{0, rng, minor, major}
}

func TestNegotiateVersionPicksHighestOverlap(t *testing.T) {
	in := &bytes.Buffer{}
	in.Write(boltMagic[:])
	w1 := wordFor(5, 4, 3) // offers 5.1..5.4
	w2 := wordFor(0, 0, 0)
	w3 := wordFor(0, 0, 0)
	w4 := wordFor(0, 0, 0)
	in.Write(w1[:])
	in.Write(w2[:])
	in.Write(w3[:])
	in.Write(w4[:])

	out := &bytes.Buffer{}
	minor, err := NegotiateVersion(bufio.NewReader(in), out)
	if err != nil {
		t.Fatalf("NegotiateVersion failed: %v", err)
	}
	if minor != MaxSupportedMinor {
		t.Errorf("negotiated minor = %d, want %d", minor, MaxSupportedMinor)
	}
	if out.Bytes()[3] != supportedMajor || out.Bytes()[2] != byte(MaxSupportedMinor) {
		t.Errorf("reply = %x", out.Bytes())
	}
}

func TestNegotiateVersionRejectsUnsupportedMajor(t *testing.T) {
	in := &bytes.Buffer{}
	in.Write(boltMagic[:])
	w1 := wordFor(9, 0, 0)
	for i := 0; i < 4; i++ {
		in.Write(w1[:])
	}
	out := &bytes.Buffer{}
	if _, err := NegotiateVersion(bufio.NewReader(in), out); err == nil {
		t.Error("expected an error for a completely unsupported major version")
	}
	if !bytes.Equal(out.Bytes(), []byte{0, 0, 0, 0}) {
		t.Errorf("expected all-zero rejection reply, got %x", out.Bytes())
	}
}

func TestNegotiateVersionRejectsBadMagic(t *testing.T) {
	in := bytes.NewBuffer([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	out := &bytes.Buffer{}
	if _, err := NegotiateVersion(bufio.NewReader(in), out); err == nil {
		t.Error("expected an error for a bad magic prefix")
	}
}
