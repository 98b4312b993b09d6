package session

import (
	"context"
	"testing"

	"github.com/bolt-proto/boltd/auth"
)

type fakeStream struct {
	fields    []string
	rows      [][]any
	discarded bool
}

func (f *fakeStream) Fields() []string { return f.fields }

func (f *fakeStream) Next(ctx context.Context) ([]any, bool, error) {
	if len(f.rows) == 0 {
		return nil, false, nil
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row, true, nil
}

func (f *fakeStream) Discard(ctx context.Context) error {
	f.discarded = true
	f.rows = nil
	return nil
}

func (f *fakeStream) Summary() map[string]any { return map[string]any{} }

func TestOpenAndLookupStreamByExplicitQid(t *testing.T) {
	s := New("conn-1", "127.0.0.1:1234")
	qid := s.OpenStream(&fakeStream{fields: []string{"x"}})
	got, resolved, ok := s.LookupStream(qid)
	if !ok || resolved != qid {
		t.Fatalf("LookupStream(%d) = %v, %d, %v", qid, got, resolved, ok)
	}
}

func TestLookupStreamMinusOneResolvesToMostRecent(t *testing.T) {
	s := New("conn-1", "127.0.0.1:1234")
	s.OpenStream(&fakeStream{fields: []string{"x"}})
	second := s.OpenStream(&fakeStream{fields: []string{"y"}})
	_, resolved, ok := s.LookupStream(-1)
	if !ok || resolved != second {
		t.Fatalf("LookupStream(-1) resolved to %d, want %d", resolved, second)
	}
}

func TestLookupStreamUnknownQidFails(t *testing.T) {
	s := New("conn-1", "127.0.0.1:1234")
	if _, _, ok := s.LookupStream(99); ok {
		t.Error("expected LookupStream on an unopened qid to fail")
	}
}

func TestCloseStreamRemovesIt(t *testing.T) {
	s := New("conn-1", "127.0.0.1:1234")
	qid := s.OpenStream(&fakeStream{fields: []string{"x"}})
	s.CloseStream(qid)
	if _, _, ok := s.LookupStream(qid); ok {
		t.Error("expected LookupStream to fail after CloseStream")
	}
}

func TestDiscardAllStreamsDiscardsEachOpenStream(t *testing.T) {
	s := New("conn-1", "127.0.0.1:1234")
	fs1 := &fakeStream{fields: []string{"x"}}
	fs2 := &fakeStream{fields: []string{"y"}}
	s.OpenStream(fs1)
	s.OpenStream(fs2)
	s.DiscardAllStreams(context.Background())
	if !fs1.discarded || !fs2.discarded {
		t.Error("expected both streams to be discarded")
	}
	if _, _, ok := s.LookupStream(-1); ok {
		t.Error("expected no streams left after DiscardAllStreams")
	}
}

func TestInterruptCancelsInstalledContext(t *testing.T) {
	s := New("conn-1", "127.0.0.1:1234")
	_, cancel := context.WithCancel(context.Background())
	called := false
	s.WithInterrupt(func() { called = true; cancel() })
	s.Interrupt()
	if !called {
		t.Error("expected Interrupt to call the installed cancel function")
	}
}

func TestSetAuthRoundTrip(t *testing.T) {
	s := New("conn-1", "127.0.0.1:1234")
	s.SetAuth(auth.AuthContext{Principal: "neo4j", Scheme: "basic"})
	got := s.Auth()
	if got == nil || got.Principal != "neo4j" {
		t.Fatalf("Auth() = %+v", got)
	}
}
