package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/bolt-proto/boltd/auth"
	"github.com/bolt-proto/boltd/backend"
)

// stream pairs a query id with the backend iterator it came from and the
// field names PULL/DISCARD's caller needs before the first row arrives.
type stream struct {
	qid    int64
	result backend.ResultStream
	fields []string
}

// Session is the server-side state attached to one live connection: the
// state-machine label, the negotiated protocol minor version, the
// authenticated identity (once past Authentication), the open transaction
// (if any), and the qid → stream table §3 describes for PULL/DISCARD to
// address by id. One Session belongs to exactly one connection goroutine
// at a time for message handling, but Interrupt may be called
// concurrently from the connection's reader goroutine and Teardown from
// the idle reaper, so every accessor takes the Session's mutex.
type Session struct {
	ID           string
	RemoteAddr   string
	MinorVersion int

	mu      sync.Mutex
	state   State
	auth    *auth.AuthContext
	backend backend.SessionHandle
	tx      backend.TransactionHandle
	txMode  backend.AccessMode

	streams   map[int64]*stream
	nextQid   int64
	lastQid   int64
	hasStream bool

	cancel context.CancelFunc

	lastActivity time.Time

	closer       io.Closer
	teardownOnce sync.Once
}

// New creates a Session in the Negotiating state; the server moves it to
// Unauthenticated once the version handshake completes.
func New(id, remoteAddr string) *Session {
	return &Session{
		ID:           id,
		RemoteAddr:   remoteAddr,
		state:        StateNegotiating,
		streams:      make(map[int64]*stream),
		lastQid:      -1,
		lastActivity: time.Now(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) IdleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Session) Auth() *auth.AuthContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *Session) SetAuth(ac auth.AuthContext) {
	s.mu.Lock()
	s.auth = &ac
	s.mu.Unlock()
}

func (s *Session) BackendSession() backend.SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

func (s *Session) SetBackendSession(h backend.SessionHandle) {
	s.mu.Lock()
	s.backend = h
	s.mu.Unlock()
}

func (s *Session) Transaction() (backend.TransactionHandle, backend.AccessMode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx, s.txMode, s.tx != nil
}

func (s *Session) SetTransaction(tx backend.TransactionHandle, mode backend.AccessMode) {
	s.mu.Lock()
	s.tx = tx
	s.txMode = mode
	s.mu.Unlock()
}

func (s *Session) ClearTransaction() {
	s.mu.Lock()
	s.tx = nil
	s.mu.Unlock()
}

// RollbackOpenTransaction rolls back and clears the session's current
// transaction, if any; it is a no-op if no transaction is open. RESET and
// connection teardown both call this — §3's Ownership invariant requires
// the core call exactly one of commit/rollback before ever dropping a
// TransactionHandle, and RESET (§4.4: "rolls back any open transaction")
// and an abandoned connection (§5 Cancellation) are the two paths that
// drop one without a client-issued COMMIT/ROLLBACK first.
func (s *Session) RollbackOpenTransaction(ctx context.Context) error {
	s.mu.Lock()
	tx := s.tx
	s.tx = nil
	s.mu.Unlock()
	if tx == nil {
		return nil
	}
	return tx.Rollback(ctx)
}

// SetCloser records the connection's socket so Teardown can close it from
// outside the connection's own goroutine — the idle reaper has only a
// *Session, never the connection that owns it.
func (s *Session) SetCloser(c io.Closer) {
	s.mu.Lock()
	s.closer = c
	s.mu.Unlock()
}

// Teardown rolls back any open transaction, closes the backend session,
// and closes the underlying socket. It is idempotent and safe to call from
// both the connection's own shutdown path and the idle reaper running in a
// different goroutine — whichever gets there first does the work; the
// other's call is a no-op. Errors are returned joined so a caller can log
// them, but teardown always runs to completion regardless of any one step
// failing.
func (s *Session) Teardown(ctx context.Context) error {
	var rollbackErr, closeSessErr, closeConnErr error
	s.teardownOnce.Do(func() {
		rollbackErr = s.RollbackOpenTransaction(ctx)

		s.mu.Lock()
		backendSess, closer := s.backend, s.closer
		s.backend = nil
		s.closer = nil
		s.mu.Unlock()

		if backendSess != nil {
			closeSessErr = backendSess.Close(ctx)
		}
		if closer != nil {
			closeConnErr = closer.Close()
		}
	})
	return errors.Join(rollbackErr, closeSessErr, closeConnErr)
}

// OpenStream registers result under a fresh qid and returns it. -1 always
// addresses the most recently opened stream, so callers never need the
// concrete id unless a client addresses one explicitly in PULL/DISCARD's
// "qid" extra — §3 leaves stream id allocation to the server.
func (s *Session) OpenStream(result backend.ResultStream) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	qid := s.nextQid
	s.nextQid++
	s.streams[qid] = &stream{qid: qid, result: result, fields: result.Fields()}
	s.lastQid = qid
	s.hasStream = true
	return qid
}

// LookupStream resolves qid (-1 meaning "the most recently opened stream")
// to its backend.ResultStream. The bool is false both when no stream with
// that id was ever opened and when it already ran to completion and was
// closed — the caller cannot tell those apart, which is deliberate: both
// cases answer the resolved Open Question in SPEC_FULL.md §9 the same way.
func (s *Session) LookupStream(qid int64) (backend.ResultStream, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if qid == -1 {
		qid = s.lastQid
	}
	st, ok := s.streams[qid]
	if !ok {
		return nil, qid, false
	}
	return st.result, qid, true
}

// CloseStream removes qid from the table once it is fully drained
// (has_more=false) or explicitly discarded.
func (s *Session) CloseStream(qid int64) {
	s.mu.Lock()
	delete(s.streams, qid)
	s.mu.Unlock()
}

// DiscardAllStreams drops every open stream without producing their
// remaining rows, used by RESET (§4.4: a reset abandons all pending
// results) and by connection teardown.
func (s *Session) DiscardAllStreams(ctx context.Context) {
	s.mu.Lock()
	open := make([]*stream, 0, len(s.streams))
	for _, st := range s.streams {
		open = append(open, st)
	}
	s.streams = make(map[int64]*stream)
	s.mu.Unlock()
	for _, st := range open {
		_ = st.result.Discard(ctx)
	}
}

// WithInterrupt installs a cancellation function that Interrupt will call;
// the connection loop installs one covering whatever backend call it is
// about to make on behalf of the current message (typically a PULL's
// batch of Next calls), and clears it again once that call returns.
func (s *Session) WithInterrupt(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// Interrupt cancels whatever backend call is currently running on this
// session's behalf, if any. Safe to call from a different goroutine than
// the one running message handlers — this is what lets a RESET that
// arrives mid-PULL cut a long-running Next() short rather than wait for
// the whole batch to finish, per §4.4 and §8's async-RESET scenario.
func (s *Session) Interrupt() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
