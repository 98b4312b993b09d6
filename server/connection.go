package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/bolt-proto/boltd/auth"
	"github.com/bolt-proto/boltd/backend"
	"github.com/bolt-proto/boltd/bolterr"
	"github.com/bolt-proto/boltd/internal/chunk"
	"github.com/bolt-proto/boltd/internal/message"
	"github.com/bolt-proto/boltd/internal/session"
	"github.com/bolt-proto/boltd/internal/wirelog"
)

// interruptCheckStride is how many rows a PULL/DISCARD drain pulls from the
// backend between checks of its cancellable context, so a RESET arriving
// mid-stream cuts the batch short promptly rather than
// waiting for a quota of -1 ("all") to finish against a very large
// result. Grounded on §8's async-RESET scenario.
const interruptCheckStride = 64

// connection owns one accepted socket end to end: handshake, the
// session state machine, and the read-dispatch-write loop. Grounded on
// original_source/src/server/connection.rs's Connection::run, restructured
// from that reference's actor-per-connection model into two goroutines:
// one reads and decodes off the wire, the other dispatches and writes.
// §4.4's ordering guarantee only requires that dispatch and writes stay
// strictly sequential, which a single dispatch goroutine already gives;
// the dedicated reader exists so a pipelined RESET's bytes are decoded,
// and its async-interrupt effect (§4.4, §8) fired, the instant they
// arrive off the socket — independent of whatever the dispatch goroutine
// is currently blocked on inside a PULL's drain.
type connection struct {
	conn    net.Conn
	br      *bufio.Reader
	cw      *chunk.Writer
	sess    *session.Session
	backend backend.BoltBackend
	auth    auth.Validator
	log     *slog.Logger
	maxMsg  int

	// pending holds one row already pulled from a stream while answering
	// a prior PULL/DISCARD's exact quota, kept here so the next PULL sees
	// it first instead of it being silently dropped. ResultStream has no
	// peek of its own, so this is how the connection determines has_more
	// precisely rather than guessing at the quota boundary.
	pending map[int64][]any
}

// readResult is one item handed from readLoop to run: either a decoded
// client message, a recoverable decode error (bad PackStream inside an
// otherwise intact chunk stream), or a terminal read error that ends the
// connection.
type readResult struct {
	msg       message.ClientMessage
	decodeErr error
	err       error
}

func (c *connection) run(ctx context.Context) {
	defer func() {
		if err := c.sess.Teardown(context.Background()); err != nil {
			c.log.Debug("teardown error", "err", err)
		}
	}()

	minor, err := NegotiateVersion(c.br, c.conn)
	if err != nil {
		c.log.Debug("handshake failed", "err", err)
		return
	}
	c.sess.MinorVersion = minor
	c.sess.SetState(session.StateUnauthenticated)
	c.log.Info("handshake complete", "minor", minor)

	cr := chunk.NewReader(c.br, c.maxMsg)
	results := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go c.readLoop(cr, results, done)

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-results:
			c.sess.Touch()
			switch {
			case r.err != nil:
				c.handleReadError(ctx, r.err)
				return
			case r.decodeErr != nil:
				c.fail(ctx, bolterr.ErrInvalidRequest(r.decodeErr.Error()))
			default:
				if shouldClose := c.dispatch(ctx, r.msg); shouldClose {
					return
				}
			}
		}
	}
}

// readLoop reads and decodes messages off the wire on its own goroutine so
// a RESET's asynchronous-interrupt effect (§4.4, §8) fires the instant its
// bytes arrive, rather than waiting for whatever the dispatch goroutine in
// run is currently blocked on (typically a PULL's drain). done is closed by
// run on its way out so this goroutine doesn't leak blocked on a send that
// nobody will ever receive.
func (c *connection) readLoop(cr *chunk.Reader, results chan<- readResult, done <-chan struct{}) {
	for {
		raw, err := cr.ReadMessage()
		if err != nil {
			select {
			case results <- readResult{err: err}:
			case <-done:
			}
			return
		}

		msg, decodeErr := message.Decode(raw)
		if decodeErr == nil {
			if _, ok := msg.(message.Reset); ok {
				// Interrupt whatever backend call the dispatch goroutine is
				// currently blocked on behalf of the session, before RESET
				// even reaches the dispatch queue.
				c.sess.Interrupt()
			}
		}

		select {
		case results <- readResult{msg: msg, decodeErr: decodeErr}:
		case <-done:
			return
		}
	}
}

// handleReadError answers a terminal read error per §7's recovery rule: a
// clean close (io.EOF before any chunk was read) gets no response, but
// anything that threatens framing integrity gets a best-effort FAILURE
// before the connection closes.
func (c *connection) handleReadError(ctx context.Context, err error) {
	var tooLarge *chunk.MessageTooLargeError
	var unexpectedEOF *chunk.UnexpectedEOFError
	switch {
	case errors.Is(err, io.EOF):
		c.log.Debug("connection closed by peer")
	case errors.As(err, &tooLarge):
		c.fail(ctx, bolterr.ErrMessageTooLarge(tooLarge.Limit))
	case errors.As(err, &unexpectedEOF):
		c.fail(ctx, bolterr.ErrFramingViolation("connection closed mid-message"))
	default:
		c.log.Debug("connection closed reading message", "err", err)
	}
}

// dispatch routes one decoded message through the session state machine
// and into the backend, writing exactly one response sequence (a SUCCESS,
// optionally preceded by RECORDs, or a FAILURE or IGNORED) before
// returning; GOODBYE gets no response. It reports whether the connection
// should now close.
func (c *connection) dispatch(ctx context.Context, msg message.ClientMessage) bool {
	tag := msg.ClientTag()
	st := c.sess.State()
	c.log.Debug("received message", wirelog.ClientMessage(msg))

	if !session.Accepts(st, tag) {
		if st == session.StateFailed || st == session.StateInterrupted {
			c.send(message.Ignored{})
			return false
		}
		c.fail(ctx, bolterr.ErrInvalidRequest(fmt.Sprintf("message not valid in state %v", st)))
		return false
	}

	switch m := msg.(type) {
	case message.Hello:
		c.handleHello(ctx, m)
	case message.Logon:
		c.handleLogon(ctx, m)
	case message.Logoff:
		c.handleLogoff(ctx)
	case message.Goodbye:
		return true
	case message.Reset:
		c.handleReset(ctx)
	case message.Run:
		c.handleRun(ctx, m)
	case message.Pull:
		c.handlePullOrDiscard(ctx, m.Extra, false)
	case message.Discard:
		c.handlePullOrDiscard(ctx, m.Extra, true)
	case message.Begin:
		c.handleBegin(ctx, m)
	case message.Commit:
		c.handleCommitOrRollback(ctx, true)
	case message.Rollback:
		c.handleCommitOrRollback(ctx, false)
	case message.Telemetry:
		c.send(message.Success{Metadata: map[string]any{}})
	case message.Route:
		c.handleRoute(ctx, m)
	default:
		c.fail(ctx, bolterr.ErrInvalidRequest(fmt.Sprintf("unhandled message type %T", msg)))
	}
	return false
}

func (c *connection) handleHello(ctx context.Context, m message.Hello) {
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), message.TagHello))
	c.send(message.Success{Metadata: map[string]any{
		"server":        "boltd/1.0",
		"connection_id": c.sess.ID,
	}})
}

func (c *connection) handleLogon(ctx context.Context, m message.Logon) {
	creds := backend.AuthCredentials{
		Scheme:      message.ExtraString(m.Auth, "scheme"),
		Principal:   message.ExtraString(m.Auth, "principal"),
		Credentials: message.ExtraString(m.Auth, "credentials"),
		Realm:       message.ExtraString(m.Auth, "realm"),
		Extra:       m.Auth,
	}
	ac, err := c.auth.Validate(ctx, creds)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sess.SetAuth(ac)
	sessHandle, err := c.backend.OpenSession(ctx, creds, backend.SessionConfig{})
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sess.SetBackendSession(sessHandle)
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), message.TagLogon))
	c.send(message.Success{Metadata: map[string]any{}})
}

func (c *connection) handleLogoff(ctx context.Context) {
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), message.TagLogoff))
	c.send(message.Success{Metadata: map[string]any{}})
}

func (c *connection) handleReset(ctx context.Context) {
	c.sess.Interrupt()
	c.sess.DiscardAllStreams(ctx)
	if err := c.sess.RollbackOpenTransaction(ctx); err != nil {
		c.log.Warn("rollback on reset failed", "err", err)
	}
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), message.TagReset))
	c.send(message.Success{Metadata: map[string]any{}})
}

func (c *connection) handleRun(ctx context.Context, m message.Run) {
	tx, _, _ := c.sess.Transaction()
	stream, err := c.backend.Run(ctx, c.sess.BackendSession(), tx, m.Query, m.Parameters)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	qid := c.sess.OpenStream(stream)
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), message.TagRun))
	c.send(message.Success{Metadata: map[string]any{
		"fields": stream.Fields(),
		"qid":    qid,
	}})
}

func (c *connection) handlePullOrDiscard(ctx context.Context, extra map[string]any, discard bool) {
	qidReq := message.ExtraInt(extra, "qid", -1)
	n := message.ExtraInt(extra, "n", -1)

	stream, qid, ok := c.sess.LookupStream(qidReq)
	if !ok {
		c.fail(ctx, bolterr.ErrInvalidRequest(fmt.Sprintf("no open result stream for qid %d", qidReq)))
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.sess.WithInterrupt(cancel)
	defer func() { c.sess.WithInterrupt(nil); cancel() }()

	hasMore, err := c.drain(streamCtx, qid, stream, n, discard)
	if err != nil {
		if streamCtx.Err() != nil {
			c.sess.SetState(session.StateInterrupted)
			c.send(message.Success{Metadata: map[string]any{"has_more": false}})
			return
		}
		c.fail(ctx, err)
		return
	}

	if !hasMore {
		c.sess.CloseStream(qid)
		delete(c.pending, qid)
		c.sess.SetState(session.CompleteStreaming(c.sess.State()))
	}
	summary := stream.Summary()
	summary["has_more"] = hasMore
	c.send(message.Success{Metadata: summary})
}

// drain pulls up to n rows (n<0 meaning "all") from stream, sending a
// RECORD per row unless discard is set, checking ctx between batches of
// interruptCheckStride rows so a cancelled RESET cuts a large quota
// short. To report has_more precisely at the exact quota boundary, it
// pulls one extra row past the quota and, if the stream still had one,
// stashes it in c.pending for the next PULL/DISCARD on this qid instead
// of sending or discarding it early.
func (c *connection) drain(ctx context.Context, qid int64, stream backend.ResultStream, n int64, discard bool) (hasMore bool, err error) {
	next := func() ([]any, bool, error) {
		if row, ok := c.pending[qid]; ok {
			delete(c.pending, qid)
			return row, true, nil
		}
		return stream.Next(ctx)
	}

	var pulled int64
	for n < 0 || pulled < n {
		if pulled%interruptCheckStride == 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			default:
			}
		}
		row, ok, err := next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if !discard {
			c.send(message.Record{Fields: row})
		}
		pulled++
	}

	row, ok, err := next()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if c.pending == nil {
		c.pending = make(map[int64][]any)
	}
	c.pending[qid] = row
	return true, nil
}

func (c *connection) handleBegin(ctx context.Context, m message.Begin) {
	mode := backend.AccessModeWrite
	if message.ExtraString(m.Extra, "mode") == "r" {
		mode = backend.AccessModeRead
	}
	cfg := backend.TransactionConfig{
		Mode:     mode,
		Database: message.ExtraString(m.Extra, "db"),
		Metadata: m.Extra,
	}
	tx, err := c.backend.Begin(ctx, c.sess.BackendSession(), cfg)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sess.SetTransaction(tx, mode)
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), message.TagBegin))
	c.send(message.Success{Metadata: map[string]any{}})
}

func (c *connection) handleCommitOrRollback(ctx context.Context, commit bool) {
	tx, _, ok := c.sess.Transaction()
	if !ok {
		c.fail(ctx, bolterr.ErrInvalidRequest("no open transaction"))
		return
	}
	md := map[string]any{}
	var err error
	if commit {
		var bookmark string
		bookmark, err = tx.Commit(ctx)
		if err == nil && bookmark != "" {
			md["bookmark"] = bookmark
		}
	} else {
		err = tx.Rollback(ctx)
	}
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sess.ClearTransaction()
	tag := message.TagCommit
	if !commit {
		tag = message.TagRollback
	}
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), tag))
	c.send(message.Success{Metadata: md})
}

func (c *connection) handleRoute(ctx context.Context, m message.Route) {
	router, ok := c.backend.(backend.RoutingBackend)
	if !ok {
		c.fail(ctx, bolterr.ErrRouteNotSupported)
		return
	}
	db := message.ExtraString(m.Extra, "db")
	rt, err := router.Route(ctx, c.sess.BackendSession(), m.Routing, m.Bookmarks, db)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.sess.SetState(session.TransitionSuccess(c.sess.State(), message.TagRoute))
	c.send(message.Success{Metadata: map[string]any{"rt": rt}})
}

func (c *connection) send(msg message.ServerMessage) {
	buf := &bytes.Buffer{}
	if err := message.Encode(buf, msg); err != nil {
		c.log.Error("encode failed", "err", err)
		return
	}
	c.log.Debug("sending message", wirelog.ServerMessage(msg))
	if err := c.cw.WriteMessage(buf.Bytes()); err != nil {
		c.log.Debug("write failed", "err", err)
	}
}

// fail sends a FAILURE for err and transitions the session per §4.4's
// recovery rule: any message-handling error moves the session to Failed,
// from which only RESET or GOODBYE is accepted until the client recovers.
func (c *connection) fail(ctx context.Context, err error) {
	be, ok := bolterr.As(err)
	if !ok {
		be = bolterr.Wrap(bolterr.KindBackend, "Neo.DatabaseError.General.UnknownError", err.Error(), err)
	}
	c.sess.SetState(session.StateFailed)
	c.send(message.Failure{Metadata: be.ToFailureMetadata()})
}

