// Package session implements the per-connection Bolt session: the state
// machine of §4.4, the query-id → ResultStream table of §3, and the
// registry of active sessions used for idle reaping (§5, §11). Grounded on
// original_source/src/server/state_machine.rs's ConnectionState, extended
// with the Interrupted state the distilled specification requires for
// asynchronous RESET handling — the Rust reference has no such state and
// treats a failed RESET as fatal, which §4.4 and §8 explicitly override
// (RESET is always accepted; mid-stream RESET is an async interrupt that
// drains outstanding records before returning SUCCESS). That resolution is
// recorded in DESIGN.md's Open Questions section.
package session

import "github.com/bolt-proto/boltd/internal/message"

// State is one node of the per-connection lifecycle in §4.4.
type State int

const (
	StateNegotiating State = iota
	StateUnauthenticated
	StateAuthentication
	StateReady
	StateStreaming
	StateTxReady
	StateTxStreaming
	StateFailed
	StateInterrupted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNegotiating:
		return "Negotiating"
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateAuthentication:
		return "Authentication"
	case StateReady:
		return "Ready"
	case StateStreaming:
		return "Streaming"
	case StateTxReady:
		return "TxReady"
	case StateTxStreaming:
		return "TxStreaming"
	case StateFailed:
		return "Failed"
	case StateInterrupted:
		return "Interrupted"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Accepts reports whether a message with the given client tag is a legal
// inbound message in state s, per the table in §4.4.
func Accepts(s State, tag byte) bool {
	switch s {
	case StateNegotiating:
		return false // handshake bytes are not Bolt structures; handled before the state machine.
	case StateUnauthenticated:
		return tag == message.TagHello
	case StateAuthentication:
		return tag == message.TagLogon
	case StateReady:
		switch tag {
		case message.TagRun, message.TagBegin, message.TagReset, message.TagRoute, message.TagLogoff, message.TagGoodbye, message.TagTelemetry:
			return true
		}
		return false
	case StateStreaming:
		switch tag {
		case message.TagPull, message.TagDiscard, message.TagReset, message.TagGoodbye:
			return true
		}
		return false
	case StateTxReady:
		switch tag {
		case message.TagRun, message.TagCommit, message.TagRollback, message.TagReset, message.TagGoodbye:
			return true
		}
		return false
	case StateTxStreaming:
		switch tag {
		case message.TagPull, message.TagDiscard, message.TagRun, message.TagCommit, message.TagRollback, message.TagReset, message.TagGoodbye:
			return true
		}
		return false
	case StateFailed, StateInterrupted:
		return tag == message.TagReset || tag == message.TagGoodbye
	case StateClosed:
		return false
	default:
		return false
	}
}

// TransitionSuccess returns the state to move to after tag is handled
// without error. PULL and DISCARD are handled as an identity transition
// here — whether a stream completes (Streaming→Ready, TxStreaming→TxReady)
// depends on has_more, which the connection layer determines after
// draining the backend; see CompleteStreaming.
func TransitionSuccess(s State, tag byte) State {
	if tag == message.TagReset {
		return StateReady
	}
	if tag == message.TagGoodbye {
		return StateClosed
	}
	switch s {
	case StateUnauthenticated:
		if tag == message.TagHello {
			return StateAuthentication
		}
	case StateAuthentication:
		if tag == message.TagLogon {
			return StateReady
		}
	case StateReady:
		switch tag {
		case message.TagRun:
			return StateStreaming
		case message.TagBegin:
			return StateTxReady
		case message.TagLogoff:
			return StateAuthentication
		case message.TagRoute, message.TagTelemetry:
			return StateReady
		}
	case StateTxReady:
		switch tag {
		case message.TagRun:
			return StateTxStreaming
		case message.TagCommit, message.TagRollback:
			return StateReady
		}
	case StateTxStreaming:
		switch tag {
		case message.TagCommit, message.TagRollback:
			return StateReady
		}
	}
	return s
}

// CompleteStreaming transitions a stream-bearing state back to its
// non-streaming counterpart once a PULL/DISCARD batch exhausts its
// result stream (has_more=false). Grounded on
// original_source/state_machine.rs's complete_streaming().
func CompleteStreaming(s State) State {
	switch s {
	case StateStreaming:
		return StateReady
	case StateTxStreaming:
		return StateTxReady
	default:
		return s
	}
}

// TransitionFailure returns the state to move to after tag's handler
// returns an error: Closed for GOODBYE, Failed for every other tag. A
// fatal framing-level error is not a tag's failure; the caller handles it
// by closing the connection outright rather than consulting this function.
func TransitionFailure(tag byte) State {
	if tag == message.TagGoodbye {
		return StateClosed
	}
	return StateFailed
}
