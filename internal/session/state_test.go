package session

import (
	"testing"

	"github.com/bolt-proto/boltd/internal/message"
)

func TestNegotiationAcceptsNothing(t *testing.T) {
	if Accepts(StateNegotiating, message.TagHello) {
		t.Error("Negotiating must not accept any message; HELLO arrives only after the handshake completes")
	}
}

func TestUnauthenticatedAcceptsOnlyHello(t *testing.T) {
	if !Accepts(StateUnauthenticated, message.TagHello) {
		t.Error("Unauthenticated should accept HELLO")
	}
	if Accepts(StateUnauthenticated, message.TagRun) {
		t.Error("Unauthenticated should reject RUN")
	}
}

func TestAuthenticationAcceptsLogonNotGoodbye(t *testing.T) {
	if !Accepts(StateAuthentication, message.TagLogon) {
		t.Error("Authentication should accept LOGON")
	}
	if Accepts(StateAuthentication, message.TagGoodbye) {
		t.Error("Authentication should not accept GOODBYE per §4.4's table")
	}
}

func TestReadyStateTransitions(t *testing.T) {
	if got := TransitionSuccess(StateReady, message.TagRun); got != StateStreaming {
		t.Errorf("Ready+RUN = %v, want Streaming", got)
	}
	if got := TransitionSuccess(StateReady, message.TagBegin); got != StateTxReady {
		t.Errorf("Ready+BEGIN = %v, want TxReady", got)
	}
}

func TestStreamingToReadyOnCompletion(t *testing.T) {
	if got := CompleteStreaming(StateStreaming); got != StateReady {
		t.Errorf("CompleteStreaming(Streaming) = %v, want Ready", got)
	}
	if got := CompleteStreaming(StateTxStreaming); got != StateTxReady {
		t.Errorf("CompleteStreaming(TxStreaming) = %v, want TxReady", got)
	}
}

func TestTxFlow(t *testing.T) {
	s := StateReady
	s = TransitionSuccess(s, message.TagBegin)
	if s != StateTxReady {
		t.Fatalf("after BEGIN: %v", s)
	}
	s = TransitionSuccess(s, message.TagRun)
	if s != StateTxStreaming {
		t.Fatalf("after RUN: %v", s)
	}
	s = CompleteStreaming(s)
	if s != StateTxReady {
		t.Fatalf("after stream completion: %v", s)
	}
	s = TransitionSuccess(s, message.TagCommit)
	if s != StateReady {
		t.Fatalf("after COMMIT: %v", s)
	}
}

func TestFailedStateOnlyAcceptsResetAndGoodbye(t *testing.T) {
	if !Accepts(StateFailed, message.TagReset) {
		t.Error("Failed should accept RESET")
	}
	if !Accepts(StateFailed, message.TagGoodbye) {
		t.Error("Failed should accept GOODBYE")
	}
	if Accepts(StateFailed, message.TagRun) {
		t.Error("Failed should reject RUN (caller must reply IGNORED, not route it through)")
	}
}

func TestFailureTransitionsToFailed(t *testing.T) {
	if got := TransitionFailure(message.TagRun); got != StateFailed {
		t.Errorf("TransitionFailure(RUN) = %v, want Failed", got)
	}
}

func TestResetFromFailedReturnsToReady(t *testing.T) {
	if got := TransitionSuccess(StateFailed, message.TagReset); got != StateReady {
		t.Errorf("Failed+RESET success = %v, want Ready", got)
	}
}

func TestInterruptedStateMirrorsFailed(t *testing.T) {
	if !Accepts(StateInterrupted, message.TagReset) {
		t.Error("Interrupted should accept RESET")
	}
	if Accepts(StateInterrupted, message.TagPull) {
		t.Error("Interrupted should reject PULL")
	}
}
