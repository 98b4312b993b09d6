// Package bolterr defines the error vocabulary shared by every layer of the
// Bolt server: the wire-level dotted error code carried in FAILURE metadata,
// and the handful of non-wire error kinds (Io, Protocol, Resource, Shutdown)
// that decide whether a connection can recover via RESET or must close.
package bolterr

import (
	"errors"
	"fmt"
	"strings"
)

// Classification is the second dotted segment of a Neo4j-style error code,
// e.g. "ClientError" in "Neo.ClientError.Security.Unauthorized".
type Classification string

const (
	ClientError    Classification = "ClientError"
	TransientError Classification = "TransientError"
	DatabaseError  Classification = "DatabaseError"
	Unknown        Classification = "Unknown"
)

// Kind distinguishes error handling paths that do not have a wire
// representation of their own (§7 of the specification): whether a FAILURE
// can be sent at all, and whether the connection survives it.
type Kind int

const (
	// KindSerialization is bad PackStream or message structure on an
	// otherwise live connection: FAILURE is sent, session enters Failed.
	KindSerialization Kind = iota
	// KindAuth covers LOGON/HELLO rejection.
	KindAuth
	// KindBackend wraps a backend-supplied error as-is.
	KindBackend
	// KindProtocol is a framing, request or state-machine violation. A
	// framing violation gets a best-effort FAILURE, then close; an invalid
	// request (ErrInvalidRequest) gets a FAILURE and the session enters
	// Failed.
	KindProtocol
	// KindResource is exhaustion of a configured limit (message too
	// large): FAILURE, then close.
	KindResource
	// KindIo is a socket-level failure: no FAILURE can be sent.
	KindIo
	// KindShutdown is graceful termination: no FAILURE is emitted.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindSerialization:
		return "serialization"
	case KindAuth:
		return "auth"
	case KindBackend:
		return "backend"
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	case KindIo:
		return "io"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is the core error type. Code is the dotted Neo4j-style string sent
// verbatim in FAILURE metadata; Kind labels the error's category. The
// connection layer does not branch on Kind: it closes after read-side
// errors (framing, oversized message) and otherwise moves the session to
// Failed. GqlStatus/Description/Diagnostic are the
// v5.x GQL-preview extensions mentioned in §6; all three are optional.
type Error struct {
	Kind        Kind
	Code        string
	Msg         string
	GqlStatus   string
	Description string
	Diagnostic  map[string]any
	cause       error
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Wrap(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Classification parses the second dotted segment of Code. A malformed code
// (fewer than four segments, or not prefixed "Neo.") classifies as Unknown.
func (e *Error) Classification() Classification {
	parts := strings.Split(e.Code, ".")
	if len(parts) != 4 || parts[0] != "Neo" {
		return Unknown
	}
	switch parts[1] {
	case "ClientError":
		return ClientError
	case "TransientError":
		return TransientError
	case "DatabaseError":
		return DatabaseError
	default:
		return Unknown
	}
}

// Category is the third dotted segment, e.g. "Security" in
// "Neo.ClientError.Security.Unauthorized".
func (e *Error) Category() string {
	parts := strings.Split(e.Code, ".")
	if len(parts) != 4 {
		return ""
	}
	return parts[2]
}

// Title is the fourth dotted segment, e.g. "Unauthorized".
func (e *Error) Title() string {
	parts := strings.Split(e.Code, ".")
	if len(parts) != 4 {
		return ""
	}
	return parts[3]
}

// ToFailureMetadata renders the error as the dict carried by a FAILURE
// message (§6): always code + message, plus the GQL extensions when present.
func (e *Error) ToFailureMetadata() map[string]any {
	md := map[string]any{
		"code":    e.Code,
		"message": e.Msg,
	}
	if e.GqlStatus != "" {
		md["gql_status"] = e.GqlStatus
	}
	if e.Description != "" {
		md["description"] = e.Description
	}
	if e.Diagnostic != nil {
		md["diagnostic_record"] = e.Diagnostic
	}
	return md
}

// Common, frequently constructed codes.
var (
	ErrUnauthorized = New(KindAuth, "Neo.ClientError.Security.Unauthorized", "the client is unauthorized due to authentication failure")
	ErrInvalidRequest = func(msg string) *Error {
		return New(KindProtocol, "Neo.ClientError.Request.Invalid", msg)
	}
	// ErrMessageTooLarge is sent, per §7's recovery rule, as a best-effort
	// FAILURE immediately before closing a connection whose message
	// exceeded the configured maximum size.
	ErrMessageTooLarge = func(limit int) *Error {
		return New(KindResource, "Neo.ClientError.Request.TooLarge", fmt.Sprintf("message exceeds maximum size of %d bytes", limit))
	}
	// ErrFramingViolation covers malformed chunk framing severe enough that
	// the connection cannot continue (e.g. the socket closed mid-message);
	// also sent as a best-effort FAILURE before closing, per §7.
	ErrFramingViolation = func(msg string) *Error {
		return New(KindProtocol, "Neo.ClientError.Request.Invalid", msg)
	}
	// ErrRouteNotSupported answers ROUTE when the backend has no routing
	// capability to call, per §6 ("absent ⇒ feature rejected").
	ErrRouteNotSupported = New(KindBackend, "Neo.ClientError.Statement.NotSupported", "this server does not support ROUTE")
)

// As reports whether err, or any error it wraps, is a *Error and, if so,
// returns it; a thin convenience wrapper over errors.As for call sites that
// only care about the Bolt error shape.
func As(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
