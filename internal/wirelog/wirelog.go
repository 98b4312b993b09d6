// Package wirelog adapts Bolt messages into slog attributes for per-message
// trace logging (§10), redacting credentials the way the teacher's
// internal/bolt/bolt_logging.go redacts the "credentials" key before
// anything reaches a log sink. Where the teacher builds ad-hoc String()
// wrappers around each message struct, this package leans on
// slog.LogValuer so the redaction happens lazily, only when a handler's
// level actually asks for the value.
package wirelog

import (
	"log/slog"
	"strings"

	"github.com/bolt-proto/boltd/internal/message"
)

// Dict makes a credential-redacting slog.LogValuer out of any extra/auth
// map a client message carries. Grounded on bolt_logging.go's
// copyAndSanitizeDictionary, generalised from its single hard-coded
// "credentials" key to every key this package is told to redact.
type Dict struct {
	M       map[string]any
	Redact  []string
}

var defaultRedact = []string{"credentials", "password"}

func (d Dict) LogValue() slog.Value {
	if d.M == nil {
		return slog.Value{}
	}
	redact := d.Redact
	if redact == nil {
		redact = defaultRedact
	}
	attrs := make([]slog.Attr, 0, len(d.M))
	for k, v := range d.M {
		if containsFold(redact, k) {
			attrs = append(attrs, slog.String(k, "<redacted>"))
			continue
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

// ClientMessage renders a decoded client message as a slog.Attr group
// suitable for a single trace log line per inbound message, with any
// auth/extra dict passed through Dict's redaction.
func ClientMessage(msg message.ClientMessage) slog.Attr {
	switch m := msg.(type) {
	case message.Hello:
		return slog.Group("hello", "extra", Dict{M: m.Extra})
	case message.Logon:
		return slog.Group("logon", "auth", Dict{M: m.Auth})
	case message.Run:
		return slog.Group("run", "query", m.Query, "extra", Dict{M: m.Extra})
	case message.Pull:
		return slog.Group("pull", "extra", Dict{M: m.Extra})
	case message.Discard:
		return slog.Group("discard", "extra", Dict{M: m.Extra})
	case message.Begin:
		return slog.Group("begin", "extra", Dict{M: m.Extra})
	case message.Route:
		return slog.Group("route", "bookmarks", m.Bookmarks, "extra", Dict{M: m.Extra})
	case message.Telemetry:
		return slog.Group("telemetry", "metrics", Dict{M: m.Metrics})
	default:
		return slog.String("message", messageName(msg))
	}
}

func messageName(msg message.ClientMessage) string {
	switch msg.(type) {
	case message.Logoff:
		return "LOGOFF"
	case message.Goodbye:
		return "GOODBYE"
	case message.Reset:
		return "RESET"
	case message.Commit:
		return "COMMIT"
	case message.Rollback:
		return "ROLLBACK"
	default:
		return "UNKNOWN"
	}
}

// ServerMessage renders an outbound message the same way, for the
// matching trace line on the write side.
func ServerMessage(msg message.ServerMessage) slog.Attr {
	switch m := msg.(type) {
	case message.Success:
		return slog.Group("success", "metadata", Dict{M: m.Metadata})
	case message.Failure:
		return slog.Group("failure", "metadata", Dict{M: m.Metadata})
	case message.Record:
		return slog.Int("record_fields", len(m.Fields))
	case message.Ignored:
		return slog.String("message", "IGNORED")
	default:
		return slog.String("message", "UNKNOWN")
	}
}
