package message

import (
	"bytes"
	"fmt"

	"github.com/bolt-proto/boltd/boltvalue"
	"github.com/bolt-proto/boltd/internal/packstream"
)

// Encode serialises one server message as a single PackStream structure.
// Grounded on the teacher's message_queue.go append* methods, which each
// pair a fixed tag with a fixed positional field list; here that pairing
// is a single type switch instead of one append method per message, since
// the server side has far fewer outbound message shapes than the client
// driver's inbound ones.
func Encode(buf *bytes.Buffer, msg ServerMessage) error {
	p := packstream.NewPacker(buf, boltvalue.Dehydrate)
	switch m := msg.(type) {
	case Success:
		return p.PackStruct(TagSuccess, []any{anyMap(m.Metadata)})
	case Record:
		return p.PackStruct(TagRecord, []any{m.Fields})
	case Ignored:
		return p.PackStruct(TagIgnored, nil)
	case Failure:
		return p.PackStruct(TagFailure, []any{anyMap(m.Metadata)})
	default:
		return fmt.Errorf("message: unknown server message type %T", msg)
	}
}

func anyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Decode parses a fully reassembled chunk payload into a ClientMessage.
// Grounded on the teacher's message_queue.go receive(), which type-switches
// a decoded value by its concrete Go type; here the dispatch instead keys
// off the structure tag directly, matching §4.3's fixed-tag table.
func Decode(buf []byte) (ClientMessage, error) {
	u := packstream.NewUnpacker(buf, boltvalue.Hydrate)
	tag, fields, err := u.UnpackMessageStruct()
	if err != nil {
		return nil, err
	}
	return decodeStruct(tag, fields)
}

func decodeStruct(tag byte, fields []any) (ClientMessage, error) {
	switch tag {
	case TagHello:
		extra, err := dict(fields, 0, "HELLO")
		if err != nil {
			return nil, err
		}
		return Hello{Extra: extra}, nil
	case TagLogon:
		auth, err := dict(fields, 0, "LOGON")
		if err != nil {
			return nil, err
		}
		return Logon{Auth: auth}, nil
	case TagLogoff:
		return Logoff{}, nil
	case TagGoodbye:
		return Goodbye{}, nil
	case TagReset:
		return Reset{}, nil
	case TagRun:
		if len(fields) != 3 {
			return nil, fmt.Errorf("message: RUN expects 3 fields, got %d", len(fields))
		}
		query, ok := fields[0].(string)
		if !ok {
			return nil, fmt.Errorf("message: RUN query field is not a string (%T)", fields[0])
		}
		params, err := dict(fields, 1, "RUN")
		if err != nil {
			return nil, err
		}
		extra, err := dict(fields, 2, "RUN")
		if err != nil {
			return nil, err
		}
		return Run{Query: query, Parameters: params, Extra: extra}, nil
	case TagPull:
		extra, err := dict(fields, 0, "PULL")
		if err != nil {
			return nil, err
		}
		return Pull{Extra: extra}, nil
	case TagDiscard:
		extra, err := dict(fields, 0, "DISCARD")
		if err != nil {
			return nil, err
		}
		return Discard{Extra: extra}, nil
	case TagBegin:
		extra, err := dict(fields, 0, "BEGIN")
		if err != nil {
			return nil, err
		}
		return Begin{Extra: extra}, nil
	case TagCommit:
		return Commit{}, nil
	case TagRollback:
		return Rollback{}, nil
	case TagTelemetry:
		metrics, err := dict(fields, 0, "TELEMETRY")
		if err != nil {
			return nil, err
		}
		return Telemetry{Metrics: metrics}, nil
	case TagRoute:
		if len(fields) != 3 {
			return nil, fmt.Errorf("message: ROUTE expects 3 fields, got %d", len(fields))
		}
		routing, err := dict(fields, 0, "ROUTE")
		if err != nil {
			return nil, err
		}
		bookmarks, err := stringList(fields[1])
		if err != nil {
			return nil, fmt.Errorf("message: ROUTE bookmarks: %w", err)
		}
		extra, err := dict(fields, 2, "ROUTE")
		if err != nil {
			return nil, err
		}
		return Route{Routing: routing, Bookmarks: bookmarks, Extra: extra}, nil
	default:
		return nil, fmt.Errorf("message: unrecognised client structure tag %#x", tag)
	}
}

func dict(fields []any, idx int, msgName string) (map[string]any, error) {
	if idx >= len(fields) {
		return nil, fmt.Errorf("message: %s is missing field %d", msgName, idx)
	}
	if fields[idx] == nil {
		return map[string]any{}, nil
	}
	m, ok := fields[idx].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("message: %s field %d is not a dict (%T)", msgName, idx, fields[idx])
	}
	return m, nil
}

func stringList(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	out := make([]string, len(raw))
	for i, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected string at index %d, got %T", i, e)
		}
		out[i] = s
	}
	return out, nil
}
