// Package server wires the PackStream/chunk/message/session layers into a
// runnable TCP (optionally TLS) listener: version negotiation, the
// per-connection read/dispatch loop, graceful shutdown, and Prometheus
// metrics (§5, §11). Grounded on original_source/src/server/handshake.rs
// and connection.rs/builder.rs for structure, re-expressed with Go's
// net.Listener/context idioms in place of the Rust reference's async
// runtime.
package server

import (
	"bufio"
	"fmt"
	"io"
)

// boltMagic opens every Bolt connection before any version word.
var boltMagic = [4]byte{0x60, 0x60, 0xB0, 0x17}

// MinSupportedMinor and MaxSupportedMinor bound the v5.x range this server
// negotiates, per §1's Non-goals (no pre-5.1/post-5.4 support).
const (
	supportedMajor     = 5
	MinSupportedMinor  = 1
	MaxSupportedMinor  = 4
)

// ErrHandshakeFailed covers any malformed or non-overlapping handshake;
// per §4.4 this is always fatal, never a recoverable FAILURE.
type ErrHandshakeFailed struct{ Reason string }

func (e *ErrHandshakeFailed) Error() string { return "handshake failed: " + e.Reason }

// NegotiateVersion reads the magic bytes and up to four proposed version
// words from br, replies with the highest mutually supported (major,
// minor) on w, and returns the negotiated minor version. The caller
// supplies br rather than a bare io.Reader so the connection loop can keep
// reading chunk-framed messages from the same buffered reader afterward —
// a fresh bufio.Reader here would silently drop any bytes it had already
// buffered past the handshake. A word's range byte extends its minor
// downward: a word proposing (major=5, minor=4, range=3) offers 5.1
// through 5.4, matching how real Bolt clients pack a contiguous span of
// server versions into one word instead of sending one word per version.
func NegotiateVersion(br *bufio.Reader, w io.Writer) (int, error) {
	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return 0, &ErrHandshakeFailed{Reason: "short read on magic bytes"}
	}
	if magic != boltMagic {
		return 0, &ErrHandshakeFailed{Reason: fmt.Sprintf("bad magic %x", magic)}
	}

	bestMinor := -1
	for i := 0; i < 4; i++ {
		var word [4]byte
		if _, err := io.ReadFull(br, word[:]); err != nil {
			return 0, &ErrHandshakeFailed{Reason: "short read on version word"}
		}
		major, minor, rng := word[3], word[2], word[1]
		if major == 0 && minor == 0 && rng == 0 {
			continue // padding word, client proposes fewer than four.
		}
		if major != supportedMajor {
			continue
		}
		for m := int(minor) - int(rng); m <= int(minor); m++ {
			if m < MinSupportedMinor || m > MaxSupportedMinor {
				continue
			}
			if m > bestMinor {
				bestMinor = m
			}
		}
	}

	if bestMinor < 0 {
		if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
			return 0, err
		}
		return 0, &ErrHandshakeFailed{Reason: "no mutually supported version"}
	}

	reply := make([]byte, 4)
	reply[3] = supportedMajor
	reply[2] = byte(bestMinor)
	if _, err := w.Write(reply); err != nil {
		return 0, err
	}
	return bestMinor, nil
}
