package packstream

import "fmt"

// InvalidMarkerError is returned when a byte does not match any marker in
// the table of §4.1.
type InvalidMarkerError struct {
	Marker byte
}

func (e *InvalidMarkerError) Error() string {
	return fmt.Sprintf("packstream: invalid marker byte %#x", e.Marker)
}

// TruncatedInputError is returned when the reader runs out of bytes before
// a value's declared length is satisfied.
type TruncatedInputError struct {
	Wanted int
	Got    int
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("packstream: truncated input, wanted %d bytes, got %d", e.Wanted, e.Got)
}

// InvalidUTF8Error is returned when a string's bytes are not valid UTF-8.
type InvalidUTF8Error struct{}

func (e *InvalidUTF8Error) Error() string {
	return "packstream: string is not valid UTF-8"
}

// OversizedCollectionError is returned when a declared length exceeds the
// remaining input budget for the enclosing message (§4.1: 32-bit length
// prefixes must be validated before allocation).
type OversizedCollectionError struct {
	Declared uint32
	Budget   int
}

func (e *OversizedCollectionError) Error() string {
	return fmt.Sprintf("packstream: declared length %d exceeds remaining budget %d", e.Declared, e.Budget)
}

// UnknownStructureTagError is available to a Hydrate hook for a structure
// tag byte it does not recognise. boltvalue.Hydrate does not use it (that
// package is imported by this one); it reports unknown tags with a plain
// error.
type UnknownStructureTagError struct {
	Tag byte
}

func (e *UnknownStructureTagError) Error() string {
	return fmt.Sprintf("packstream: unknown structure tag %#x", e.Tag)
}

// OverflowError is returned by the encoder when a Go value (an unsigned
// 64-bit integer too large for an int64, for instance) has no representable
// PackStream encoding.
type OverflowError struct {
	Msg string
}

func (e *OverflowError) Error() string { return "packstream: " + e.Msg }

// UnsupportedTypeError is returned by the encoder when a Go value's
// dynamic type has no PackStream encoding and no Dehydrate hook claimed it.
type UnsupportedTypeError struct {
	TypeName string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("packstream: unsupported type %s", e.TypeName)
}

// IllegalFormatError is returned for structural violations that are not
// simple marker errors, e.g. a dictionary with a non-string key.
type IllegalFormatError struct {
	Msg string
}

func (e *IllegalFormatError) Error() string { return "packstream: " + e.Msg }
