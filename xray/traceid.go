// Package xray implements the fixed-width X-Ray identifier codecs used on
// the lambda-runtime-trace-id header: a 35-byte TraceID and a 16-hex
// SegmentID. Both are strict: any byte outside the grammar is rejected
// rather than silently normalized, so a round trip is always lossless.
package xray

import (
	"crypto/rand"
	"time"
)

const (
	traceIDLength    = 35
	traceIDVersion   = '1'
	dashPos1         = 1
	dashPos2         = 10
	timestampHexLen  = 8
	identifierHexLen = 24
	identifierBytes  = 12
)

// hex lookup tables. Encoding uses a fixed 16-byte table; decoding uses a
// branchless 256-entry table so only '0'-'9' and 'a'-'f' decode, everything
// else maps to 0xff and is rejected. The encode table is a constant and the
// decode table is computed once at init, so the hot path is table lookups,
// not branches.
const hexDigits = "0123456789abcdef"

var hexDecodeTable [256]byte

func init() {
	for i := range hexDecodeTable {
		hexDecodeTable[i] = 0xff
	}
	for i := 0; i < 10; i++ {
		hexDecodeTable['0'+i] = byte(i)
	}
	for i := 0; i < 6; i++ {
		hexDecodeTable['a'+i] = byte(10 + i)
	}
}

// TraceID is the parsed form of the 35-byte X-Ray trace identifier:
// version (always 1), a 32-bit unix-seconds timestamp, and a 96-bit random
// identifier. Equality is componentwise.
type TraceID struct {
	Timestamp  uint32
	Identifier [identifierBytes]byte
}

// TraceIDErrorKind distinguishes the ways Parse can fail, matching spec.md
// §4.1 exactly.
type TraceIDErrorKind int

const (
	ErrInvalidLength TraceIDErrorKind = iota
	ErrInvalidVersion
	ErrMissingDashes
	ErrInvalidFormat
)

// TraceIDError reports why Parse rejected a string.
type TraceIDError struct {
	Kind TraceIDErrorKind
	// Pos is a byte offset. For ErrInvalidVersion and ErrMissingDashes it
	// indexes the whole input. For ErrInvalidFormat it indexes the hex field
	// that failed to decode (the timestamp or the identifier, not the whole
	// input); in the identifier it points at the first byte of the offending
	// hex pair. It is 0 for ErrInvalidLength.
	Pos int
}

func (e *TraceIDError) Error() string {
	switch e.Kind {
	case ErrInvalidLength:
		return "xray: trace id must be exactly 35 bytes"
	case ErrInvalidVersion:
		return "xray: trace id version byte must be '1'"
	case ErrMissingDashes:
		return "xray: trace id is missing a hyphen separator"
	default:
		return "xray: trace id contains a non-hex byte outside [0-9a-f]"
	}
}

// Generate builds a fresh TraceID: the current Unix second, and 12 bytes
// from a cryptographically secure random source.
func Generate() (TraceID, error) {
	var t TraceID
	t.Timestamp = uint32(time.Now().Unix())
	if _, err := rand.Read(t.Identifier[:]); err != nil {
		return TraceID{}, err
	}
	return t, nil
}

// Parse decodes the canonical 35-byte form "1-HHHHHHHH-HHHHHHHHHHHHHHHHHHHHHHHH".
func Parse(s string) (TraceID, error) {
	if len(s) != traceIDLength {
		return TraceID{}, &TraceIDError{Kind: ErrInvalidLength}
	}
	if s[0] != traceIDVersion {
		return TraceID{}, &TraceIDError{Kind: ErrInvalidVersion, Pos: 0}
	}
	if s[dashPos1] != '-' || s[dashPos2] != '-' {
		pos := dashPos1
		if s[dashPos1] == '-' {
			pos = dashPos2
		}
		return TraceID{}, &TraceIDError{Kind: ErrMissingDashes, Pos: pos}
	}

	var t TraceID
	ts, err := decodeHexUint32(s[dashPos1+1 : dashPos1+1+timestampHexLen])
	if err != nil {
		return TraceID{}, err
	}
	t.Timestamp = ts

	idStart := dashPos2 + 1
	if err := decodeHexBytes(s[idStart:idStart+identifierHexLen], t.Identifier[:]); err != nil {
		return TraceID{}, err
	}
	return t, nil
}

// Format renders t in the canonical 35-byte form. Format(Parse(s)) == s for
// every valid s.
func Format(t TraceID) string {
	buf := make([]byte, traceIDLength)
	buf[0] = traceIDVersion
	buf[dashPos1] = '-'
	buf[dashPos2] = '-'
	encodeHexUint32(buf[dashPos1+1:dashPos1+1+timestampHexLen], t.Timestamp)
	encodeHexBytes(buf[dashPos2+1:], t.Identifier[:])
	return string(buf)
}

func decodeHexUint32(s string) (uint32, error) {
	var v uint32
	for i := 0; i < len(s); i++ {
		d := hexDecodeTable[s[i]]
		if d == 0xff {
			return 0, &TraceIDError{Kind: ErrInvalidFormat, Pos: i}
		}
		v = v<<4 | uint32(d)
	}
	return v, nil
}

func decodeHexBytes(s string, dst []byte) error {
	if len(s) != len(dst)*2 {
		return &TraceIDError{Kind: ErrInvalidFormat}
	}
	for i := range dst {
		hi := hexDecodeTable[s[2*i]]
		lo := hexDecodeTable[s[2*i+1]]
		if hi == 0xff || lo == 0xff {
			return &TraceIDError{Kind: ErrInvalidFormat, Pos: 2 * i}
		}
		dst[i] = hi<<4 | lo
	}
	return nil
}

func encodeHexUint32(dst []byte, v uint32) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = hexDigits[v&0xf]
		v >>= 4
	}
}

func encodeHexBytes(dst, src []byte) {
	for i, b := range src {
		dst[2*i] = hexDigits[b>>4]
		dst[2*i+1] = hexDigits[b&0xf]
	}
}
