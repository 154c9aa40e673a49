package model

import "strings"

// Token is one hardware event: a single decoded line of text.
// Identity is the literal string value.
type Token string

// NewToken strips trailing carriage-return and newline characters.
func NewToken(line string) Token {
	return Token(strings.TrimRight(line, "\r\n"))
}

// String returns the literal token text.
func (t Token) String() string {
	return string(t)
}

// Stream identifies which input channel a token arrived on.
type Stream int

const (
	// Primary carries rotary-encoder commands (alt+, hdg_sync, ...).
	Primary Stream = iota + 1
	// Secondary carries mode-select switches ("100", "1000").
	Secondary
)

// String returns the stream name used in logs and the journal.
func (s Stream) String() string {
	switch s {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// ParseStream converts a stream name back into a Stream.
func ParseStream(name string) (Stream, bool) {
	switch strings.ToLower(name) {
	case "primary", "1":
		return Primary, true
	case "secondary", "2":
		return Secondary, true
	default:
		return 0, false
	}
}
