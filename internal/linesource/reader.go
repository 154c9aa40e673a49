package linesource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/simbridge/internal/model"
)

// ErrMalformedLine is returned for a line that is not valid UTF-8.
// It only affects that line; the next call to Next continues the stream.
var ErrMalformedLine = errors.New("malformed line")

// LineError reports a bad line and its 1-based position in the stream.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Reader yields one token per newline-terminated line.
type Reader struct {
	br   *bufio.Reader
	line int
	eof  bool
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next token. Every '\r' and '\n' is removed from the line
// and the text is NFC-normalised. A final line without a terminator is still
// returned; io.EOF follows it.
func (r *Reader) Next() (model.Token, error) {
	if r.eof {
		return "", io.EOF
	}

	raw, err := r.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		r.eof = true
		if raw == "" {
			return "", io.EOF
		}
	}
	r.line++

	text := strings.NewReplacer("\r", "", "\n", "").Replace(raw)
	if !utf8.ValidString(text) {
		return "", &LineError{Line: r.line, Err: ErrMalformedLine}
	}
	return model.Token(norm.NFC.String(text)), nil
}

// Line returns how many lines have been read so far.
func (r *Reader) Line() int {
	return r.line
}
