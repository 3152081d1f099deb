package wire

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrDecoding is wrapped by every DecodeError returned from Framer.Feed.
var ErrDecoding = errors.New("line is not valid UTF-8")

// DecodeError reports a completed line that could not be decoded as text.
// The line is dropped; framing continues with the next byte.
type DecodeError struct {
	Raw []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode line %q: %v", e.Raw, ErrDecoding)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecoding
}

// Framer splits a raw byte stream into CR terminated text lines.
//
// Unlike a bufio.SplitFunc, a Framer keeps the unterminated tail between calls,
// so it can be fed with whatever a non-blocking read happened to return.
// Lines are emitted in stream order without the CR. The pending buffer never
// contains a CR.
type Framer struct {
	pending []byte
}

// Feed consumes p and returns every line completed by it.
//
// A line that is not valid UTF-8 is dropped and reported through the returned
// error (a join of *DecodeError values); the remaining lines are still returned.
func (f *Framer) Feed(p []byte) ([]string, error) {
	var (
		lines []string
		errs  []error
	)
	for _, b := range p {
		if b != '\r' {
			f.pending = append(f.pending, b)
			continue
		}
		if utf8.Valid(f.pending) {
			lines = append(lines, string(f.pending))
		} else {
			errs = append(errs, &DecodeError{Raw: append([]byte(nil), f.pending...)})
		}
		f.pending = f.pending[:0]
	}
	return lines, errors.Join(errs...)
}

// Pending returns a copy of the bytes received after the last CR.
func (f *Framer) Pending() []byte {
	return append([]byte(nil), f.pending...)
}

// Reset discards any unterminated bytes.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
}
