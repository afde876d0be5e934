// Package stream reads a corpus encoded as one top-level JSON array and hands
// out its elements one at a time.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed indicates the input is not a well-formed array of objects.
var ErrMalformed = errors.New("malformed input")

// Cursor iterates over the elements of a top-level JSON array without
// materializing the array. At most one element is held in memory, and the
// layout of the input (pretty-printed or single-line) does not matter.
type Cursor struct {
	dec     *json.Decoder
	started bool
	done    bool
	index   int
}

// NewCursor creates a cursor reading from r. A leading UTF-8 byte order
// mark is skipped.
func NewCursor(r io.Reader) *Cursor {
	return &Cursor{dec: json.NewDecoder(skipBOM(r))}
}

// Begin consumes the opening bracket of the array.
// Calling Next without Begin begins implicitly.
func (c *Cursor) Begin() error {
	if c.started {
		return nil
	}
	c.started = true

	tok, err := c.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty input, expected '['", ErrMalformed)
		}
		return fmt.Errorf("%w: reading array start: %v", ErrMalformed, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("%w: top-level value must be an array, got %v", ErrMalformed, tok)
	}
	return nil
}

// Next returns the raw bytes of the next array element. It returns io.EOF
// once the closing bracket has been consumed and nothing but whitespace
// follows. A stream that ends before the closing bracket is an error.
func (c *Cursor) Next() (json.RawMessage, error) {
	if err := c.Begin(); err != nil {
		return nil, err
	}
	if c.done {
		return nil, io.EOF
	}

	if !c.dec.More() {
		return nil, c.end()
	}

	var raw json.RawMessage
	if err := c.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: record %d at offset %d: %v", ErrMalformed, c.index+1, c.dec.InputOffset(), err)
	}
	if trimmed := bytes.TrimLeft(raw, " \t\r\n"); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: record %d is not an object", ErrMalformed, c.index+1)
	}
	c.index++
	return raw, nil
}

// end consumes the closing bracket and verifies nothing follows it.
func (c *Cursor) end() error {
	tok, err := c.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("%w: unterminated array after %d records: %v", ErrMalformed, c.index, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != ']' {
		return fmt.Errorf("%w: expected ']' after %d records, got %v", ErrMalformed, c.index, tok)
	}
	c.done = true

	if tok, err := c.dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return fmt.Errorf("%w: after closing bracket: %v", ErrMalformed, err)
		}
		return fmt.Errorf("%w: unexpected data after closing bracket: %v", ErrMalformed, tok)
	}
	return io.EOF
}

// Index returns the number of records returned so far.
func (c *Cursor) Index() int {
	return c.index
}

// Offset returns the number of input bytes consumed so far.
func (c *Cursor) Offset() int64 {
	return c.dec.InputOffset()
}
