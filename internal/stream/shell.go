package stream

import (
	"bufio"
	"bytes"
	"io"
)

// shellWrappers are the Mongo shell number wrappers found in database dumps,
// listed without their leading 'N'.
var shellWrappers = [][]byte{
	[]byte("umberInt("),
	[]byte("umberLong("),
}

// shellLiteralReader rewrites NumberInt(2001) and NumberLong(2001) to 2001.
// Text inside string literals is passed through untouched.
type shellLiteralReader struct {
	src       *bufio.Reader
	inString  bool
	escaped   bool
	inWrapper bool
}

// NewShellLiteralReader wraps r so Mongo shell exports decode as JSON.
func NewShellLiteralReader(r io.Reader) io.Reader {
	return &shellLiteralReader{src: bufio.NewReaderSize(r, 64*1024)}
}

func (s *shellLiteralReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		// Avoid blocking for more input once something can be returned.
		if n > 0 && s.src.Buffered() == 0 {
			break
		}
		b, err := s.src.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case b == '\\':
				s.escaped = true
			case b == '"':
				s.inString = false
			}
			p[n] = b
			n++
			continue
		}

		switch b {
		case '"':
			s.inString = true
		case 'N':
			if s.skipWrapper() {
				continue
			}
		case ')':
			if s.inWrapper {
				s.inWrapper = false
				continue
			}
		}
		p[n] = b
		n++
	}
	return n, nil
}

// skipWrapper discards a wrapper prefix following an 'N' if one is present.
func (s *shellLiteralReader) skipWrapper() bool {
	for _, w := range shellWrappers {
		peek, _ := s.src.Peek(len(w))
		if bytes.Equal(peek, w) {
			_, _ = s.src.Discard(len(w))
			s.inWrapper = true
			return true
		}
	}
	return false
}
