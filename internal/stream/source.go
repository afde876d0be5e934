package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// SourceKind classifies an input location.
type SourceKind string

const (
	SourceFile  SourceKind = "file"
	SourceURL   SourceKind = "url"
	SourceStdin SourceKind = "stdin"
)

// DefaultHeaderTimeout bounds the wait for a remote server's response headers.
// The body itself is streamed without a deadline.
const DefaultHeaderTimeout = 30 * time.Second

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	utf8BOM   = []byte{0xef, 0xbb, 0xbf}
)

// Options configures how a source is opened.
type Options struct {
	// HTTPClient is used for remote locations. Defaults to a client with
	// DefaultHeaderTimeout and proxy settings from the environment.
	HTTPClient *http.Client

	// ShellLiterals enables rewriting of NumberInt(..)/NumberLong(..).
	ShellLiterals bool
}

// Opener opens a fresh reader over the same input each time it is called.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Kind returns the kind of the given location.
func Kind(location string) SourceKind {
	switch {
	case location == "-":
		return SourceStdin
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return SourceURL
	default:
		return SourceFile
	}
}

// Rereadable reports whether the location can be opened more than once.
func Rereadable(location string) bool {
	return Kind(location) != SourceStdin
}

// NewOpener returns an Opener for location.
func NewOpener(location string, opts Options) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return Open(ctx, location, opts)
	}
}

// Open opens location for reading. Local paths, file:// URLs, http(s) URLs
// and "-" (stdin) are supported. Gzip and zstd content is decompressed
// transparently based on its magic bytes, and a leading UTF-8 byte order
// mark is dropped.
func Open(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	raw, err := openRaw(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	rc, err := decompress(raw)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}

	if opts.ShellLiterals {
		rc = &readCloser{Reader: NewShellLiteralReader(rc), closers: []io.Closer{rc}}
	}
	return rc, nil
}

func openRaw(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	switch Kind(location) {
	case SourceStdin:
		return io.NopCloser(os.Stdin), nil
	case SourceURL:
		return openURL(ctx, location, opts.HTTPClient)
	}

	path := location
	if strings.HasPrefix(location, "file://") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parsing file URL: %w", err)
		}
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	return f, nil
}

func openURL(ctx context.Context, location string, client *http.Client) (io.ReadCloser, error) {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: DefaultHeaderTimeout,
		}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", location, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %s", location, resp.Status)
	}
	return resp.Body, nil
}

// decompress sniffs the first bytes of raw and wraps it in a decoder when
// the content is compressed.
func decompress(raw io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(raw)
	head, _ := br.Peek(len(zstdMagic))

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return &readCloser{Reader: skipBOM(zr), closers: []io.Closer{zr, raw}}, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return &readCloser{Reader: skipBOM(zr), closers: []io.Closer{zr.IOReadCloser(), raw}}, nil
	default:
		return &readCloser{Reader: skipBOM(br), closers: []io.Closer{raw}}, nil
	}
}

// skipBOM drops a leading UTF-8 byte order mark, which encoding/json
// rejects. Editors on Windows commonly write one.
func skipBOM(r io.Reader) *bufio.Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// readCloser closes every wrapped layer, innermost last.
type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
