// Package staging persists flushed batches as JSONL so they can be loaded
// later, one batch per line.
package staging

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/matsen/citegraph/internal/batch"
)

// ErrCorrupt indicates a staging line that does not decode to a batch.
var ErrCorrupt = errors.New("corrupt staging file")

// Compressed reports whether path is written zstd-compressed.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Fingerprint returns the SHA256 of a staging file's bytes as hex.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening staging file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("reading staging file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Writer appends batches to a staging file. Batches go to a temporary file
// in the same directory, which Close renames into place, so a staging
// file at path is always complete.
type Writer struct {
	path    string
	f       *os.File
	buf     *bufio.Writer
	zw      *zstd.Encoder
	enc     *json.Encoder
	count   int
	settled bool
}

// Create starts a staging file at path, replacing any existing file when
// closed. Paths ending in .zst are compressed with zstd.
func Create(path string) (*Writer, error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*-"+filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("creating staging file: %w", err)
	}
	w := &Writer{path: path, f: f, buf: bufio.NewWriter(f)}
	var out io.Writer = w.buf
	if Compressed(path) {
		zw, err := zstd.NewWriter(w.buf)
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		w.zw = zw
		out = zw
	}
	w.enc = json.NewEncoder(out)
	return w, nil
}

// Write appends one batch as a single line.
func (w *Writer) Write(b *batch.Batch) error {
	if b == nil {
		return nil
	}
	if err := w.enc.Encode(b); err != nil {
		return fmt.Errorf("writing batch %d: %w", b.Seq, err)
	}
	w.count++
	return nil
}

// Count returns the number of batches written.
func (w *Writer) Count() int {
	return w.count
}

// Close flushes and syncs the batches, then renames the file into place.
// On error the temporary file is removed and nothing appears at path.
func (w *Writer) Close() error {
	if w.settled {
		return nil
	}
	w.settled = true
	tmp := w.f.Name()

	var errs []error
	if w.zw != nil {
		errs = append(errs, w.zw.Close())
	}
	errs = append(errs, w.buf.Flush())
	errs = append(errs, w.f.Sync())
	errs = append(errs, w.f.Close())
	if err := errors.Join(errs...); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing staging file: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming staging file: %w", err)
	}
	return nil
}

// Discard abandons the file. A staging file already at path is left as it
// was.
func (w *Writer) Discard() error {
	if w.settled {
		return nil
	}
	w.settled = true
	if w.zw != nil {
		w.zw.Close()
	}
	w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil {
		return fmt.Errorf("removing staging file: %w", err)
	}
	return nil
}

// Reader streams batches back from a staging file. Lines are decoded with
// a json.Decoder, so there is no per-line size limit.
type Reader struct {
	f    *os.File
	zr   *zstd.Decoder
	dec  *json.Decoder
	line int
}

// Open opens a staging file for reading.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening staging file: %w", err)
	}
	r := &Reader{f: f}
	var in io.Reader = bufio.NewReader(f)
	if Compressed(path) {
		zr, err := zstd.NewReader(in)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		r.zr = zr
		in = zr
	}
	r.dec = json.NewDecoder(in)
	return r, nil
}

// Next returns the next batch, or io.EOF when the file is exhausted.
func (r *Reader) Next() (*batch.Batch, error) {
	var b batch.Batch
	if err := r.dec.Decode(&b); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: batch %d: %v", ErrCorrupt, r.line+1, err)
	}
	r.line++
	if err := b.Scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: batch %d: %v", ErrCorrupt, r.line, err)
	}
	return &b, nil
}

// Close releases the file.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	return r.f.Close()
}

// ReadAll reads every batch in a staging file.
func ReadAll(path string) ([]*batch.Batch, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var batches []*batch.Batch
	for {
		b, err := r.Next()
		if err == io.EOF {
			return batches, nil
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
}
