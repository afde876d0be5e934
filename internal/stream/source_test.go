package stream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `[{"_id":"a1","year":NumberInt(1999)}]`

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestKind(t *testing.T) {
	assert.Equal(t, SourceStdin, Kind("-"))
	assert.Equal(t, SourceURL, Kind("https://example.org/dblp.json"))
	assert.Equal(t, SourceURL, Kind("http://example.org/dblp.json"))
	assert.Equal(t, SourceFile, Kind("/data/dblp.json"))
	assert.Equal(t, SourceFile, Kind("file:///data/dblp.json"))
	assert.False(t, Rereadable("-"))
	assert.True(t, Rereadable("corpus.json"))
}

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	rc, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, sample, readAll(t, rc))

	rc, err = Open(context.Background(), "file://"+path, Options{ShellLiterals: true})
	require.NoError(t, err)
	assert.Equal(t, `[{"_id":"a1","year":1999}]`, readAll(t, rc))
}

func TestOpen_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "corpus.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	rc, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, sample, readAll(t, rc))
}

func TestOpen_ByteOrderMark(t *testing.T) {
	bom := "\ufeff"
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(bom + sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dir := t.TempDir()
	plain := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(plain, []byte(bom+sample), 0644))
	compressed := filepath.Join(dir, "corpus.json.gz")
	require.NoError(t, os.WriteFile(compressed, gz.Bytes(), 0644))

	for _, path := range []string{plain, compressed} {
		rc, err := Open(context.Background(), path, Options{})
		require.NoError(t, err)
		assert.Equal(t, sample, readAll(t, rc), path)
	}

	rc, err := Open(context.Background(), plain, Options{ShellLiterals: true})
	require.NoError(t, err)
	assert.Equal(t, `[{"_id":"a1","year":1999}]`, readAll(t, rc))
}

func TestOpen_Zstd(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "corpus.json.zst")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	rc, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, sample, readAll(t, rc))
}

func TestOpen_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/corpus.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	opener := NewOpener(srv.URL+"/corpus.json", Options{HTTPClient: srv.Client()})
	for i := 0; i < 2; i++ {
		rc, err := opener(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sample, readAll(t, rc))
	}

	_, err := Open(context.Background(), srv.URL+"/missing.json", Options{HTTPClient: srv.Client()})
	assert.Error(t, err)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.json"), Options{})
	assert.Error(t, err)
}
