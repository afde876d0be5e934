package staging

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/citegraph/internal/batch"
	"github.com/matsen/citegraph/internal/edge"
	"github.com/matsen/citegraph/internal/reference"
)

func sampleBatches() []*batch.Batch {
	return []*batch.Batch{
		{
			Seq:      1,
			Scope:    batch.ScopeAll,
			Records:  2,
			Articles: []reference.Article{{ID: "a1", Title: `He said \"hi\"`, Year: reference.IntPtr(2001)}, {ID: "a2", Title: reference.UnknownTitle}},
			Authors:  []reference.Author{{ID: "u1", Name: "Ada", AuthoredIDs: []string{"a1", "a2"}}},
			Authored: []edge.Edge{{SourceID: "u1", TargetID: "a1"}, {SourceID: "u1", TargetID: "a2"}},
			Cites:    []edge.Edge{{SourceID: "a1", TargetID: "a9"}},
		},
		{
			Seq:     2,
			Scope:   batch.ScopeAll,
			Records: 1,
			Cites:   []edge.Edge{{SourceID: "a3", TargetID: "a1"}},
		},
	}
}

func TestWriteRead(t *testing.T) {
	for _, name := range []string{"batches.jsonl", "batches.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			w, err := Create(path)
			require.NoError(t, err)
			for _, b := range sampleBatches() {
				require.NoError(t, w.Write(b))
			}
			require.NoError(t, w.Write(nil))
			assert.Equal(t, 2, w.Count())
			require.NoError(t, w.Close())

			got, err := ReadAll(path)
			require.NoError(t, err)
			assert.Equal(t, sampleBatches(), got)
		})
	}
}

func TestReader_EOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"seq":1,"scope":"all","records":1}` + "\n" + `{"seq":2,"sco`},
		{"bad scope", `{"seq":1,"scope":"sideways","records":1}` + "\n"},
		{"not json", "hello\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := ReadAll(path)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func writeBatches(t *testing.T, path string, batches []*batch.Batch) {
	t.Helper()
	w, err := Create(path)
	require.NoError(t, err)
	for _, b := range batches {
		require.NoError(t, w.Write(b))
	}
	require.NoError(t, w.Close())
}

func TestWriter_AppearsOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batches.jsonl")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleBatches()[0]))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "staging file visible before Close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "batches.jsonl", entries[0].Name())
}

func TestWriter_Discard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batches.jsonl.zst")
	writeBatches(t, path, sampleBatches()[:1])
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleBatches()[1]))
	require.NoError(t, w.Discard())
	require.NoError(t, w.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	one := filepath.Join(dir, "one.jsonl")
	same := filepath.Join(dir, "same.jsonl")
	other := filepath.Join(dir, "other.jsonl")
	writeBatches(t, one, sampleBatches())
	writeBatches(t, same, sampleBatches())
	writeBatches(t, other, sampleBatches()[:1])

	fp, err := Fingerprint(one)
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	fpSame, err := Fingerprint(same)
	require.NoError(t, err)
	assert.Equal(t, fp, fpSame)

	fpOther, err := Fingerprint(other)
	require.NoError(t, err)
	assert.NotEqual(t, fp, fpOther)

	_, err = Fingerprint(filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)
}
