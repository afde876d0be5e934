package stream

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) ([]string, error) {
	t.Helper()
	c := NewCursor(strings.NewReader(input))
	var ids []string
	for {
		raw, err := c.Next()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return ids, err
		}
		var rec struct {
			ID string `json:"_id"`
		}
		require.NoError(t, json.Unmarshal(raw, &rec))
		ids = append(ids, rec.ID)
	}
}

func TestCursor_CompactArray(t *testing.T) {
	ids, err := collect(t, `[{"_id":"a1"},{"_id":"a2"},{"_id":"a3"}]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids)
}

func TestCursor_PrettyPrintedArray(t *testing.T) {
	input := `[
{ "_id" : "a1",
  "authors" : [
    { "_id" : "p1", "name" : "Ada" }
  ],
  "references" : [ "a2" ]
},
{
  "_id": "a2",
  "title": "nested { braces } in \"strings\""
}
]
`
	ids, err := collect(t, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)
}

func TestCursor_ByteOrderMark(t *testing.T) {
	ids, err := collect(t, "\ufeff[{\"_id\":\"a\"}]")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	// Only a leading mark is dropped.
	_, err = collect(t, "[\ufeff{\"_id\":\"a\"}]")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCursor_EmptyArray(t *testing.T) {
	ids, err := collect(t, "  [ ]  \n")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCursor_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"top-level object", `{"_id":"a1"}`},
		{"truncated mid-record", `[{"_id":"a1"},{"_id":"a2","title":"cut`},
		{"missing closing bracket", `[{"_id":"a1"}`},
		{"non-object element", `[{"_id":"a1"}, 42]`},
		{"trailing comma", `[{"_id":"a1"},]`},
		{"trailing data", `[{"_id":"a1"}] {"_id":"a2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestCursor_NextAfterEOF(t *testing.T) {
	c := NewCursor(strings.NewReader(`[{"_id":"a1"}]`))
	_, err := c.Next()
	require.NoError(t, err)
	_, err = c.Next()
	assert.ErrorIs(t, err, io.EOF)
	_, err = c.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, c.Index())
	assert.Greater(t, c.Offset(), int64(0))
}

func TestShellLiteralReader(t *testing.T) {
	input := `[{"_id":"a1","year":NumberInt(2001),"n":NumberLong(7),"title":"keep NumberInt(5) here"}]`
	out, err := io.ReadAll(NewShellLiteralReader(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, `[{"_id":"a1","year":2001,"n":7,"title":"keep NumberInt(5) here"}]`, string(out))

	ids, err := collect(t, string(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)
}

func TestShellLiteralReader_EscapedQuotes(t *testing.T) {
	input := `{"t":"a \" NumberInt(1) \\","y":NumberInt(3)}`
	out, err := io.ReadAll(NewShellLiteralReader(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, `{"t":"a \" NumberInt(1) \\","y":3}`, string(out))
}
