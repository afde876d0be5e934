package batch

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/citegraph/internal/edge"
	"github.com/matsen/citegraph/internal/importer"
	"github.com/matsen/citegraph/internal/reference"
)

func extract(t *testing.T, raw string) *importer.Extraction {
	t.Helper()
	ex, err := importer.Extract(json.RawMessage(raw))
	require.NoError(t, err)
	return ex
}

func TestAccumulator_FlushThreshold(t *testing.T) {
	const limit = 3
	acc := New(limit, ScopeAll)

	var batches []*Batch
	for i := 0; i < 2*limit+1; i++ {
		acc.Add(extract(t, fmt.Sprintf(`{"_id":"a%d"}`, i)))
		if acc.ShouldFlush() {
			batches = append(batches, acc.Flush())
		}
	}
	if b := acc.Flush(); b != nil {
		batches = append(batches, b)
	}

	require.Len(t, batches, 3)
	assert.Equal(t, 3, batches[0].Records)
	assert.Equal(t, 3, batches[1].Records)
	assert.Equal(t, 1, batches[2].Records)
	assert.Equal(t, []int{1, 2, 3}, []int{batches[0].Seq, batches[1].Seq, batches[2].Seq})
	assert.Nil(t, acc.Flush(), "flush after drain must return nil")
}

func TestAccumulator_MergesAuthorsAcrossRecords(t *testing.T) {
	acc := New(10, ScopeAll)
	acc.Add(extract(t, `{"_id":"a1","authors":[{"_id":"p1","name":"Ada"}]}`))
	acc.Add(extract(t, `{"_id":"a2","authors":[{"_id":"p1"},{"_id":"p2","name":"Bob"}]}`))
	acc.Add(extract(t, `{"_id":"a1","authors":[{"_id":"p1","name":"Ada"}]}`))

	b := acc.Flush()
	require.NotNil(t, b)

	require.Len(t, b.Articles, 2)
	require.Len(t, b.Authors, 2)
	assert.Equal(t, "p1", b.Authors[0].ID)
	assert.Equal(t, "Ada", b.Authors[0].Name)
	assert.Equal(t, []string{"a1", "a2"}, b.Authors[0].AuthoredIDs)
	assert.Equal(t, []edge.Edge{
		{SourceID: "p1", TargetID: "a1"},
		{SourceID: "p1", TargetID: "a2"},
		{SourceID: "p2", TargetID: "a2"},
	}, b.Authored)
	assert.Equal(t, 3, b.Records)
}

func TestAccumulator_DedupCitations(t *testing.T) {
	acc := New(10, ScopeAll)
	acc.Add(extract(t, `{"_id":"a1","references":["a2","a3"]}`))
	acc.Add(extract(t, `{"_id":"a1","references":["a3"]}`))

	b := acc.Flush()
	assert.Equal(t, []edge.Edge{
		{SourceID: "a1", TargetID: "a2"},
		{SourceID: "a1", TargetID: "a3"},
	}, b.Cites)
	require.Len(t, b.Articles, 1)
	assert.Empty(t, b.Articles[0].CitedIDs)
}

func TestAccumulator_Scopes(t *testing.T) {
	raw := `{"_id":"a1","title":"T","authors":[{"_id":"p1","name":"Ada"}],"references":["a2"]}`

	entities := New(10, ScopeEntities)
	entities.Add(extract(t, raw))
	b := entities.Flush()
	assert.Len(t, b.Articles, 1)
	assert.Len(t, b.Authors, 1)
	assert.Len(t, b.Authored, 1)
	assert.Empty(t, b.Cites)
	assert.Equal(t, ScopeEntities, b.Scope)

	citations := New(10, ScopeCitations)
	citations.Add(extract(t, raw))
	b = citations.Flush()
	assert.Empty(t, b.Articles)
	assert.Empty(t, b.Authors)
	assert.Empty(t, b.Authored)
	assert.Len(t, b.Cites, 1)
	assert.Equal(t, 1, b.Records)
}

func TestAccumulator_RecordNeverSplit(t *testing.T) {
	acc := New(1, ScopeAll)
	acc.Add(extract(t, `{"_id":"a1","authors":[{"_id":"p1"},{"_id":"p2"},{"_id":"p3"}]}`))

	require.True(t, acc.ShouldFlush())
	b := acc.Flush()
	assert.Len(t, b.Authors, 3)
	assert.Len(t, b.Authored, 3)
	assert.Equal(t, 7, b.Size())
	assert.Equal(t, 0, acc.Size())
}

func TestAccumulator_ArticleMergeKeepsRealTitle(t *testing.T) {
	acc := New(10, ScopeAll)
	acc.Add(extract(t, `{"_id":"a1","title":"Real","year":2001}`))
	acc.Add(extract(t, `{"_id":"a1"}`))

	b := acc.Flush()
	require.Len(t, b.Articles, 1)
	assert.Equal(t, "Real", b.Articles[0].Title)
	assert.Equal(t, 2001, b.Articles[0].YearValue())
}

func TestAccumulator_ContinueAfter(t *testing.T) {
	acc := New(1, ScopeCitations)
	acc.ContinueAfter(5)
	acc.Add(extract(t, `{"_id":"a1","references":["a2"]}`))
	acc.Add(extract(t, `{"_id":"a2"}`))

	first := acc.Flush()
	assert.Equal(t, 6, first.Seq)
	assert.Nil(t, acc.Flush())
}

func TestBatch_Empty(t *testing.T) {
	var nilBatch *Batch
	assert.True(t, nilBatch.Empty())
	assert.True(t, (&Batch{Records: 2}).Empty())
	assert.False(t, (&Batch{Articles: []reference.Article{{ID: "a"}}}).Empty())
}

func TestScope_Validate(t *testing.T) {
	assert.NoError(t, ScopeAll.Validate())
	assert.NoError(t, ScopeCitations.Validate())
	assert.Error(t, Scope("edges").Validate())
}
