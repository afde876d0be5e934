// Package batch accumulates extracted records into memory-bounded batches.
package batch

import (
	"fmt"

	"github.com/matsen/citegraph/internal/edge"
	"github.com/matsen/citegraph/internal/importer"
	"github.com/matsen/citegraph/internal/reference"
)

// Scope selects which parts of a record a pass accumulates.
type Scope string

const (
	// ScopeAll keeps nodes, authorship and citations (single-pass mode).
	ScopeAll Scope = "all"
	// ScopeEntities keeps article and author nodes and authorship edges.
	ScopeEntities Scope = "entities"
	// ScopeCitations keeps citation edges only.
	ScopeCitations Scope = "citations"
)

// Validate checks that s is a known scope.
func (s Scope) Validate() error {
	switch s {
	case ScopeAll, ScopeEntities, ScopeCitations:
		return nil
	}
	return fmt.Errorf("unknown batch scope %q", string(s))
}

// Batch is a flush-ready group of entities and relationships.
// Slices are sorted by identity so a batch is reproducible.
type Batch struct {
	Seq      int                 `json:"seq"`
	Scope    Scope               `json:"scope"`
	Records  int                 `json:"records"`
	Articles []reference.Article `json:"articles,omitempty"`
	Authors  []reference.Author  `json:"authors,omitempty"`
	Authored []edge.Edge         `json:"authored,omitempty"`
	Cites    []edge.Edge         `json:"cites,omitempty"`
}

// Size returns the number of elements in the batch.
func (b *Batch) Size() int {
	return len(b.Articles) + len(b.Authors) + len(b.Authored) + len(b.Cites)
}

// Empty reports whether the batch carries nothing to load.
func (b *Batch) Empty() bool {
	return b == nil || b.Size() == 0
}

// Accumulator collects extractions keyed by identity until the record limit
// is reached. It is owned by a single goroutine.
type Accumulator struct {
	limit int
	scope Scope
	seq   int

	records  int
	articles map[string]*reference.Article
	authors  map[string]*reference.Author
	authored *edge.Set
	cites    *edge.Set
}

// New creates an accumulator that asks to be flushed every limit records.
// A limit below 1 is treated as 1.
func New(limit int, scope Scope) *Accumulator {
	if limit < 1 {
		limit = 1
	}
	a := &Accumulator{limit: limit, scope: scope}
	a.reset()
	return a
}

// ContinueAfter numbers the next flushed batch seq+1. A later pass uses it
// so sequence numbers stay unique across a whole run.
func (a *Accumulator) ContinueAfter(seq int) {
	a.seq = seq
}

func (a *Accumulator) reset() {
	a.records = 0
	a.articles = make(map[string]*reference.Article)
	a.authors = make(map[string]*reference.Author)
	a.authored = edge.NewSet(edge.Authored)
	a.cites = edge.NewSet(edge.Cites)
}

// Add merges every entity and fact of one record. The whole record is
// added before the flush condition can change, so a record's authors are
// never split across batches.
func (a *Accumulator) Add(ex *importer.Extraction) {
	if ex == nil {
		return
	}
	a.records++

	if a.scope != ScopeCitations {
		a.addArticle(ex.Article)
		for _, author := range ex.Authors {
			a.addAuthor(author)
		}
		for _, e := range ex.Authored {
			a.authored.Add(e)
		}
	}
	if a.scope != ScopeEntities {
		for _, e := range ex.Cites {
			a.cites.Add(e)
		}
	}
}

func (a *Accumulator) addArticle(article reference.Article) {
	// Citations travel as edges; the id list is not kept twice.
	article.CitedIDs = nil
	if existing, ok := a.articles[article.ID]; ok {
		existing.Merge(article)
		return
	}
	a.articles[article.ID] = &article
}

func (a *Accumulator) addAuthor(author reference.Author) {
	if existing, ok := a.authors[author.ID]; ok {
		existing.Merge(author)
		return
	}
	cp := author
	cp.AuthoredIDs = append([]string(nil), author.AuthoredIDs...)
	a.authors[author.ID] = &cp
}

// Records returns the number of records added since the last flush.
func (a *Accumulator) Records() int {
	return a.records
}

// Size returns the number of distinct elements currently held.
func (a *Accumulator) Size() int {
	return len(a.articles) + len(a.authors) + a.authored.Len() + a.cites.Len()
}

// ShouldFlush reports whether the record limit has been reached.
func (a *Accumulator) ShouldFlush() bool {
	return a.records >= a.limit
}

// Flush returns the accumulated batch and clears state for the next one.
// It returns nil when no record has been added.
func (a *Accumulator) Flush() *Batch {
	if a.records == 0 {
		return nil
	}
	a.seq++

	b := &Batch{
		Seq:      a.seq,
		Scope:    a.scope,
		Records:  a.records,
		Authored: a.authored.Sorted(),
		Cites:    a.cites.Sorted(),
	}
	if len(a.articles) > 0 {
		b.Articles = make([]reference.Article, 0, len(a.articles))
		for _, article := range a.articles {
			b.Articles = append(b.Articles, *article)
		}
		reference.SortArticles(b.Articles)
	}
	if len(a.authors) > 0 {
		b.Authors = make([]reference.Author, 0, len(a.authors))
		for _, author := range a.authors {
			b.Authors = append(b.Authors, *author)
		}
		reference.SortAuthors(b.Authors)
	}

	a.reset()
	return b
}
