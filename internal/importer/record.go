// Package importer turns raw corpus records into graph entities and
// relationship facts.
package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/matsen/citegraph/internal/edge"
	"github.com/matsen/citegraph/internal/reference"
)

// Input errors. Both abort the run.
var (
	// ErrMissingID indicates a record without the mandatory "_id" field.
	ErrMissingID = errors.New("record is missing required field '_id'")

	// ErrMalformedRecord indicates a record that is not a JSON object.
	ErrMalformedRecord = errors.New("malformed record")
)

// RawRecord is one element of the corpus array. Optional fields are kept
// raw so a field of unexpected type can be dropped without failing the record.
type RawRecord struct {
	ID         json.RawMessage `json:"_id"`
	Title      json.RawMessage `json:"title"`
	Year       json.RawMessage `json:"year"`
	Authors    json.RawMessage `json:"authors"`
	References json.RawMessage `json:"references"`
}

// RawAuthor is one entry of a record's "authors" array.
type RawAuthor struct {
	ID   FlexibleString `json:"_id"`
	Name FlexibleString `json:"name"`
}

// Extraction is everything a single record contributes to the graph.
type Extraction struct {
	Article reference.Article
	Authors []reference.Author

	// Authored edges run Author -> Article, Cites edges Article -> Article.
	Authored []edge.Edge
	Cites    []edge.Edge

	// Tolerated defects, surfaced as counters.
	DroppedAuthors    int
	DroppedReferences int
	MalformedYear     bool
	IgnoredFields     []string
}

// Extract decodes one record and normalizes it. Free text is sanitized with
// reference.Sanitize; ids are kept verbatim.
func Extract(raw json.RawMessage) (*Extraction, error) {
	var rec RawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var id FlexibleString
	if len(rec.ID) > 0 {
		if err := json.Unmarshal(rec.ID, &id); err != nil {
			return nil, fmt.Errorf("%w: invalid '_id': %v", ErrMalformedRecord, err)
		}
	}
	articleID := strings.TrimSpace(id.String())
	if articleID == "" {
		return nil, ErrMissingID
	}

	ex := &Extraction{Article: reference.Article{ID: articleID, Title: reference.UnknownTitle}}

	if title, ok := decodeString(rec.Title); !ok {
		ex.IgnoredFields = append(ex.IgnoredFields, "title")
	} else if title != "" {
		ex.Article.Title = reference.Sanitize(title)
	}

	year, ok := ParseYear(rec.Year)
	ex.Article.Year = year
	ex.MalformedYear = !ok

	if err := ex.extractAuthors(rec.Authors); err != nil {
		ex.IgnoredFields = append(ex.IgnoredFields, "authors")
	}
	if err := ex.extractReferences(rec.References); err != nil {
		ex.IgnoredFields = append(ex.IgnoredFields, "references")
	}

	return ex, nil
}

// extractAuthors derives authors and AUTHORED edges. Author identity is the
// declared id, else the sanitized name; entries with neither are dropped.
func (ex *Extraction) extractAuthors(raw json.RawMessage) error {
	if isAbsent(raw) {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}

	index := make(map[string]int, len(entries))
	for _, entry := range entries {
		var a RawAuthor
		if err := json.Unmarshal(entry, &a); err != nil {
			ex.DroppedAuthors++
			continue
		}

		name := strings.TrimSpace(a.Name.String())
		if name != "" {
			name = reference.Sanitize(name)
		}
		id := strings.TrimSpace(a.ID.String())
		if id == "" {
			id = name
		}
		if id == "" {
			ex.DroppedAuthors++
			continue
		}
		if name == "" {
			name = reference.UnknownName
		}

		author := reference.Author{ID: id, Name: name, AuthoredIDs: []string{ex.Article.ID}}
		if i, seen := index[id]; seen {
			ex.Authors[i].Merge(author)
			continue
		}
		index[id] = len(ex.Authors)
		ex.Authors = append(ex.Authors, author)
		ex.Authored = append(ex.Authored, edge.Edge{SourceID: id, TargetID: ex.Article.ID})
	}
	return nil
}

// extractReferences derives CITES edges from the "references" id list.
func (ex *Extraction) extractReferences(raw json.RawMessage) error {
	if isAbsent(raw) {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		var ref FlexibleString
		if err := json.Unmarshal(entry, &ref); err != nil {
			ex.DroppedReferences++
			continue
		}
		cited := strings.TrimSpace(ref.String())
		if cited == "" {
			ex.DroppedReferences++
			continue
		}
		if _, dup := seen[cited]; dup {
			continue
		}
		seen[cited] = struct{}{}
		ex.Article.CitedIDs = append(ex.Article.CitedIDs, cited)
		ex.Cites = append(ex.Cites, edge.Edge{SourceID: ex.Article.ID, TargetID: cited})
	}
	return nil
}

// decodeString returns the string value of raw, "" when absent.
// ok is false when raw holds a non-string, non-number value.
func decodeString(raw json.RawMessage) (string, bool) {
	if isAbsent(raw) {
		return "", true
	}
	var s FlexibleString
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s.String()), true
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
