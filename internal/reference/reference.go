// Package reference defines the core domain types for bibliographic graph entities.
package reference

import "sort"

// UnknownTitle is stored for primary records that carry no title.
const UnknownTitle = "unknown title"

// Article represents a paper node.
type Article struct {
	// Identity
	ID string `json:"id"` // Corpus identifier ("_id"), mandatory

	// Metadata
	Title string `json:"title,omitempty"` // Sanitized; UnknownTitle when absent
	Year  *int   `json:"year,omitempty"`  // nil when absent or non-numeric

	// Relationships
	CitedIDs []string `json:"cited_ids,omitempty"` // Ordered, duplicates removed
}

// Merge folds another observation of the same article into a.
// Non-blank fields from other win; cited ids are unioned preserving order.
func (a *Article) Merge(other Article) {
	if other.Title != "" && (other.Title != UnknownTitle || a.Title == "") {
		a.Title = other.Title
	}
	if other.Year != nil {
		y := *other.Year
		a.Year = &y
	}
	a.CitedIDs = appendUnique(a.CitedIDs, other.CitedIDs...)
}

// YearValue returns the year or 0 when unknown.
func (a *Article) YearValue() int {
	if a.Year == nil {
		return 0
	}
	return *a.Year
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// appendUnique appends values not already present in dst.
func appendUnique(dst []string, values ...string) []string {
	if len(values) == 0 {
		return dst
	}
	seen := make(map[string]struct{}, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

// SortArticles orders articles by ID.
func SortArticles(articles []Article) {
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].ID < articles[j].ID
	})
}
