package reference

import "sort"

// UnknownName is stored for authors whose record carries no name.
const UnknownName = "unknown"

// Author represents a person node. Identity is the declared author id when
// present, otherwise the sanitized name.
type Author struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`                   // Sanitized; UnknownName when absent
	AuthoredIDs []string `json:"authored_ids,omitempty"` // Set of article ids, sorted
}

// Merge unions the authored ids of another observation of the same author.
// A real name replaces the UnknownName sentinel.
func (a *Author) Merge(other Author) {
	if other.Name != "" && other.Name != UnknownName {
		a.Name = other.Name
	} else if a.Name == "" {
		a.Name = other.Name
	}
	a.AuthoredIDs = appendUnique(a.AuthoredIDs, other.AuthoredIDs...)
	sort.Strings(a.AuthoredIDs)
}

// HasName reports whether the author carries a real name.
func (a *Author) HasName() bool {
	return a.Name != "" && a.Name != UnknownName
}

// SortAuthors orders authors by ID.
func SortAuthors(authors []Author) {
	sort.Slice(authors, func(i, j int) bool {
		return authors[i].ID < authors[j].ID
	})
}
