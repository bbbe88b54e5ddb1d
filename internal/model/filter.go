package model

import "strings"

// Filter narrows the catalog query. Empty fields do not constrain.
type Filter struct {
	Name    string
	Status  string
	Species string
	Type    string
	Gender  string
}

// Normalize returns a copy with every field trimmed and lower-cased.
// Matching is case-insensitive for every field, so the normalized form is
// what the cache and the remote query see.
func (f Filter) Normalize() Filter {
	return Filter{
		Name:    normalizeField(f.Name),
		Status:  normalizeField(f.Status),
		Species: normalizeField(f.Species),
		Type:    normalizeField(f.Type),
		Gender:  normalizeField(f.Gender),
	}
}

// IsEmpty reports whether the filter constrains nothing once normalized.
func (f Filter) IsEmpty() bool {
	return f.Normalize() == Filter{}
}

// CanonicalKey returns the identity of the filter. Two filters with the same
// key select the same result set.
func (f Filter) CanonicalKey() string {
	n := f.Normalize()
	if n == (Filter{}) {
		return ""
	}
	return strings.Join([]string{n.Name, n.Status, n.Species, n.Type, n.Gender}, "|")
}

// Equal reports canonical equality.
func (f Filter) Equal(other Filter) bool {
	return f.CanonicalKey() == other.CanonicalKey()
}

// CanonicalKeyOf treats a nil filter as the empty filter.
func CanonicalKeyOf(f *Filter) string {
	if f == nil {
		return ""
	}
	return f.CanonicalKey()
}

func normalizeField(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
