package policy

import (
	"sort"
	"strings"
)

// ExclusionSet holds executable names that are never muted.
// Names are matched case-insensitively. The zero value is an empty set.
type ExclusionSet struct {
	names map[string]struct{}
}

// NewExclusionSet builds a set from raw names. Blank entries are ignored.
func NewExclusionSet(names ...string) ExclusionSet {
	s := ExclusionSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if norm := NormalizeExeName(n); norm != "" {
			s.names[norm] = struct{}{}
		}
	}
	return s
}

// NormalizeExeName lowercases and trims a name, dropping any directory part
// so "C:\Program Files\Spotify\Spotify.exe" matches "spotify.exe".
func NormalizeExeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// Contains reports whether exeName is excluded.
func (s ExclusionSet) Contains(exeName string) bool {
	if len(s.names) == 0 {
		return false
	}
	_, ok := s.names[NormalizeExeName(exeName)]
	return ok
}

// Len returns the number of distinct names.
func (s ExclusionSet) Len() int {
	return len(s.names)
}

// List returns the normalized names in sorted order.
func (s ExclusionSet) List() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
