package permission

import (
	"sort"
	"strings"
)

// Set is a deduplicated set of permission codes.
type Set map[string]struct{}

// NewSet builds a set from codes. Empty codes are skipped.
func NewSet(codes ...string) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// Add inserts code after trimming surrounding space.
func (s Set) Add(code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	s[code] = struct{}{}
}

// Has reports exact membership.
func (s Set) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Len returns the number of codes.
func (s Set) Len() int { return len(s) }

// Union returns a new set holding the codes of both sets.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Sorted returns the codes in lexical order. The result is never nil.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Check reports whether perms grants required. A granted "resource.*"
// matches any "resource.action".
func Check(perms []string, required string) bool {
	if required == "" {
		return false
	}
	for _, p := range perms {
		if p == required {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && prefix != "" && strings.HasPrefix(required, prefix) {
			return true
		}
	}
	return false
}
