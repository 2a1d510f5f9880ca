package discovery

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher filters root-relative paths with include/exclude glob patterns.
// Patterns use doublestar syntax; a pattern without a slash also matches
// against the base name, so "*.py" selects Python files at any depth.
//
// Excludes win over includes. With no includes every path not excluded
// matches.
type Matcher struct {
	includes []string
	excludes []string
}

// NewMatcher returns a matcher for the given patterns. Invalid patterns
// are reported by Validate and never match.
func NewMatcher(includes, excludes []string) *Matcher {
	return &Matcher{includes: includes, excludes: excludes}
}

// Validate returns the first malformed pattern, if any.
func (m *Matcher) Validate() error {
	for _, p := range append(append([]string{}, m.includes...), m.excludes...) {
		if !doublestar.ValidatePattern(p) {
			return &PatternError{Pattern: p}
		}
	}
	return nil
}

// Match reports whether p (forward-slash, root-relative) passes the filters.
func (m *Matcher) Match(p string) bool {
	for _, pattern := range m.excludes {
		if matchOne(pattern, p) {
			return false
		}
	}
	if len(m.includes) == 0 {
		return true
	}
	for _, pattern := range m.includes {
		if matchOne(pattern, p) {
			return true
		}
	}
	return false
}

func matchOne(pattern, p string) bool {
	if ok, _ := doublestar.Match(pattern, p); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(p))
		return ok
	}
	return false
}

// PatternError reports a malformed glob pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "discovery: invalid glob pattern: " + e.Pattern
}
