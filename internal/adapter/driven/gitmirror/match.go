package gitmirror

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// matchAny reports whether file matches any glob. Patterns use doublestar
// syntax against the repository-relative path; a pattern with no slash is
// also tried against the base name, so "*.sql" matches "db/init.sql".
// Malformed patterns never match.
func matchAny(patterns []string, file string) bool {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ok, err := doublestar.Match(p, file); err == nil && ok {
			return true
		}
		if !strings.Contains(p, "/") {
			if ok, err := doublestar.Match(p, path.Base(file)); err == nil && ok {
				return true
			}
		}
	}
	return false
}
