package scan

import (
	"path/filepath"
	"strings"
)

// ShouldExclude reports whether path matches any of the patterns.
// Pattern format:
//   - Patterns containing '*' or '?' are globs matched against the path's
//     base name (e.g. "*.tmp").
//   - Anything else is a path segment: the path is excluded when any of its
//     components equals the pattern (e.g. ".git", "node_modules").
func ShouldExclude(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	base := filepath.Base(path)
	var segments []string // split lazily, only when a segment pattern is present
	for _, p := range patterns {
		if strings.ContainsAny(p, "*?") {
			if ok, _ := filepath.Match(p, base); ok {
				return true
			}
			continue
		}
		if segments == nil {
			segments = strings.Split(filepath.ToSlash(path), "/")
		}
		for _, s := range segments {
			if s == p {
				return true
			}
		}
	}
	return false
}
