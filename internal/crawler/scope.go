package crawler

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Scope restricts which same-domain URLs are followed.
//
// Logic:
//  1. If the URL path matches any ignore pattern, skip it
//  2. If follow patterns are set and the path matches none, skip it
//  3. Otherwise, follow it
type Scope struct {
	// Ignore are path globs that are never crawled (e.g. "/logout*", "*.pdf").
	Ignore []string

	// Follow are path globs; when non-empty only matching paths are crawled.
	Follow []string
}

// Allows reports whether targetURL is inside the scope.
func (s Scope) Allows(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.Ignore {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.Follow) == 0 {
		return true
	}
	for _, pattern := range s.Follow {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
//
// Examples:
//   - "/admin/*" matches "/admin", "/admin/dashboard" and "/admin/a/b"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(path, pattern[1:]) {
		return true
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}

	return false
}
