package site

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// URLFilter decides which discovered links are posts worth visiting.
// Patterns are globs matched against the absolute, lower-cased URL; '*'
// spans path separators.
type URLFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewURLFilter compiles include and exclude patterns.
func NewURLFilter(include, exclude []string) (*URLFilter, error) {
	f := &URLFilter{}

	for _, pattern := range include {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern '%s': %w", pattern, err)
		}
		f.include = append(f.include, g)
	}

	for _, pattern := range exclude {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		f.exclude = append(f.exclude, g)
	}

	return f, nil
}

// Allows returns true if url passes the filter.
func (f *URLFilter) Allows(url string) bool {
	url = strings.ToLower(url)

	// Exclusions take precedence
	for _, pattern := range f.exclude {
		if pattern.Match(url) {
			return false
		}
	}

	// If no include patterns are set, everything not excluded passes
	if len(f.include) == 0 {
		return true
	}

	for _, pattern := range f.include {
		if pattern.Match(url) {
			return true
		}
	}

	return false
}
