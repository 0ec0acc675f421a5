// File: internal/config/exclude.go
package config

import (
	"strings"

	radix "github.com/armon/go-radix"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// Excluder answers "should this path be omitted from the index" from the
// exclude.paths prefixes and exclude.patterns globs. Prefix lookups go
// through a radix tree so the check stays cheap on hot scan paths.
type Excluder struct {
	prefixes *radix.Tree
	patterns []string
}

// NewExcluder compiles the exclusion config. Invalid glob patterns are
// reported and dropped.
func NewExcluder(cfg ExcludeConfig) *Excluder {
	tree := radix.New()
	for _, p := range cfg.Paths {
		key := normalizePath(p)
		if key != "" {
			tree.Insert(key, struct{}{})
		}
	}
	patterns := make([]string, 0, len(cfg.Patterns))
	for _, pat := range cfg.Patterns {
		if !doublestar.ValidatePattern(pat) {
			log.Warn().Str("pattern", pat).Msg("ignoring invalid exclude pattern")
			continue
		}
		patterns = append(patterns, strings.ToLower(pat))
	}
	return &Excluder{prefixes: tree, patterns: patterns}
}

// Excluded reports whether the full path or its base name matches any
// exclusion. Matching is case-insensitive.
func (e *Excluder) Excluded(path, name string) bool {
	p := normalizePath(path)
	if prefix, _, ok := e.prefixes.LongestPrefix(p); ok {
		// The prefix must end on a path boundary: "c:/win" must not
		// exclude "c:/winter".
		if len(p) == len(prefix) || p[len(prefix)] == '/' || strings.HasSuffix(prefix, "/") {
			return true
		}
	}
	lname := strings.ToLower(name)
	for _, pat := range e.patterns {
		if ok, _ := doublestar.Match(pat, lname); ok {
			return true
		}
		if ok, _ := doublestar.Match(pat, p); ok {
			return true
		}
	}
	return false
}

// Empty reports whether no exclusions are configured.
func (e *Excluder) Empty() bool {
	return e.prefixes.Len() == 0 && len(e.patterns) == 0
}

// normalizePath lowercases and forward-slashes a path for comparison.
func normalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimRight(p, `\/`), `\`, "/"))
}
