// File: internal/query/query.go
package query

import (
	"strings"

	"github.com/glintsearch/glint/internal/types"
)

// TypeFilter restricts results to files or directories.
type TypeFilter uint8

const (
	TypeAny TypeFilter = iota
	TypeFilesOnly
	TypeDirsOnly
)

// Query is a compiled search query: a cheap pre-filter stage over packed
// columns plus expensive matchers over the name or full path.
type Query struct {
	// extHashes is the extension-set filter; nil means no filter.
	extHashes map[uint64]bool

	// typeFilter restricts by the directory bit.
	typeFilter TypeFilter

	// pathPrefix is the lowercased `in:` prefix; "" means none.
	pathPrefix string

	// matchers is the expensive stage, all of which must match.
	matchers []matcher

	// hasFilters records whether any filter term was present, so an
	// empty pattern with filters still selects by filter alone.
	hasFilters bool
}

// matcher is one compiled pattern term.
type matcher struct {
	// match tests a lowercased candidate string.
	match func(text string) bool

	// againstPath selects the full path instead of the name.
	againstPath bool
}

// IsEmpty reports whether the query has no patterns and no filters; an
// empty query returns zero results by definition.
func (q *Query) IsEmpty() bool {
	return len(q.matchers) == 0 && !q.hasFilters
}

// NeedsPath reports whether matching requires the reconstructed full path.
func (q *Query) NeedsPath() bool {
	if q.pathPrefix != "" {
		return true
	}
	for _, m := range q.matchers {
		if m.againstPath {
			return true
		}
	}
	return false
}

// PreFilter is the cheap stage: flags and extension hash checks against
// packed columns, no string material needed.
func (q *Query) PreFilter(flags types.RecordFlags, extHash uint64) bool {
	switch q.typeFilter {
	case TypeFilesOnly:
		if flags.IsDir() {
			return false
		}
	case TypeDirsOnly:
		if !flags.IsDir() {
			return false
		}
	}
	if q.extHashes != nil && !q.extHashes[extHash] {
		return false
	}
	return true
}

// Match is the expensive stage. name must be the record name; path is
// fetched lazily and only when some term needs it. Both comparisons are
// case-insensitive.
func (q *Query) Match(name string, path func() string) bool {
	var loweredName, loweredPath string
	var havePath bool
	getPath := func() string {
		if !havePath {
			loweredPath = strings.ToLower(path())
			havePath = true
		}
		return loweredPath
	}

	if q.pathPrefix != "" && !strings.HasPrefix(getPath(), q.pathPrefix) {
		return false
	}

	for _, m := range q.matchers {
		var text string
		if m.againstPath {
			text = getPath()
		} else {
			if loweredName == "" {
				loweredName = strings.ToLower(name)
			}
			text = loweredName
		}
		if !m.match(text) {
			return false
		}
	}
	return true
}
