// File: internal/query/parser.go
package query

import (
	"regexp"
	"strings"
	"unicode"

	glerrors "github.com/glintsearch/glint/internal/errors"
	"github.com/glintsearch/glint/internal/types"
)

// token is one whitespace-separated term with its byte offset in the
// input, kept for error reporting.
type token struct {
	text   string
	offset int
}

// Parse compiles a query string.
//
// Grammar (whitespace-separated terms, implicit AND):
//
//	text        case-insensitive substring over the name
//	*.rs a?.rs  wildcard glob over the name (* any run, ? any one)
//	r/…/        regular expression
//	ext:a,b,c   extension-set filter
//	file: dir:  type filter
//	path:       following pattern terms match the full path
//	in:prefix   case-insensitive path-prefix filter
func Parse(input string) (*Query, error) {
	q := &Query{}
	againstPath := false

	for _, tok := range tokenize(input) {
		switch {
		case strings.HasPrefix(tok.text, "ext:"):
			exts := strings.Split(tok.text[len("ext:"):], ",")
			hashes := make(map[uint64]bool)
			for _, e := range exts {
				e = strings.TrimPrefix(strings.TrimSpace(e), ".")
				if e == "" {
					continue
				}
				hashes[types.HashExtension(strings.ToLower(e))] = true
			}
			if len(hashes) == 0 {
				return nil, glerrors.InvalidQuery(tok.offset, "ext: filter needs at least one extension")
			}
			q.extHashes = hashes
			q.hasFilters = true

		case tok.text == "file:" || tok.text == "files:":
			q.typeFilter = TypeFilesOnly
			q.hasFilters = true

		case tok.text == "dir:" || tok.text == "dirs:" || tok.text == "folder:":
			q.typeFilter = TypeDirsOnly
			q.hasFilters = true

		case tok.text == "path:":
			againstPath = true

		case strings.HasPrefix(tok.text, "in:"):
			prefix := tok.text[len("in:"):]
			if prefix == "" {
				return nil, glerrors.InvalidQuery(tok.offset, "in: filter needs a path prefix")
			}
			q.pathPrefix = strings.ToLower(prefix)
			q.hasFilters = true

		case strings.HasPrefix(tok.text, "r/"):
			if !strings.HasSuffix(tok.text, "/") || len(tok.text) < 4 {
				return nil, glerrors.InvalidQuery(tok.offset, "unterminated regex term %q", tok.text)
			}
			pattern := tok.text[2 : len(tok.text)-1]
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, glerrors.InvalidQuery(tok.offset, "bad regex %q: %v", pattern, err)
			}
			q.matchers = append(q.matchers, matcher{match: re.MatchString, againstPath: againstPath})

		case strings.ContainsAny(tok.text, "*?"):
			g := compileGlob(strings.ToLower(tok.text))
			q.matchers = append(q.matchers, matcher{match: g.match, againstPath: againstPath})

		default:
			needle := strings.ToLower(tok.text)
			q.matchers = append(q.matchers, matcher{
				match:       func(text string) bool { return strings.Contains(text, needle) },
				againstPath: againstPath,
			})
		}
	}

	return q, nil
}

// tokenize splits on whitespace, preserving byte offsets.
func tokenize(input string) []token {
	var toks []token
	start := -1
	for i, r := range input {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, token{text: input[start:i], offset: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{text: input[start:], offset: start})
	}
	return toks
}

// glob is a compiled wildcard pattern matched without regexp machinery.
type glob struct {
	pattern []rune
}

func compileGlob(pattern string) *glob {
	return &glob{pattern: []rune(pattern)}
}

// match runs the classic iterative star-tracking glob algorithm: linear
// in the text length with a single backtrack point, no exponential
// behavior on adversarial patterns.
func (g *glob) match(text string) bool {
	t := []rune(text)
	p := g.pattern

	ti, pi := 0, 0
	starPi, starTi := -1, 0

	for ti < len(t) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == t[ti]):
			ti++
			pi++
		case pi < len(p) && p[pi] == '*':
			starPi, starTi = pi, ti
			pi++
		case starPi >= 0:
			starTi++
			ti = starTi
			pi = starPi + 1
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
