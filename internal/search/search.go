// Package search implements find and replace over the document buffer:
// wrap-around forward search, non-overlapping find-all, and literal or
// regex replacement.
package search

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"quill/internal/buffer"
)

// Query describes one search. The zero flags mean case-insensitive
// literal substring search.
type Query struct {
	Pattern       string
	CaseSensitive bool
	WholeWord     bool
	Regex         bool
}

// Match is a [Start, End) byte range within the current content.
type Match struct {
	Start int
	End   int
}

// InvalidPatternError reports a malformed regex pattern. It is returned
// before any scan happens; the document is untouched.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid search pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// ValidationError reports a precondition failure such as replacing
// without an active matching selection.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// compile builds the regexp for a query. Literal patterns are quoted
// first so metacharacters in the search term stay literal; case folding
// goes through the engine's (?i) flag rather than rewriting the pattern.
func (q Query) compile() (*regexp.Regexp, error) {
	pattern := q.Pattern
	if !q.Regex {
		pattern = regexp.QuoteMeta(pattern)
		if q.WholeWord {
			pattern = `\b` + pattern + `\b`
		}
	}
	if !q.CaseSensitive {
		pattern = `(?i)` + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &InvalidPatternError{Pattern: q.Pattern, Err: err}
	}
	return re, nil
}

// Engine scans the buffer's content and applies replacements to it.
type Engine struct {
	buf       *buffer.Buffer
	lastMatch *Match
}

func NewEngine(buf *buffer.Buffer) *Engine {
	return &Engine{buf: buf}
}

// FindNext scans forward from `from` to the end of the document; when no
// match is found there it wraps to the start and scans up to `from`
// (exclusive). ok is false when the pattern occurs nowhere.
func (e *Engine) FindNext(q Query, from int) (Match, bool, error) {
	if q.Pattern == "" {
		return Match{}, false, nil
	}
	re, err := q.compile()
	if err != nil {
		return Match{}, false, err
	}
	content := e.buf.Text()
	if from < 0 {
		from = 0
	}
	if from > len(content) {
		from = len(content)
	}
	// The whole document is scanned so anchors and word boundaries see
	// their real context; slicing at the cursor would fabricate a
	// string-start boundary there.
	locs := re.FindAllStringIndex(content, -1)
	for _, loc := range locs {
		if loc[0] >= from {
			m := Match{Start: loc[0], End: loc[1]}
			e.lastMatch = &m
			return m, true, nil
		}
	}
	// Wrap around to the first match before `from`.
	if len(locs) > 0 {
		m := Match{Start: locs[0][0], End: locs[0][1]}
		e.lastMatch = &m
		return m, true, nil
	}
	return Match{}, false, nil
}

// FindAll collects maximal non-overlapping matches from the start of the
// document. A zero-width match advances the scan by one rune so the walk
// always terminates.
func (e *Engine) FindAll(q Query) ([]Match, error) {
	if q.Pattern == "" {
		return nil, nil
	}
	re, err := q.compile()
	if err != nil {
		return nil, err
	}
	content := e.buf.Text()
	var matches []Match
	pos := 0
	for pos <= len(content) {
		loc := re.FindStringIndex(content[pos:])
		if loc == nil {
			break
		}
		m := Match{Start: pos + loc[0], End: pos + loc[1]}
		matches = append(matches, m)
		if m.End == m.Start {
			_, size := utf8.DecodeRuneInString(content[m.End:])
			if size == 0 {
				break
			}
			pos = m.End + size
		} else {
			pos = m.End
		}
	}
	return matches, nil
}

// ReplaceCurrent replaces the text under the active selection, which must
// be exactly the most recent FindNext match. Anything else is a
// validation error, not a silent no-op.
func (e *Engine) ReplaceCurrent(q Query, replacement string) error {
	start, end, ok := e.buf.Selection()
	if !ok {
		return &ValidationError{Reason: "replace requires an active search selection"}
	}
	if e.lastMatch == nil || start != e.lastMatch.Start || end != e.lastMatch.End {
		return &ValidationError{Reason: "selection does not match the current search result"}
	}
	e.buf.Replace(start, end, replacement)
	e.lastMatch = nil
	return nil
}

// ReplaceAll substitutes every non-overlapping match, applies the result
// with a single SetText, and returns the match count. The replacement
// string is taken literally; group references are not expanded.
func (e *Engine) ReplaceAll(q Query, replacement string) (int, error) {
	matches, err := e.FindAll(q)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	content := e.buf.Text()
	var b strings.Builder
	prev := 0
	for _, m := range matches {
		b.WriteString(content[prev:m.Start])
		b.WriteString(replacement)
		prev = m.End
	}
	b.WriteString(content[prev:])
	e.buf.SetText(b.String())
	e.lastMatch = nil
	return len(matches), nil
}

// Select marks a match as the active selection, pairing FindNext with the
// selection state ReplaceCurrent validates against.
func (e *Engine) Select(m Match) {
	e.buf.SetSelection(m.Start, m.End)
	e.buf.SetCursor(m.End)
}
