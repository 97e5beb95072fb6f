// Package highlight turns document content into syntax token spans using
// ordered, per-language regex rule tables. Recomputation is debounced so
// a full pass runs once per pause in typing, not per keystroke.
package highlight

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"quill/internal/schedule"
)

// Class is the syntactic category of a highlighted span.
type Class string

const (
	ClassKeyword  Class = "keyword"
	ClassString   Class = "string"
	ClassComment  Class = "comment"
	ClassNumber   Class = "number"
	ClassFunction Class = "function"
	ClassClass    Class = "class"
	ClassOperator Class = "operator"
	ClassBuiltin  Class = "builtin"
)

// Token is a highlight annotation over [Start, End) byte offsets of the
// document content. Tokens from one pass never overlap.
type Token struct {
	Start int
	End   int
	Class Class
}

// rule is one entry of a language's ordered rule list. Rules later in the
// list overwrite spans claimed by earlier rules at the same offsets; that
// precedence is deliberate (a function-name rule wins over the keyword
// rule that matched "def"). group selects the submatch to tag: 0 tags the
// whole match, 1 tags the captured identifier only.
type rule struct {
	re    *regexp.Regexp
	class Class
	group int
}

// Language is a registered tokenizer table.
type Language struct {
	Name  string
	rules []rule
}

// Tokenize runs the rule table over every line of content and returns the
// resulting spans, ordered by start offset. The pass is O(lines x rules);
// there is no incremental re-highlighting of only the edited region.
func (l *Language) Tokenize(content string) []Token {
	var tokens []Token
	offset := 0
	for {
		line := content[offset:]
		lineEnd := len(content)
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
			lineEnd = offset + i
		}
		tokens = append(tokens, l.tokenizeLine(line, offset)...)
		if lineEnd == len(content) {
			break
		}
		offset = lineEnd + 1
	}
	return tokens
}

func (l *Language) tokenizeLine(line string, base int) []Token {
	if line == "" {
		return nil
	}
	// Ownership array: each rule stamps its class over the bytes it
	// matched, overwriting earlier claims. Coalescing afterwards yields
	// non-overlapping spans with explicit precedence.
	owner := make([]Class, len(line))
	for _, r := range l.rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(line, -1) {
			start, end := m[0], m[1]
			if r.group > 0 && len(m) > 2*r.group+1 && m[2*r.group] >= 0 {
				start, end = m[2*r.group], m[2*r.group+1]
			}
			for i := start; i < end; i++ {
				owner[i] = r.class
			}
		}
	}
	var tokens []Token
	i := 0
	for i < len(owner) {
		if owner[i] == "" {
			i++
			continue
		}
		j := i + 1
		for j < len(owner) && owner[j] == owner[i] {
			j++
		}
		tokens = append(tokens, Token{Start: base + i, End: base + j, Class: owner[i]})
		i = j
	}
	return tokens
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Language{}
)

// Register adds a tokenizer table under its lowercase name, replacing any
// previous registration.
func Register(l *Language) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(l.Name)] = l
}

// Lookup returns the tokenizer for a language name, or nil for unknown
// and plain-text languages.
func Lookup(name string) *Language {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[strings.ToLower(name)]
}

// Names lists the registered languages, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultDelay is the quiescence window before a re-tokenization pass.
const DefaultDelay = 500 * time.Millisecond

const timerID = "highlight"

// Highlighter debounces full re-tokenization of a buffer and hands the
// resulting spans to the presentation layer. It performs no rendering.
type Highlighter struct {
	sched    *schedule.Scheduler
	source   func() string
	sink     func([]Token)
	dispatch func(func())
	lang     *Language
	delay    time.Duration
}

// New wires a highlighter to its content source and span sink. The sink
// may be replaced later with SetSink, before the first pass runs.
func New(sched *schedule.Scheduler, source func() string, sink func([]Token)) *Highlighter {
	if sink == nil {
		sink = func([]Token) {}
	}
	return &Highlighter{
		sched:    sched,
		source:   source,
		sink:     sink,
		dispatch: func(fn func()) { fn() },
		delay:    DefaultDelay,
	}
}

// SetSink replaces the span sink.
func (h *Highlighter) SetSink(sink func([]Token)) {
	if sink != nil {
		h.sink = sink
	}
}

// SetDelay overrides the quiescence window.
func (h *Highlighter) SetDelay(d time.Duration) {
	if d > 0 {
		h.delay = d
	}
}

// SetDispatch installs a marshaller that moves timer callbacks back onto
// the owning loop before they read the buffer.
func (h *Highlighter) SetDispatch(dispatch func(func())) {
	if dispatch != nil {
		h.dispatch = dispatch
	}
}

// Language returns the active language name, or "" for plain text.
func (h *Highlighter) Language() string {
	if h.lang == nil {
		return ""
	}
	return h.lang.Name
}

// SetLanguage selects the tokenizer table and runs a full pass
// immediately. Unknown and plain-text names clear existing spans.
func (h *Highlighter) SetLanguage(name string) {
	h.lang = Lookup(name)
	if h.lang == nil {
		h.sched.Cancel(timerID)
		h.sink(nil)
		return
	}
	h.sink(h.lang.Tokenize(h.source()))
}

// OnChange re-arms the debounce timer; edits arriving before it fires
// cancel and reschedule it.
func (h *Highlighter) OnChange(string) {
	if h.lang == nil {
		return
	}
	h.sched.Arm(timerID, h.delay, func() {
		h.dispatch(func() {
			if h.lang == nil {
				return
			}
			h.sink(h.lang.Tokenize(h.source()))
		})
	})
}

// Stop cancels any outstanding recompute so a stale pass cannot fire
// against a torn-down document.
func (h *Highlighter) Stop() {
	h.sched.Cancel(timerID)
}
