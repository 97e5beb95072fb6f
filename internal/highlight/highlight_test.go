package highlight

import (
	"testing"
	"time"

	"quill/internal/schedule"
)

func findToken(tokens []Token, start, end int) *Token {
	for i := range tokens {
		if tokens[i].Start == start && tokens[i].End == end {
			return &tokens[i]
		}
	}
	return nil
}

func TestPythonKeywordAndFunctionName(t *testing.T) {
	lang := Lookup("python")
	if lang == nil {
		t.Fatalf("python not registered")
	}
	tokens := lang.Tokenize("def foo():")
	if tok := findToken(tokens, 0, 3); tok == nil || tok.Class != ClassKeyword {
		t.Fatalf("'def' token = %+v, want keyword [0,3)", tokens)
	}
	// The function rule runs after the keyword rule and tags only the
	// captured name, not the whole "def foo" match.
	if tok := findToken(tokens, 4, 7); tok == nil || tok.Class != ClassFunction {
		t.Fatalf("'foo' token = %+v, want function [4,7)", tokens)
	}
}

func TestPythonClassName(t *testing.T) {
	tokens := Lookup("python").Tokenize("class Foo:")
	if tok := findToken(tokens, 0, 5); tok == nil || tok.Class != ClassKeyword {
		t.Fatalf("'class' token missing: %+v", tokens)
	}
	if tok := findToken(tokens, 6, 9); tok == nil || tok.Class != ClassClass {
		t.Fatalf("'Foo' token missing: %+v", tokens)
	}
}

func TestLaterRuleOverridesEarlier(t *testing.T) {
	// The '#' inside the string is first claimed by the comment rule;
	// the string rule is listed later and wins the whole literal.
	tokens := Lookup("python").Tokenize(`x = "a#b"`)
	if tok := findToken(tokens, 4, 9); tok == nil || tok.Class != ClassString {
		t.Fatalf("string token = %+v, want string [4,9)", tokens)
	}
	for _, tok := range tokens {
		if tok.Class == ClassComment {
			t.Fatalf("comment span survived inside string: %+v", tok)
		}
	}
}

func TestTokensNeverOverlap(t *testing.T) {
	tokens := Lookup("python").Tokenize("def f(n):\n    return len(str(n)) # 42\n")
	for i := 1; i < len(tokens); i++ {
		if tokens[i].Start < tokens[i-1].End {
			t.Fatalf("overlapping tokens %+v and %+v", tokens[i-1], tokens[i])
		}
	}
}

func TestMultilineOffsets(t *testing.T) {
	tokens := Lookup("python").Tokenize("x = 1\n# note\n")
	if tok := findToken(tokens, 6, 12); tok == nil || tok.Class != ClassComment {
		t.Fatalf("second-line comment token = %+v, want comment [6,12)", tokens)
	}
}

func TestJavaScriptNumberAndComment(t *testing.T) {
	tokens := Lookup("javascript").Tokenize("let n = 3.14 // pi")
	if tok := findToken(tokens, 0, 3); tok == nil || tok.Class != ClassKeyword {
		t.Fatalf("'let' token missing: %+v", tokens)
	}
	if tok := findToken(tokens, 8, 12); tok == nil || tok.Class != ClassNumber {
		t.Fatalf("number token missing: %+v", tokens)
	}
	if tok := findToken(tokens, 13, 18); tok == nil || tok.Class != ClassComment {
		t.Fatalf("comment token missing: %+v", tokens)
	}
}

func TestGoFuncName(t *testing.T) {
	tokens := Lookup("go").Tokenize("func main() {")
	if tok := findToken(tokens, 5, 9); tok == nil || tok.Class != ClassFunction {
		t.Fatalf("'main' token = %+v, want function [5,9)", tokens)
	}
}

func TestUnknownLanguage(t *testing.T) {
	if Lookup("text") != nil {
		t.Fatalf("plain text resolved to a tokenizer")
	}
	if Lookup("cobol") != nil {
		t.Fatalf("unregistered language resolved to a tokenizer")
	}
	if Lookup("Python") == nil {
		t.Fatalf("lookup is not case-insensitive")
	}
}

func TestSetLanguageRunsImmediatePass(t *testing.T) {
	clock := schedule.NewManualClock()
	sched := schedule.NewWithClock(clock)
	content := "def f():"
	var got [][]Token
	h := New(sched, func() string { return content }, func(tokens []Token) { got = append(got, tokens) })
	h.SetLanguage("python")
	if len(got) != 1 || len(got[0]) == 0 {
		t.Fatalf("sink calls = %d, want immediate pass with tokens", len(got))
	}
	h.SetLanguage("unknown")
	if len(got) != 2 || got[1] != nil {
		t.Fatalf("unknown language should clear spans, got %+v", got)
	}
}

func TestDebouncedRecompute(t *testing.T) {
	clock := schedule.NewManualClock()
	sched := schedule.NewWithClock(clock)
	content := "x = 1"
	passes := 0
	h := New(sched, func() string { return content }, func([]Token) { passes++ })
	h.SetLanguage("python")
	passes = 0

	// Three rapid edits re-arm the timer; only one pass runs after the
	// quiescence window.
	h.OnChange(content)
	clock.Advance(100 * time.Millisecond)
	h.OnChange(content)
	clock.Advance(100 * time.Millisecond)
	h.OnChange(content)
	clock.Advance(499 * time.Millisecond)
	if passes != 0 {
		t.Fatalf("passes = %d before quiescence, want 0", passes)
	}
	clock.Advance(time.Millisecond)
	if passes != 1 {
		t.Fatalf("passes = %d, want 1", passes)
	}
	clock.Advance(time.Hour)
	if passes != 1 {
		t.Fatalf("passes = %d after idle, want 1", passes)
	}
}

func TestStopCancelsPendingPass(t *testing.T) {
	clock := schedule.NewManualClock()
	sched := schedule.NewWithClock(clock)
	passes := 0
	h := New(sched, func() string { return "" }, func([]Token) { passes++ })
	h.SetLanguage("python")
	passes = 0
	h.OnChange("")
	h.Stop()
	clock.Advance(time.Hour)
	if passes != 0 {
		t.Fatalf("passes = %d after stop, want 0", passes)
	}
}

func TestPlainLanguageIgnoresChanges(t *testing.T) {
	clock := schedule.NewManualClock()
	sched := schedule.NewWithClock(clock)
	passes := 0
	h := New(sched, func() string { return "" }, func([]Token) { passes++ })
	h.OnChange("")
	clock.Advance(time.Hour)
	if passes != 0 {
		t.Fatalf("passes = %d with no language, want 0", passes)
	}
}
