package highlight

import (
	"regexp"
	"strings"
)

// Rule patterns compile at package init; a malformed pattern is a
// programming error, so MustCompile is the right failure mode.

func newRule(pattern string, class Class) rule {
	return rule{re: regexp.MustCompile(pattern), class: class}
}

// newCaptureRule tags only the first capture group, not the full match.
// Reserved for the function and class rules ("def foo" tags "foo").
func newCaptureRule(pattern string, class Class) rule {
	return rule{re: regexp.MustCompile(pattern), class: class, group: 1}
}

func NewLanguage(name string, rules ...rule) *Language {
	return &Language{Name: name, rules: rules}
}

func wordAlternation(words ...string) string {
	return `\b(?:` + strings.Join(words, "|") + `)\b`
}

var pythonKeywords = []string{
	"def", "class", "if", "else", "elif", "for", "while", "try", "except",
	"finally", "import", "from", "return", "break", "continue", "pass",
	"and", "or", "not", "in", "is", "lambda", "with", "as", "yield",
	"global", "nonlocal", "assert", "del", "raise",
}

var pythonBuiltins = []string{
	"print", "len", "str", "int", "float", "list", "dict", "tuple",
	"set", "bool", "type", "isinstance", "hasattr", "getattr", "setattr",
}

var javascriptKeywords = []string{
	"function", "var", "let", "const", "if", "else", "for", "while",
	"do", "switch", "case", "default", "break", "continue", "return",
	"try", "catch", "finally", "throw", "new", "this", "typeof",
	"instanceof", "in", "of", "class", "extends", "super",
}

var goKeywords = []string{
	"break", "case", "chan", "const", "continue", "default", "defer",
	"else", "fallthrough", "for", "func", "go", "goto", "if", "import",
	"interface", "map", "package", "range", "return", "select", "struct",
	"switch", "type", "var",
}

var goBuiltins = []string{
	"append", "cap", "close", "copy", "delete", "len", "make", "new",
	"panic", "print", "println", "recover", "true", "false", "nil", "iota",
}

func init() {
	Register(NewLanguage("python",
		newRule(wordAlternation(pythonKeywords...), ClassKeyword),
		newRule(wordAlternation(pythonBuiltins...), ClassBuiltin),
		newRule(`#.*`, ClassComment),
		newRule(`""".*?"""`, ClassString),
		newRule(`'''.*?'''`, ClassString),
		newRule(`".*?"`, ClassString),
		newRule(`'.*?'`, ClassString),
		newRule(`\b\d+\.?\d*\b`, ClassNumber),
		newCaptureRule(`\bdef\s+(\w+)`, ClassFunction),
		newCaptureRule(`\bclass\s+(\w+)`, ClassClass),
	))

	Register(NewLanguage("javascript",
		newRule(wordAlternation(javascriptKeywords...), ClassKeyword),
		newRule(`//.*`, ClassComment),
		newRule(`/\*.*?\*/`, ClassComment),
		newRule(`".*?"`, ClassString),
		newRule(`'.*?'`, ClassString),
		newRule("`.*?`", ClassString),
		newRule(`\b\d+\.?\d*\b`, ClassNumber),
		newCaptureRule(`\bfunction\s+(\w+)`, ClassFunction),
		newCaptureRule(`\bclass\s+(\w+)`, ClassClass),
	))

	Register(NewLanguage("go",
		newRule(wordAlternation(goKeywords...), ClassKeyword),
		newRule(wordAlternation(goBuiltins...), ClassBuiltin),
		newRule(`//.*`, ClassComment),
		newRule(`/\*.*?\*/`, ClassComment),
		newRule(`".*?"`, ClassString),
		newRule("`.*?`", ClassString),
		newRule(`'\\?.'`, ClassString),
		newRule(`\b\d+\.?\d*\b`, ClassNumber),
		newCaptureRule(`\bfunc\s+(\w+)`, ClassFunction),
		newCaptureRule(`\btype\s+(\w+)`, ClassClass),
	))

	Register(NewLanguage("html",
		newRule(`</?[A-Za-z][-\w]*`, ClassKeyword),
		newRule(`/?>`, ClassOperator),
		newRule(`<!(?:DOCTYPE|doctype)`, ClassKeyword),
		newRule(`&[#\w]+;`, ClassBuiltin),
		newRule(`\b\d+\.?\d*\b`, ClassNumber),
		newRule(`".*?"`, ClassString),
		newRule(`'.*?'`, ClassString),
		newRule(`<!--.*?-->`, ClassComment),
	))

	Register(NewLanguage("css",
		newRule(`\b[a-zA-Z-]+\s*:`, ClassKeyword),
		newRule(`[:;{}]`, ClassOperator),
		newRule(`[.#][-\w]+`, ClassClass),
		newRule(`\b\d+\.?\d*(?:px|em|rem|%|s|ms|vh|vw)?`, ClassNumber),
		newRule(`#[0-9a-fA-F]{3,8}\b`, ClassNumber),
		newRule(`!important\b`, ClassBuiltin),
		newRule(`".*?"`, ClassString),
		newRule(`'.*?'`, ClassString),
		newRule(`/\*.*?\*/`, ClassComment),
	))
}
