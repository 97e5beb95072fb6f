// Package editor is the presentation collaborator: a thin tcell layer
// that renders the buffer with highlight spans and translates key events
// into core commands. All document logic lives in the core packages.
package editor

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"quill/internal/buffer"
	"quill/internal/config"
	"quill/internal/highlight"
	"quill/internal/search"
	"quill/internal/storage"
)

type promptKind int

const (
	promptNone promptKind = iota
	promptOpen
	promptSaveAs
	promptFind
	promptReplace
	promptReplaceWith
	promptConfirmQuit
	promptConfirmClose
)

type Editor struct {
	buf   *buffer.Buffer
	hl    *highlight.Highlighter
	eng   *search.Engine
	mgr   *storage.Manager
	cfg   *config.Store
	langs config.Languages

	scroll        int
	viewHeight    int
	statusMessage string
	tokens        []highlight.Token
	tabWidth      int
	lineNumbers   bool

	prompt        promptKind
	promptInput   []rune
	pendingFind   string
	pendingAction func()

	styleMain        tcell.Style
	styleStatus      tcell.Style
	stylePrompt      tcell.Style
	styleLineNumber  tcell.Style
	styleSelection   tcell.Style
	styleSearchMatch tcell.Style
	styleSyntax      map[highlight.Class]tcell.Style
}

func New(cfg *config.Store, langs config.Languages, buf *buffer.Buffer, hl *highlight.Highlighter, eng *search.Engine, mgr *storage.Manager) *Editor {
	tabWidth := cfg.Editor.TabWidth
	if tabWidth < 1 {
		tabWidth = 1
	}
	mainFg := parseColor(cfg.Theme.Foreground, tcell.ColorWhite)
	mainBg := parseColor(cfg.Theme.Background, tcell.ColorBlack)
	statusFg := parseColor(cfg.Theme.StatuslineForeground, tcell.ColorWhite)
	statusBg := parseColor(cfg.Theme.StatuslineBackground, tcell.ColorNavy)
	promptFg := parseColor(cfg.Theme.PromptForeground, statusFg)
	promptBg := parseColor(cfg.Theme.PromptBackground, mainBg)
	lineNumberFg := parseColor(cfg.Theme.LineNumberForeground, tcell.ColorGray)
	selectionFg := parseColor(cfg.Theme.SelectionForeground, mainFg)
	selectionBg := parseColor(cfg.Theme.SelectionBackground, tcell.ColorNavy)
	searchFg := parseColor(cfg.Theme.SearchMatchForeground, tcell.ColorBlack)
	searchBg := parseColor(cfg.Theme.SearchMatchBackground, tcell.ColorYellow)

	syntax := map[highlight.Class]tcell.Style{}
	for class, color := range map[highlight.Class]string{
		highlight.ClassKeyword:  cfg.Theme.SyntaxKeyword,
		highlight.ClassString:   cfg.Theme.SyntaxString,
		highlight.ClassComment:  cfg.Theme.SyntaxComment,
		highlight.ClassNumber:   cfg.Theme.SyntaxNumber,
		highlight.ClassFunction: cfg.Theme.SyntaxFunction,
		highlight.ClassClass:    cfg.Theme.SyntaxClass,
		highlight.ClassOperator: cfg.Theme.SyntaxOperator,
		highlight.ClassBuiltin:  cfg.Theme.SyntaxBuiltin,
	} {
		syntax[class] = tcell.StyleDefault.Foreground(parseColor(color, mainFg)).Background(mainBg)
	}

	return &Editor{
		buf:              buf,
		hl:               hl,
		eng:              eng,
		mgr:              mgr,
		cfg:              cfg,
		langs:            langs,
		tabWidth:         tabWidth,
		lineNumbers:      cfg.Editor.LineNumbers,
		styleMain:        tcell.StyleDefault.Foreground(mainFg).Background(mainBg),
		styleStatus:      tcell.StyleDefault.Foreground(statusFg).Background(statusBg),
		stylePrompt:      tcell.StyleDefault.Foreground(promptFg).Background(promptBg),
		styleLineNumber:  tcell.StyleDefault.Foreground(lineNumberFg).Background(mainBg),
		styleSelection:   tcell.StyleDefault.Foreground(selectionFg).Background(selectionBg),
		styleSearchMatch: tcell.StyleDefault.Foreground(searchFg).Background(searchBg),
		styleSyntax:      syntax,
	}
}

// SetTokens is the highlighter's sink.
func (e *Editor) SetTokens(tokens []highlight.Token) {
	e.tokens = tokens
}

// SetStatus is the status sink shared with the file manager.
func (e *Editor) SetStatus(msg string) {
	e.statusMessage = msg
}

// Commands accepted from the outside (menu bindings, tests).

func (e *Editor) Open(path string) error {
	content, err := e.mgr.Open(path)
	if err != nil {
		return err
	}
	e.buf.Load(content)
	e.scroll = 0
	if lang := e.langs.Match(path); lang != nil && e.cfg.Editor.SyntaxHighlighting {
		e.hl.SetLanguage(lang.Name)
	} else {
		e.hl.SetLanguage("")
	}
	e.SetStatus("Opened: " + filepath.Base(path))
	return nil
}

func (e *Editor) Save() error {
	if err := e.mgr.Save(e.buf.Text()); err != nil {
		return err
	}
	e.buf.MarkClean()
	e.SetStatus("Saved: " + filepath.Base(e.mgr.CurrentFile()))
	return nil
}

func (e *Editor) SaveAs(path string) error {
	if err := e.mgr.SaveTo(e.buf.Text(), path); err != nil {
		return err
	}
	e.buf.MarkClean()
	if lang := e.langs.Match(path); lang != nil && e.cfg.Editor.SyntaxHighlighting {
		e.hl.SetLanguage(lang.Name)
	}
	e.SetStatus("Saved: " + filepath.Base(path))
	return nil
}

func (e *Editor) Find(pattern string) {
	q := search.Query{Pattern: pattern}
	m, ok, err := e.eng.FindNext(q, e.buf.Cursor())
	if err != nil {
		e.SetStatus(err.Error())
		return
	}
	if !ok {
		e.SetStatus(fmt.Sprintf("'%s' not found", pattern))
		return
	}
	e.eng.Select(m)
	e.pendingFind = pattern
	line, _ := e.buf.LineCol(m.Start)
	e.SetStatus(fmt.Sprintf("match at line %d", line+1))
}

func (e *Editor) Replace(pattern, replacement string) {
	count, err := e.eng.ReplaceAll(search.Query{Pattern: pattern}, replacement)
	if err != nil {
		e.SetStatus(err.Error())
		return
	}
	if count == 0 {
		e.SetStatus(fmt.Sprintf("'%s' not found", pattern))
		return
	}
	e.SetStatus(fmt.Sprintf("Replaced %d occurrence(s)", count))
}

func (e *Editor) Undo() {
	if !e.buf.Undo() {
		e.SetStatus("nothing to undo")
	}
}

func (e *Editor) Redo() {
	if !e.buf.Redo() {
		e.SetStatus("nothing to redo")
	}
}

func (e *Editor) NewFile() {
	e.mgr.NewFile()
	e.buf.Load("")
	e.hl.SetLanguage("")
	e.scroll = 0
	e.SetStatus("New file")
}

// HandleKey processes one key event; it reports true when the
// application should exit.
func (e *Editor) HandleKey(ev *tcell.EventKey) bool {
	if e.prompt != promptNone {
		return e.handlePrompt(ev)
	}
	switch ev.Key() {
	case tcell.KeyCtrlQ:
		return e.requestQuit()
	case tcell.KeyCtrlS:
		if err := e.Save(); err != nil {
			if errors.Is(err, storage.ErrNoPath) {
				e.startPrompt(promptSaveAs, "")
				return false
			}
			e.SetStatus(err.Error())
		}
	case tcell.KeyCtrlO:
		e.startPrompt(promptOpen, "")
	case tcell.KeyCtrlN:
		e.confirmThen(e.NewFile)
	case tcell.KeyCtrlF:
		e.startPrompt(promptFind, e.pendingFind)
	case tcell.KeyCtrlR:
		e.startPrompt(promptReplace, "")
	case tcell.KeyF3:
		if e.pendingFind != "" {
			e.Find(e.pendingFind)
		}
	case tcell.KeyCtrlZ:
		e.Undo()
	case tcell.KeyCtrlY:
		e.Redo()
	case tcell.KeyCtrlA:
		e.buf.SelectAll()
	case tcell.KeyCtrlC:
		e.copySelection()
	case tcell.KeyCtrlX:
		e.cutSelection()
	case tcell.KeyCtrlV:
		e.pasteClipboard()
	case tcell.KeyLeft:
		e.moveCursor(-1, 0)
	case tcell.KeyRight:
		e.moveCursor(1, 0)
	case tcell.KeyUp:
		e.moveCursor(0, -1)
	case tcell.KeyDown:
		e.moveCursor(0, 1)
	case tcell.KeyHome:
		line, _ := e.buf.LineCol(e.buf.Cursor())
		e.buf.SetCursor(e.buf.Offset(line, 0))
	case tcell.KeyEnd:
		line, _ := e.buf.LineCol(e.buf.Cursor())
		e.buf.SetCursor(e.buf.Offset(line, utf8.RuneCountInString(e.buf.Lines()[line])))
	case tcell.KeyPgUp:
		e.pageMove(-1)
	case tcell.KeyPgDn:
		e.pageMove(1)
	case tcell.KeyEnter:
		e.insertText("\n")
	case tcell.KeyTab:
		e.insertText("\t")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		e.backspace()
	case tcell.KeyDelete:
		e.deleteForward()
	case tcell.KeyEscape:
		e.buf.ClearSelection()
		e.SetStatus("")
	case tcell.KeyRune:
		e.insertText(string(ev.Rune()))
	}
	return false
}

func (e *Editor) requestQuit() bool {
	switch e.mgr.ConfirmClose() {
	case storage.DecisionSave:
		if err := e.Save(); err != nil {
			e.SetStatus(err.Error())
			return false
		}
		return true
	case storage.DecisionDiscard:
		return true
	}
	// No decision available: ask on the prompt line.
	e.startPrompt(promptConfirmQuit, "")
	return false
}

// confirmThen runs fn once the unsaved-changes question is settled: clean
// documents and discard decisions proceed at once, a save decision saves
// first, and with no decision source the question goes to the prompt line
// with fn held as the pending action.
func (e *Editor) confirmThen(fn func()) {
	switch e.mgr.ConfirmClose() {
	case storage.DecisionSave:
		if err := e.Save(); err != nil {
			e.SetStatus(err.Error())
			return
		}
		fn()
	case storage.DecisionDiscard:
		fn()
	default:
		e.pendingAction = fn
		e.startPrompt(promptConfirmClose, "")
	}
}

func (e *Editor) runPending() {
	if fn := e.pendingAction; fn != nil {
		e.pendingAction = nil
		fn()
	}
}

func (e *Editor) insertText(text string) {
	if start, end, ok := e.buf.Selection(); ok {
		e.buf.Replace(start, end, text)
		return
	}
	e.buf.Insert(e.buf.Cursor(), text)
}

func (e *Editor) backspace() {
	if start, end, ok := e.buf.Selection(); ok {
		e.buf.Delete(start, end)
		return
	}
	pos := e.buf.Cursor()
	if pos == 0 {
		return
	}
	_, size := utf8.DecodeLastRuneInString(e.buf.Text()[:pos])
	e.buf.Delete(pos-size, pos)
}

func (e *Editor) deleteForward() {
	if start, end, ok := e.buf.Selection(); ok {
		e.buf.Delete(start, end)
		return
	}
	pos := e.buf.Cursor()
	if pos >= e.buf.Len() {
		return
	}
	_, size := utf8.DecodeRuneInString(e.buf.Text()[pos:])
	e.buf.Delete(pos, pos+size)
}

func (e *Editor) moveCursor(dx, dy int) {
	pos := e.buf.Cursor()
	if dx != 0 {
		text := e.buf.Text()
		if dx < 0 && pos > 0 {
			_, size := utf8.DecodeLastRuneInString(text[:pos])
			e.buf.SetCursor(pos - size)
		} else if dx > 0 && pos < len(text) {
			_, size := utf8.DecodeRuneInString(text[pos:])
			e.buf.SetCursor(pos + size)
		}
	}
	if dy != 0 {
		line, col := e.buf.LineCol(pos)
		e.buf.SetCursor(e.buf.Offset(line+dy, col))
	}
	e.buf.ClearSelection()
}

func (e *Editor) pageMove(dir int) {
	step := e.viewHeight
	if step < 1 {
		step = 1
	}
	line, col := e.buf.LineCol(e.buf.Cursor())
	e.buf.SetCursor(e.buf.Offset(line+dir*step, col))
}

func (e *Editor) copySelection() {
	text := e.buf.SelectedText()
	if text == "" {
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		e.SetStatus("clipboard unavailable")
		return
	}
	e.SetStatus("copied")
}

func (e *Editor) cutSelection() {
	start, end, ok := e.buf.Selection()
	if !ok {
		return
	}
	if err := clipboard.WriteAll(e.buf.SelectedText()); err != nil {
		e.SetStatus("clipboard unavailable")
		return
	}
	e.buf.Delete(start, end)
}

func (e *Editor) pasteClipboard() {
	text, err := clipboard.ReadAll()
	if err != nil || text == "" {
		return
	}
	e.insertText(text)
}

func (e *Editor) startPrompt(kind promptKind, initial string) {
	e.prompt = kind
	e.promptInput = []rune(initial)
}

func (e *Editor) promptLabel() string {
	switch e.prompt {
	case promptOpen:
		return "Open: "
	case promptSaveAs:
		return "Save as: "
	case promptFind:
		return "Find: "
	case promptReplace:
		return "Replace: "
	case promptReplaceWith:
		return "With: "
	case promptConfirmQuit:
		return "Save changes before quitting? (y/n/esc): "
	case promptConfirmClose:
		return "Save changes? (y/n/esc): "
	}
	return ""
}

func (e *Editor) handlePrompt(ev *tcell.EventKey) bool {
	if e.prompt == promptConfirmQuit || e.prompt == promptConfirmClose {
		return e.handleConfirm(ev)
	}
	switch ev.Key() {
	case tcell.KeyEscape:
		e.prompt = promptNone
		e.promptInput = nil
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(e.promptInput) > 0 {
			e.promptInput = e.promptInput[:len(e.promptInput)-1]
		}
	case tcell.KeyEnter:
		e.submitPrompt()
	case tcell.KeyRune:
		e.promptInput = append(e.promptInput, ev.Rune())
	}
	return false
}

// handleConfirm answers the y/n/esc question for quit and close prompts.
// Only the quit variant exits the application.
func (e *Editor) handleConfirm(ev *tcell.EventKey) bool {
	kind := e.prompt
	switch {
	case ev.Key() == tcell.KeyEscape:
		e.prompt = promptNone
		e.pendingAction = nil
	case ev.Key() == tcell.KeyRune && (ev.Rune() == 'y' || ev.Rune() == 'Y'):
		e.prompt = promptNone
		if err := e.Save(); err != nil {
			e.pendingAction = nil
			if errors.Is(err, storage.ErrNoPath) {
				e.startPrompt(promptSaveAs, "")
				return false
			}
			e.SetStatus(err.Error())
			return false
		}
		if kind == promptConfirmQuit {
			return true
		}
		e.runPending()
	case ev.Key() == tcell.KeyRune && (ev.Rune() == 'n' || ev.Rune() == 'N'):
		e.prompt = promptNone
		if kind == promptConfirmQuit {
			return true
		}
		e.runPending()
	}
	return false
}

func (e *Editor) submitPrompt() {
	input := string(e.promptInput)
	kind := e.prompt
	e.prompt = promptNone
	e.promptInput = nil
	switch kind {
	case promptOpen:
		if input == "" {
			return
		}
		e.confirmThen(func() {
			if err := e.Open(input); err != nil {
				e.SetStatus(err.Error())
			}
		})
	case promptSaveAs:
		if input == "" {
			return
		}
		if err := e.SaveAs(input); err != nil {
			e.SetStatus(err.Error())
		}
	case promptFind:
		if input != "" {
			e.Find(input)
		}
	case promptReplace:
		if input == "" {
			return
		}
		e.pendingFind = input
		e.startPrompt(promptReplaceWith, "")
	case promptReplaceWith:
		e.Replace(e.pendingFind, input)
	}
}

// Render draws the document, status line and prompt line.
func (e *Editor) Render(s tcell.Screen) {
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return
	}
	statusY := h - 2
	promptY := h - 1
	viewHeight := h - 2
	if viewHeight < 0 {
		viewHeight = 0
	}
	e.viewHeight = viewHeight
	e.ensureCursorVisible(viewHeight)

	s.SetStyle(e.styleMain)
	s.Clear()

	lines := e.buf.Lines()
	gutterWidth := e.gutterWidth(len(lines))
	lineStart := 0
	starts := make([]int, len(lines))
	for i, line := range lines {
		starts[i] = lineStart
		lineStart += len(line) + 1
	}
	selStart, selEnd, selActive := e.buf.Selection()

	for y := 0; y < viewHeight; y++ {
		idx := e.scroll + y
		if idx >= len(lines) {
			continue
		}
		e.drawLine(s, y, w, gutterWidth, lines[idx], idx, starts[idx], selStart, selEnd, selActive)
	}

	if statusY >= 0 {
		e.drawStatusline(s, w, statusY)
	}
	if promptY >= 0 {
		e.drawPromptline(s, w, promptY)
	}

	if e.prompt != promptNone {
		label := e.promptLabel()
		s.ShowCursor(runewidth.StringWidth(label)+runewidth.StringWidth(string(e.promptInput)), promptY)
	} else {
		line, col := e.buf.LineCol(e.buf.Cursor())
		cy := line - e.scroll
		if cy >= 0 && cy < viewHeight {
			cx := gutterWidth + e.visualCol(lines[line], col)
			if cx >= w {
				cx = w - 1
			}
			s.ShowCursor(cx, cy)
		} else {
			s.HideCursor()
		}
	}
	s.Show()
}

func (e *Editor) ensureCursorVisible(viewHeight int) {
	line, _ := e.buf.LineCol(e.buf.Cursor())
	if line < e.scroll {
		e.scroll = line
	}
	if viewHeight > 0 && line >= e.scroll+viewHeight {
		e.scroll = line - viewHeight + 1
	}
	if e.scroll < 0 {
		e.scroll = 0
	}
}

func (e *Editor) gutterWidth(lineCount int) int {
	if !e.lineNumbers {
		return 0
	}
	digits := len(strconv.Itoa(lineCount))
	if digits < 2 {
		digits = 2
	}
	return digits + 1
}

func (e *Editor) drawLine(s tcell.Screen, y, w, gutterWidth int, line string, idx, lineStart, selStart, selEnd int, selActive bool) {
	x := 0
	if gutterWidth > 0 {
		num := strconv.Itoa(idx + 1)
		for x < gutterWidth-1-len(num) {
			s.SetContent(x, y, ' ', nil, e.styleLineNumber)
			x++
		}
		for _, r := range num {
			s.SetContent(x, y, r, nil, e.styleLineNumber)
			x++
		}
		s.SetContent(x, y, ' ', nil, e.styleLineNumber)
		x++
	}
	byteIdx := 0
	for _, r := range line {
		if x >= w {
			break
		}
		pos := lineStart + byteIdx
		style := e.styleAt(pos)
		if selActive && pos >= selStart && pos < selEnd {
			style = e.styleSelection
		}
		if r == '\t' {
			next := x + e.tabWidth - ((x - gutterWidth) % e.tabWidth)
			for x < next && x < w {
				s.SetContent(x, y, ' ', nil, style)
				x++
			}
		} else {
			s.SetContent(x, y, r, nil, style)
			x += runewidth.RuneWidth(r)
		}
		byteIdx += utf8.RuneLen(r)
	}
}

// styleAt resolves the syntax style for a byte offset via binary search
// over the (sorted, non-overlapping) token spans.
func (e *Editor) styleAt(pos int) tcell.Style {
	i := sort.Search(len(e.tokens), func(i int) bool { return e.tokens[i].End > pos })
	if i < len(e.tokens) && e.tokens[i].Start <= pos {
		if style, ok := e.styleSyntax[e.tokens[i].Class]; ok {
			return style
		}
	}
	return e.styleMain
}

func (e *Editor) drawStatusline(s tcell.Screen, w, y int) {
	name := e.mgr.CurrentFile()
	if name == "" {
		name = "[untitled]"
	} else {
		name = filepath.Base(name)
	}
	if e.buf.Dirty() {
		name += " *"
	}
	lang := e.hl.Language()
	if lang == "" {
		lang = "text"
	}
	line, col := e.buf.LineCol(e.buf.Cursor())
	left := " " + name + "  " + lang
	right := fmt.Sprintf("Ln %d, Col %d ", line+1, col+1)
	text := left + strings.Repeat(" ", maxInt(1, w-runewidth.StringWidth(left)-runewidth.StringWidth(right))) + right
	drawText(s, 0, y, w, text, e.styleStatus)
}

func (e *Editor) drawPromptline(s tcell.Screen, w, y int) {
	text := e.statusMessage
	if e.prompt != promptNone {
		text = e.promptLabel() + string(e.promptInput)
	}
	drawText(s, 0, y, w, text, e.stylePrompt)
}

func drawText(s tcell.Screen, x, y, w int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= w {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
	for x < w {
		s.SetContent(x, y, ' ', nil, style)
		x++
	}
}

func (e *Editor) visualCol(line string, col int) int {
	x := 0
	for i, r := range []rune(line) {
		if i >= col {
			break
		}
		if r == '\t' {
			x += e.tabWidth - (x % e.tabWidth)
		} else {
			x += runewidth.RuneWidth(r)
		}
	}
	return x
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func parseColor(name string, fallback tcell.Color) tcell.Color {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if strings.HasPrefix(name, "#") && len(name) == 7 {
		r, err1 := strconv.ParseInt(name[1:3], 16, 32)
		g, err2 := strconv.ParseInt(name[3:5], 16, 32)
		b, err3 := strconv.ParseInt(name[5:7], 16, 32)
		if err1 == nil && err2 == nil && err3 == nil {
			return tcell.NewRGBColor(int32(r), int32(g), int32(b))
		}
		return fallback
	}
	name = strings.ToLower(name)
	if name == "default" {
		return tcell.ColorDefault
	}
	c := tcell.GetColor(name)
	if c == tcell.ColorDefault {
		return fallback
	}
	return c
}
