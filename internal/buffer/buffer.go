// Package buffer owns the document: content, cursor, selection and the
// undo history. Positions are byte offsets into the UTF-8 content.
package buffer

import (
	"strings"
)

// DefaultUndoDepth bounds the undo stack; the oldest snapshot is evicted
// when the stack is full.
const DefaultUndoDepth = 100

type snapshot struct {
	content string
	cursor  int
}

// Buffer is not safe for concurrent mutation; everything runs on the
// owning event loop.
type Buffer struct {
	content   string
	cursor    int
	selStart  int
	selEnd    int
	selActive bool
	dirty     bool
	undo      []snapshot
	redo      []snapshot
	undoDepth int
	observers []func(content string)
}

func New() *Buffer {
	return &Buffer{undoDepth: DefaultUndoDepth}
}

// Observe registers a change observer. Observers are called after every
// successful mutation with the new content; this is the only coupling
// between the buffer and the rest of the core.
func (b *Buffer) Observe(fn func(content string)) {
	b.observers = append(b.observers, fn)
}

func (b *Buffer) notify() {
	for _, fn := range b.observers {
		fn(b.content)
	}
}

func (b *Buffer) Text() string {
	return b.content
}

func (b *Buffer) Len() int {
	return len(b.content)
}

func (b *Buffer) clamp(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(b.content) {
		return len(b.content)
	}
	return pos
}

func (b *Buffer) pushUndo() {
	b.undo = append(b.undo, snapshot{content: b.content, cursor: b.cursor})
	if len(b.undo) > b.undoDepth {
		b.undo = b.undo[1:]
	}
	b.redo = nil
}

// Insert splices text in at pos, clamping pos to the document bounds.
// The cursor lands after the inserted text.
func (b *Buffer) Insert(pos int, text string) {
	if text == "" {
		return
	}
	pos = b.clamp(pos)
	b.pushUndo()
	b.content = b.content[:pos] + text + b.content[pos:]
	b.cursor = pos + len(text)
	b.selActive = false
	b.dirty = true
	b.notify()
}

// Delete removes [start, end), clamping both ends. An empty range after
// clamping is a no-op.
func (b *Buffer) Delete(start, end int) {
	start, end = b.clamp(start), b.clamp(end)
	if start > end {
		start, end = end, start
	}
	if start == end {
		return
	}
	b.pushUndo()
	b.content = b.content[:start] + b.content[end:]
	b.cursor = start
	b.selActive = false
	b.dirty = true
	b.notify()
}

// Replace substitutes [start, end) with text as one undoable mutation.
func (b *Buffer) Replace(start, end int, text string) {
	start, end = b.clamp(start), b.clamp(end)
	if start > end {
		start, end = end, start
	}
	if start == end && text == "" {
		return
	}
	b.pushUndo()
	b.content = b.content[:start] + text + b.content[end:]
	b.cursor = start + len(text)
	b.selActive = false
	b.dirty = true
	b.notify()
}

// SetText replaces the whole document as a single undoable mutation.
// Replace-all goes through here.
func (b *Buffer) SetText(text string) {
	b.pushUndo()
	b.content = text
	b.cursor = b.clamp(b.cursor)
	b.selActive = false
	b.dirty = true
	b.notify()
}

// Load replaces the document wholesale for new/open: history and the
// dirty flag are reset and observers are not notified, since this is a
// fresh document rather than an edit. The caller re-triggers highlighting
// through SetLanguage.
func (b *Buffer) Load(text string) {
	b.content = text
	b.cursor = 0
	b.selActive = false
	b.undo = nil
	b.redo = nil
	b.dirty = false
}

// Undo restores the previous snapshot. A no-op on an empty stack.
func (b *Buffer) Undo() bool {
	if len(b.undo) == 0 {
		return false
	}
	last := b.undo[len(b.undo)-1]
	b.undo = b.undo[:len(b.undo)-1]
	b.redo = append(b.redo, snapshot{content: b.content, cursor: b.cursor})
	b.content = last.content
	b.cursor = b.clamp(last.cursor)
	b.selActive = false
	b.dirty = true
	b.notify()
	return true
}

// Redo reapplies the last undone snapshot. A no-op on an empty stack.
func (b *Buffer) Redo() bool {
	if len(b.redo) == 0 {
		return false
	}
	last := b.redo[len(b.redo)-1]
	b.redo = b.redo[:len(b.redo)-1]
	b.undo = append(b.undo, snapshot{content: b.content, cursor: b.cursor})
	b.content = last.content
	b.cursor = b.clamp(last.cursor)
	b.selActive = false
	b.dirty = true
	b.notify()
	return true
}

func (b *Buffer) Dirty() bool {
	return b.dirty
}

func (b *Buffer) MarkClean() {
	b.dirty = false
}

func (b *Buffer) Cursor() int {
	return b.cursor
}

func (b *Buffer) SetCursor(pos int) {
	b.cursor = b.clamp(pos)
}

func (b *Buffer) SelectAll() {
	b.selStart = 0
	b.selEnd = len(b.content)
	b.selActive = true
	b.cursor = b.selEnd
}

func (b *Buffer) SetSelection(start, end int) {
	start, end = b.clamp(start), b.clamp(end)
	if start > end {
		start, end = end, start
	}
	b.selStart = start
	b.selEnd = end
	b.selActive = true
}

func (b *Buffer) ClearSelection() {
	b.selActive = false
}

// Selection returns the active selection range, if any.
func (b *Buffer) Selection() (start, end int, ok bool) {
	if !b.selActive {
		return 0, 0, false
	}
	return b.selStart, b.selEnd, true
}

// SelectedText returns the text under the active selection.
func (b *Buffer) SelectedText() string {
	if !b.selActive {
		return ""
	}
	return b.content[b.selStart:b.selEnd]
}

// LineCount is always count('\n') + 1.
func (b *Buffer) LineCount() int {
	return strings.Count(b.content, "\n") + 1
}

// Lines splits the content for rendering.
func (b *Buffer) Lines() []string {
	return strings.Split(b.content, "\n")
}

// LineCol converts a byte offset to zero-based (line, column); the column
// counts runes since the line start.
func (b *Buffer) LineCol(pos int) (line, col int) {
	pos = b.clamp(pos)
	before := b.content[:pos]
	line = strings.Count(before, "\n")
	lineStart := strings.LastIndexByte(before, '\n') + 1
	col = len([]rune(before[lineStart:]))
	return line, col
}

// Offset converts zero-based (line, column runes) back to a byte offset,
// clamping to valid positions.
func (b *Buffer) Offset(line, col int) int {
	if line < 0 {
		return 0
	}
	pos := 0
	for line > 0 {
		next := strings.IndexByte(b.content[pos:], '\n')
		if next < 0 {
			return len(b.content)
		}
		pos += next + 1
		line--
	}
	rest := b.content[pos:]
	if end := strings.IndexByte(rest, '\n'); end >= 0 {
		rest = rest[:end]
	}
	runes := []rune(rest)
	if col > len(runes) {
		col = len(runes)
	}
	if col < 0 {
		col = 0
	}
	return pos + len(string(runes[:col]))
}
