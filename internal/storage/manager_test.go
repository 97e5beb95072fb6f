package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/schedule"
)

type fixture struct {
	mgr     *Manager
	cfg     *config.Store
	clock   *schedule.ManualClock
	dir     string
	content string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.LoadFrom(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("loadFrom: %v", err)
	}
	clock := schedule.NewManualClock()
	f := &fixture{cfg: cfg, clock: clock, dir: dir}
	f.mgr = NewManager(cfg, schedule.NewWithClock(clock), func() string { return f.content })
	f.mgr.SetBackupsDir(filepath.Join(dir, "backups"))
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestOpenSaveRoundTrip(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "notes.txt", "line one\nline two\n")
	text, err := f.mgr.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if text != "line one\nline two\n" {
		t.Fatalf("text = %q", text)
	}
	if f.mgr.CurrentFile() != path || f.mgr.Unsaved() {
		t.Fatalf("current = %q, unsaved = %v", f.mgr.CurrentFile(), f.mgr.Unsaved())
	}

	if err := f.mgr.Save("line one\nedited\n"); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("readback: %v", err)
	}
	if string(data) != "line one\nedited\n" {
		t.Fatalf("on disk = %q", data)
	}
}

func TestOpenNormalizesEncoding(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "dos.txt", "a\r\nb\r\n")
	text, err := f.mgr.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if text != "a\nb\n" {
		t.Fatalf("text = %q, want LF line endings", text)
	}

	path = f.write(t, "latin1.txt", "caf\xe9")
	text, err = f.mgr.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if text != "caf�" {
		t.Fatalf("text = %q, want replacement for invalid byte", text)
	}
}

func TestOpenMissingFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Open(filepath.Join(f.dir, "absent.txt"))
	var ioErr *FileIOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want FileIOError", err)
	}
	if ioErr.Op != "open" {
		t.Fatalf("op = %q", ioErr.Op)
	}
	if f.mgr.CurrentFile() != "" {
		t.Fatalf("current file set after failed open")
	}
}

func TestSaveUntitledNeedsPath(t *testing.T) {
	f := newFixture(t)
	if err := f.mgr.Save("x"); !errors.Is(err, ErrNoPath) {
		t.Fatalf("err = %v, want ErrNoPath without a prompt", err)
	}

	f.mgr.SetPathPrompt(func() (string, bool) { return "", false })
	if err := f.mgr.Save("x"); !errors.Is(err, ErrNoPath) {
		t.Fatalf("err = %v, want ErrNoPath on cancelled prompt", err)
	}

	path := filepath.Join(f.dir, "untitled.txt")
	f.mgr.SetPathPrompt(func() (string, bool) { return path, true })
	if err := f.mgr.Save("saved as"); err != nil {
		t.Fatalf("save as: %v", err)
	}
	if f.mgr.CurrentFile() != path {
		t.Fatalf("current = %q, want %q", f.mgr.CurrentFile(), path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "saved as" {
		t.Fatalf("on disk = %q", data)
	}
}

func TestBackupRotation(t *testing.T) {
	f := newFixture(t)
	f.cfg.Files.MaxBackups = 3
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	saves := 0
	f.mgr.SetNowFunc(func() time.Time {
		saves++
		return base.Add(time.Duration(saves) * time.Minute)
	})

	path := f.write(t, "doc.txt", "v0")
	for i := 1; i <= 6; i++ {
		if err := f.mgr.SaveTo(fmt.Sprintf("v%d", i), path); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	records, err := f.mgr.Backups("doc.txt")
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("backups kept = %d, want 3", len(records))
	}
	// Newest first; the newest backup holds the version before the last
	// save.
	data, err := os.ReadFile(records[0].Path)
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != "v5" {
		t.Fatalf("newest backup = %q, want %q", data, "v5")
	}
	if want := "doc.txt.20260823_120600.backup"; filepath.Base(records[0].Path) != want {
		t.Fatalf("newest backup name = %q, want %q", filepath.Base(records[0].Path), want)
	}
}

func TestBackupsDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Files.CreateBackups = false
	path := f.write(t, "doc.txt", "v0")
	if err := f.mgr.SaveTo("v1", path); err != nil {
		t.Fatalf("save: %v", err)
	}
	records, err := f.mgr.Backups("doc.txt")
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("backups = %d, want none", len(records))
	}
}

func TestBackupsIsolatedPerSource(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.txt", "a0")
	b := f.write(t, "b.txt", "b0")
	if err := f.mgr.SaveTo("a1", a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := f.mgr.SaveTo("b1", b); err != nil {
		t.Fatalf("save b: %v", err)
	}
	records, _ := f.mgr.Backups("a.txt")
	if len(records) != 1 || records[0].Source != "a.txt" {
		t.Fatalf("a backups = %+v", records)
	}
}

func TestRecentFilesMRU(t *testing.T) {
	f := newFixture(t)
	f.cfg.Files.MaxRecentFiles = 3
	var paths []string
	for i := 0; i < 4; i++ {
		paths = append(paths, f.write(t, fmt.Sprintf("f%d.txt", i), "x"))
	}
	for _, p := range paths[:3] {
		if _, err := f.mgr.Open(p); err != nil {
			t.Fatalf("open: %v", err)
		}
	}
	// Reopening an entry moves it to the front without duplicating it.
	if _, err := f.mgr.Open(paths[0]); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recent := f.mgr.RecentFiles()
	if len(recent) != 3 || recent[0] != paths[0] || recent[1] != paths[2] {
		t.Fatalf("recent = %v", recent)
	}
	// A fourth distinct file evicts the least recently used one.
	if _, err := f.mgr.Open(paths[3]); err != nil {
		t.Fatalf("open: %v", err)
	}
	recent = f.mgr.RecentFiles()
	if len(recent) != 3 || recent[0] != paths[3] {
		t.Fatalf("recent = %v", recent)
	}
	for _, p := range recent {
		if p == paths[1] {
			t.Fatalf("LRU entry survived: %v", recent)
		}
	}
}

func TestRecentFilesPersisted(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "kept.txt", "x")
	if _, err := f.mgr.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	reloaded, err := config.LoadFrom(f.cfg.Path())
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if len(reloaded.Files.RecentFiles) != 1 || reloaded.Files.RecentFiles[0] != path {
		t.Fatalf("persisted recent = %v", reloaded.Files.RecentFiles)
	}
}

func TestRecentFilesFiltersMissing(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "gone.txt", "x")
	if _, err := f.mgr.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if recent := f.mgr.RecentFiles(); len(recent) != 0 {
		t.Fatalf("recent = %v, want deleted file filtered out", recent)
	}
}

func TestAutoSaveAfterQuietPeriod(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "doc.txt", "v0")
	if _, err := f.mgr.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.content = "edited"

	// Edits at t=0s, 10s and 20s keep pushing the deadline out; the save
	// runs once, 30s after the last edit.
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(10 * time.Second)
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(10 * time.Second)
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(29 * time.Second)
	if data, _ := os.ReadFile(path); string(data) != "v0" {
		t.Fatalf("saved before quiet period elapsed: %q", data)
	}
	f.clock.Advance(time.Second)
	if data, _ := os.ReadFile(path); string(data) != "edited" {
		t.Fatalf("on disk = %q, want auto-saved content", data)
	}
	if f.mgr.Unsaved() {
		t.Fatalf("unsaved still set after auto-save")
	}
}

func TestAutoSaveNotifiesSaved(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "doc.txt", "v0")
	if _, err := f.mgr.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	savedCalls := 0
	f.mgr.SetSavedFunc(func() { savedCalls++ })
	f.content = "edited"
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(time.Hour)
	if savedCalls != 1 {
		t.Fatalf("saved calls = %d, want 1", savedCalls)
	}

	// A failed auto-save must not report success.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f.content = "edited again"
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(time.Hour)
	if savedCalls != 1 {
		t.Fatalf("saved calls = %d after failure, want 1", savedCalls)
	}
}

func TestAutoSaveNeedsCurrentFile(t *testing.T) {
	f := newFixture(t)
	f.content = "draft"
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(time.Hour)
	if !f.mgr.Unsaved() {
		t.Fatalf("unsaved cleared without a file to save to")
	}
}

func TestAutoSaveDisabled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Files.AutoSave = false
	path := f.write(t, "doc.txt", "v0")
	if _, err := f.mgr.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.content = "edited"
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(time.Hour)
	if data, _ := os.ReadFile(path); string(data) != "v0" {
		t.Fatalf("auto-save ran while disabled: %q", data)
	}
}

func TestAutoSaveFailureKeepsUnsaved(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "doc.txt", "v0")
	if _, err := f.mgr.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	var statuses []string
	f.mgr.SetStatusFunc(func(msg string) { statuses = append(statuses, msg) })

	// Replace the file with a directory so the write fails.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f.content = "edited"
	f.mgr.OnBufferChanged(f.content)
	f.clock.Advance(time.Hour)

	if !f.mgr.Unsaved() {
		t.Fatalf("unsaved cleared by a failed auto-save")
	}
	if len(statuses) == 0 {
		t.Fatalf("no status message for failed auto-save")
	}
}

func TestConfirmClose(t *testing.T) {
	f := newFixture(t)
	if got := f.mgr.ConfirmClose(); got != DecisionDiscard {
		t.Fatalf("clean document decision = %v, want discard", got)
	}
	f.mgr.OnBufferChanged("x")
	if got := f.mgr.ConfirmClose(); got != DecisionCancel {
		t.Fatalf("decision without prompt = %v, want cancel", got)
	}
	f.mgr.SetConfirmFunc(func() Decision { return DecisionSave })
	if got := f.mgr.ConfirmClose(); got != DecisionSave {
		t.Fatalf("decision = %v, want save", got)
	}
}

func TestNewFileCancelsAutoSave(t *testing.T) {
	f := newFixture(t)
	path := f.write(t, "doc.txt", "v0")
	if _, err := f.mgr.Open(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	f.content = "edited"
	f.mgr.OnBufferChanged(f.content)
	f.mgr.NewFile()
	f.clock.Advance(time.Hour)
	if data, _ := os.ReadFile(path); string(data) != "v0" {
		t.Fatalf("stale auto-save fired after new file: %q", data)
	}
	if f.mgr.CurrentFile() != "" || f.mgr.Unsaved() {
		t.Fatalf("state not reset: current %q, unsaved %v", f.mgr.CurrentFile(), f.mgr.Unsaved())
	}
}
