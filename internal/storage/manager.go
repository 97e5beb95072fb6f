// Package storage handles file persistence: open, save, timestamped
// backups with retention, debounced auto-save, and the recent-files list.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"quill/internal/config"
	"quill/internal/logger"
	"quill/internal/schedule"
)

const autosaveTimerID = "autosave"

// FileIOError wraps any read/write failure during open, save or backup.
type FileIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileIOError) Unwrap() error { return e.Err }

// ErrNoPath means save was called with no current file and no way to ask
// for one; the caller should run its save-as flow.
var ErrNoPath = errors.New("no file path to save to")

// Decision is the outcome of the unsaved-changes prompt. Cancel aborts
// the pending new/open/close action entirely.
type Decision int

const (
	DecisionSave Decision = iota
	DecisionDiscard
	DecisionCancel
)

// BackupRecord describes one timestamped backup file.
type BackupRecord struct {
	Path     string
	Source   string
	Modified time.Time
}

// Manager tracks the current file and its unsaved state. It reads save
// options and the recent-files list from the config store and asks the
// buffer for content only when auto-save fires.
type Manager struct {
	cfg        *config.Store
	sched      *schedule.Scheduler
	content    func() string
	backupsDir string
	current    string
	unsaved    bool

	now      func() time.Time
	dispatch func(func())
	status   func(string)
	saved    func()
	prompt   func() (string, bool)
	confirm  func() Decision
}

func NewManager(cfg *config.Store, sched *schedule.Scheduler, content func() string) *Manager {
	dir, err := config.BackupsDir()
	if err != nil {
		logger.Warn("backups directory unavailable", "error", err)
	}
	return &Manager{
		cfg:        cfg,
		sched:      sched,
		content:    content,
		backupsDir: dir,
		now:        time.Now,
		dispatch:   func(fn func()) { fn() },
		status:     func(string) {},
	}
}

// SetBackupsDir overrides where backups are kept.
func (m *Manager) SetBackupsDir(dir string) { m.backupsDir = dir }

// SetStatusFunc installs the status-line sink for non-blocking reports.
func (m *Manager) SetStatusFunc(fn func(string)) {
	if fn != nil {
		m.status = fn
	}
}

// SetDispatch installs a marshaller that moves the auto-save timer
// callback back onto the owning loop.
func (m *Manager) SetDispatch(fn func(func())) {
	if fn != nil {
		m.dispatch = fn
	}
}

// SetSavedFunc installs a callback run after a successful auto-save, so
// the buffer's dirty flag can be cleared alongside the unsaved flag.
func (m *Manager) SetSavedFunc(fn func()) { m.saved = fn }

// SetPathPrompt installs the save-as prompt used when saving an untitled
// document. ok=false means the user cancelled.
func (m *Manager) SetPathPrompt(fn func() (string, bool)) { m.prompt = fn }

// SetConfirmFunc installs the unsaved-changes prompt.
func (m *Manager) SetConfirmFunc(fn func() Decision) { m.confirm = fn }

// SetNowFunc overrides the clock used for backup timestamps.
func (m *Manager) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		m.now = fn
	}
}

func (m *Manager) CurrentFile() string { return m.current }

func (m *Manager) Unsaved() bool { return m.unsaved }

// Open reads a file as UTF-8, substituting undecodable byte sequences,
// and makes it the current document. CRLF line endings are normalized.
func (m *Manager) Open(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &FileIOError{Op: "open", Path: path, Err: err}
	}
	text := strings.ToValidUTF8(string(data), "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	m.sched.Cancel(autosaveTimerID)
	m.current = path
	m.unsaved = false
	m.addRecent(path)
	logger.Info("file opened", "path", path, "bytes", len(data))
	return text, nil
}

// Save writes content to the current file. With no current file it
// delegates to SaveAs.
func (m *Manager) Save(content string) error {
	if m.current == "" {
		return m.SaveAs(content)
	}
	return m.SaveTo(content, m.current)
}

// SaveAs asks for an explicit new path and saves there; the new path
// becomes the current file.
func (m *Manager) SaveAs(content string) error {
	if m.prompt == nil {
		return ErrNoPath
	}
	path, ok := m.prompt()
	if !ok || path == "" {
		return ErrNoPath
	}
	return m.SaveTo(content, path)
}

// SaveTo writes content to path, creating a rotating backup of the
// previous file version first when enabled. On failure the in-memory
// state is untouched so the save can be retried.
func (m *Manager) SaveTo(content string, path string) error {
	if path == "" {
		return ErrNoPath
	}
	if m.cfg.Files.CreateBackups {
		if _, err := os.Stat(path); err == nil {
			m.createBackup(path)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &FileIOError{Op: "save", Path: path, Err: err}
	}
	m.current = path
	m.unsaved = false
	m.addRecent(path)
	logger.Info("file saved", "path", path, "bytes", len(content))
	return nil
}

// createBackup copies the existing file aside as
// <basename>.<YYYYMMDD_HHMMSS>.backup and prunes old copies. Failures are
// logged and ignored; they must never block the primary write.
func (m *Manager) createBackup(path string) {
	if m.backupsDir == "" {
		return
	}
	if err := os.MkdirAll(m.backupsDir, 0o755); err != nil {
		logger.Warn("backup skipped", "path", path, "error", err)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("backup skipped", "path", path, "error", err)
		return
	}
	base := filepath.Base(path)
	name := fmt.Sprintf("%s.%s.backup", base, m.now().Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(m.backupsDir, name), data, 0o644); err != nil {
		logger.Warn("backup failed", "path", path, "error", err)
		return
	}
	m.pruneBackups(base)
}

// pruneBackups keeps the most recent max-backups copies for one source
// filename, newest by modification time.
func (m *Manager) pruneBackups(base string) {
	records, err := m.Backups(base)
	if err != nil {
		logger.Warn("backup prune failed", "file", base, "error", err)
		return
	}
	keep := m.cfg.Files.MaxBackups
	if keep < 1 {
		keep = 1
	}
	for _, rec := range records[min(keep, len(records)):] {
		if err := os.Remove(rec.Path); err != nil {
			logger.Warn("backup prune failed", "path", rec.Path, "error", err)
		}
	}
}

// Backups lists the stored backups for a source filename, newest first.
// Ties on modification time fall back to the timestamp in the name, which
// sorts the same way.
func (m *Manager) Backups(base string) ([]BackupRecord, error) {
	entries, err := os.ReadDir(m.backupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []BackupRecord
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, base+".") || !strings.HasSuffix(name, ".backup") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		records = append(records, BackupRecord{
			Path:     filepath.Join(m.backupsDir, name),
			Source:   base,
			Modified: info.ModTime(),
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Modified.Equal(records[j].Modified) {
			return records[i].Modified.After(records[j].Modified)
		}
		return records[i].Path > records[j].Path
	})
	return records, nil
}

// OnBufferChanged marks the document unsaved and re-arms the auto-save
// timer. A new edit before the timer fires cancels and reschedules it, so
// the save happens after a continuous quiet period.
func (m *Manager) OnBufferChanged(string) {
	m.unsaved = true
	if !m.cfg.Files.AutoSave || m.current == "" {
		return
	}
	interval := time.Duration(m.cfg.Files.AutoSaveInterval) * time.Second
	m.sched.Arm(autosaveTimerID, interval, func() {
		m.dispatch(m.autoSave)
	})
}

// autoSave runs when the quiet period elapses. Failures surface as a
// status message only and leave the unsaved flag set for the next try.
func (m *Manager) autoSave() {
	if !m.unsaved || m.current == "" {
		return
	}
	if err := m.SaveTo(m.content(), m.current); err != nil {
		logger.Warn("auto-save failed", "path", m.current, "error", err)
		m.status("auto-save failed: " + err.Error())
		return
	}
	if m.saved != nil {
		m.saved()
	}
	m.status("Auto-saved: " + filepath.Base(m.current))
}

// ConfirmClose is consulted before new/open/close when the document has
// unsaved changes. Clean documents proceed without prompting.
func (m *Manager) ConfirmClose() Decision {
	if !m.unsaved {
		return DecisionDiscard
	}
	if m.confirm == nil {
		return DecisionCancel
	}
	return m.confirm()
}

// NewFile resets to an untitled document. The caller runs ConfirmClose
// first.
func (m *Manager) NewFile() {
	m.sched.Cancel(autosaveTimerID)
	m.current = ""
	m.unsaved = false
}

// Close cancels any outstanding auto-save so a stale timer cannot fire
// against a torn-down document.
func (m *Manager) Close() {
	m.sched.Cancel(autosaveTimerID)
}

// addRecent pushes an absolute path to the front of the MRU list,
// removing any prior occurrence and truncating to max-recent-files, then
// persists the config store.
func (m *Manager) addRecent(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	recent := m.cfg.Files.RecentFiles
	out := make([]string, 0, len(recent)+1)
	out = append(out, abs)
	for _, p := range recent {
		if p != abs {
			out = append(out, p)
		}
	}
	max := m.cfg.Files.MaxRecentFiles
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	m.cfg.Files.RecentFiles = out
	if err := m.cfg.Save(); err != nil {
		logger.Warn("config save failed", "error", err)
	}
}

// RecentFiles returns the MRU list filtered to files that still exist.
func (m *Manager) RecentFiles() []string {
	var out []string
	for _, p := range m.cfg.Files.RecentFiles {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}
